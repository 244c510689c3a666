// Package crypto provides the cryptographic primitives used by the HAP
// session engine: HKDF-SHA512 key derivation, the ChaCha20-Poly1305 session
// cipher with counter nonces, X25519 key agreement and Ed25519 long-term
// identity keys.
//
// The suite is a deliberate choice: the protocol material leaves the exact
// primitives open, and this set is what the HAP ecosystem runs on while being
// fully covered by golang.org/x/crypto and the standard library.
package crypto

import (
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/hkdf"
)

// HKDFSHA512 derives length bytes of key material using HKDF-SHA512 (RFC 5869).
//
// Parameters:
//   - inputKey: input keying material (IKM)
//   - salt: optional salt value (can be nil or empty)
//   - info: optional context-specific info (can be nil or empty)
//   - length: number of bytes to derive
func HKDFSHA512(inputKey, salt, info []byte, length int) ([]byte, error) {
	reader := hkdf.New(sha512.New, inputKey, salt, info)
	result := make([]byte, length)
	if _, err := io.ReadFull(reader, result); err != nil {
		return nil, err
	}
	return result, nil
}
