package crypto

import (
	"crypto/cipher"
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// Session cipher constants.
const (
	// SessionKeySize is the ChaCha20-Poly1305 key size in bytes.
	SessionKeySize = chacha20poly1305.KeySize

	// SessionTagSize is the Poly1305 authentication tag size in bytes.
	SessionTagSize = chacha20poly1305.Overhead

	// SessionNonceSize is the nonce size in bytes. The leading 4 bytes are
	// zero, the trailing 8 bytes carry a little-endian message counter.
	SessionNonceSize = chacha20poly1305.NonceSize
)

var (
	ErrInvalidKeySize = errors.New("crypto: invalid key size, must be 32 bytes")
	ErrAuthFailed     = errors.New("crypto: message authentication failed")
)

// SessionCipher encrypts and decrypts session messages with
// ChaCha20-Poly1305. The nonce for each message is derived from a 64-bit
// counter supplied by the caller; no two messages may ever be sealed with the
// same counter under the same key.
type SessionCipher struct {
	aead cipher.AEAD
}

// NewSessionCipher creates a SessionCipher from a 32-byte key.
func NewSessionCipher(key []byte) (*SessionCipher, error) {
	if len(key) != SessionKeySize {
		return nil, ErrInvalidKeySize
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return &SessionCipher{aead: aead}, nil
}

// Seal encrypts plaintext under the given counter and additional data.
// The returned slice is ciphertext followed by the 16-byte tag.
func (c *SessionCipher) Seal(counter uint64, aad, plaintext []byte) []byte {
	return c.aead.Seal(nil, counterNonce(counter), plaintext, aad)
}

// Open decrypts ciphertext (which must include the trailing tag) under the
// given counter and additional data. Authentication failure returns
// ErrAuthFailed.
func (c *SessionCipher) Open(counter uint64, aad, ciphertext []byte) ([]byte, error) {
	plaintext, err := c.aead.Open(nil, counterNonce(counter), ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// SealWithNonce encrypts plaintext with an explicit nonce label, used by the
// pairing protocols whose nonces are fixed strings such as "PS-Msg05".
func (c *SessionCipher) SealWithNonce(nonce string, aad, plaintext []byte) []byte {
	return c.aead.Seal(nil, labelNonce(nonce), plaintext, aad)
}

// OpenWithNonce decrypts ciphertext sealed by SealWithNonce.
func (c *SessionCipher) OpenWithNonce(nonce string, aad, ciphertext []byte) ([]byte, error) {
	plaintext, err := c.aead.Open(nil, labelNonce(nonce), ciphertext, aad)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// counterNonce builds a 12-byte nonce with the counter in the trailing
// 8 bytes, little-endian.
func counterNonce(counter uint64) []byte {
	nonce := make([]byte, SessionNonceSize)
	binary.LittleEndian.PutUint64(nonce[4:], counter)
	return nonce
}

// labelNonce right-aligns an ASCII label in a 12-byte nonce.
func labelNonce(label string) []byte {
	nonce := make([]byte, SessionNonceSize)
	copy(nonce[SessionNonceSize-len(label):], label)
	return nonce
}
