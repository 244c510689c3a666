package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/curve25519"
)

// X25519KeySize is the size of X25519 public and private keys.
const X25519KeySize = curve25519.ScalarSize

var ErrInvalidPublicKey = errors.New("crypto: invalid public key")

// KeyPair is an ephemeral X25519 key pair used during session verification.
type KeyPair struct {
	Public  [X25519KeySize]byte
	private [X25519KeySize]byte
}

// GenerateKeyPair creates a fresh X25519 key pair.
func GenerateKeyPair() (*KeyPair, error) {
	var kp KeyPair
	if _, err := rand.Read(kp.private[:]); err != nil {
		return nil, err
	}
	pub, err := curve25519.X25519(kp.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, err
	}
	copy(kp.Public[:], pub)
	return &kp, nil
}

// SharedSecret computes the X25519 shared secret with the peer's public key.
func (kp *KeyPair) SharedSecret(peerPublic []byte) ([]byte, error) {
	if len(peerPublic) != X25519KeySize {
		return nil, ErrInvalidPublicKey
	}
	secret, err := curve25519.X25519(kp.private[:], peerPublic)
	if err != nil {
		// curve25519 rejects low-order points with an error.
		return nil, ErrInvalidPublicKey
	}
	return secret, nil
}

// LongTermKey is an Ed25519 identity key pair. Controllers and accessories
// each hold one; the public halves are exchanged during pair-setup and prove
// identity during every session verification afterwards.
type LongTermKey struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateLongTermKey creates a new Ed25519 identity key pair.
func GenerateLongTermKey() (*LongTermKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &LongTermKey{Public: pub, Private: priv}, nil
}

// LongTermKeyFromSeed reconstructs a key pair from a persisted 32-byte seed.
func LongTermKeyFromSeed(seed []byte) (*LongTermKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.New("crypto: invalid seed length")
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &LongTermKey{
		Public:  priv.Public().(ed25519.PublicKey),
		Private: priv,
	}, nil
}

// Seed returns the 32-byte seed for persistence.
func (k *LongTermKey) Seed() []byte {
	return k.Private.Seed()
}

// Sign signs message with the private key.
func (k *LongTermKey) Sign(message []byte) []byte {
	return ed25519.Sign(k.Private, message)
}

// Verify checks an Ed25519 signature against a raw public key.
func Verify(public, message, signature []byte) bool {
	if len(public) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(public), message, signature)
}
