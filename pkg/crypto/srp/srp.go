// Package srp implements the SRP-6a password-authenticated key exchange used
// by pair-setup (T. Wu, SRP-6: Improvements and Refinements, 2002; RFC 5054).
//
// The client proves knowledge of the setup code, the server proves knowledge
// of a verifier derived from it, and both sides end up with the same session
// key without the code ever crossing the wire.
//
//	Client                                Server
//	------                                ------
//	NewClient(user, password)             NewServer(user, salt, verifier)
//	A = PublicKey()          ------>      SetClientPublic(A)
//	SetServerPublic(s, B)    <------      s, B = Salt(), PublicKey()
//	M1 = Proof()             ------>      VerifyClientProof(M1)
//	VerifyServerProof(M2)    <------      M2 = Proof()
//	K = SessionKey()                      K = SessionKey()
package srp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"errors"
	"math/big"
)

// SaltSize is the size of the verifier salt in bytes.
const SaltSize = 16

var (
	// ErrInvalidPublicKey is returned for a peer public value that is zero
	// modulo the group prime.
	ErrInvalidPublicKey = errors.New("srp: invalid public key")

	// ErrProofMismatch is returned when a peer's proof does not verify
	// against the shared secret.
	ErrProofMismatch = errors.New("srp: proof verification failed")

	// ErrNotReady is returned when a proof or key is requested before the
	// peer's public value has been supplied.
	ErrNotReady = errors.New("srp: exchange not complete")

	// ErrInvalidSalt is returned for a salt of the wrong length.
	ErrInvalidSalt = errors.New("srp: invalid salt length")
)

// hashParts is SHA-512 over the concatenation of parts.
func hashParts(parts ...[]byte) []byte {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// multiplierK computes k = H(PAD(N) | PAD(g)).
func multiplierK() *big.Int {
	return new(big.Int).SetBytes(hashParts(pad(groupN), pad(groupG)))
}

// credentialX computes x = H(salt | H(username ":" password)).
func credentialX(username, password string, salt []byte) *big.Int {
	inner := hashParts([]byte(username + ":" + password))
	return new(big.Int).SetBytes(hashParts(salt, inner))
}

// scramblingU computes u = H(PAD(A) | PAD(B)).
func scramblingU(a, b *big.Int) *big.Int {
	return new(big.Int).SetBytes(hashParts(pad(a), pad(b)))
}

func randomScalar() (*big.Int, error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return new(big.Int).Mod(new(big.Int).SetBytes(buf), groupN), nil
}

// GenerateVerifier derives a fresh salt and password verifier v = g^x mod N.
// The verifier is what an accessory stores instead of the setup code.
func GenerateVerifier(username, password string) (salt, verifier []byte, err error) {
	salt = make([]byte, SaltSize)
	if _, err = rand.Read(salt); err != nil {
		return nil, nil, err
	}
	x := credentialX(username, password, salt)
	v := new(big.Int).Exp(groupG, x, groupN)
	return salt, pad(v), nil
}

// Client is the side that knows the password.
type Client struct {
	username string
	password string

	a    *big.Int // private ephemeral
	bigA *big.Int

	premaster  *big.Int
	sessionKey []byte
	proofM1    []byte
}

// NewClient creates a client with a fresh ephemeral key.
func NewClient(username, password string) (*Client, error) {
	a, err := randomScalar()
	if err != nil {
		return nil, err
	}
	return &Client{
		username: username,
		password: password,
		a:        a,
		bigA:     new(big.Int).Exp(groupG, a, groupN),
	}, nil
}

// PublicKey returns A, padded to the group width.
func (c *Client) PublicKey() []byte {
	return pad(c.bigA)
}

// SetServerPublic consumes the server's salt and public value B and computes
// the premaster secret, session key and client proof.
func (c *Client) SetServerPublic(salt, serverPublic []byte) error {
	if len(salt) != SaltSize {
		return ErrInvalidSalt
	}
	bigB := new(big.Int).SetBytes(serverPublic)
	if new(big.Int).Mod(bigB, groupN).Sign() == 0 {
		return ErrInvalidPublicKey
	}

	k := multiplierK()
	x := credentialX(c.username, c.password, salt)
	u := scramblingU(c.bigA, bigB)

	// S = (B - k*g^x) ^ (a + u*x) mod N
	gx := new(big.Int).Exp(groupG, x, groupN)
	base := new(big.Int).Sub(bigB, new(big.Int).Mul(k, gx))
	base.Mod(base, groupN)
	exp := new(big.Int).Add(c.a, new(big.Int).Mul(u, x))
	c.premaster = new(big.Int).Exp(base, exp, groupN)

	c.sessionKey = hashParts(c.premaster.Bytes())
	c.proofM1 = hashParts(c.bigA.Bytes(), bigB.Bytes(), c.premaster.Bytes())
	return nil
}

// Proof returns the client proof M1 = H(A | B | S).
func (c *Client) Proof() ([]byte, error) {
	if c.proofM1 == nil {
		return nil, ErrNotReady
	}
	return c.proofM1, nil
}

// VerifyServerProof checks the server proof M2 = H(A | M1 | S).
func (c *Client) VerifyServerProof(m2 []byte) error {
	if c.premaster == nil {
		return ErrNotReady
	}
	want := hashParts(c.bigA.Bytes(), c.proofM1, c.premaster.Bytes())
	if !hmac.Equal(want, m2) {
		return ErrProofMismatch
	}
	return nil
}

// SessionKey returns K = H(S), the 64-byte shared session key.
func (c *Client) SessionKey() ([]byte, error) {
	if c.sessionKey == nil {
		return nil, ErrNotReady
	}
	return c.sessionKey, nil
}

// Server is the side that holds the verifier.
type Server struct {
	salt     []byte
	verifier *big.Int

	b    *big.Int
	bigB *big.Int

	bigA       *big.Int
	premaster  *big.Int
	sessionKey []byte
	clientM1   []byte
}

// NewServer creates a server from a stored salt and verifier.
func NewServer(salt, verifier []byte) (*Server, error) {
	if len(salt) != SaltSize {
		return nil, ErrInvalidSalt
	}
	b, err := randomScalar()
	if err != nil {
		return nil, err
	}
	v := new(big.Int).SetBytes(verifier)

	// B = k*v + g^b mod N
	k := multiplierK()
	bigB := new(big.Int).Mul(k, v)
	bigB.Add(bigB, new(big.Int).Exp(groupG, b, groupN))
	bigB.Mod(bigB, groupN)

	return &Server{
		salt:     append([]byte(nil), salt...),
		verifier: v,
		b:        b,
		bigB:     bigB,
	}, nil
}

// Salt returns the verifier salt.
func (s *Server) Salt() []byte {
	return s.salt
}

// PublicKey returns B, padded to the group width.
func (s *Server) PublicKey() []byte {
	return pad(s.bigB)
}

// SetClientPublic consumes the client's public value A and computes the
// premaster secret and session key.
func (s *Server) SetClientPublic(clientPublic []byte) error {
	bigA := new(big.Int).SetBytes(clientPublic)
	if new(big.Int).Mod(bigA, groupN).Sign() == 0 {
		return ErrInvalidPublicKey
	}
	s.bigA = bigA

	u := scramblingU(bigA, s.bigB)

	// S = (A * v^u) ^ b mod N
	base := new(big.Int).Mul(bigA, new(big.Int).Exp(s.verifier, u, groupN))
	base.Mod(base, groupN)
	s.premaster = new(big.Int).Exp(base, s.b, groupN)
	s.sessionKey = hashParts(s.premaster.Bytes())
	return nil
}

// VerifyClientProof checks M1 = H(A | B | S) and stores it for the server
// proof.
func (s *Server) VerifyClientProof(m1 []byte) error {
	if s.premaster == nil {
		return ErrNotReady
	}
	want := hashParts(s.bigA.Bytes(), s.bigB.Bytes(), s.premaster.Bytes())
	if !hmac.Equal(want, m1) {
		return ErrProofMismatch
	}
	s.clientM1 = append([]byte(nil), m1...)
	return nil
}

// Proof returns the server proof M2 = H(A | M1 | S). The client proof must
// have verified first.
func (s *Server) Proof() ([]byte, error) {
	if s.clientM1 == nil {
		return nil, ErrNotReady
	}
	return hashParts(s.bigA.Bytes(), s.clientM1, s.premaster.Bytes()), nil
}

// SessionKey returns K = H(S).
func (s *Server) SessionKey() ([]byte, error) {
	if s.sessionKey == nil {
		return nil, ErrNotReady
	}
	return s.sessionKey, nil
}
