package pairing

import (
	"crypto/ed25519"
	"errors"

	"github.com/hap-protocol/hap-go/pkg/crypto"
	"github.com/hap-protocol/hap-go/pkg/tlv"
)

// Identity is a long-lived pairing identity: a stable identifier string and
// an Ed25519 signing key. Controllers and accessories each hold one.
type Identity struct {
	ID  string
	Key *crypto.LongTermKey
}

// NewIdentity creates an identity with a fresh signing key.
func NewIdentity(id string) (*Identity, error) {
	if id == "" {
		return nil, errors.New("pairing: empty identity")
	}
	key, err := crypto.GenerateLongTermKey()
	if err != nil {
		return nil, err
	}
	return &Identity{ID: id, Key: key}, nil
}

// IdentityFromSeed restores an identity from a stored 32-byte Ed25519 seed.
func IdentityFromSeed(id string, seed []byte) (*Identity, error) {
	key, err := crypto.LongTermKeyFromSeed(seed)
	if err != nil {
		return nil, err
	}
	return &Identity{ID: id, Key: key}, nil
}

// identityPayload is the signed sub-TLV exchanged inside the encrypted
// handshake messages.
type identityPayload struct {
	ID        string
	PublicKey []byte
	Signature []byte
}

func (p *identityPayload) encode() []byte {
	buf := tlv.AppendString(nil, TagIdentifier, p.ID)
	buf = tlv.Append(buf, TagPublicKey, p.PublicKey)
	buf = tlv.Append(buf, TagSignature, p.Signature)
	return buf
}

func decodeIdentityPayload(data []byte) (*identityPayload, error) {
	items, err := tlv.Decode(data)
	if err != nil {
		return nil, err
	}
	id, ok := items.First(TagIdentifier)
	if !ok || len(id.Value) == 0 {
		return nil, ErrInvalidMessage
	}
	pub, ok := items.First(TagPublicKey)
	if !ok || len(pub.Value) != ed25519.PublicKeySize {
		return nil, ErrInvalidMessage
	}
	sig, ok := items.First(TagSignature)
	if !ok || len(sig.Value) != ed25519.SignatureSize {
		return nil, ErrInvalidMessage
	}
	return &identityPayload{ID: id.String(), PublicKey: pub.Value, Signature: sig.Value}, nil
}

// signingMaterial builds the byte string covered by a handshake signature:
// a key-derived prefix, the identifier and a public key.
func signingMaterial(prefix []byte, id string, publicKey []byte) []byte {
	material := make([]byte, 0, len(prefix)+len(id)+len(publicKey))
	material = append(material, prefix...)
	material = append(material, id...)
	material = append(material, publicKey...)
	return material
}

// peerError extracts a TagError item from a handshake message, if present.
func peerError(items tlv.Items) *ProtocolError {
	item, ok := items.First(TagError)
	if !ok {
		return nil
	}
	code, err := item.Uint8()
	if err != nil {
		return &ProtocolError{Code: ErrorUnknown}
	}
	pe := &ProtocolError{Code: ErrorCode(code)}
	if delay, ok := items.First(TagRetryDelay); ok {
		if v, err := delay.Uint16(); err == nil {
			pe.RetryDelay = v
		}
	}
	return pe
}

// expectState validates the TagState item of an inbound handshake message.
func expectState(items tlv.Items, want uint8) error {
	item, ok := items.First(TagState)
	if !ok {
		return ErrInvalidMessage
	}
	got, err := item.Uint8()
	if err != nil || got != want {
		return ErrInvalidMessage
	}
	return nil
}
