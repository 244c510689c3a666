package pairing

import (
	"fmt"

	"github.com/hap-protocol/hap-go/pkg/crypto"
	"github.com/hap-protocol/hap-go/pkg/tlv"
)

type verifyStage int

const (
	verifyInit verifyStage = iota
	verifyWaitingM2
	verifyWaitingM3
	verifyWaitingM4
	verifyComplete
	verifyFailed
)

// signedIdentifier is the sub-TLV inside pair-verify messages. Unlike the
// pair-setup payload it carries no public key; the verifier looks the key up
// from its pairing records.
type signedIdentifier struct {
	ID        string
	Signature []byte
}

func (p *signedIdentifier) encode() []byte {
	buf := tlv.AppendString(nil, TagIdentifier, p.ID)
	return tlv.Append(buf, TagSignature, p.Signature)
}

func decodeSignedIdentifier(data []byte) (*signedIdentifier, error) {
	items, err := tlv.Decode(data)
	if err != nil {
		return nil, err
	}
	id, ok := items.First(TagIdentifier)
	if !ok || len(id.Value) == 0 {
		return nil, ErrInvalidMessage
	}
	sig, ok := items.First(TagSignature)
	if !ok {
		return nil, ErrInvalidMessage
	}
	return &signedIdentifier{ID: id.String(), Signature: sig.Value}, nil
}

// deriveChannelKeys expands the X25519 shared secret into the two
// per-direction session keys. The write key protects controller-to-accessory
// traffic, the read key the reverse direction.
func deriveChannelKeys(shared []byte) (write, read []byte, err error) {
	write, err = crypto.HKDFSHA512(shared, []byte(controlSalt), []byte(controlWriteInfo), crypto.SessionKeySize)
	if err != nil {
		return nil, nil, err
	}
	read, err = crypto.HKDFSHA512(shared, []byte(controlSalt), []byte(controlReadInfo), crypto.SessionKeySize)
	if err != nil {
		return nil, nil, err
	}
	return write, read, nil
}

// VerifyController drives pair-verify from the controller side. It needs the
// accessory identity recorded during pair-setup.
type VerifyController struct {
	identity *Identity
	peerID   string
	peerLTPK []byte
	stage    verifyStage

	ephemeral  *crypto.KeyPair
	peerPublic []byte
	shared     []byte
	sessionKey []byte
}

// NewVerifyController creates the controller side of pair-verify against a
// known accessory pairing.
func NewVerifyController(identity *Identity, peerID string, peerLTPK []byte) (*VerifyController, error) {
	if identity == nil || identity.Key == nil {
		return nil, ErrInvalidState
	}
	if peerID == "" || len(peerLTPK) == 0 {
		return nil, ErrUnknownPeer
	}
	return &VerifyController{identity: identity, peerID: peerID, peerLTPK: peerLTPK}, nil
}

// Start produces message M1 containing a fresh ephemeral public key.
func (c *VerifyController) Start() ([]byte, error) {
	if c.stage != verifyInit {
		return nil, ErrInvalidState
	}
	eph, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	c.ephemeral = eph

	buf := tlv.AppendUint8(nil, TagState, StateM1)
	buf = tlv.Append(buf, TagPublicKey, eph.Public[:])
	c.stage = verifyWaitingM2
	return buf, nil
}

// HandleM2 verifies the accessory's signature and produces M3.
func (c *VerifyController) HandleM2(data []byte) ([]byte, error) {
	if c.stage != verifyWaitingM2 {
		return nil, ErrInvalidState
	}
	items, err := tlv.Decode(data)
	if err != nil {
		return nil, c.fail(err)
	}
	if pe := peerError(items); pe != nil {
		return nil, c.fail(c.mapPeerError(pe))
	}
	if err := expectState(items, StateM2); err != nil {
		return nil, c.fail(err)
	}
	peerPublic, ok := items.First(TagPublicKey)
	if !ok {
		return nil, c.fail(ErrInvalidMessage)
	}
	sealed, ok := items.First(TagEncryptedData)
	if !ok {
		return nil, c.fail(ErrInvalidMessage)
	}

	c.peerPublic = peerPublic.Value
	c.shared, err = c.ephemeral.SharedSecret(peerPublic.Value)
	if err != nil {
		return nil, c.fail(err)
	}
	c.sessionKey, err = crypto.HKDFSHA512(c.shared, []byte(verifyEncryptSalt), []byte(verifyEncryptInfo), crypto.SessionKeySize)
	if err != nil {
		return nil, c.fail(err)
	}

	cipher, err := crypto.NewSessionCipher(c.sessionKey)
	if err != nil {
		return nil, c.fail(err)
	}
	plain, err := cipher.OpenWithNonce(nonceVerifyM2, nil, sealed.Value)
	if err != nil {
		return nil, c.fail(fmt.Errorf("%w: proof payload rejected", ErrVerificationFailed))
	}
	proof, err := decodeSignedIdentifier(plain)
	if err != nil {
		return nil, c.fail(err)
	}
	if proof.ID != c.peerID {
		return nil, c.fail(fmt.Errorf("%w: unexpected accessory %q", ErrVerificationFailed, proof.ID))
	}
	material := signingMaterial(c.peerPublic, proof.ID, c.ephemeral.Public[:])
	if !crypto.Verify(c.peerLTPK, material, proof.Signature) {
		return nil, c.fail(fmt.Errorf("%w: accessory signature invalid", ErrVerificationFailed))
	}

	own := &signedIdentifier{ID: c.identity.ID}
	ownMaterial := signingMaterial(c.ephemeral.Public[:], own.ID, c.peerPublic)
	own.Signature = c.identity.Key.Sign(ownMaterial)
	sealedOwn := cipher.SealWithNonce(nonceVerifyM3, nil, own.encode())

	buf := tlv.AppendUint8(nil, TagState, StateM3)
	buf = tlv.Append(buf, TagEncryptedData, sealedOwn)
	c.stage = verifyWaitingM4
	return buf, nil
}

// HandleM4 consumes the final acknowledgement, completing verification.
func (c *VerifyController) HandleM4(data []byte) error {
	if c.stage != verifyWaitingM4 {
		return ErrInvalidState
	}
	items, err := tlv.Decode(data)
	if err != nil {
		return c.fail(err)
	}
	if pe := peerError(items); pe != nil {
		return c.fail(c.mapPeerError(pe))
	}
	if err := expectState(items, StateM4); err != nil {
		return c.fail(err)
	}
	c.stage = verifyComplete
	return nil
}

// ChannelKeys returns the session keys for a completed verification, ordered
// for the controller: encrypt outbound with the first, decrypt inbound with
// the second.
func (c *VerifyController) ChannelKeys() (encryptKey, decryptKey []byte, err error) {
	if c.stage != verifyComplete {
		return nil, nil, ErrNotComplete
	}
	write, read, err := deriveChannelKeys(c.shared)
	if err != nil {
		return nil, nil, err
	}
	return write, read, nil
}

func (c *VerifyController) fail(err error) error {
	c.stage = verifyFailed
	return err
}

func (c *VerifyController) mapPeerError(pe *ProtocolError) error {
	if pe.Code == ErrorAuthentication {
		return fmt.Errorf("%w: %s", ErrVerificationFailed, pe.Code)
	}
	return pe
}

// PeerKeyFunc resolves a paired controller's long-term public key by its
// identifier.
type PeerKeyFunc func(id string) ([]byte, bool)

// VerifyAccessory drives pair-verify from the accessory side.
type VerifyAccessory struct {
	identity *Identity
	peerKey  PeerKeyFunc
	stage    verifyStage

	ephemeral  *crypto.KeyPair
	peerPublic []byte
	shared     []byte
	sessionKey []byte
	peerID     string
}

// NewVerifyAccessory creates the accessory side of pair-verify.
func NewVerifyAccessory(identity *Identity, peerKey PeerKeyFunc) (*VerifyAccessory, error) {
	if identity == nil || identity.Key == nil {
		return nil, ErrInvalidState
	}
	if peerKey == nil {
		return nil, ErrUnknownPeer
	}
	return &VerifyAccessory{identity: identity, peerKey: peerKey}, nil
}

// HandleM1 consumes the controller's ephemeral key and produces M2.
func (a *VerifyAccessory) HandleM1(data []byte) ([]byte, error) {
	if a.stage != verifyInit {
		return nil, ErrInvalidState
	}
	items, err := tlv.Decode(data)
	if err != nil {
		return nil, a.fail(err)
	}
	if err := expectState(items, StateM1); err != nil {
		return nil, a.fail(err)
	}
	peerPublic, ok := items.First(TagPublicKey)
	if !ok {
		return nil, a.fail(ErrInvalidMessage)
	}

	eph, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, a.fail(err)
	}
	a.ephemeral = eph
	a.peerPublic = peerPublic.Value
	a.shared, err = eph.SharedSecret(peerPublic.Value)
	if err != nil {
		return nil, a.fail(err)
	}
	a.sessionKey, err = crypto.HKDFSHA512(a.shared, []byte(verifyEncryptSalt), []byte(verifyEncryptInfo), crypto.SessionKeySize)
	if err != nil {
		return nil, a.fail(err)
	}

	proof := &signedIdentifier{ID: a.identity.ID}
	material := signingMaterial(eph.Public[:], proof.ID, a.peerPublic)
	proof.Signature = a.identity.Key.Sign(material)

	cipher, err := crypto.NewSessionCipher(a.sessionKey)
	if err != nil {
		return nil, a.fail(err)
	}
	sealed := cipher.SealWithNonce(nonceVerifyM2, nil, proof.encode())

	buf := tlv.AppendUint8(nil, TagState, StateM2)
	buf = tlv.Append(buf, TagPublicKey, eph.Public[:])
	buf = tlv.Append(buf, TagEncryptedData, sealed)
	a.stage = verifyWaitingM3
	return buf, nil
}

// HandleM3 verifies the controller's signature and produces the final M4.
// When the controller is unknown or its proof fails, the returned message
// carries an authentication error item and the error is ErrVerificationFailed.
func (a *VerifyAccessory) HandleM3(data []byte) ([]byte, error) {
	if a.stage != verifyWaitingM3 {
		return nil, ErrInvalidState
	}
	items, err := tlv.Decode(data)
	if err != nil {
		return nil, a.fail(err)
	}
	if err := expectState(items, StateM3); err != nil {
		return nil, a.fail(err)
	}
	sealed, ok := items.First(TagEncryptedData)
	if !ok {
		return nil, a.fail(ErrInvalidMessage)
	}

	cipher, err := crypto.NewSessionCipher(a.sessionKey)
	if err != nil {
		return nil, a.fail(err)
	}
	plain, err := cipher.OpenWithNonce(nonceVerifyM3, nil, sealed.Value)
	if err != nil {
		return errorMessage(StateM4, ErrorAuthentication),
			a.fail(fmt.Errorf("%w: proof payload rejected", ErrVerificationFailed))
	}
	proof, err := decodeSignedIdentifier(plain)
	if err != nil {
		return nil, a.fail(err)
	}
	ltpk, ok := a.peerKey(proof.ID)
	if !ok {
		return errorMessage(StateM4, ErrorAuthentication),
			a.fail(fmt.Errorf("%w: unknown controller %q", ErrVerificationFailed, proof.ID))
	}
	material := signingMaterial(a.peerPublic, proof.ID, a.ephemeral.Public[:])
	if !crypto.Verify(ltpk, material, proof.Signature) {
		return errorMessage(StateM4, ErrorAuthentication),
			a.fail(fmt.Errorf("%w: controller signature invalid", ErrVerificationFailed))
	}

	a.peerID = proof.ID
	a.stage = verifyComplete
	return tlv.AppendUint8(nil, TagState, StateM4), nil
}

// PeerID returns the verified controller identifier.
func (a *VerifyAccessory) PeerID() (string, error) {
	if a.stage != verifyComplete {
		return "", ErrNotComplete
	}
	return a.peerID, nil
}

// ChannelKeys returns the session keys for a completed verification, ordered
// for the accessory: encrypt outbound with the first, decrypt inbound with
// the second.
func (a *VerifyAccessory) ChannelKeys() (encryptKey, decryptKey []byte, err error) {
	if a.stage != verifyComplete {
		return nil, nil, ErrNotComplete
	}
	write, read, err := deriveChannelKeys(a.shared)
	if err != nil {
		return nil, nil, err
	}
	return read, write, nil
}

func (a *VerifyAccessory) fail(err error) error {
	a.stage = verifyFailed
	return err
}
