// Package pairing implements the pair-setup and pair-verify handshakes.
//
// Pair-setup runs once per controller/accessory pair. It proves knowledge of
// the accessory's setup code with SRP and exchanges signed long-term Ed25519
// identities over an encrypted channel derived from the SRP session key:
//
//	Controller                            Accessory
//	----------                            ---------
//	NewSetupController(id, code)          NewSetupAccessory(id, code)
//	                                      |
//	m1 = Start()             ------>      m2 = HandleM1(m1)
//	m3 = HandleM2(m2)        ------>      m4 = HandleM3(m3)
//	m5 = HandleM4(m4)        ------>      m6 = HandleM5(m5)
//	res = HandleM6(m6)
//	Complete!                             Complete!
//
// Pair-verify runs at the start of every session. Both sides exchange
// ephemeral X25519 keys, prove their long-term identities with Ed25519
// signatures, and derive the per-direction channel keys.
//
// Every message is a TLV8 body; framing and transport are the caller's
// concern.
package pairing

import (
	"fmt"

	"github.com/hap-protocol/hap-go/pkg/crypto"
	"github.com/hap-protocol/hap-go/pkg/crypto/srp"
	"github.com/hap-protocol/hap-go/pkg/tlv"
)

// setupStage tracks handshake progress on either side.
type setupStage int

const (
	stageInit setupStage = iota
	stageWaitingM2
	stageWaitingM3
	stageWaitingM4
	stageWaitingM5
	stageWaitingM6
	stageComplete
	stageFailed
)

// Result holds the peer identity learned from a completed pair-setup.
type Result struct {
	PeerID   string
	PeerLTPK []byte
}

// ValidateSetupCode checks the XXX-XX-XXX setup code format.
func ValidateSetupCode(code string) error {
	if len(code) != 10 || code[3] != '-' || code[6] != '-' {
		return ErrInvalidSetupCode
	}
	for i, c := range code {
		if i == 3 || i == 6 {
			continue
		}
		if c < '0' || c > '9' {
			return ErrInvalidSetupCode
		}
	}
	return nil
}

// errorMessage builds a handshake message carrying a protocol error item.
func errorMessage(state uint8, code ErrorCode) []byte {
	buf := tlv.AppendUint8(nil, TagState, state)
	return tlv.AppendUint8(buf, TagError, uint8(code))
}

// SetupController drives pair-setup from the controller side.
type SetupController struct {
	identity *Identity
	code     string
	stage    setupStage

	client     *srp.Client
	sessionKey []byte
	encKey     []byte
	result     *Result
}

// NewSetupController creates the controller side of pair-setup.
func NewSetupController(identity *Identity, setupCode string) (*SetupController, error) {
	if identity == nil || identity.Key == nil {
		return nil, ErrInvalidState
	}
	if err := ValidateSetupCode(setupCode); err != nil {
		return nil, err
	}
	return &SetupController{identity: identity, code: setupCode}, nil
}

// Start produces message M1.
func (c *SetupController) Start() ([]byte, error) {
	if c.stage != stageInit {
		return nil, ErrInvalidState
	}
	buf := tlv.AppendUint8(nil, TagState, StateM1)
	buf = tlv.AppendUint8(buf, TagMethod, uint8(MethodPairSetup))
	c.stage = stageWaitingM2
	return buf, nil
}

// HandleM2 consumes the accessory's salt and SRP public key and produces M3.
func (c *SetupController) HandleM2(data []byte) ([]byte, error) {
	if c.stage != stageWaitingM2 {
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
	salt, ok := items.First(TagSalt)
	if !ok {
		return nil, c.fail(ErrInvalidMessage)
	}
	serverPublic, ok := items.First(TagPublicKey)
	if !ok {
		return nil, c.fail(ErrInvalidMessage)
	}

	client, err := srp.NewClient(srpUsername, c.code)
	if err != nil {
		return nil, c.fail(err)
	}
	if err := client.SetServerPublic(salt.Value, serverPublic.Value); err != nil {
		return nil, c.fail(err)
	}
	proof, err := client.Proof()
	if err != nil {
		return nil, c.fail(err)
	}
	c.client = client

	buf := tlv.AppendUint8(nil, TagState, StateM3)
	buf = tlv.Append(buf, TagPublicKey, client.PublicKey())
	buf = tlv.Append(buf, TagProof, proof)
	c.stage = stageWaitingM4
	return buf, nil
}

// HandleM4 verifies the accessory's SRP proof and produces the encrypted
// identity exchange message M5.
func (c *SetupController) HandleM4(data []byte) ([]byte, error) {
	if c.stage != stageWaitingM4 {
		return nil, ErrInvalidState
	}
	items, err := tlv.Decode(data)
	if err != nil {
		return nil, c.fail(err)
	}
	if pe := peerError(items); pe != nil {
		return nil, c.fail(c.mapPeerError(pe))
	}
	if err := expectState(items, StateM4); err != nil {
		return nil, c.fail(err)
	}
	proof, ok := items.First(TagProof)
	if !ok {
		return nil, c.fail(ErrInvalidMessage)
	}
	if err := c.client.VerifyServerProof(proof.Value); err != nil {
		return nil, c.fail(fmt.Errorf("%w: server proof mismatch", ErrPairingRejected))
	}

	c.sessionKey, err = c.client.SessionKey()
	if err != nil {
		return nil, c.fail(err)
	}
	c.encKey, err = crypto.HKDFSHA512(c.sessionKey, []byte(setupEncryptSalt), []byte(setupEncryptInfo), crypto.SessionKeySize)
	if err != nil {
		return nil, c.fail(err)
	}

	prefix, err := crypto.HKDFSHA512(c.sessionKey, []byte(setupControllerSignSalt), []byte(setupControllerSignInfo), 32)
	if err != nil {
		return nil, c.fail(err)
	}
	payload := &identityPayload{
		ID:        c.identity.ID,
		PublicKey: c.identity.Key.Public,
	}
	payload.Signature = c.identity.Key.Sign(signingMaterial(prefix, payload.ID, payload.PublicKey))

	cipher, err := crypto.NewSessionCipher(c.encKey)
	if err != nil {
		return nil, c.fail(err)
	}
	sealed := cipher.SealWithNonce(nonceSetupM5, nil, payload.encode())

	buf := tlv.AppendUint8(nil, TagState, StateM5)
	buf = tlv.Append(buf, TagEncryptedData, sealed)
	c.stage = stageWaitingM6
	return buf, nil
}

// HandleM6 decrypts and verifies the accessory's identity, completing the
// handshake.
func (c *SetupController) HandleM6(data []byte) (*Result, error) {
	if c.stage != stageWaitingM6 {
		return nil, ErrInvalidState
	}
	items, err := tlv.Decode(data)
	if err != nil {
		return nil, c.fail(err)
	}
	if pe := peerError(items); pe != nil {
		return nil, c.fail(c.mapPeerError(pe))
	}
	if err := expectState(items, StateM6); err != nil {
		return nil, c.fail(err)
	}
	sealed, ok := items.First(TagEncryptedData)
	if !ok {
		return nil, c.fail(ErrInvalidMessage)
	}

	cipher, err := crypto.NewSessionCipher(c.encKey)
	if err != nil {
		return nil, c.fail(err)
	}
	plain, err := cipher.OpenWithNonce(nonceSetupM6, nil, sealed.Value)
	if err != nil {
		return nil, c.fail(fmt.Errorf("%w: identity payload rejected", ErrPairingRejected))
	}
	payload, err := decodeIdentityPayload(plain)
	if err != nil {
		return nil, c.fail(err)
	}

	prefix, err := crypto.HKDFSHA512(c.sessionKey, []byte(setupAccessorySignSalt), []byte(setupAccessorySignInfo), 32)
	if err != nil {
		return nil, c.fail(err)
	}
	material := signingMaterial(prefix, payload.ID, payload.PublicKey)
	if !crypto.Verify(payload.PublicKey, material, payload.Signature) {
		return nil, c.fail(fmt.Errorf("%w: accessory signature invalid", ErrPairingRejected))
	}

	c.result = &Result{PeerID: payload.ID, PeerLTPK: payload.PublicKey}
	c.stage = stageComplete
	return c.result, nil
}

// Result returns the completed handshake's outcome.
func (c *SetupController) Result() (*Result, error) {
	if c.stage != stageComplete {
		return nil, ErrNotComplete
	}
	return c.result, nil
}

func (c *SetupController) fail(err error) error {
	c.stage = stageFailed
	return err
}

func (c *SetupController) mapPeerError(pe *ProtocolError) error {
	if pe.Code == ErrorAuthentication {
		return fmt.Errorf("%w: %s", ErrPairingRejected, pe.Code)
	}
	return pe
}

// SetupAccessory drives pair-setup from the accessory side.
type SetupAccessory struct {
	identity *Identity
	stage    setupStage

	server     *srp.Server
	sessionKey []byte
	encKey     []byte
	result     *Result
}

// NewSetupAccessory creates the accessory side of pair-setup. The SRP salt
// and verifier are derived from the setup code on the spot.
func NewSetupAccessory(identity *Identity, setupCode string) (*SetupAccessory, error) {
	if identity == nil || identity.Key == nil {
		return nil, ErrInvalidState
	}
	if err := ValidateSetupCode(setupCode); err != nil {
		return nil, err
	}
	salt, verifier, err := srp.GenerateVerifier(srpUsername, setupCode)
	if err != nil {
		return nil, err
	}
	server, err := srp.NewServer(salt, verifier)
	if err != nil {
		return nil, err
	}
	return &SetupAccessory{identity: identity, server: server}, nil
}

// HandleM1 consumes the pairing request and produces M2.
func (a *SetupAccessory) HandleM1(data []byte) ([]byte, error) {
	if a.stage != stageInit {
		return nil, ErrInvalidState
	}
	items, err := tlv.Decode(data)
	if err != nil {
		return nil, a.fail(err)
	}
	if err := expectState(items, StateM1); err != nil {
		return nil, a.fail(err)
	}
	method, ok := items.First(TagMethod)
	if !ok {
		return nil, a.fail(ErrInvalidMessage)
	}
	if m, err := method.Uint8(); err != nil || Method(m) != MethodPairSetup {
		return nil, a.fail(ErrInvalidMessage)
	}

	buf := tlv.AppendUint8(nil, TagState, StateM2)
	buf = tlv.Append(buf, TagSalt, a.server.Salt())
	buf = tlv.Append(buf, TagPublicKey, a.server.PublicKey())
	a.stage = stageWaitingM3
	return buf, nil
}

// HandleM3 checks the controller's SRP proof. On a setup code mismatch it
// returns the error message to send alongside ErrPairingRejected.
func (a *SetupAccessory) HandleM3(data []byte) ([]byte, error) {
	if a.stage != stageWaitingM3 {
		return nil, ErrInvalidState
	}
	items, err := tlv.Decode(data)
	if err != nil {
		return nil, a.fail(err)
	}
	if err := expectState(items, StateM3); err != nil {
		return nil, a.fail(err)
	}
	clientPublic, ok := items.First(TagPublicKey)
	if !ok {
		return nil, a.fail(ErrInvalidMessage)
	}
	proof, ok := items.First(TagProof)
	if !ok {
		return nil, a.fail(ErrInvalidMessage)
	}

	if err := a.server.SetClientPublic(clientPublic.Value); err != nil {
		return errorMessage(StateM4, ErrorUnknown), a.fail(err)
	}
	if err := a.server.VerifyClientProof(proof.Value); err != nil {
		return errorMessage(StateM4, ErrorAuthentication),
			a.fail(fmt.Errorf("%w: client proof mismatch", ErrPairingRejected))
	}
	serverProof, err := a.server.Proof()
	if err != nil {
		return nil, a.fail(err)
	}
	a.sessionKey, err = a.server.SessionKey()
	if err != nil {
		return nil, a.fail(err)
	}
	a.encKey, err = crypto.HKDFSHA512(a.sessionKey, []byte(setupEncryptSalt), []byte(setupEncryptInfo), crypto.SessionKeySize)
	if err != nil {
		return nil, a.fail(err)
	}

	buf := tlv.AppendUint8(nil, TagState, StateM4)
	buf = tlv.Append(buf, TagProof, serverProof)
	a.stage = stageWaitingM5
	return buf, nil
}

// HandleM5 verifies the controller's signed identity and produces M6 with
// the accessory's own.
func (a *SetupAccessory) HandleM5(data []byte) ([]byte, error) {
	if a.stage != stageWaitingM5 {
		return nil, ErrInvalidState
	}
	items, err := tlv.Decode(data)
	if err != nil {
		return nil, a.fail(err)
	}
	if err := expectState(items, StateM5); err != nil {
		return nil, a.fail(err)
	}
	sealed, ok := items.First(TagEncryptedData)
	if !ok {
		return nil, a.fail(ErrInvalidMessage)
	}

	cipher, err := crypto.NewSessionCipher(a.encKey)
	if err != nil {
		return nil, a.fail(err)
	}
	plain, err := cipher.OpenWithNonce(nonceSetupM5, nil, sealed.Value)
	if err != nil {
		return errorMessage(StateM6, ErrorAuthentication),
			a.fail(fmt.Errorf("%w: identity payload rejected", ErrPairingRejected))
	}
	payload, err := decodeIdentityPayload(plain)
	if err != nil {
		return nil, a.fail(err)
	}
	prefix, err := crypto.HKDFSHA512(a.sessionKey, []byte(setupControllerSignSalt), []byte(setupControllerSignInfo), 32)
	if err != nil {
		return nil, a.fail(err)
	}
	material := signingMaterial(prefix, payload.ID, payload.PublicKey)
	if !crypto.Verify(payload.PublicKey, material, payload.Signature) {
		return errorMessage(StateM6, ErrorAuthentication),
			a.fail(fmt.Errorf("%w: controller signature invalid", ErrPairingRejected))
	}
	a.result = &Result{PeerID: payload.ID, PeerLTPK: payload.PublicKey}

	prefix, err = crypto.HKDFSHA512(a.sessionKey, []byte(setupAccessorySignSalt), []byte(setupAccessorySignInfo), 32)
	if err != nil {
		return nil, a.fail(err)
	}
	own := &identityPayload{
		ID:        a.identity.ID,
		PublicKey: a.identity.Key.Public,
	}
	own.Signature = a.identity.Key.Sign(signingMaterial(prefix, own.ID, own.PublicKey))
	sealedOwn := cipher.SealWithNonce(nonceSetupM6, nil, own.encode())

	buf := tlv.AppendUint8(nil, TagState, StateM6)
	buf = tlv.Append(buf, TagEncryptedData, sealedOwn)
	a.stage = stageComplete
	return buf, nil
}

// Result returns the controller identity learned from a completed handshake.
func (a *SetupAccessory) Result() (*Result, error) {
	if a.stage != stageComplete {
		return nil, ErrNotComplete
	}
	return a.result, nil
}

func (a *SetupAccessory) fail(err error) error {
	a.stage = stageFailed
	return err
}
