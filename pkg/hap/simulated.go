package hap

import (
	"errors"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/hap-protocol/hap-go/pkg/accessory"
	"github.com/hap-protocol/hap-go/pkg/pairing"
	"github.com/hap-protocol/hap-go/pkg/pdu"
	"github.com/hap-protocol/hap-go/pkg/session"
	"github.com/hap-protocol/hap-go/pkg/tlv"
	"github.com/hap-protocol/hap-go/pkg/transport"
)

// SimulatedConfig holds configuration for a SimulatedAccessory.
type SimulatedConfig struct {
	// PairingID is the accessory's pairing identifier.
	// Defaults to "simulated-accessory".
	PairingID string

	// SetupCode is the accessory's setup code, XXX-XX-XXX.
	SetupCode string

	// IdentitySeed, if set, reconstructs the accessory's long-term key
	// from a 32-byte seed so a restarted accessory keeps its identity.
	IdentitySeed []byte

	// Transport carries the accessory's traffic. Required.
	Transport transport.Transport

	// Characteristics is the accessory's characteristic table.
	Characteristics []*accessory.Characteristic

	// Values holds the initial characteristic values by instance ID.
	Values map[uint16]accessory.Value

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// SimulatedAccessory is an in-process accessory endpoint: it answers
// pairing handshakes and characteristic requests over any Transport. Fault
// switches let tests exercise the controller's failure paths.
type SimulatedAccessory struct {
	identity  *pairing.Identity
	setupCode string
	tr        *recordingTransport
	log       logging.LeveledLogger

	mu     sync.Mutex
	sess   *session.Session
	peers  map[string][]byte
	chars  map[uint16]*accessory.Characteristic
	values map[uint16]accessory.Value
	setup  *pairing.SetupAccessory
	verify *pairing.VerifyAccessory

	dropWriteAck bool
	wrongProof   bool

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewSimulatedAccessory creates a simulated accessory. Call Start to begin
// serving.
func NewSimulatedAccessory(config SimulatedConfig) (*SimulatedAccessory, error) {
	if config.Transport == nil {
		return nil, errors.New("hap: no transport configured")
	}
	if err := pairing.ValidateSetupCode(config.SetupCode); err != nil {
		return nil, err
	}
	id := config.PairingID
	if id == "" {
		id = "simulated-accessory"
	}
	var identity *pairing.Identity
	var err error
	if config.IdentitySeed != nil {
		identity, err = pairing.IdentityFromSeed(id, config.IdentitySeed)
	} else {
		identity, err = pairing.NewIdentity(id)
	}
	if err != nil {
		return nil, err
	}
	tr := &recordingTransport{Transport: config.Transport}
	sess, err := session.New(session.Config{
		Transport:     tr,
		LoggerFactory: config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}

	s := &SimulatedAccessory{
		identity:  identity,
		setupCode: config.SetupCode,
		tr:        tr,
		sess:      sess,
		peers:     make(map[string][]byte),
		chars:     make(map[uint16]*accessory.Characteristic),
		values:    make(map[uint16]accessory.Value),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("simulated")
	}
	for _, char := range config.Characteristics {
		s.chars[char.IID] = char
	}
	for iid, value := range config.Values {
		s.values[iid] = value
	}
	return s, nil
}

// PairingID returns the accessory's pairing identifier.
func (s *SimulatedAccessory) PairingID() string {
	return s.identity.ID
}

// IdentitySeed returns the seed of the accessory's long-term key.
func (s *SimulatedAccessory) IdentitySeed() []byte {
	return s.identity.Key.Seed()
}

// AddPeer preloads a controller pairing, as if pair-setup had already run.
func (s *SimulatedAccessory) AddPeer(id string, ltpk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[id] = ltpk
}

// Value returns the current value of a characteristic.
func (s *SimulatedAccessory) Value(iid uint16) (accessory.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[iid]
	return v, ok
}

// SetValue updates a characteristic value directly.
func (s *SimulatedAccessory) SetValue(iid uint16, value accessory.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[iid] = value
}

// SetFaultDropWriteAck makes write responses omit the echoed value.
func (s *SimulatedAccessory) SetFaultDropWriteAck(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropWriteAck = on
}

// SetFaultWrongProof makes the next pair-setup run with a corrupted setup
// code, so the SRP proofs cannot match.
func (s *SimulatedAccessory) SetFaultWrongProof(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wrongProof = on
}

// ReplayLastFrame re-sends the accessory's previous wire frame verbatim.
// On a verified channel the stale nonce counter makes the peer treat it as
// a replay.
func (s *SimulatedAccessory) ReplayLastFrame() error {
	frame := s.tr.LastSent()
	if frame == nil {
		return errors.New("hap: nothing sent yet")
	}
	return s.tr.Send(frame)
}

// recordingTransport remembers the last frame sent, for replay faults.
type recordingTransport struct {
	transport.Transport

	mu       sync.Mutex
	lastSent []byte
}

func (r *recordingTransport) Send(frame []byte) error {
	r.mu.Lock()
	r.lastSent = append([]byte(nil), frame...)
	r.mu.Unlock()
	return r.Transport.Send(frame)
}

func (r *recordingTransport) LastSent() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSent
}

// Start serves requests until Stop.
func (s *SimulatedAccessory) Start() {
	go s.serve()
}

// Stop ends the serve loop and closes the transport.
func (s *SimulatedAccessory) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		<-s.done
		s.session().Disconnect()
	})
}

func (s *SimulatedAccessory) session() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

func (s *SimulatedAccessory) serve() {
	defer close(s.done)
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		sess := s.session()
		frame, err := sess.Receive(200 * time.Millisecond)
		if err != nil {
			if errors.Is(err, transport.ErrTimeout) {
				continue
			}
			return
		}
		resp, post := s.handle(frame)
		if err := sess.Send(resp); err != nil {
			return
		}
		if post != nil {
			post()
		}
	}
}

// handle builds the response for one request frame. The returned func, if
// any, runs after the response is sent in plaintext.
func (s *SimulatedAccessory) handle(frame []byte) ([]byte, func()) {
	req, err := pdu.ParseRequest(frame)
	if err != nil {
		return pdu.Response{Status: pdu.StatusInvalidRequest}.Marshal(), nil
	}
	switch req.IID {
	case pairSetupIID:
		body := s.handleSetup(req.Body)
		return pdu.Response{TID: req.TID, Body: body}.Marshal(), nil
	case pairVerifyIID:
		body, post := s.handleVerify(req.Body)
		return pdu.Response{TID: req.TID, Body: body}.Marshal(), post
	default:
		return s.handleCharacteristic(req).Marshal(), nil
	}
}

func handshakeState(body []byte) uint8 {
	items, err := tlv.Decode(body)
	if err != nil {
		return 0
	}
	item, ok := items.First(pairing.TagState)
	if !ok {
		return 0
	}
	state, err := item.Uint8()
	if err != nil {
		return 0
	}
	return state
}

func errorBody(state uint8) []byte {
	buf := tlv.AppendUint8(nil, pairing.TagState, state)
	return tlv.AppendUint8(buf, pairing.TagError, uint8(pairing.ErrorUnknown))
}

func (s *SimulatedAccessory) handleSetup(body []byte) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch handshakeState(body) {
	case pairing.StateM1:
		code := s.setupCode
		if s.wrongProof {
			code = corruptCode(code)
		}
		setup, err := pairing.NewSetupAccessory(s.identity, code)
		if err != nil {
			return errorBody(pairing.StateM2)
		}
		s.setup = setup
		msg, err := setup.HandleM1(body)
		if err != nil {
			return errorBody(pairing.StateM2)
		}
		return msg
	case pairing.StateM3:
		if s.setup == nil {
			return errorBody(pairing.StateM4)
		}
		msg, err := s.setup.HandleM3(body)
		if msg == nil && err != nil {
			return errorBody(pairing.StateM4)
		}
		return msg
	case pairing.StateM5:
		if s.setup == nil {
			return errorBody(pairing.StateM6)
		}
		msg, err := s.setup.HandleM5(body)
		if err != nil {
			if msg != nil {
				return msg
			}
			return errorBody(pairing.StateM6)
		}
		if result, err := s.setup.Result(); err == nil {
			s.peers[result.PeerID] = result.PeerLTPK
			s.markPairedLocked(result.PeerID)
			if s.log != nil {
				s.log.Infof("paired with controller %s", result.PeerID)
			}
		}
		return msg
	default:
		return errorBody(pairing.StateM2)
	}
}

func (s *SimulatedAccessory) handleVerify(body []byte) ([]byte, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch handshakeState(body) {
	case pairing.StateM1:
		// The lookup runs inside HandleM3, always under s.mu.
		verify, err := pairing.NewVerifyAccessory(s.identity, func(id string) ([]byte, bool) {
			ltpk, ok := s.peers[id]
			return ltpk, ok
		})
		if err != nil {
			return errorBody(pairing.StateM2), nil
		}
		s.verify = verify
		msg, err := verify.HandleM1(body)
		if err != nil {
			return errorBody(pairing.StateM2), nil
		}
		return msg, nil
	case pairing.StateM3:
		if s.verify == nil {
			return errorBody(pairing.StateM4), nil
		}
		msg, err := s.verify.HandleM3(body)
		if err != nil {
			if msg != nil {
				return msg, nil
			}
			return errorBody(pairing.StateM4), nil
		}
		peerID, _ := s.verify.PeerID()
		s.markPairedLocked(peerID)
		encryptKey, decryptKey, err := s.verify.ChannelKeys()
		if err != nil {
			return errorBody(pairing.StateM4), nil
		}
		sess := s.sess
		// Keys go live only after the final plaintext message is out.
		return msg, func() {
			if err := sess.Verified(encryptKey, decryptKey); err != nil && s.log != nil {
				s.log.Errorf("channel key install failed: %v", err)
			}
		}
	default:
		return errorBody(pairing.StateM4), nil
	}
}

// markPairedLocked moves the accessory session to Paired if it is not
// there yet.
func (s *SimulatedAccessory) markPairedLocked(peerID string) {
	if s.sess.State() != session.StateUnpaired {
		return
	}
	if err := s.sess.BeginPairing(); err != nil {
		return
	}
	_ = s.sess.CompletePairing(&session.Pairing{
		ControllerID: peerID,
		AccessoryID:  s.identity.ID,
	})
}

func (s *SimulatedAccessory) handleCharacteristic(req pdu.Request) pdu.Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	char, ok := s.chars[req.IID]
	if !ok {
		return pdu.Response{TID: req.TID, Status: pdu.StatusInvalidInstanceID}
	}
	switch req.OpCode {
	case pdu.OpCharacteristicSignatureRead:
		return pdu.Response{TID: req.TID, Body: char.Signature()}
	case pdu.OpCharacteristicRead:
		value, ok := s.values[req.IID]
		if !ok {
			return pdu.Response{TID: req.TID, Status: pdu.StatusInvalidRequest}
		}
		return pdu.Response{TID: req.TID, Body: tlv.Append(nil, accessory.ParamValue, value.Encode())}
	case pdu.OpCharacteristicWrite:
		items, err := tlv.Decode(req.Body)
		if err != nil {
			return pdu.Response{TID: req.TID, Status: pdu.StatusInvalidRequest}
		}
		raw, ok := items.First(accessory.ParamValue)
		if !ok {
			return pdu.Response{TID: req.TID, Status: pdu.StatusInvalidRequest}
		}
		value, err := accessory.DecodeValue(char.Format, raw.Value)
		if err != nil {
			return pdu.Response{TID: req.TID, Status: pdu.StatusInvalidRequest}
		}
		s.values[req.IID] = value
		if s.dropWriteAck {
			return pdu.Response{TID: req.TID}
		}
		return pdu.Response{TID: req.TID, Body: tlv.Append(nil, accessory.ParamValue, value.Encode())}
	default:
		return pdu.Response{TID: req.TID, Status: pdu.StatusUnsupportedPDU}
	}
}

// corruptCode flips the last digit of a setup code.
func corruptCode(code string) string {
	b := []byte(code)
	last := len(b) - 1
	if b[last] == '9' {
		b[last] = '0'
	} else {
		b[last]++
	}
	return string(b)
}
