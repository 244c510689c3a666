// Package session manages the per-accessory secure channel lifecycle:
// the Unpaired/Pairing/Paired/Verified/Expired state machine, the encrypted
// framing with per-direction nonce counters, and the single-exchange-in-
// flight discipline HAP requires.
package session

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/hap-protocol/hap-go/pkg/crypto"
	"github.com/hap-protocol/hap-go/pkg/transport"
)

// frameHeaderSize is the encrypted frame prefix: an 8-byte little-endian
// nonce counter followed by a 2-byte little-endian ciphertext length. The
// prefix doubles as the AEAD additional data.
const frameHeaderSize = 10

// initialCounter is the first nonce counter value used in each direction.
const initialCounter = 1

// Config configures a Session.
type Config struct {
	// Transport is the carrier for this accessory. Required.
	Transport transport.Transport

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Session owns the secure channel to one accessory. All characteristic
// traffic flows through Exchange; pairing handshakes run in plaintext before
// verification installs the channel ciphers.
//
// A Session is exclusively owned by its accessory handle. Once expired it is
// dead: construct a new Session to talk to the accessory again.
type Session struct {
	tr  transport.Transport
	log logging.LeveledLogger

	// busy enforces the one-in-flight-exchange rule. TryLock failure means
	// the caller broke serialization, reported as ErrSessionBusy.
	busy sync.Mutex

	mu          sync.Mutex
	state       State
	pairing     *Pairing
	enc         *crypto.SessionCipher
	dec         *crypto.SessionCipher
	sendCounter uint64
	recvCounter uint64
	onExpire    []func()
}

// New creates a Session in the Unpaired state.
func New(config Config) (*Session, error) {
	if config.Transport == nil {
		return nil, errors.New("session: no transport configured")
	}
	s := &Session{
		tr:    config.Transport,
		state: StateUnpaired,
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("session")
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnExpire registers a hook run exactly once when the session expires.
// Hooks run while the session lock is held, so the expiry and everything the
// hooks invalidate are observed atomically.
func (s *Session) OnExpire(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateExpired {
		fn()
		return
	}
	s.onExpire = append(s.onExpire, fn)
}

// BeginPairing moves Unpaired to Pairing.
func (s *Session) BeginPairing() error {
	return s.transition(StateUnpaired, StatePairing)
}

// AbortPairing moves Pairing back to Unpaired after a rejected setup.
func (s *Session) AbortPairing() error {
	return s.transition(StatePairing, StateUnpaired)
}

// transition performs a guarded state change.
func (s *Session) transition(from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != from {
		return ErrInvalidTransition
	}
	s.state = to
	return nil
}

// CompletePairing stores the long-term pairing material and moves Pairing to
// Paired.
func (s *Session) CompletePairing(p *Pairing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePairing {
		return ErrInvalidTransition
	}
	s.pairing = p.clone()
	s.state = StatePaired
	return nil
}

// ImportPairing installs persisted long-term keys, skipping pair-setup.
// Only valid on a fresh Unpaired session.
func (s *Session) ImportPairing(p *Pairing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnpaired {
		return ErrInvalidTransition
	}
	s.pairing = p.clone()
	s.state = StatePaired
	return nil
}

// ExportPairing returns a copy of the long-term pairing material for
// persistence by the caller.
func (s *Session) ExportPairing() (*Pairing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pairing == nil {
		return nil, ErrNoPairing
	}
	return s.pairing.clone(), nil
}

// Pairing returns the long-term pairing material, or nil.
func (s *Session) Pairing() *Pairing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pairing.clone()
}

// Verified installs the freshly derived channel keys and moves Paired to
// Verified. encryptKey protects outbound frames, decryptKey inbound; both
// directions restart their nonce counters.
func (s *Session) Verified(encryptKey, decryptKey []byte) error {
	enc, err := crypto.NewSessionCipher(encryptKey)
	if err != nil {
		return ErrInvalidKey
	}
	dec, err := crypto.NewSessionCipher(decryptKey)
	if err != nil {
		return ErrInvalidKey
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePaired {
		return ErrInvalidTransition
	}
	s.enc = enc
	s.dec = dec
	s.sendCounter = initialCounter
	s.recvCounter = initialCounter
	s.state = StateVerified
	if s.log != nil {
		s.log.Info("secure channel established")
	}
	return nil
}

// VerifyFailed records a failed verification attempt. The session stays
// Paired; verification is retryable.
func (s *Session) VerifyFailed() {
	if s.log != nil {
		s.log.Warn("session verification failed")
	}
}

// Exchange performs one request/response round trip. Frames are encrypted
// when the session is Verified and sent in plaintext during pairing
// handshakes.
//
// Only one exchange may be in flight; a second concurrent caller fails fast
// with ErrSessionBusy. A receive timeout is recoverable and leaves the
// session state untouched; any other transport failure on a verified session
// expires it.
func (s *Session) Exchange(frame []byte, timeout time.Duration) ([]byte, error) {
	if !s.busy.TryLock() {
		return nil, ErrSessionBusy
	}
	defer s.busy.Unlock()

	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == StateExpired {
		return nil, ErrExpired
	}
	encrypted := state == StateVerified

	out := frame
	if encrypted {
		var err error
		out, err = s.encrypt(frame)
		if err != nil {
			return nil, err
		}
	}

	if err := s.tr.Send(out); err != nil {
		if encrypted {
			s.Expire()
		}
		return nil, err
	}

	in, err := s.tr.Receive(timeout)
	if err != nil {
		if errors.Is(err, transport.ErrTimeout) {
			return nil, err
		}
		if encrypted {
			s.Expire()
		}
		return nil, err
	}

	if encrypted {
		return s.decrypt(in)
	}
	return in, nil
}

// Send transmits a single frame without waiting for a reply, encrypting it
// when the session is Verified. Responder sides use it to answer requests
// read with Receive.
func (s *Session) Send(frame []byte) error {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == StateExpired {
		return ErrExpired
	}
	out := frame
	if state == StateVerified {
		var err error
		out, err = s.encrypt(frame)
		if err != nil {
			return err
		}
	}
	if err := s.tr.Send(out); err != nil {
		if state == StateVerified {
			s.Expire()
		}
		return err
	}
	return nil
}

// Receive waits for a single inbound frame, decrypting it when the session
// is Verified. A timeout is recoverable; decryption failures expire the
// session.
func (s *Session) Receive(timeout time.Duration) ([]byte, error) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	if state == StateExpired {
		return nil, ErrExpired
	}
	in, err := s.tr.Receive(timeout)
	if err != nil {
		if errors.Is(err, transport.ErrTimeout) {
			return nil, err
		}
		if state == StateVerified {
			s.Expire()
		}
		return nil, err
	}
	if state == StateVerified {
		return s.decrypt(in)
	}
	return in, nil
}

// Disconnect expires the session and closes the transport. It never blocks
// on in-flight traffic.
func (s *Session) Disconnect() {
	s.Expire()
	s.tr.Close()
}

// Expire atomically moves the session to Expired, zeroes the channel state
// and runs the registered invalidation hooks. Safe to call from any state
// and idempotent.
func (s *Session) Expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
}

func (s *Session) expireLocked() {
	if s.state == StateExpired {
		return
	}
	s.state = StateExpired
	s.enc = nil
	s.dec = nil
	hooks := s.onExpire
	s.onExpire = nil
	for _, fn := range hooks {
		fn()
	}
	if s.log != nil {
		s.log.Info("session expired")
	}
}

// encrypt seals one outbound frame under the next send counter.
func (s *Session) encrypt(plaintext []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateVerified {
		return nil, ErrNotVerified
	}
	if s.sendCounter == math.MaxUint64 {
		s.expireLocked()
		return nil, ErrCounterExhausted
	}

	counter := s.sendCounter
	header := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint64(header[:8], counter)
	binary.LittleEndian.PutUint16(header[8:], uint16(len(plaintext)+crypto.SessionTagSize))

	ct := s.enc.Seal(counter, header, plaintext)
	s.sendCounter++
	return append(header, ct...), nil
}

// decrypt opens one inbound frame, enforcing the strict +1 counter sequence.
// Any mismatch or authentication failure expires the session.
func (s *Session) decrypt(frame []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateVerified {
		return nil, ErrNotVerified
	}
	if len(frame) < frameHeaderSize+crypto.SessionTagSize {
		s.expireLocked()
		return nil, ErrMalformedFrame
	}

	header := frame[:frameHeaderSize]
	counter := binary.LittleEndian.Uint64(header[:8])
	length := int(binary.LittleEndian.Uint16(header[8:]))
	ct := frame[frameHeaderSize:]

	if counter != s.recvCounter {
		if s.log != nil {
			s.log.Warnf("inbound counter %d, expected %d", counter, s.recvCounter)
		}
		s.expireLocked()
		return nil, ErrReplayOrDesync
	}
	if length != len(ct) {
		s.expireLocked()
		return nil, ErrMalformedFrame
	}

	plaintext, err := s.dec.Open(counter, header, ct)
	if err != nil {
		s.expireLocked()
		return nil, ErrReplayOrDesync
	}
	if s.recvCounter == math.MaxUint64 {
		// The counter space is spent; the message itself is valid, but the
		// next one would reuse a nonce. Force re-verification.
		s.expireLocked()
		return plaintext, nil
	}
	s.recvCounter++
	return plaintext, nil
}
