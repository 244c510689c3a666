package session

import "errors"

// Session package errors.
var (
	// ErrSessionBusy is returned when an exchange is attempted while another
	// is in flight. It signals a caller-side serialization bug; the session
	// is left untouched.
	ErrSessionBusy = errors.New("session: exchange already in flight")

	// ErrReplayOrDesync is returned when an inbound message's nonce counter
	// does not match the expected next value, or when authentication fails.
	// It is fatal: the session expires.
	ErrReplayOrDesync = errors.New("session: replay or counter desync")

	// ErrCounterExhausted is returned when a direction's nonce counter would
	// wrap. The session expires rather than reuse a nonce.
	ErrCounterExhausted = errors.New("session: nonce counter exhausted")

	// ErrExpired is returned for any operation on an expired session.
	ErrExpired = errors.New("session: expired")

	// ErrNotVerified is returned when an encrypted exchange is attempted
	// before verification completes.
	ErrNotVerified = errors.New("session: not verified")

	// ErrInvalidTransition is returned for a state change the lifecycle does
	// not allow.
	ErrInvalidTransition = errors.New("session: invalid state transition")

	// ErrInvalidKey is returned when a channel key has the wrong length.
	ErrInvalidKey = errors.New("session: invalid key length")

	// ErrNoPairing is returned when pairing state is exported before any
	// pairing exists.
	ErrNoPairing = errors.New("session: no pairing state")

	// ErrMalformedFrame is returned for an encrypted frame too short to
	// carry its header.
	ErrMalformedFrame = errors.New("session: malformed encrypted frame")
)
