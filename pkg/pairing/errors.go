package pairing

import (
	"errors"
	"fmt"
)

var (
	// ErrPairingRejected is returned when the peer refuses the pairing,
	// most commonly because the setup code did not match.
	ErrPairingRejected = errors.New("pairing: pairing rejected by peer")

	// ErrVerificationFailed is returned when pair-verify fails. The
	// long-lived pairing record is unaffected; verification may be retried.
	ErrVerificationFailed = errors.New("pairing: session verification failed")

	ErrInvalidState     = errors.New("pairing: invalid protocol state")
	ErrInvalidMessage   = errors.New("pairing: invalid message")
	ErrInvalidSetupCode = errors.New("pairing: setup code must have the form XXX-XX-XXX")
	ErrUnknownPeer      = errors.New("pairing: peer identity not paired")
	ErrNotComplete      = errors.New("pairing: handshake not complete")
)

// ProtocolError reports an error item received from the peer.
type ProtocolError struct {
	Code       ErrorCode
	RetryDelay uint16 // seconds, only set for ErrorBackoff
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Code == ErrorBackoff && e.RetryDelay > 0 {
		return fmt.Sprintf("pairing: peer error %s (retry in %ds)", e.Code, e.RetryDelay)
	}
	return fmt.Sprintf("pairing: peer error %s", e.Code)
}
