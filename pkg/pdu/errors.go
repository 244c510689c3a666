package pdu

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformed is returned when a frame is too short or its declared
	// body length disagrees with the bytes present.
	ErrMalformed = errors.New("pdu: malformed frame")

	// ErrTransactionMismatch is returned when a response or continuation
	// fragment carries a transaction ID different from the request's.
	ErrTransactionMismatch = errors.New("pdu: transaction ID mismatch")

	// ErrNotAResponse is returned when a frame's control field does not have
	// the response bit set where a response is expected, or vice versa.
	ErrNotAResponse = errors.New("pdu: response bit mismatch")

	// ErrContinuationMismatch is returned when fragment reassembly encounters
	// a fragment whose continuation bit does not match its position.
	ErrContinuationMismatch = errors.New("pdu: continuation bit mismatch")
)

// StatusError wraps a non-success HAP status code returned by an accessory.
type StatusError struct {
	Code Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pdu: accessory returned %s: %s", e.Code, e.Code.Message())
}
