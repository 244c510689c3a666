// Package transport defines the byte-stream seam between the HAP protocol
// engine and its carriers. The session and characteristic layers depend only
// on the Transport interface; BLE, HTTP and in-memory pipe adapters implement
// it without leaking carrier details upward.
package transport

import "time"

// Transport carries opaque protocol messages to and from one accessory.
// Implementations are message-oriented: one Send produces exactly one unit on
// the wire and one Receive returns exactly one unit.
type Transport interface {
	// Send hands one message to the carrier.
	Send(data []byte) error

	// Receive blocks for the next inbound message, up to timeout.
	// Expiry returns ErrTimeout; callers may retry.
	Receive(timeout time.Duration) ([]byte, error)

	// Close tears down the carrier connection. Further operations return
	// ErrClosed.
	Close() error
}
