package transport

import "errors"

// Transport errors.
var (
	// ErrTimeout is returned when a receive deadline expires. It is
	// recoverable: the caller may retry or abandon the exchange.
	ErrTimeout = errors.New("transport: receive timed out")

	// ErrClosed is returned when an operation is attempted on a closed
	// transport.
	ErrClosed = errors.New("transport: closed")

	// ErrNoPeripheral is returned when a BLE adapter is created without a
	// GATT peripheral.
	ErrNoPeripheral = errors.New("transport: no GATT peripheral configured")

	// ErrSendFailed is returned when handing a message to the carrier fails.
	ErrSendFailed = errors.New("transport: send failed")
)
