package transport

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/hap-protocol/hap-go/pkg/pdu"
)

// DefaultMTU is the usable ATT payload assumed when the peripheral does not
// report one.
const DefaultMTU = 23

// Peripheral is the GATT seam the BLE adapter sits on. A BLE stack binding
// (bluez, CoreBluetooth, or a test double) provides characteristic-level
// reads and writes keyed by UUID; nothing above this interface sees the
// radio.
type Peripheral interface {
	// WriteCharacteristic writes data to the characteristic with the given
	// type UUID. withResponse requests a confirmed write.
	WriteCharacteristic(u uuid.UUID, data []byte, withResponse bool) error

	// ReadCharacteristic reads the current value of the characteristic with
	// the given type UUID.
	ReadCharacteristic(u uuid.UUID) ([]byte, error)
}

// BLEConfig configures the BLE transport.
type BLEConfig struct {
	// Peripheral is the connected GATT peripheral. Required.
	Peripheral Peripheral

	// Characteristic is the GATT characteristic carrying HAP PDUs.
	Characteristic uuid.UUID

	// MTU is the usable ATT payload size. Zero means DefaultMTU.
	MTU int

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// BLE adapts a GATT peripheral connection to the Transport interface.
// Outbound frames larger than the MTU are split into HAP continuation
// fragments; inbound responses are read back fragment by fragment and
// reassembled before being handed up.
type BLE struct {
	peripheral Peripheral
	char       uuid.UUID
	mtu        int
	log        logging.LeveledLogger

	mu     sync.Mutex
	closed bool
}

// NewBLE creates a new BLE transport with the given configuration.
func NewBLE(config BLEConfig) (*BLE, error) {
	if config.Peripheral == nil {
		return nil, ErrNoPeripheral
	}
	b := &BLE{
		peripheral: config.Peripheral,
		char:       config.Characteristic,
		mtu:        config.MTU,
	}
	if b.mtu == 0 {
		b.mtu = DefaultMTU
	}
	if config.LoggerFactory != nil {
		b.log = config.LoggerFactory.NewLogger("transport-ble")
	}
	return b, nil
}

// Send writes one frame to the HAP characteristic, fragmenting to the MTU.
func (b *BLE) Send(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	tid, err := pdu.FrameTID(data)
	if err != nil {
		return err
	}
	frags := pdu.Fragment(data, tid, b.mtu)
	if b.log != nil && len(frags) > 1 {
		b.log.Tracef("fragmenting %d-byte frame into %d writes", len(data), len(frags))
	}
	for _, frag := range frags {
		if err := b.peripheral.WriteCharacteristic(b.char, frag, true); err != nil {
			return err
		}
	}
	return nil
}

// Receive reads the response from the HAP characteristic, collecting
// continuation fragments until the declared body is complete.
//
// GATT reads are synchronous, so the timeout bounds the whole reassembly
// loop rather than a single blocking wait.
func (b *BLE) Receive(timeout time.Duration) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	deadline := time.Now().Add(timeout)

	first, err := b.peripheral.ReadCharacteristic(b.char)
	if err != nil {
		return nil, err
	}
	frags := [][]byte{first}

	for {
		frame, err := pdu.Reassemble(frags)
		if err != nil {
			return nil, err
		}
		if pdu.ResponseComplete(frame) {
			return frame, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrTimeout
		}
		next, err := b.peripheral.ReadCharacteristic(b.char)
		if err != nil {
			return nil, err
		}
		frags = append(frags, next)
	}
}

// Close marks the transport closed. Disconnecting the underlying peripheral
// is the BLE stack binding's job.
func (b *BLE) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	b.closed = true
	return nil
}
