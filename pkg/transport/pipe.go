package transport

import (
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// pipeProcessInterval is how often the pipe's delivery goroutine ticks.
const pipeProcessInterval = time.Millisecond

// Pipe provides bidirectional in-memory message transport between two
// endpoints, built on pion's test.Bridge. Use it for deterministic,
// flaky-free protocol tests without real network or radio I/O.
//
// Controller() and Accessory() return the two Transport endpoints. Message
// delivery runs in a background goroutine started by NewPipe.
type Pipe struct {
	bridge *test.Bridge

	controller *pipeEndpoint
	accessory  *pipeEndpoint

	stopCh chan struct{}
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewPipe creates a new pipe with message delivery running.
func NewPipe() *Pipe {
	p := &Pipe{
		bridge: test.NewBridge(),
		stopCh: make(chan struct{}),
	}
	p.controller = newPipeEndpoint(p.bridge.GetConn0())
	p.accessory = newPipeEndpoint(p.bridge.GetConn1())

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(pipeProcessInterval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()

	return p
}

// Controller returns the controller-side endpoint.
func (p *Pipe) Controller() Transport {
	return p.controller
}

// Accessory returns the accessory-side endpoint.
func (p *Pipe) Accessory() Transport {
	return p.accessory
}

// Drop discards all queued messages in both directions.
func (p *Pipe) Drop() {
	p.bridge.DropNextNWrites(0, 1000)
	p.bridge.DropNextNWrites(1, 1000)
}

// Close closes both endpoints and stops message delivery.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.closed = true
	close(p.stopCh)
	p.mu.Unlock()

	p.wg.Wait()
	p.controller.Close()
	p.accessory.Close()
	return nil
}

// pipeEndpoint adapts one bridge connection to the Transport interface.
// A reader goroutine pumps messages into a channel so Receive can apply
// caller-supplied timeouts without relying on conn deadlines.
type pipeEndpoint struct {
	conn   net.Conn
	msgs   chan []byte
	stopCh chan struct{}

	mu     sync.Mutex
	closed bool
}

func newPipeEndpoint(conn net.Conn) *pipeEndpoint {
	e := &pipeEndpoint{
		conn:   conn,
		msgs:   make(chan []byte, 64),
		stopCh: make(chan struct{}),
	}
	go e.readLoop()
	return e
}

func (e *pipeEndpoint) readLoop() {
	buf := make([]byte, 64*1024)
	for {
		n, err := e.conn.Read(buf)
		if err != nil {
			return
		}
		msg := make([]byte, n)
		copy(msg, buf[:n])
		select {
		case e.msgs <- msg:
		case <-e.stopCh:
			return
		}
	}
}

func (e *pipeEndpoint) Send(data []byte) error {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if _, err := e.conn.Write(data); err != nil {
		return err
	}
	return nil
}

func (e *pipeEndpoint) Receive(timeout time.Duration) ([]byte, error) {
	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-e.msgs:
		return msg, nil
	case <-e.stopCh:
		return nil, ErrClosed
	case <-timer.C:
		return nil, ErrTimeout
	}
}

func (e *pipeEndpoint) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.closed = true
	close(e.stopCh)
	e.mu.Unlock()
	return e.conn.Close()
}
