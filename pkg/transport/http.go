package transport

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/pion/logging"
)

// DefaultHTTPTimeout bounds a single request/response exchange on the wire.
const DefaultHTTPTimeout = 30 * time.Second

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	// URL is the accessory endpoint requests are posted to. Required.
	URL string

	// Client is an optional pre-configured HTTP client. If nil, a client
	// with keep-alives and DefaultHTTPTimeout is used.
	Client *http.Client

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// HTTP adapts a persistent HTTP connection to the Transport interface.
// Each Send posts one opaque payload; the accessory's response body becomes
// the next Receive result. The engine above never inspects HTTP semantics.
type HTTP struct {
	client  *http.Client
	url     string
	pending chan []byte
	log     logging.LeveledLogger

	mu     sync.Mutex
	closed bool
}

// NewHTTP creates a new HTTP transport with the given configuration.
func NewHTTP(config HTTPConfig) (*HTTP, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("transport: no URL configured")
	}

	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}

	h := &HTTP{
		client:  client,
		url:     config.URL,
		pending: make(chan []byte, 8),
	}
	if config.LoggerFactory != nil {
		h.log = config.LoggerFactory.NewLogger("transport-http")
	}
	return h, nil
}

// Send posts one payload and queues the response body for Receive.
func (h *HTTP) Send(data []byte) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosed
	}
	h.mu.Unlock()

	resp, err := h.client.Post(h.url, "application/octet-stream", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrSendFailed, err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", ErrSendFailed, resp.StatusCode)
	}

	if h.log != nil {
		h.log.Tracef("exchange: %d bytes out, %d bytes in", len(data), len(body))
	}

	select {
	case h.pending <- body:
	default:
		// Receive queue full; the oldest unconsumed response is stale.
		<-h.pending
		h.pending <- body
	}
	return nil
}

// Receive returns the next queued response body.
func (h *HTTP) Receive(timeout time.Duration) ([]byte, error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	h.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case body := <-h.pending:
		return body, nil
	case <-timer.C:
		return nil, ErrTimeout
	}
}

// Close shuts down the transport and its idle connections.
func (h *HTTP) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	h.closed = true
	h.client.CloseIdleConnections()
	return nil
}
