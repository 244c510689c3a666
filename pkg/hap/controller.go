package hap

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/hap-protocol/hap-go/pkg/pairing"
	"github.com/hap-protocol/hap-go/pkg/persistence"
	"github.com/hap-protocol/hap-go/pkg/transport"
)

// ControllerConfig holds configuration for a Controller.
type ControllerConfig struct {
	// ControllerID is the controller's pairing identifier.
	// If empty, a random identifier is generated.
	ControllerID string

	// StoragePath is the JSON state file for identity and pairings.
	// If empty, state lives in memory only.
	StoragePath string

	// Timeout bounds each request/response round trip.
	Timeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Controller is the long-lived controller side: one identity, one pairing
// store, any number of accessory connections.
type Controller struct {
	config   ControllerConfig
	identity *pairing.Identity
	store    *persistence.Store
	log      logging.LeveledLogger

	mu    sync.Mutex
	state *persistence.ControllerState
}

// NewController creates a Controller, restoring identity and pairings from
// storage when a path is configured.
func NewController(config ControllerConfig) (*Controller, error) {
	c := &Controller{config: config}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("hap")
	}

	if config.StoragePath != "" {
		c.store = persistence.NewStore(config.StoragePath)
		state, err := c.store.Load()
		if err != nil {
			return nil, err
		}
		if state != nil {
			identity, err := pairing.IdentityFromSeed(state.ControllerID, state.KeySeed)
			if err != nil {
				return nil, err
			}
			c.identity = identity
			c.state = state
			if c.log != nil {
				c.log.Infof("restored identity %s with %d pairings", state.ControllerID, len(state.Pairings))
			}
			return c, nil
		}
	}

	id := config.ControllerID
	if id == "" {
		id = uuid.NewString()
	}
	identity, err := pairing.NewIdentity(id)
	if err != nil {
		return nil, err
	}
	c.identity = identity
	c.state = &persistence.ControllerState{
		ControllerID: id,
		KeySeed:      identity.Key.Seed(),
	}
	if c.store != nil {
		if err := c.store.Save(c.state); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ID returns the controller's pairing identifier.
func (c *Controller) ID() string {
	return c.identity.ID
}

// Pairings lists the stored accessory pairings.
func (c *Controller) Pairings() []persistence.AccessoryPairing {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]persistence.AccessoryPairing, len(c.state.Pairings))
	copy(out, c.state.Pairings)
	return out
}

// ForgetPairing removes a stored pairing.
func (c *Controller) ForgetPairing(pairingID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Remove(pairingID) {
		return ErrNoPairing
	}
	return c.persistLocked()
}

// rememberPairing stores or refreshes an accessory pairing record.
func (c *Controller) rememberPairing(p persistence.AccessoryPairing) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Upsert(p)
	return c.persistLocked()
}

func (c *Controller) lookupPairing(pairingID string) (persistence.AccessoryPairing, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.state.Pairing(pairingID)
	if !ok {
		return persistence.AccessoryPairing{}, false
	}
	return *p, true
}

func (c *Controller) touchPairing(pairingID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.state.Pairing(pairingID); ok {
		p.LastVerifiedAt = time.Now()
		_ = c.persistLocked()
	}
}

func (c *Controller) persistLocked() error {
	if c.store == nil {
		return nil
	}
	return c.store.Save(c.state)
}

// Connect opens a connection to one accessory over the given transport.
func (c *Controller) Connect(tr transport.Transport) (*Conn, error) {
	return newConn(c, tr)
}
