package hap

import (
	"time"

	"github.com/hap-protocol/hap-go/pkg/accessory"
	"github.com/hap-protocol/hap-go/pkg/pairing"
	"github.com/hap-protocol/hap-go/pkg/pdu"
	"github.com/hap-protocol/hap-go/pkg/persistence"
	"github.com/hap-protocol/hap-go/pkg/session"
	"github.com/hap-protocol/hap-go/pkg/transport"
)

const defaultTimeout = 10 * time.Second

// Conn is one controller connection to one accessory. All operations share
// the connection's session; a second concurrent operation fails fast with
// session.ErrSessionBusy.
type Conn struct {
	ctl      *Controller
	sess     *session.Session
	registry *accessory.Registry
	timeout  time.Duration

	// pairingID is set once the session is paired.
	pairingID string
}

func newConn(c *Controller, tr transport.Transport) (*Conn, error) {
	sess, err := session.New(session.Config{
		Transport:     tr,
		LoggerFactory: c.config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	registry, err := accessory.NewRegistry(accessory.Config{
		Session:       sess,
		Timeout:       c.config.Timeout,
		LoggerFactory: c.config.LoggerFactory,
	})
	if err != nil {
		return nil, err
	}
	conn := &Conn{ctl: c, sess: sess, registry: registry, timeout: c.config.Timeout}
	if conn.timeout <= 0 {
		conn.timeout = defaultTimeout
	}
	return conn, nil
}

// Session exposes the underlying session, mainly for state inspection.
func (conn *Conn) Session() *session.Session {
	return conn.sess
}

// handshake performs one pairing round trip over the reserved handshake
// instance ID.
func (conn *Conn) handshake(iid uint16, body []byte) ([]byte, error) {
	req := pdu.NewRequest(pdu.OpCharacteristicWrite, iid, body)
	frame, err := conn.sess.Exchange(req.Marshal(), conn.timeout)
	if err != nil {
		return nil, err
	}
	resp, err := pdu.ParseResponse(frame, req.TID)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, err
	}
	if len(resp.Body) == 0 {
		return nil, ErrBadHandshake
	}
	return resp.Body, nil
}

// PairSetup runs the pair-setup handshake with the accessory's setup code
// and stores the resulting pairing. On failure the session returns to
// Unpaired.
func (conn *Conn) PairSetup(setupCode string) error {
	sc, err := pairing.NewSetupController(conn.ctl.identity, setupCode)
	if err != nil {
		return err
	}
	if err := conn.sess.BeginPairing(); err != nil {
		return err
	}

	result, err := conn.runSetup(sc)
	if err != nil {
		_ = conn.sess.AbortPairing()
		return err
	}

	if err := conn.sess.CompletePairing(&session.Pairing{
		ControllerID:   conn.ctl.identity.ID,
		ControllerSeed: conn.ctl.identity.Key.Seed(),
		AccessoryID:    result.PeerID,
		AccessoryLTPK:  result.PeerLTPK,
	}); err != nil {
		return err
	}
	conn.pairingID = result.PeerID

	return conn.ctl.rememberPairing(persistence.AccessoryPairing{
		PairingID: result.PeerID,
		PublicKey: result.PeerLTPK,
		PairedAt:  time.Now(),
	})
}

func (conn *Conn) runSetup(sc *pairing.SetupController) (*pairing.Result, error) {
	m1, err := sc.Start()
	if err != nil {
		return nil, err
	}
	m2, err := conn.handshake(pairSetupIID, m1)
	if err != nil {
		return nil, err
	}
	m3, err := sc.HandleM2(m2)
	if err != nil {
		return nil, err
	}
	m4, err := conn.handshake(pairSetupIID, m3)
	if err != nil {
		return nil, err
	}
	m5, err := sc.HandleM4(m4)
	if err != nil {
		return nil, err
	}
	m6, err := conn.handshake(pairSetupIID, m5)
	if err != nil {
		return nil, err
	}
	return sc.HandleM6(m6)
}

// ResumePairing loads a stored pairing into a fresh session, skipping
// pair-setup.
func (conn *Conn) ResumePairing(pairingID string) error {
	record, ok := conn.ctl.lookupPairing(pairingID)
	if !ok {
		return ErrNoPairing
	}
	if err := conn.sess.ImportPairing(&session.Pairing{
		ControllerID:   conn.ctl.identity.ID,
		ControllerSeed: conn.ctl.identity.Key.Seed(),
		AccessoryID:    record.PairingID,
		AccessoryLTPK:  record.PublicKey,
	}); err != nil {
		return err
	}
	conn.pairingID = pairingID
	return nil
}

// PairVerify runs the pair-verify handshake and installs the derived channel
// keys. Failure is retryable: the session stays Paired.
func (conn *Conn) PairVerify() error {
	p := conn.sess.Pairing()
	if p == nil {
		return ErrNoPairing
	}
	vc, err := pairing.NewVerifyController(conn.ctl.identity, p.AccessoryID, p.AccessoryLTPK)
	if err != nil {
		return err
	}

	encryptKey, decryptKey, err := conn.runVerify(vc)
	if err != nil {
		conn.sess.VerifyFailed()
		return err
	}
	if err := conn.sess.Verified(encryptKey, decryptKey); err != nil {
		return err
	}
	conn.ctl.touchPairing(conn.pairingID)
	return nil
}

func (conn *Conn) runVerify(vc *pairing.VerifyController) (encryptKey, decryptKey []byte, err error) {
	m1, err := vc.Start()
	if err != nil {
		return nil, nil, err
	}
	m2, err := conn.handshake(pairVerifyIID, m1)
	if err != nil {
		return nil, nil, err
	}
	m3, err := vc.HandleM2(m2)
	if err != nil {
		return nil, nil, err
	}
	m4, err := conn.handshake(pairVerifyIID, m3)
	if err != nil {
		return nil, nil, err
	}
	if err := vc.HandleM4(m4); err != nil {
		return nil, nil, err
	}
	return vc.ChannelKeys()
}

// Discover returns a lazy iterator over the accessory's characteristics.
func (conn *Conn) Discover() *accessory.Iterator {
	return conn.registry.Discover()
}

// DiscoverServices returns a lazy iterator over the accessory's services.
func (conn *Conn) DiscoverServices() *accessory.ServiceIterator {
	return conn.registry.DiscoverServices()
}

// Characteristics returns the characteristics found so far.
func (conn *Conn) Characteristics() []*accessory.Characteristic {
	return conn.registry.Characteristics()
}

// Services returns the services found so far.
func (conn *Conn) Services() []*accessory.Service {
	return conn.registry.Services()
}

// Read fetches a characteristic value over the verified session.
func (conn *Conn) Read(iid uint16) (accessory.Value, error) {
	return conn.registry.Read(iid)
}

// Write updates a characteristic value over the verified session.
func (conn *Conn) Write(iid uint16, value accessory.Value) error {
	return conn.registry.Write(iid, value)
}

// Registry exposes the characteristic registry.
func (conn *Conn) Registry() *accessory.Registry {
	return conn.registry
}

// Disconnect expires the session and closes the transport. Cached values
// are dropped atomically.
func (conn *Conn) Disconnect() {
	conn.sess.Disconnect()
}
