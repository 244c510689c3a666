package accessory

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/hap-protocol/hap-go/pkg/pdu"
	"github.com/hap-protocol/hap-go/pkg/session"
	"github.com/hap-protocol/hap-go/pkg/tlv"
)

const defaultTimeout = 10 * time.Second

// firstIID is the lowest characteristic instance ID probed during discovery.
const firstIID = 1

// Config collects the options for a Registry.
type Config struct {
	// Session carries all characteristic traffic. Required.
	Session *session.Session

	// Timeout bounds each request/response round trip.
	// Defaults to 10 seconds.
	Timeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Registry tracks the characteristics of one accessory and mediates typed
// reads and writes. Discovered signatures and confirmed values are cached;
// the value cache is dropped atomically when the session expires.
type Registry struct {
	sess    *session.Session
	timeout time.Duration
	log     logging.LeveledLogger

	mu    sync.Mutex
	chars map[uint16]*Characteristic
	cache map[uint16]Value
}

// NewRegistry creates a Registry bound to a session.
func NewRegistry(config Config) (*Registry, error) {
	if config.Session == nil {
		return nil, errors.New("accessory: no session configured")
	}
	r := &Registry{
		sess:    config.Session,
		timeout: config.Timeout,
		chars:   make(map[uint16]*Characteristic),
		cache:   make(map[uint16]Value),
	}
	if r.timeout <= 0 {
		r.timeout = defaultTimeout
	}
	if config.LoggerFactory != nil {
		r.log = config.LoggerFactory.NewLogger("accessory")
	}
	config.Session.OnExpire(r.invalidate)
	return r, nil
}

// invalidate drops all cached values in one step.
func (r *Registry) invalidate() {
	r.mu.Lock()
	r.cache = make(map[uint16]Value)
	r.mu.Unlock()
	if r.log != nil {
		r.log.Debug("value cache invalidated")
	}
}

func (r *Registry) exchange(op pdu.OpCode, iid uint16, body []byte) (pdu.Response, error) {
	req := pdu.NewRequest(op, iid, body)
	frame, err := r.sess.Exchange(req.Marshal(), r.timeout)
	if err != nil {
		return pdu.Response{}, err
	}
	return pdu.ParseResponse(frame, req.TID)
}

// Iterator walks the accessory's characteristics one signature read at a
// time. Iteration is lazy: nothing is fetched until Next is called, and a
// fresh Iterator restarts from the first instance ID.
type Iterator struct {
	r    *Registry
	next uint16
	done bool
	err  error
}

// Discover returns an iterator over the accessory's characteristics.
func (r *Registry) Discover() *Iterator {
	return &Iterator{r: r, next: firstIID}
}

// Next fetches the next characteristic signature. It returns false when the
// accessory reports no further instance IDs or an error occurred; check Err
// afterwards.
func (it *Iterator) Next() (*Characteristic, bool) {
	if it.done {
		return nil, false
	}
	resp, err := it.r.exchange(pdu.OpCharacteristicSignatureRead, it.next, nil)
	if err != nil {
		it.done = true
		it.err = err
		return nil, false
	}
	if resp.Status == pdu.StatusInvalidInstanceID {
		it.done = true
		return nil, false
	}
	if err := resp.Err(); err != nil {
		it.done = true
		it.err = err
		return nil, false
	}
	char, err := ParseSignature(it.next, resp.Body)
	if err != nil {
		it.done = true
		it.err = err
		return nil, false
	}

	it.r.mu.Lock()
	it.r.chars[char.IID] = char
	it.r.mu.Unlock()

	it.next++
	return char, true
}

// Err returns the error that ended iteration, if any. Exhausting the
// accessory's instance IDs is not an error.
func (it *Iterator) Err() error {
	return it.err
}

// ServiceIterator yields one complete service per group of adjacent
// characteristics sharing a service instance ID.
type ServiceIterator struct {
	it      *Iterator
	pending *Characteristic
}

// DiscoverServices returns an iterator over the accessory's services, in
// instance-ID order. Like Discover, it restarts from the beginning.
func (r *Registry) DiscoverServices() *ServiceIterator {
	return &ServiceIterator{it: r.Discover()}
}

// Next fetches signatures until the next service is complete. A service cut
// short by a transport error is not returned; check Err afterwards.
func (si *ServiceIterator) Next() (*Service, bool) {
	first := si.pending
	si.pending = nil
	if first == nil {
		char, ok := si.it.Next()
		if !ok {
			return nil, false
		}
		first = char
	}
	svc := &Service{
		IID:             first.ServiceIID,
		Type:            first.ServiceType,
		Characteristics: []*Characteristic{first},
	}
	for {
		char, ok := si.it.Next()
		if !ok {
			if si.it.Err() != nil {
				return nil, false
			}
			return svc, true
		}
		if char.ServiceIID != svc.IID {
			si.pending = char
			return svc, true
		}
		svc.Characteristics = append(svc.Characteristics, char)
	}
}

// Err returns the error that ended iteration, if any.
func (si *ServiceIterator) Err() error {
	return si.it.Err()
}

// Services groups the discovered characteristics by service, ordered by
// service instance ID.
func (r *Registry) Services() []*Service {
	byIID := make(map[uint16]*Service)
	for _, c := range r.Characteristics() {
		svc, ok := byIID[c.ServiceIID]
		if !ok {
			svc = &Service{IID: c.ServiceIID, Type: c.ServiceType}
			byIID[c.ServiceIID] = svc
		}
		svc.Characteristics = append(svc.Characteristics, c)
	}
	out := make([]*Service, 0, len(byIID))
	for _, svc := range byIID {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IID < out[j].IID })
	return out
}

// Characteristics returns the discovered characteristics ordered by
// instance ID.
func (r *Registry) Characteristics() []*Characteristic {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Characteristic, 0, len(r.chars))
	for _, c := range r.chars {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IID < out[j].IID })
	return out
}

// ByType returns the first discovered characteristic of the given type.
func (r *Registry) ByType(t uuid.UUID) (*Characteristic, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *Characteristic
	for _, c := range r.chars {
		if c.Type == t && (best == nil || c.IID < best.IID) {
			best = c
		}
	}
	return best, best != nil
}

// Cached returns the last confirmed value for a characteristic.
func (r *Registry) Cached(iid uint16) (Value, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.cache[iid]
	return v, ok
}

func (r *Registry) lookup(iid uint16) (*Characteristic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	char, ok := r.chars[iid]
	if !ok {
		return nil, ErrUnknownCharacteristic
	}
	return char, nil
}

// Read fetches a characteristic's current value. The session must be
// verified. The decoded value is cached on success.
func (r *Registry) Read(iid uint16) (Value, error) {
	if r.sess.State() != session.StateVerified {
		return Value{}, ErrNotAuthenticated
	}
	char, err := r.lookup(iid)
	if err != nil {
		return Value{}, err
	}
	if !char.Properties.Readable() {
		return Value{}, ErrNotReadable
	}

	resp, err := r.exchange(pdu.OpCharacteristicRead, iid, nil)
	if err != nil {
		return Value{}, err
	}
	if err := resp.Err(); err != nil {
		return Value{}, err
	}
	items, err := tlv.Decode(resp.Body)
	if err != nil {
		return Value{}, err
	}
	raw, ok := items.First(ParamValue)
	if !ok {
		return Value{}, tlv.ErrTagNotFound
	}
	value, err := DecodeValue(char.Format, raw.Value)
	if err != nil {
		return Value{}, err
	}

	r.mu.Lock()
	r.cache[iid] = value
	r.mu.Unlock()
	return value, nil
}

// Write sends a new value to a characteristic and requires the accessory to
// echo it back. A response without a matching echo fails with
// ErrWriteUnconfirmed and leaves the cache untouched.
func (r *Registry) Write(iid uint16, value Value) error {
	if r.sess.State() != session.StateVerified {
		return ErrNotAuthenticated
	}
	char, err := r.lookup(iid)
	if err != nil {
		return err
	}
	if !char.Properties.Writable() {
		return ErrNotWritable
	}
	if value.Format() != char.Format {
		return tlv.ErrTypeMismatch
	}

	body := tlv.Append(nil, ParamValue, value.Encode())
	body = tlv.AppendUint8(body, ParamReturnResponse, 1)

	resp, err := r.exchange(pdu.OpCharacteristicWrite, iid, body)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	items, err := tlv.Decode(resp.Body)
	if err != nil {
		return ErrWriteUnconfirmed
	}
	raw, ok := items.First(ParamValue)
	if !ok {
		return ErrWriteUnconfirmed
	}
	echo, err := DecodeValue(char.Format, raw.Value)
	if err != nil || !echo.Equal(value) {
		return ErrWriteUnconfirmed
	}

	r.mu.Lock()
	r.cache[iid] = value
	r.mu.Unlock()
	return nil
}
