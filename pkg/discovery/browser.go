// Package discovery finds HAP accessories on the local network via DNS-SD.
package discovery

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/pion/logging"
)

const (
	// ServiceHAP is the DNS-SD service type accessories advertise.
	ServiceHAP = "_hap._tcp"

	// DefaultDomain is the DNS-SD browse domain.
	DefaultDomain = "local."

	// DefaultBrowseTimeout bounds a browse without a context deadline.
	DefaultBrowseTimeout = 10 * time.Second
)

// Accessory is one discovered accessory.
type Accessory struct {
	// Advertisement is the parsed TXT record.
	Advertisement

	// InstanceName is the DNS-SD instance name.
	InstanceName string

	// HostName is the advertised target host.
	HostName string

	// Port is the service port.
	Port int

	// IPs are the resolved addresses, IPv4 first.
	IPs []net.IP
}

// Addr returns the preferred host:port address, or "" when the entry
// resolved without addresses.
func (a *Accessory) Addr() string {
	if len(a.IPs) == 0 {
		return ""
	}
	return net.JoinHostPort(a.IPs[0].String(), strconv.Itoa(a.Port))
}

// MDNSResolver is the interface for mDNS browsing, injectable in tests.
type MDNSResolver interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// zeroconfResolver is the production implementation.
type zeroconfResolver struct {
	resolver *zeroconf.Resolver
}

func newZeroconfResolver() (*zeroconfResolver, error) {
	r, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}
	return &zeroconfResolver{resolver: r}, nil
}

func (z *zeroconfResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	return z.resolver.Browse(ctx, service, domain, entries)
}

// BrowserConfig holds configuration for a Browser.
type BrowserConfig struct {
	// MDNSResolver is the underlying mDNS implementation.
	// If nil, a zeroconf resolver is used.
	MDNSResolver MDNSResolver

	// BrowseTimeout applies when the browse context has no deadline.
	// If zero, DefaultBrowseTimeout is used.
	BrowseTimeout time.Duration

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Browser discovers HAP accessories.
type Browser struct {
	resolver MDNSResolver
	timeout  time.Duration
	log      logging.LeveledLogger
}

// NewBrowser creates a Browser.
func NewBrowser(config BrowserConfig) (*Browser, error) {
	resolver := config.MDNSResolver
	if resolver == nil {
		zr, err := newZeroconfResolver()
		if err != nil {
			return nil, err
		}
		resolver = zr
	}
	b := &Browser{resolver: resolver, timeout: config.BrowseTimeout}
	if b.timeout <= 0 {
		b.timeout = DefaultBrowseTimeout
	}
	if config.LoggerFactory != nil {
		b.log = config.LoggerFactory.NewLogger("discovery")
	}
	return b, nil
}

// Browse streams accessories until the context is cancelled or the browse
// timeout expires. Entries with unparsable TXT records are skipped.
func (b *Browser) Browse(ctx context.Context) (<-chan Accessory, error) {
	cancel := context.CancelFunc(func() {})
	if _, ok := ctx.Deadline(); !ok {
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	results := make(chan Accessory)

	go func() {
		defer close(entries)
		if err := b.resolver.Browse(ctx, ServiceHAP, DefaultDomain, entries); err != nil && b.log != nil {
			b.log.Errorf("browse failed: %v", err)
		}
	}()
	go func() {
		defer close(results)
		defer cancel()
		for entry := range entries {
			acc, err := entryToAccessory(entry)
			if err != nil {
				if b.log != nil {
					b.log.Warnf("skipping %s: %v", entry.Instance, err)
				}
				continue
			}
			select {
			case results <- *acc:
			case <-ctx.Done():
				return
			}
		}
	}()

	return results, nil
}

// Find browses until an accessory with the given device ID appears.
func (b *Browser) Find(ctx context.Context, deviceID string) (*Accessory, error) {
	results, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}
	for {
		select {
		case acc, ok := <-results:
			if !ok {
				return nil, ErrServiceNotFound
			}
			if acc.DeviceID == deviceID {
				return &acc, nil
			}
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return nil, ErrTimeout
			}
			return nil, ctx.Err()
		}
	}
}

func entryToAccessory(entry *zeroconf.ServiceEntry) (*Accessory, error) {
	ad, err := parseTXT(entry.Text)
	if err != nil {
		return nil, err
	}
	var ips []net.IP
	ips = append(ips, entry.AddrIPv4...)
	ips = append(ips, entry.AddrIPv6...)
	return &Accessory{
		Advertisement: *ad,
		InstanceName:  entry.Instance,
		HostName:      entry.HostName,
		Port:          entry.Port,
		IPs:           ips,
	}, nil
}
