package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/grandcat/zeroconf"
)

// mockResolver feeds canned service entries to Browse callers.
type mockResolver struct {
	entries []*zeroconf.ServiceEntry
}

func (m *mockResolver) Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	go func() {
		defer close(entries)
		for _, e := range m.entries {
			select {
			case entries <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

func testEntry(instance, deviceID string, flags StatusFlags) *zeroconf.ServiceEntry {
	entry := zeroconf.NewServiceEntry(instance, ServiceHAP, DefaultDomain)
	entry.HostName = instance + ".local."
	entry.Port = 51826
	entry.AddrIPv4 = []net.IP{net.IPv4(192, 168, 1, 40)}
	entry.Text = BuildTXT(&Advertisement{
		DeviceID:        deviceID,
		Model:           "Lightbulb1,1",
		ConfigNumber:    3,
		StateNumber:     1,
		Flags:           flags,
		Category:        5,
		ProtocolVersion: "1.0",
	})
	return entry
}

func newMockBrowser(t *testing.T, entries ...*zeroconf.ServiceEntry) *Browser {
	t.Helper()
	b, err := NewBrowser(BrowserConfig{
		MDNSResolver:  &mockResolver{entries: entries},
		BrowseTimeout: time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestParseTXT(t *testing.T) {
	txt := []string{
		"id=AA:BB:CC:DD:EE:FF",
		"md=Lightbulb1,1",
		"c#=7",
		"s#=2",
		"sf=1",
		"ci=5",
		"pv=1.1",
		"junk",
		"unknown=x",
	}
	ad, err := parseTXT(txt)
	if err != nil {
		t.Fatal(err)
	}
	if ad.DeviceID != "AA:BB:CC:DD:EE:FF" || ad.Model != "Lightbulb1,1" {
		t.Errorf("identity fields: %+v", ad)
	}
	if ad.ConfigNumber != 7 || ad.StateNumber != 2 || ad.Category != 5 {
		t.Errorf("numeric fields: %+v", ad)
	}
	if ad.ProtocolVersion != "1.1" {
		t.Errorf("pv = %q", ad.ProtocolVersion)
	}
	if ad.Paired() {
		t.Errorf("sf=1 means unpaired")
	}

	ad2, err := parseTXT([]string{"id=X", "sf=0"})
	if err != nil {
		t.Fatal(err)
	}
	if !ad2.Paired() {
		t.Errorf("sf=0 means paired")
	}
}

func TestParseTXT_MissingDeviceID(t *testing.T) {
	if _, err := parseTXT([]string{"md=Thing"}); !errors.Is(err, ErrMissingDeviceID) {
		t.Errorf("err = %v, want ErrMissingDeviceID", err)
	}
}

func TestBuildTXTRoundtrip(t *testing.T) {
	in := &Advertisement{
		DeviceID:        "11:22:33:44:55:66",
		Model:           "Sensor2,1",
		ConfigNumber:    9,
		StateNumber:     4,
		Flags:           StatusNotPaired | StatusProblem,
		Category:        10,
		ProtocolVersion: "1.0",
	}
	out, err := parseTXT(BuildTXT(in))
	if err != nil {
		t.Fatal(err)
	}
	if *out != *in {
		t.Errorf("roundtrip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestBrowse(t *testing.T) {
	b := newMockBrowser(t,
		testEntry("bulb", "AA:AA:AA:AA:AA:AA", StatusNotPaired),
		testEntry("lock", "BB:BB:BB:BB:BB:BB", 0),
	)

	results, err := b.Browse(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var found []Accessory
	for acc := range results {
		found = append(found, acc)
	}
	if len(found) != 2 {
		t.Fatalf("found %d accessories, want 2", len(found))
	}
	if found[0].InstanceName != "bulb" || found[0].Paired() {
		t.Errorf("first = %+v", found[0])
	}
	if !found[1].Paired() {
		t.Errorf("second should be paired")
	}
	if found[0].Addr() != "192.168.1.40:51826" {
		t.Errorf("Addr() = %q", found[0].Addr())
	}
}

func TestBrowse_SkipsBadTXT(t *testing.T) {
	bad := zeroconf.NewServiceEntry("broken", ServiceHAP, DefaultDomain)
	bad.Text = []string{"md=NoID"}

	b := newMockBrowser(t, bad, testEntry("good", "CC:CC:CC:CC:CC:CC", 0))
	results, err := b.Browse(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	var found []Accessory
	for acc := range results {
		found = append(found, acc)
	}
	if len(found) != 1 || found[0].DeviceID != "CC:CC:CC:CC:CC:CC" {
		t.Errorf("found = %+v", found)
	}
}

func TestFind(t *testing.T) {
	b := newMockBrowser(t,
		testEntry("one", "AA:AA:AA:AA:AA:AA", 0),
		testEntry("two", "BB:BB:BB:BB:BB:BB", 0),
	)
	acc, err := b.Find(context.Background(), "BB:BB:BB:BB:BB:BB")
	if err != nil {
		t.Fatal(err)
	}
	if acc.InstanceName != "two" {
		t.Errorf("found %q", acc.InstanceName)
	}
}

func TestFind_NotFound(t *testing.T) {
	b := newMockBrowser(t, testEntry("one", "AA:AA:AA:AA:AA:AA", 0))
	if _, err := b.Find(context.Background(), "ZZ:ZZ:ZZ:ZZ:ZZ:ZZ"); !errors.Is(err, ErrServiceNotFound) {
		t.Errorf("err = %v, want ErrServiceNotFound", err)
	}
}
