package hap

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hap-protocol/hap-go/pkg/accessory"
	"github.com/hap-protocol/hap-go/pkg/pairing"
	"github.com/hap-protocol/hap-go/pkg/session"
	"github.com/hap-protocol/hap-go/pkg/transport"
)

const testSetupCode = "123-45-678"

var (
	typeOn        = uuid.MustParse("00000025-0000-1000-8000-0026BB765291")
	typeLightbulb = uuid.MustParse("00000043-0000-1000-8000-0026BB765291")
)

func lightbulbTable() ([]*accessory.Characteristic, map[uint16]accessory.Value) {
	chars := []*accessory.Characteristic{
		{
			IID: 1, Type: typeOn, ServiceIID: 10, ServiceType: typeLightbulb,
			Properties: accessory.PropSecureRead | accessory.PropSecureWrite,
			Format:     accessory.FormatBool, Unit: accessory.UnitUnitless,
		},
		{
			IID: 2, Type: uuid.MustParse("00000008-0000-1000-8000-0026BB765291"),
			ServiceIID: 10, ServiceType: typeLightbulb,
			Properties: accessory.PropSecureRead | accessory.PropSecureWrite,
			Format:     accessory.FormatUint8, Unit: accessory.UnitPercentage,
		},
	}
	values := map[uint16]accessory.Value{
		1: accessory.BoolValue(false),
		2: accessory.Uint8Value(100),
	}
	return chars, values
}

// startAccessory brings up a simulated lightbulb on one end of a pipe.
func startAccessory(t *testing.T) (*SimulatedAccessory, transport.Transport) {
	t.Helper()
	pipe := transport.NewPipe()
	t.Cleanup(func() { pipe.Close() })

	chars, values := lightbulbTable()
	sim, err := NewSimulatedAccessory(SimulatedConfig{
		PairingID:       "lightbulb-1",
		SetupCode:       testSetupCode,
		Transport:       pipe.Accessory(),
		Characteristics: chars,
		Values:          values,
	})
	if err != nil {
		t.Fatal(err)
	}
	sim.Start()
	t.Cleanup(sim.Stop)
	return sim, pipe.Controller()
}

func newTestController(t *testing.T, storagePath string) *Controller {
	t.Helper()
	ctl, err := NewController(ControllerConfig{
		ControllerID: "test-controller",
		StoragePath:  storagePath,
		Timeout:      2 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	return ctl
}

func pairAndVerify(t *testing.T, conn *Conn) {
	t.Helper()
	if err := conn.PairSetup(testSetupCode); err != nil {
		t.Fatal(err)
	}
	if err := conn.PairVerify(); err != nil {
		t.Fatal(err)
	}
	if conn.Session().State() != session.StateVerified {
		t.Fatalf("state = %s after verify", conn.Session().State())
	}
}

func discoverAll(t *testing.T, conn *Conn) []*accessory.Characteristic {
	t.Helper()
	it := conn.Discover()
	var found []*accessory.Characteristic
	for {
		char, ok := it.Next()
		if !ok {
			break
		}
		found = append(found, char)
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	return found
}

func TestEndToEnd(t *testing.T) {
	sim, tr := startAccessory(t)
	ctl := newTestController(t, "")

	conn, err := ctl.Connect(tr)
	if err != nil {
		t.Fatal(err)
	}
	pairAndVerify(t, conn)

	// Discovery walks the characteristic table lazily.
	found := discoverAll(t, conn)
	if len(found) != 2 {
		t.Fatalf("discovered %d characteristics, want 2", len(found))
	}

	// Read, write, read back.
	value, err := conn.Read(1)
	if err != nil {
		t.Fatal(err)
	}
	if on, _ := value.Bool(); on {
		t.Errorf("initial value = %v, want off", value)
	}
	if err := conn.Write(1, accessory.BoolValue(true)); err != nil {
		t.Fatal(err)
	}
	if v, ok := sim.Value(1); !ok || !v.Equal(accessory.BoolValue(true)) {
		t.Errorf("accessory value = %v, %t", v, ok)
	}
	value, err = conn.Read(1)
	if err != nil {
		t.Fatal(err)
	}
	if on, _ := value.Bool(); !on {
		t.Errorf("readback = %v, want on", value)
	}

	conn.Disconnect()
	if conn.Session().State() != session.StateExpired {
		t.Errorf("state = %s after disconnect", conn.Session().State())
	}
	if _, ok := conn.Registry().Cached(1); ok {
		t.Errorf("cache survived disconnect")
	}
}

func TestPairSetup_WrongCode(t *testing.T) {
	_, tr := startAccessory(t)
	ctl := newTestController(t, "")

	conn, err := ctl.Connect(tr)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.PairSetup("999-99-999"); !errors.Is(err, pairing.ErrPairingRejected) {
		t.Fatalf("err = %v, want ErrPairingRejected", err)
	}
	if conn.Session().State() != session.StateUnpaired {
		t.Errorf("state = %s, want Unpaired", conn.Session().State())
	}
	if len(ctl.Pairings()) != 0 {
		t.Errorf("rejected pairing was stored")
	}
}

func TestPairSetup_AccessoryWrongProof(t *testing.T) {
	sim, tr := startAccessory(t)
	sim.SetFaultWrongProof(true)

	ctl := newTestController(t, "")
	conn, err := ctl.Connect(tr)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.PairSetup(testSetupCode); !errors.Is(err, pairing.ErrPairingRejected) {
		t.Fatalf("err = %v, want ErrPairingRejected", err)
	}
	if conn.Session().State() != session.StateUnpaired {
		t.Errorf("state = %s, want Unpaired", conn.Session().State())
	}
}

func TestPairVerify_WithoutPairing(t *testing.T) {
	_, tr := startAccessory(t)
	ctl := newTestController(t, "")
	conn, err := ctl.Connect(tr)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.PairVerify(); !errors.Is(err, ErrNoPairing) {
		t.Errorf("err = %v, want ErrNoPairing", err)
	}
}

func TestWrite_DroppedAck(t *testing.T) {
	sim, tr := startAccessory(t)
	ctl := newTestController(t, "")
	conn, err := ctl.Connect(tr)
	if err != nil {
		t.Fatal(err)
	}
	pairAndVerify(t, conn)
	discoverAll(t, conn)

	sim.SetFaultDropWriteAck(true)
	if err := conn.Write(1, accessory.BoolValue(true)); !errors.Is(err, accessory.ErrWriteUnconfirmed) {
		t.Fatalf("err = %v, want ErrWriteUnconfirmed", err)
	}
	if _, ok := conn.Registry().Cached(1); ok {
		t.Errorf("unconfirmed write reached the cache")
	}

	// The channel itself is unaffected.
	sim.SetFaultDropWriteAck(false)
	if err := conn.Write(1, accessory.BoolValue(true)); err != nil {
		t.Errorf("write after fault cleared: %v", err)
	}
}

func TestReplayedFrameExpiresSession(t *testing.T) {
	sim, tr := startAccessory(t)
	ctl := newTestController(t, "")
	conn, err := ctl.Connect(tr)
	if err != nil {
		t.Fatal(err)
	}
	pairAndVerify(t, conn)
	discoverAll(t, conn)

	if _, err := conn.Read(1); err != nil {
		t.Fatal(err)
	}

	// A duplicated accessory frame carries a stale counter.
	if err := sim.ReplayLastFrame(); err != nil {
		t.Fatal(err)
	}
	if _, err := conn.Read(1); !errors.Is(err, session.ErrReplayOrDesync) {
		t.Fatalf("err = %v, want ErrReplayOrDesync", err)
	}
	if conn.Session().State() != session.StateExpired {
		t.Errorf("state = %s, want Expired", conn.Session().State())
	}
	if _, ok := conn.Registry().Cached(1); ok {
		t.Errorf("cache survived session expiry")
	}
	if _, err := conn.Read(1); !errors.Is(err, accessory.ErrNotAuthenticated) {
		t.Errorf("read on expired session: err = %v", err)
	}
}

func TestResumePairingAcrossRestart(t *testing.T) {
	storage := filepath.Join(t.TempDir(), "controller.json")

	sim, tr := startAccessory(t)
	ctl := newTestController(t, storage)
	conn, err := ctl.Connect(tr)
	if err != nil {
		t.Fatal(err)
	}
	pairAndVerify(t, conn)
	conn.Disconnect()

	// Reboot both sides: the accessory keeps its identity via the seed and
	// its controller pairing, the controller restores state from disk.
	pipe2 := transport.NewPipe()
	t.Cleanup(func() { pipe2.Close() })
	chars, values := lightbulbTable()
	sim2, err := NewSimulatedAccessory(SimulatedConfig{
		PairingID:       "lightbulb-1",
		SetupCode:       testSetupCode,
		IdentitySeed:    sim.IdentitySeed(),
		Transport:       pipe2.Accessory(),
		Characteristics: chars,
		Values:          values,
	})
	if err != nil {
		t.Fatal(err)
	}
	sim2.AddPeer(ctl.ID(), ctl.identity.Key.Public)
	sim2.Start()
	t.Cleanup(sim2.Stop)

	restored := newTestController(t, storage)
	if restored.ID() != ctl.ID() {
		t.Fatalf("restored ID %q != %q", restored.ID(), ctl.ID())
	}
	pairings := restored.Pairings()
	if len(pairings) != 1 || pairings[0].PairingID != "lightbulb-1" {
		t.Fatalf("restored pairings = %+v", pairings)
	}

	conn2, err := restored.Connect(pipe2.Controller())
	if err != nil {
		t.Fatal(err)
	}
	if err := conn2.ResumePairing("lightbulb-1"); err != nil {
		t.Fatal(err)
	}
	if err := conn2.PairVerify(); err != nil {
		t.Fatal(err)
	}
	discoverAll(t, conn2)
	if _, err := conn2.Read(1); err != nil {
		t.Errorf("read after resume: %v", err)
	}
}

func TestResumePairing_UnknownPeer(t *testing.T) {
	_, tr := startAccessory(t)
	ctl := newTestController(t, "")
	conn, err := ctl.Connect(tr)
	if err != nil {
		t.Fatal(err)
	}
	if err := conn.ResumePairing("nobody"); !errors.Is(err, ErrNoPairing) {
		t.Errorf("err = %v, want ErrNoPairing", err)
	}
}
