// hap-ctl is a command-line HAP controller.
//
// It discovers accessories on the local network, pairs with them and reads
// or writes individual characteristics over a verified session.
//
// Usage:
//
//	hap-ctl -op discover
//	hap-ctl -op pair -addr URL -setup-code XXX-XX-XXX [options]
//	hap-ctl -op read -addr URL -char IID [options]
//	hap-ctl -op write -addr URL -char IID -value VALUE [options]
//
// Options:
//
//	-op          Operation: discover, pair, read or write
//	-addr        Accessory endpoint URL, e.g. http://192.168.1.40:51826
//	-setup-code  Accessory setup code for pairing
//	-char        Characteristic instance ID
//	-value       Value to write (bool, number or string per the format)
//	-storage     Path for persistent controller state (default: in-memory)
//	-timeout     Per-operation timeout (default: 10s)
//	-verbose     Enable debug logging
//
// Example:
//
//	hap-ctl -op pair -addr http://192.168.1.40:51826 -setup-code 123-45-678 -storage state.json
//	hap-ctl -op write -addr http://192.168.1.40:51826 -char 11 -value true -storage state.json
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/pion/logging"

	"github.com/hap-protocol/hap-go/pkg/accessory"
	"github.com/hap-protocol/hap-go/pkg/discovery"
	"github.com/hap-protocol/hap-go/pkg/hap"
	"github.com/hap-protocol/hap-go/pkg/transport"
)

type options struct {
	op        string
	addr      string
	setupCode string
	char      uint
	value     string
	storage   string
	timeout   time.Duration
	verbose   bool
}

func main() {
	var opts options
	flag.StringVar(&opts.op, "op", "discover", "operation: discover, pair, read or write")
	flag.StringVar(&opts.addr, "addr", "", "accessory endpoint URL")
	flag.StringVar(&opts.setupCode, "setup-code", "", "accessory setup code, XXX-XX-XXX")
	flag.UintVar(&opts.char, "char", 0, "characteristic instance ID")
	flag.StringVar(&opts.value, "value", "", "value to write")
	flag.StringVar(&opts.storage, "storage", "", "path for persistent controller state")
	flag.DurationVar(&opts.timeout, "timeout", 10*time.Second, "per-operation timeout")
	flag.BoolVar(&opts.verbose, "verbose", false, "enable debug logging")
	flag.Parse()

	var err error
	switch opts.op {
	case "discover":
		err = runDiscover(opts)
	case "pair":
		err = runPair(opts)
	case "read":
		err = runRead(opts)
	case "write":
		err = runWrite(opts)
	default:
		fmt.Fprintf(os.Stderr, "unknown operation %q\n", opts.op)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s failed: %v", opts.op, err)
	}
}

func loggerFactory(opts options) logging.LoggerFactory {
	if !opts.verbose {
		return nil
	}
	factory := logging.NewDefaultLoggerFactory()
	factory.DefaultLogLevel = logging.LogLevelDebug
	return factory
}

func runDiscover(opts options) error {
	browser, err := discovery.NewBrowser(discovery.BrowserConfig{
		BrowseTimeout: opts.timeout,
		LoggerFactory: loggerFactory(opts),
	})
	if err != nil {
		return err
	}
	results, err := browser.Browse(context.Background())
	if err != nil {
		return err
	}
	n := 0
	for acc := range results {
		paired := "unpaired"
		if acc.Paired() {
			paired = "paired"
		}
		fmt.Printf("%-24s %-21s id=%s model=%q c#=%d %s\n",
			acc.InstanceName, acc.Addr(), acc.DeviceID, acc.Model, acc.ConfigNumber, paired)
		n++
	}
	if n == 0 {
		return discovery.ErrServiceNotFound
	}
	return nil
}

// connect dials the accessory and returns a connection plus the owning
// controller.
func connect(opts options) (*hap.Controller, *hap.Conn, error) {
	if opts.addr == "" {
		return nil, nil, fmt.Errorf("no accessory address; use -addr")
	}
	tr, err := transport.NewHTTP(transport.HTTPConfig{
		URL:           opts.addr,
		LoggerFactory: loggerFactory(opts),
	})
	if err != nil {
		return nil, nil, err
	}
	ctl, err := hap.NewController(hap.ControllerConfig{
		StoragePath:   opts.storage,
		Timeout:       opts.timeout,
		LoggerFactory: loggerFactory(opts),
	})
	if err != nil {
		tr.Close()
		return nil, nil, err
	}
	conn, err := ctl.Connect(tr)
	if err != nil {
		tr.Close()
		return nil, nil, err
	}
	return ctl, conn, nil
}

func runPair(opts options) error {
	if opts.setupCode == "" {
		return fmt.Errorf("no setup code; use -setup-code")
	}
	_, conn, err := connect(opts)
	if err != nil {
		return err
	}
	defer conn.Disconnect()

	if err := conn.PairSetup(opts.setupCode); err != nil {
		return err
	}
	p := conn.Session().Pairing()
	fmt.Printf("paired with %s\n", p.AccessoryID)
	if opts.storage == "" {
		fmt.Println("warning: no -storage path, pairing not persisted")
	}
	return nil
}

// verified resumes the stored pairing and brings the session to Verified.
func verified(ctl *hap.Controller, conn *hap.Conn) error {
	pairings := ctl.Pairings()
	if len(pairings) == 0 {
		return hap.ErrNoPairing
	}
	if err := conn.ResumePairing(pairings[0].PairingID); err != nil {
		return err
	}
	return conn.PairVerify()
}

// discoverIID walks the accessory's characteristics until the requested
// instance ID is known to the registry.
func discoverIID(conn *hap.Conn, iid uint16) (*accessory.Characteristic, error) {
	it := conn.Discover()
	for {
		char, ok := it.Next()
		if !ok {
			break
		}
		if char.IID == iid {
			return char, nil
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return nil, accessory.ErrUnknownCharacteristic
}

func runRead(opts options) error {
	ctl, conn, err := connect(opts)
	if err != nil {
		return err
	}
	defer conn.Disconnect()

	if err := verified(ctl, conn); err != nil {
		return err
	}
	char, err := discoverIID(conn, uint16(opts.char))
	if err != nil {
		return err
	}
	value, err := conn.Read(char.IID)
	if err != nil {
		return err
	}
	fmt.Printf("%d (%s, %s) = %s\n", char.IID, char.Format, char.Unit, value)
	return nil
}

func runWrite(opts options) error {
	if opts.value == "" {
		return fmt.Errorf("no value; use -value")
	}
	ctl, conn, err := connect(opts)
	if err != nil {
		return err
	}
	defer conn.Disconnect()

	if err := verified(ctl, conn); err != nil {
		return err
	}
	char, err := discoverIID(conn, uint16(opts.char))
	if err != nil {
		return err
	}
	value, err := parseValue(char.Format, opts.value)
	if err != nil {
		return err
	}
	if err := conn.Write(char.IID, value); err != nil {
		return err
	}
	fmt.Printf("%d = %s\n", char.IID, value)
	return nil
}

// parseValue converts CLI input to a typed value matching the
// characteristic's format.
func parseValue(format accessory.Format, s string) (accessory.Value, error) {
	switch format {
	case accessory.FormatBool:
		v, err := strconv.ParseBool(s)
		if err != nil {
			return accessory.Value{}, fmt.Errorf("bad bool %q: %w", s, err)
		}
		return accessory.BoolValue(v), nil
	case accessory.FormatUint8:
		v, err := strconv.ParseUint(s, 10, 8)
		if err != nil {
			return accessory.Value{}, fmt.Errorf("bad uint8 %q: %w", s, err)
		}
		return accessory.Uint8Value(uint8(v)), nil
	case accessory.FormatUint16:
		v, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return accessory.Value{}, fmt.Errorf("bad uint16 %q: %w", s, err)
		}
		return accessory.Uint16Value(uint16(v)), nil
	case accessory.FormatUint32:
		v, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			return accessory.Value{}, fmt.Errorf("bad uint32 %q: %w", s, err)
		}
		return accessory.Uint32Value(uint32(v)), nil
	case accessory.FormatUint64:
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return accessory.Value{}, fmt.Errorf("bad uint64 %q: %w", s, err)
		}
		return accessory.Uint64Value(v), nil
	case accessory.FormatInt:
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return accessory.Value{}, fmt.Errorf("bad int %q: %w", s, err)
		}
		return accessory.IntValue(int32(v)), nil
	case accessory.FormatFloat:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return accessory.Value{}, fmt.Errorf("bad float %q: %w", s, err)
		}
		return accessory.FloatValue(float32(v)), nil
	case accessory.FormatString:
		return accessory.StringValue(s), nil
	default:
		return accessory.Value{}, accessory.ErrUnknownFormat
	}
}
