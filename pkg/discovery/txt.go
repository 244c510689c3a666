package discovery

import (
	"strconv"
	"strings"
)

// TXT record keys advertised by accessories.
const (
	txtKeyDeviceID        = "id"
	txtKeyModel           = "md"
	txtKeyConfigNumber    = "c#"
	txtKeyStateNumber     = "s#"
	txtKeyStatusFlags     = "sf"
	txtKeyCategory        = "ci"
	txtKeyProtocolVersion = "pv"
	txtKeyFeatureFlags    = "ff"
)

// StatusFlags is the accessory status bitmask from the sf TXT key.
type StatusFlags uint8

const (
	// StatusNotPaired is set while the accessory has no pairings.
	StatusNotPaired StatusFlags = 0x01

	// StatusNotConfigured is set while the accessory has not joined a
	// network.
	StatusNotConfigured StatusFlags = 0x02

	// StatusProblem is set when the accessory has a problem condition.
	StatusProblem StatusFlags = 0x04
)

// Advertisement is the parsed TXT record of an advertised accessory.
type Advertisement struct {
	// DeviceID is the unique accessory identifier, formatted like a MAC
	// address.
	DeviceID string

	// Model is the accessory model name.
	Model string

	// ConfigNumber increments when the accessory's attribute database
	// changes.
	ConfigNumber uint32

	// StateNumber increments on accessory state changes.
	StateNumber uint32

	// Flags carries the accessory status bits.
	Flags StatusFlags

	// Category is the accessory category identifier.
	Category uint16

	// ProtocolVersion is the advertised protocol version, e.g. "1.0".
	ProtocolVersion string
}

// Paired reports whether the accessory already has at least one pairing.
func (a *Advertisement) Paired() bool {
	return a.Flags&StatusNotPaired == 0
}

// parseTXT decodes the key=value TXT strings of one service entry. Unknown
// keys are ignored; a missing device id is an error.
func parseTXT(txt []string) (*Advertisement, error) {
	ad := &Advertisement{ProtocolVersion: "1.0"}
	for _, kv := range txt {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case txtKeyDeviceID:
			ad.DeviceID = value
		case txtKeyModel:
			ad.Model = value
		case txtKeyConfigNumber:
			if n, err := strconv.ParseUint(value, 10, 32); err == nil {
				ad.ConfigNumber = uint32(n)
			}
		case txtKeyStateNumber:
			if n, err := strconv.ParseUint(value, 10, 32); err == nil {
				ad.StateNumber = uint32(n)
			}
		case txtKeyStatusFlags:
			if n, err := strconv.ParseUint(value, 10, 8); err == nil {
				ad.Flags = StatusFlags(n)
			}
		case txtKeyCategory:
			if n, err := strconv.ParseUint(value, 10, 16); err == nil {
				ad.Category = uint16(n)
			}
		case txtKeyProtocolVersion:
			ad.ProtocolVersion = value
		}
	}
	if ad.DeviceID == "" {
		return nil, ErrMissingDeviceID
	}
	return ad, nil
}

// BuildTXT renders an advertisement back to TXT strings, used by the
// simulated accessory and by tests.
func BuildTXT(ad *Advertisement) []string {
	txt := []string{
		txtKeyDeviceID + "=" + ad.DeviceID,
		txtKeyConfigNumber + "=" + strconv.FormatUint(uint64(ad.ConfigNumber), 10),
		txtKeyStateNumber + "=" + strconv.FormatUint(uint64(ad.StateNumber), 10),
		txtKeyStatusFlags + "=" + strconv.FormatUint(uint64(ad.Flags), 10),
		txtKeyCategory + "=" + strconv.FormatUint(uint64(ad.Category), 10),
		txtKeyProtocolVersion + "=" + ad.ProtocolVersion,
	}
	if ad.Model != "" {
		txt = append(txt, txtKeyModel+"="+ad.Model)
	}
	return txt
}
