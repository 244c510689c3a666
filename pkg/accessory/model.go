package accessory

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/hap-protocol/hap-go/pkg/tlv"
)

// PDU body parameter tags.
const (
	ParamValue                    = 0x01
	ParamAdditionalAuthorization  = 0x02
	ParamOrigin                   = 0x03
	ParamCharacteristicType       = 0x04
	ParamCharacteristicInstanceID = 0x05
	ParamServiceType              = 0x06
	ParamServiceInstanceID        = 0x07
	ParamTTL                      = 0x08
	ParamReturnResponse           = 0x09
	ParamProperties               = 0x0A
	ParamUserDescription          = 0x0B
	ParamPresentationFormat       = 0x0C
	ParamValidRange               = 0x0D
	ParamStepValue                = 0x0E
	ParamServiceProperties        = 0x0F
	ParamLinkedServices           = 0x10
	ParamValidValues              = 0x11
	ParamValidValuesRange         = 0x12
)

// Properties is the characteristic properties bitmask.
type Properties uint16

const (
	PropRead                    Properties = 0x0001
	PropWrite                   Properties = 0x0002
	PropAdditionalAuthorization Properties = 0x0004
	PropTimedWrite              Properties = 0x0008
	PropSecureRead              Properties = 0x0010
	PropSecureWrite             Properties = 0x0020
	PropHidden                  Properties = 0x0040
	PropNotifyConnected         Properties = 0x0080
	PropNotifyDisconnected      Properties = 0x0100
	PropBroadcastNotify         Properties = 0x0200
)

// Readable reports whether reads are permitted in a secure session.
func (p Properties) Readable() bool {
	return p&(PropRead|PropSecureRead) != 0
}

// Writable reports whether writes are permitted in a secure session.
func (p Properties) Writable() bool {
	return p&(PropWrite|PropSecureWrite) != 0
}

// Well-known pairing service and characteristic types.
var (
	ServicePairing            = uuid.MustParse("00000055-0000-1000-8000-0026BB765291")
	CharacteristicPairSetup   = uuid.MustParse("0000004C-0000-1000-8000-0026BB765291")
	CharacteristicPairVerify  = uuid.MustParse("0000004E-0000-1000-8000-0026BB765291")
	CharacteristicPairingID   = uuid.MustParse("00000050-0000-1000-8000-0026BB765291")
	CharacteristicPairedPeers = uuid.MustParse("00000051-0000-1000-8000-0026BB765291")
)

// Service is a named group of characteristics under one accessory.
type Service struct {
	IID             uint16
	Type            uuid.UUID
	Characteristics []*Characteristic
}

// Characteristic is the signature of one accessory characteristic.
type Characteristic struct {
	IID         uint16
	Type        uuid.UUID
	ServiceIID  uint16
	ServiceType uuid.UUID
	Properties  Properties
	Description string
	Format      Format
	Unit        Unit
}

// encodeUUID writes a UUID in wire order. HAP transmits UUIDs reversed.
func encodeUUID(u uuid.UUID) []byte {
	b := make([]byte, 16)
	for i := 0; i < 16; i++ {
		b[i] = u[15-i]
	}
	return b
}

func decodeUUID(b []byte) (uuid.UUID, error) {
	if len(b) != 16 {
		return uuid.UUID{}, tlv.ErrTypeMismatch
	}
	var u uuid.UUID
	for i := 0; i < 16; i++ {
		u[i] = b[15-i]
	}
	return u, nil
}

// Signature serializes the characteristic as a signature-read response body.
func (c *Characteristic) Signature() []byte {
	buf := tlv.Append(nil, ParamCharacteristicType, encodeUUID(c.Type))
	buf = tlv.Append(buf, ParamServiceType, encodeUUID(c.ServiceType))
	buf = tlv.AppendUint16(buf, ParamServiceInstanceID, c.ServiceIID)
	buf = tlv.AppendUint16(buf, ParamProperties, uint16(c.Properties))
	if c.Description != "" {
		buf = tlv.AppendString(buf, ParamUserDescription, c.Description)
	}
	buf = tlv.Append(buf, ParamPresentationFormat, presentationFormat(c.Format, c.Unit))
	return buf
}

// ParseSignature parses a signature-read response body for the given
// instance ID.
func ParseSignature(iid uint16, body []byte) (*Characteristic, error) {
	items, err := tlv.Decode(body)
	if err != nil {
		return nil, err
	}
	c := &Characteristic{IID: iid}

	if item, ok := items.First(ParamCharacteristicType); ok {
		if c.Type, err = decodeUUID(item.Value); err != nil {
			return nil, err
		}
	}
	if item, ok := items.First(ParamServiceType); ok {
		if c.ServiceType, err = decodeUUID(item.Value); err != nil {
			return nil, err
		}
	}
	if item, ok := items.First(ParamServiceInstanceID); ok {
		sid, err := item.Uint16()
		if err != nil {
			return nil, err
		}
		c.ServiceIID = sid
	}
	if item, ok := items.First(ParamProperties); ok {
		props, err := item.Uint16()
		if err != nil {
			return nil, err
		}
		c.Properties = Properties(props)
	}
	if item, ok := items.First(ParamUserDescription); ok {
		c.Description = item.String()
	}
	if item, ok := items.First(ParamPresentationFormat); ok {
		format, unit, err := parsePresentationFormat(item.Value)
		if err != nil {
			return nil, err
		}
		c.Format = format
		c.Unit = unit
	}
	return c, nil
}

// presentationFormat builds the 7-byte GATT presentation format descriptor:
// format, exponent, unit (16-bit), namespace, description (16-bit).
func presentationFormat(f Format, u Unit) []byte {
	b := make([]byte, 7)
	b[0] = byte(f)
	binary.LittleEndian.PutUint16(b[2:], uint16(u))
	b[4] = 1 // Bluetooth SIG namespace
	return b
}

func parsePresentationFormat(b []byte) (Format, Unit, error) {
	if len(b) != 7 {
		return 0, 0, tlv.ErrTypeMismatch
	}
	f := Format(b[0])
	if !f.Valid() {
		return 0, 0, ErrUnknownFormat
	}
	return f, Unit(binary.LittleEndian.Uint16(b[2:])), nil
}
