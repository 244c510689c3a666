package accessory

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/hap-protocol/hap-go/pkg/tlv"
)

// Format is the presentation format of a characteristic value.
type Format byte

const (
	FormatBool   Format = 0x01
	FormatUint8  Format = 0x04
	FormatUint16 Format = 0x06
	FormatUint32 Format = 0x08
	FormatUint64 Format = 0x0A
	FormatInt    Format = 0x10
	FormatFloat  Format = 0x14
	FormatString Format = 0x19
	FormatData   Format = 0x1B
)

// String returns the format name.
func (f Format) String() string {
	switch f {
	case FormatBool:
		return "bool"
	case FormatUint8:
		return "uint8"
	case FormatUint16:
		return "uint16"
	case FormatUint32:
		return "uint32"
	case FormatUint64:
		return "uint64"
	case FormatInt:
		return "int"
	case FormatFloat:
		return "float"
	case FormatString:
		return "string"
	case FormatData:
		return "data"
	default:
		return "unknown"
	}
}

// Valid reports whether f is a known format code.
func (f Format) Valid() bool {
	switch f {
	case FormatBool, FormatUint8, FormatUint16, FormatUint32, FormatUint64,
		FormatInt, FormatFloat, FormatString, FormatData:
		return true
	}
	return false
}

// Unit is the presentation unit of a characteristic value.
type Unit uint16

const (
	UnitUnitless   Unit = 0x2700
	UnitSeconds    Unit = 0x2703
	UnitCelsius    Unit = 0x272F
	UnitLux        Unit = 0x2731
	UnitArcDegrees Unit = 0x2763
	UnitPercentage Unit = 0x27AD
)

// String returns the unit name.
func (u Unit) String() string {
	switch u {
	case UnitUnitless:
		return "unitless"
	case UnitSeconds:
		return "seconds"
	case UnitCelsius:
		return "celsius"
	case UnitLux:
		return "lux"
	case UnitArcDegrees:
		return "arcdegrees"
	case UnitPercentage:
		return "percentage"
	default:
		return "unknown"
	}
}

// Value is a typed characteristic value. The zero Value is invalid; use the
// constructors. Numeric kinds are stored widened and re-narrowed on encode.
type Value struct {
	format Format
	b      bool
	u      uint64
	i      int32
	f      float32
	s      string
	d      []byte
}

func BoolValue(v bool) Value     { return Value{format: FormatBool, b: v} }
func Uint8Value(v uint8) Value   { return Value{format: FormatUint8, u: uint64(v)} }
func Uint16Value(v uint16) Value { return Value{format: FormatUint16, u: uint64(v)} }
func Uint32Value(v uint32) Value { return Value{format: FormatUint32, u: uint64(v)} }
func Uint64Value(v uint64) Value { return Value{format: FormatUint64, u: v} }
func IntValue(v int32) Value     { return Value{format: FormatInt, i: v} }
func FloatValue(v float32) Value { return Value{format: FormatFloat, f: v} }
func StringValue(v string) Value { return Value{format: FormatString, s: v} }
func DataValue(v []byte) Value   { return Value{format: FormatData, d: v} }

// Format returns the value's presentation format.
func (v Value) Format() Format { return v.format }

// Bool returns the boolean payload.
func (v Value) Bool() (bool, error) {
	if v.format != FormatBool {
		return false, tlv.ErrTypeMismatch
	}
	return v.b, nil
}

// Uint returns the payload of any unsigned format, widened.
func (v Value) Uint() (uint64, error) {
	switch v.format {
	case FormatUint8, FormatUint16, FormatUint32, FormatUint64:
		return v.u, nil
	}
	return 0, tlv.ErrTypeMismatch
}

// Int returns the signed integer payload.
func (v Value) Int() (int32, error) {
	if v.format != FormatInt {
		return 0, tlv.ErrTypeMismatch
	}
	return v.i, nil
}

// Float returns the floating point payload.
func (v Value) Float() (float32, error) {
	if v.format != FormatFloat {
		return 0, tlv.ErrTypeMismatch
	}
	return v.f, nil
}

// Text returns the string payload.
func (v Value) Text() (string, error) {
	if v.format != FormatString {
		return "", tlv.ErrTypeMismatch
	}
	return v.s, nil
}

// Data returns the opaque payload.
func (v Value) Data() ([]byte, error) {
	if v.format != FormatData {
		return nil, tlv.ErrTypeMismatch
	}
	return v.d, nil
}

// Encode serializes the value to its little-endian wire form.
func (v Value) Encode() []byte {
	switch v.format {
	case FormatBool:
		if v.b {
			return []byte{1}
		}
		return []byte{0}
	case FormatUint8:
		return []byte{byte(v.u)}
	case FormatUint16:
		return binary.LittleEndian.AppendUint16(nil, uint16(v.u))
	case FormatUint32:
		return binary.LittleEndian.AppendUint32(nil, uint32(v.u))
	case FormatUint64:
		return binary.LittleEndian.AppendUint64(nil, v.u)
	case FormatInt:
		return binary.LittleEndian.AppendUint32(nil, uint32(v.i))
	case FormatFloat:
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(v.f))
	case FormatString:
		return []byte(v.s)
	case FormatData:
		return v.d
	default:
		return nil
	}
}

// DecodeValue parses a wire value of the given format. A payload whose width
// does not match the format fails with tlv.ErrTypeMismatch.
func DecodeValue(format Format, data []byte) (Value, error) {
	switch format {
	case FormatBool:
		if len(data) != 1 || data[0] > 1 {
			return Value{}, tlv.ErrTypeMismatch
		}
		return BoolValue(data[0] == 1), nil
	case FormatUint8:
		if len(data) != 1 {
			return Value{}, tlv.ErrTypeMismatch
		}
		return Uint8Value(data[0]), nil
	case FormatUint16:
		if len(data) != 2 {
			return Value{}, tlv.ErrTypeMismatch
		}
		return Uint16Value(binary.LittleEndian.Uint16(data)), nil
	case FormatUint32:
		if len(data) != 4 {
			return Value{}, tlv.ErrTypeMismatch
		}
		return Uint32Value(binary.LittleEndian.Uint32(data)), nil
	case FormatUint64:
		if len(data) != 8 {
			return Value{}, tlv.ErrTypeMismatch
		}
		return Uint64Value(binary.LittleEndian.Uint64(data)), nil
	case FormatInt:
		if len(data) != 4 {
			return Value{}, tlv.ErrTypeMismatch
		}
		return IntValue(int32(binary.LittleEndian.Uint32(data))), nil
	case FormatFloat:
		if len(data) != 4 {
			return Value{}, tlv.ErrTypeMismatch
		}
		return FloatValue(math.Float32frombits(binary.LittleEndian.Uint32(data))), nil
	case FormatString:
		return StringValue(string(data)), nil
	case FormatData:
		d := make([]byte, len(data))
		copy(d, data)
		return DataValue(d), nil
	default:
		return Value{}, ErrUnknownFormat
	}
}

// Equal reports whether two values have the same format and payload.
func (v Value) Equal(other Value) bool {
	if v.format != other.format {
		return false
	}
	switch v.format {
	case FormatBool:
		return v.b == other.b
	case FormatUint8, FormatUint16, FormatUint32, FormatUint64:
		return v.u == other.u
	case FormatInt:
		return v.i == other.i
	case FormatFloat:
		return v.f == other.f
	case FormatString:
		return v.s == other.s
	case FormatData:
		return string(v.d) == string(other.d)
	default:
		return false
	}
}

// String renders the value for display.
func (v Value) String() string {
	switch v.format {
	case FormatBool:
		return fmt.Sprintf("%t", v.b)
	case FormatUint8, FormatUint16, FormatUint32, FormatUint64:
		return fmt.Sprintf("%d", v.u)
	case FormatInt:
		return fmt.Sprintf("%d", v.i)
	case FormatFloat:
		return fmt.Sprintf("%g", v.f)
	case FormatString:
		return v.s
	case FormatData:
		return fmt.Sprintf("%x", v.d)
	default:
		return "<invalid>"
	}
}
