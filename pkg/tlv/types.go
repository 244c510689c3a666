package tlv

import (
	"encoding/binary"
	"math"
)

// Numeric accessors decode an item's value as a little-endian quantity of a
// fixed width. The value length must match the width exactly; anything else
// fails with ErrTypeMismatch.

// Uint8 decodes the value as an unsigned 8-bit integer.
func (i Item) Uint8() (uint8, error) {
	if len(i.Value) != 1 {
		return 0, ErrTypeMismatch
	}
	return i.Value[0], nil
}

// Uint16 decodes the value as a little-endian unsigned 16-bit integer.
func (i Item) Uint16() (uint16, error) {
	if len(i.Value) != 2 {
		return 0, ErrTypeMismatch
	}
	return binary.LittleEndian.Uint16(i.Value), nil
}

// Uint32 decodes the value as a little-endian unsigned 32-bit integer.
func (i Item) Uint32() (uint32, error) {
	if len(i.Value) != 4 {
		return 0, ErrTypeMismatch
	}
	return binary.LittleEndian.Uint32(i.Value), nil
}

// Uint64 decodes the value as a little-endian unsigned 64-bit integer.
func (i Item) Uint64() (uint64, error) {
	if len(i.Value) != 8 {
		return 0, ErrTypeMismatch
	}
	return binary.LittleEndian.Uint64(i.Value), nil
}

// Int8 decodes the value as a signed 8-bit integer.
func (i Item) Int8() (int8, error) {
	if len(i.Value) != 1 {
		return 0, ErrTypeMismatch
	}
	return int8(i.Value[0]), nil
}

// Int16 decodes the value as a little-endian signed 16-bit integer.
func (i Item) Int16() (int16, error) {
	if len(i.Value) != 2 {
		return 0, ErrTypeMismatch
	}
	return int16(binary.LittleEndian.Uint16(i.Value)), nil
}

// Int32 decodes the value as a little-endian signed 32-bit integer.
func (i Item) Int32() (int32, error) {
	if len(i.Value) != 4 {
		return 0, ErrTypeMismatch
	}
	return int32(binary.LittleEndian.Uint32(i.Value)), nil
}

// Int64 decodes the value as a little-endian signed 64-bit integer.
func (i Item) Int64() (int64, error) {
	if len(i.Value) != 8 {
		return 0, ErrTypeMismatch
	}
	return int64(binary.LittleEndian.Uint64(i.Value)), nil
}

// Float32 decodes the value as a little-endian IEEE 754 single.
func (i Item) Float32() (float32, error) {
	if len(i.Value) != 4 {
		return 0, ErrTypeMismatch
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(i.Value)), nil
}

// Float64 decodes the value as a little-endian IEEE 754 double.
func (i Item) Float64() (float64, error) {
	if len(i.Value) != 8 {
		return 0, ErrTypeMismatch
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(i.Value)), nil
}

// Bool decodes the value as a single 0 or 1 byte.
func (i Item) Bool() (bool, error) {
	if len(i.Value) != 1 || i.Value[0] > 1 {
		return false, ErrTypeMismatch
	}
	return i.Value[0] == 1, nil
}

// String decodes the value as UTF-8 text.
func (i Item) String() string {
	return string(i.Value)
}

// Value encoders, the inverses of the accessors above.

// AppendUint8 appends a 1-byte record.
func AppendUint8(buf []byte, tag byte, v uint8) []byte {
	return Append(buf, tag, []byte{v})
}

// AppendUint16 appends a 2-byte little-endian record.
func AppendUint16(buf []byte, tag byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return Append(buf, tag, b[:])
}

// AppendUint32 appends a 4-byte little-endian record.
func AppendUint32(buf []byte, tag byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return Append(buf, tag, b[:])
}

// AppendUint64 appends an 8-byte little-endian record.
func AppendUint64(buf []byte, tag byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return Append(buf, tag, b[:])
}

// AppendString appends a UTF-8 record.
func AppendString(buf []byte, tag byte, s string) []byte {
	return Append(buf, tag, []byte(s))
}

// AppendBool appends a 1-byte boolean record.
func AppendBool(buf []byte, tag byte, v bool) []byte {
	b := byte(0)
	if v {
		b = 1
	}
	return Append(buf, tag, []byte{b})
}
