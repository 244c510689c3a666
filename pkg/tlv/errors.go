package tlv

import "errors"

var (
	// ErrMalformed is returned when a record's length byte claims more bytes
	// than remain in the buffer, or when a continuation fragment does not
	// extend the record it belongs to.
	ErrMalformed = errors.New("tlv: malformed buffer")

	// ErrTypeMismatch is returned when a value's byte length does not match
	// the width of the requested type.
	ErrTypeMismatch = errors.New("tlv: type mismatch")

	// ErrTagNotFound is returned when a required tag is absent from an item set.
	ErrTagNotFound = errors.New("tlv: tag not found")
)
