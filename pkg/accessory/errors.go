package accessory

import "errors"

var (
	// ErrNotAuthenticated is returned when a characteristic access requires
	// a verified session and the session is not verified.
	ErrNotAuthenticated = errors.New("accessory: session not authenticated")

	// ErrWriteUnconfirmed is returned when a write response does not echo
	// the written value. The outcome on the accessory is unknown; the cache
	// is left untouched.
	ErrWriteUnconfirmed = errors.New("accessory: write not confirmed by accessory")

	ErrUnknownCharacteristic = errors.New("accessory: unknown characteristic")
	ErrUnknownFormat         = errors.New("accessory: unknown presentation format")
	ErrNotWritable           = errors.New("accessory: characteristic not writable")
	ErrNotReadable           = errors.New("accessory: characteristic not readable")
)
