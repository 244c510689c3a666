package hap

import "errors"

var (
	ErrNoPairing    = errors.New("hap: no pairing on record")
	ErrBadHandshake = errors.New("hap: malformed handshake response")
)
