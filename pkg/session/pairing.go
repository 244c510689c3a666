package session

// Pairing is the long-term key material produced by pair-setup. It is the
// serialization boundary between the engine and whatever store the caller
// uses: export it after pairing, persist it, and import it on a fresh
// session to skip pair-setup on reconnect.
type Pairing struct {
	// ControllerID is the controller's pairing identifier.
	ControllerID string

	// ControllerSeed is the controller's Ed25519 long-term key seed.
	ControllerSeed []byte

	// AccessoryID is the accessory's pairing identifier.
	AccessoryID string

	// AccessoryLTPK is the accessory's Ed25519 long-term public key.
	AccessoryLTPK []byte
}

// clone deep-copies the pairing so callers never alias internal state.
func (p *Pairing) clone() *Pairing {
	if p == nil {
		return nil
	}
	out := &Pairing{
		ControllerID: p.ControllerID,
		AccessoryID:  p.AccessoryID,
	}
	if p.ControllerSeed != nil {
		out.ControllerSeed = append([]byte(nil), p.ControllerSeed...)
	}
	if p.AccessoryLTPK != nil {
		out.AccessoryLTPK = append([]byte(nil), p.AccessoryLTPK...)
	}
	return out
}
