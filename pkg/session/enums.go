package session

// State is the lifecycle state of a Session.
type State int

const (
	// StateUnpaired means no long-term keys exist for the accessory.
	StateUnpaired State = iota

	// StatePairing means a pair-setup exchange is in flight.
	StatePairing

	// StatePaired means long-term keys exist but no secure channel is up.
	StatePaired

	// StateVerified means a secure channel is established; encrypted
	// characteristic access is possible.
	StateVerified

	// StateExpired is terminal: the secure channel is gone and this Session
	// instance cannot be revived. Construct a new Session to resume.
	StateExpired
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnpaired:
		return "Unpaired"
	case StatePairing:
		return "Pairing"
	case StatePaired:
		return "Paired"
	case StateVerified:
		return "Verified"
	case StateExpired:
		return "Expired"
	default:
		return "Unknown"
	}
}
