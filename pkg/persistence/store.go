// Package persistence stores controller identity and accessory pairings in a
// JSON file.
package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// StateVersion is the current version of the state file format.
const StateVersion = 1

// ControllerState contains everything a controller must keep across
// restarts.
type ControllerState struct {
	// Version is the state file format version.
	Version int `json:"version"`

	// SavedAt is when the state was last saved.
	SavedAt time.Time `json:"saved_at"`

	// ControllerID is the controller's pairing identifier.
	ControllerID string `json:"controller_id"`

	// KeySeed is the controller's Ed25519 seed.
	KeySeed []byte `json:"key_seed"`

	// Pairings contains one record per paired accessory.
	Pairings []AccessoryPairing `json:"pairings,omitempty"`
}

// AccessoryPairing is the long-lived record of one paired accessory.
type AccessoryPairing struct {
	// DeviceID is the accessory's advertised device identifier.
	DeviceID string `json:"device_id"`

	// PairingID is the accessory's pairing identifier from pair-setup.
	PairingID string `json:"pairing_id"`

	// PublicKey is the accessory's long-term Ed25519 public key.
	PublicKey []byte `json:"public_key"`

	// PairedAt is when pair-setup completed.
	PairedAt time.Time `json:"paired_at"`

	// LastVerifiedAt is when a session was last verified.
	LastVerifiedAt time.Time `json:"last_verified_at,omitempty"`
}

// Pairing returns the record for an accessory pairing ID.
func (s *ControllerState) Pairing(pairingID string) (*AccessoryPairing, bool) {
	for i := range s.Pairings {
		if s.Pairings[i].PairingID == pairingID {
			return &s.Pairings[i], true
		}
	}
	return nil, false
}

// Upsert adds or replaces the record for a pairing ID.
func (s *ControllerState) Upsert(p AccessoryPairing) {
	for i := range s.Pairings {
		if s.Pairings[i].PairingID == p.PairingID {
			s.Pairings[i] = p
			return
		}
	}
	s.Pairings = append(s.Pairings, p)
}

// Remove deletes the record for a pairing ID.
func (s *ControllerState) Remove(pairingID string) bool {
	for i := range s.Pairings {
		if s.Pairings[i].PairingID == pairingID {
			s.Pairings = append(s.Pairings[:i], s.Pairings[i+1:]...)
			return true
		}
	}
	return false
}

// Store manages persistence of controller state to a JSON file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore creates a store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Save persists the state to disk.
func (s *Store) Save(state *ControllerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	state.Version = StateVersion
	state.SavedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(s.path, data, 0600)
}

// Load reads the state from disk.
// Returns nil, nil if the file doesn't exist (empty state).
func (s *Store) Load() (*ControllerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	state := &ControllerState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, err
	}

	return state, nil
}

// Clear removes the state file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
