// Package triggerstate persists the engine's per-trigger state ledger as
// one JSON document, safe for concurrent readers via atomic rename writes.
package triggerstate

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"trailguard/internal/domain"
)

// ErrCorrupted marks persisted state that exists but cannot be parsed.
// Fabricating a default in that situation could re-trigger submitted rows,
// so callers must treat it as fatal.
var ErrCorrupted = errors.New("trigger state file is corrupted")

// Store persists trigger states keyed by config id.
type Store struct {
	path string
}

// NewStore creates a state store at the given path, ensuring its directory
// exists.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "create state dir")
	}
	return &Store{path: path}, nil
}

// Load reads all persisted states. A missing or empty file is a valid
// fresh start; an unparseable one is ErrCorrupted.
func (s *Store) Load() (map[string]*domain.TriggerState, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return make(map[string]*domain.TriggerState), nil
		}
		return nil, errors.Wrap(err, "read trigger state")
	}
	if len(payload) == 0 {
		return make(map[string]*domain.TriggerState), nil
	}

	var states map[string]*domain.TriggerState
	if err := json.Unmarshal(payload, &states); err != nil {
		return nil, errors.Wrapf(ErrCorrupted, "%s: %v", s.path, err)
	}
	if states == nil {
		states = make(map[string]*domain.TriggerState)
	}
	return states, nil
}

// Save writes all states via temp file and atomic rename so presentation
// collaborators never observe a torn document.
func (s *Store) Save(states map[string]*domain.TriggerState) error {
	payload, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode trigger state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write trigger state temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist trigger state")
	}
	return nil
}
