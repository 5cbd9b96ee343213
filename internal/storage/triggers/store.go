// Package triggers reads and edits the trigger configuration store: an
// ordered YAML collection of rows keyed by stable id.
package triggers

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"trailguard/internal/domain"
)

// Store loads trigger rows fresh on every call so operator edits take
// effect without a restart, and performs the one mutation the engine is
// allowed: flipping a linked row's enabled flag.
type Store struct {
	path string
	mu   sync.Mutex // serializes SetEnabled rewrites against loads
}

// NewStore creates a trigger config store for the given YAML file.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads and validates all rows. Malformed individual rows come back as
// Invalid variants; duplicate ids or an unreadable file are load errors.
func (s *Store) Load() ([]domain.TriggerRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() ([]domain.TriggerRow, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		return nil, errors.Wrap(err, "read trigger config")
	}

	var raw []domain.RawTriggerConfig
	if err := yaml.Unmarshal(payload, &raw); err != nil {
		return nil, errors.Wrap(err, "decode trigger config")
	}

	rows := make([]domain.TriggerRow, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, r := range raw {
		if r.ID != "" && seen[r.ID] {
			return nil, errors.Errorf("duplicate trigger id %q", r.ID)
		}
		if r.ID != "" {
			seen[r.ID] = true
		}
		rows = append(rows, domain.ParseTriggerConfig(r))
	}
	return rows, nil
}

// SetEnabled flips one row's enabled flag and rewrites the file atomically
// via temp file and rename, preserving all other fields as stored.
func (s *Store) SetEnabled(id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := os.ReadFile(s.path)
	if err != nil {
		return errors.Wrap(err, "read trigger config")
	}

	var raw []domain.RawTriggerConfig
	if err := yaml.Unmarshal(payload, &raw); err != nil {
		return errors.Wrap(err, "decode trigger config")
	}

	found := false
	for i := range raw {
		if raw[i].ID == id {
			raw[i].Enabled = enabled
			found = true
			break
		}
	}
	if !found {
		return errors.Errorf("trigger id %q not found", id)
	}

	out, err := yaml.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, "encode trigger config")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return errors.Wrap(err, "write trigger config temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist trigger config")
	}
	return nil
}
