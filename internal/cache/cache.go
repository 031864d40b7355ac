// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cache persists the session collection to a single durable slot.
//
// The slot is one JSON file holding the serialized session array, each
// session embedding its full ordered exchange list. There is no separate
// index. The reducer is the only producer, so last-writer-wins without
// versioning is sufficient.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jeranaias/telly-tui/internal/model"
	"github.com/jeranaias/telly-tui/internal/util"
)

// DefaultFileName is the slot file name under the telly home directory.
const DefaultFileName = "sessions.json"

// Store reads and writes the session collection slot.
type Store struct {
	path string
}

// New creates a store against an explicit slot path.
func New(path string) *Store {
	return &Store{path: path}
}

// Default creates a store at ~/.telly/sessions.json.
func Default() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate home directory: %w", err)
	}
	return New(filepath.Join(home, ".telly", DefaultFileName)), nil
}

// Path returns the slot file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the cached collection. The second return is false when the slot
// is absent; an empty cache is not an error, it just means hydration must
// fall back to a remote fetch.
func (s *Store) Load() ([]*model.Session, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read session cache: %w", err)
	}

	var sessions []*model.Session
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, false, fmt.Errorf("failed to parse session cache: %w", err)
	}
	for _, sess := range sessions {
		if sess.Exchanges == nil {
			sess.Exchanges = []model.Exchange{}
		}
	}
	return sessions, true, nil
}

// Save writes the whole collection to the slot atomically.
func (s *Store) Save(sessions []*model.Session) error {
	if sessions == nil {
		sessions = []*model.Session{}
	}
	if err := util.WriteJSONFile(s.path, sessions, 0600); err != nil {
		return fmt.Errorf("failed to write session cache: %w", err)
	}
	return nil
}

// Clear removes the slot. Invoked on logout, inactivity timeout, and a
// detected stale remote session; a missing slot is fine.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear session cache: %w", err)
	}
	return nil
}
