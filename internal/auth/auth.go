// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth holds the credential pair and its on-disk copy.
//
// The Service is the process-wide backend.CredentialSource. Credentials live
// in memory and are mirrored to a mode-0600 JSON file so a restart can pick
// the identity back up without prompting. Deleting that file out from under a
// running process is treated as revocation: a watcher notices and the UI
// forces the user back to the login screen.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/telly-tui/internal/backend"
	"github.com/jeranaias/telly-tui/internal/util"
)

// DefaultFileName is the credential file name under the telly home directory.
const DefaultFileName = "credentials.json"

// credentialFile is the on-disk shape.
type credentialFile struct {
	UserID string `json:"user_id"`
	Secret string `json:"secret"`
}

// Service stores the credential pair. It implements backend.CredentialSource.
type Service struct {
	mu     sync.Mutex
	userID string
	secret string
	path   string
}

// New creates a service backed by the given credential file path. An existing
// file is loaded into memory; a missing or unreadable file just means the
// user starts logged out.
func New(path string) *Service {
	s := &Service{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		return s
	}
	var cf credentialFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return s
	}
	s.userID = cf.UserID
	s.secret = cf.Secret
	return s
}

// DefaultPath returns ~/.telly/credentials.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".telly", DefaultFileName), nil
}

// Credentials implements backend.CredentialSource.
func (s *Service) Credentials() (string, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.secret, s.userID != ""
}

// =============================================================================
// LOGIN / LOGOUT
// =============================================================================

// Login verifies the pair against the backend and, on success, adopts it in
// memory and mirrors it to disk. A rejected pair leaves the service logged
// out.
func (s *Service) Login(ctx context.Context, client *backend.Client, userID, secret string) error {
	s.mu.Lock()
	s.userID = userID
	s.secret = secret
	s.mu.Unlock()

	if err := client.Login(ctx); err != nil {
		s.clearMemory()
		return err
	}

	if err := util.WriteJSONFile(s.path, credentialFile{UserID: userID, Secret: secret}, 0600); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	return nil
}

// Logout tells the backend to drop the remote session, then forgets the pair.
// Memory is cleared before the file is removed so our own revocation watcher
// stays quiet. The local pair is forgotten even when the remote call fails.
func (s *Service) Logout(ctx context.Context, client *backend.Client) error {
	err := client.Logout(ctx)

	s.clearMemory()
	if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) {
		if err == nil {
			err = fmt.Errorf("failed to remove credentials: %w", rmErr)
		}
	}
	return err
}

func (s *Service) clearMemory() {
	s.mu.Lock()
	s.userID = ""
	s.secret = ""
	s.mu.Unlock()
}

// =============================================================================
// REVOCATION WATCH
// =============================================================================

// WatchRevocation watches the credential file and reports when it disappears
// while an identity is still held in memory. That combination only happens
// when something outside this process revoked the credentials; our own
// Logout clears memory first. The returned stop function releases the
// watcher.
func (s *Service) WatchRevocation() (<-chan struct{}, func() error, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory, not the file: a watch on the file itself dies
	// with the file.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return nil, nil, fmt.Errorf("failed to watch credential directory: %w", err)
	}

	revoked := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != s.path {
					continue
				}
				if ev.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if _, _, held := s.Credentials(); held {
					select {
					case revoked <- struct{}{}:
					default:
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return revoked, watcher.Close, nil
}
