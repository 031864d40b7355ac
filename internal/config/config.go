// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for telly.
//
// Configuration is TOML with sensible defaults and environment variable
// overrides. File location: ~/.telly/config.toml, falling back to built-in
// defaults when absent.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete telly configuration.
type Config struct {
	// Backend configuration
	Backend BackendConfig `toml:"backend"`

	// Session configuration
	Session SessionConfig `toml:"session"`

	// UI configuration
	UI UIConfig `toml:"ui"`
}

// BackendConfig contains backend connection configuration.
type BackendConfig struct {
	// URL is the base URL of the telly backend
	URL string `toml:"url"`
	// RequestTimeoutSecs is the timeout for ordinary (non-streaming) requests
	RequestTimeoutSecs int `toml:"request_timeout_secs"`
}

// SessionConfig contains local session handling configuration.
type SessionConfig struct {
	// InactivityTimeoutSecs logs the user out after this much idle time.
	// 0 disables the inactivity timeout.
	InactivityTimeoutSecs int `toml:"inactivity_timeout_secs"`
	// WarningSecs shows a warning this many seconds before the timeout fires
	WarningSecs int `toml:"warning_secs"`
	// CachePath overrides the session cache location (empty = default)
	CachePath string `toml:"cache_path"`
	// CredentialsPath overrides the credential file location (empty = default)
	CredentialsPath string `toml:"credentials_path"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme"`
	// CompactMode uses a more compact UI layout
	CompactMode bool `toml:"compact_mode"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:                "http://127.0.0.1:8000",
			RequestTimeoutSecs: 30,
		},
		Session: SessionConfig{
			InactivityTimeoutSecs: 1800, // 30 minutes
			WarningSecs:           120,
		},
		UI: UIConfig{
			Theme: "auto",
		},
	}
}

// RequestTimeout returns the request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Backend.RequestTimeoutSecs) * time.Second
}

// InactivityTimeout returns the idle logout window, or 0 when disabled.
func (c *Config) InactivityTimeout() time.Duration {
	return time.Duration(c.Session.InactivityTimeoutSecs) * time.Second
}

// InactivityWarning returns how long before the timeout the warning appears.
func (c *Config) InactivityWarning() time.Duration {
	return time.Duration(c.Session.WarningSecs) * time.Second
}

// =============================================================================
// PATH HELPERS
// =============================================================================

// Dir returns the telly configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".telly"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureDir ensures the config directory exists.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// =============================================================================
// LOAD / SAVE
// =============================================================================

// Load loads configuration from the default location, applies environment
// overrides, fills defaults, and validates. A missing file is not an error;
// defaults are used.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific file path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to the default TOML file with restrictive
// permissions.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes the configuration to a specific file path.
func SaveToPath(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# telly configuration file")
	fmt.Fprintln(file, "# Generated by telly - edit with care")
	fmt.Fprintln(file, "")

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Backend.URL == "" {
		errs = append(errs, ValidationError{
			Field:   "backend.url",
			Message: "must not be empty",
		})
	} else if u, err := url.Parse(c.Backend.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "backend.url",
			Message: fmt.Sprintf("invalid URL '%s'", c.Backend.URL),
		})
	}

	if c.Backend.RequestTimeoutSecs < 1 || c.Backend.RequestTimeoutSecs > 300 {
		errs = append(errs, ValidationError{
			Field:   "backend.request_timeout_secs",
			Message: fmt.Sprintf("must be 1-300, got %d", c.Backend.RequestTimeoutSecs),
		})
	}

	if c.Session.InactivityTimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "session.inactivity_timeout_secs",
			Message: "must be non-negative (0 disables the timeout)",
		})
	}
	if c.Session.InactivityTimeoutSecs > 0 && c.Session.WarningSecs >= c.Session.InactivityTimeoutSecs {
		errs = append(errs, ValidationError{
			Field:   "session.warning_secs",
			Message: "warning must fire before the timeout itself",
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults fills in missing or zero-value fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Backend.URL == "" {
		c.Backend.URL = defaults.Backend.URL
	}
	if c.Backend.RequestTimeoutSecs == 0 {
		c.Backend.RequestTimeoutSecs = defaults.Backend.RequestTimeoutSecs
	}
	if c.Session.WarningSecs == 0 {
		c.Session.WarningSecs = defaults.Session.WarningSecs
	}
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - TELLY_BACKEND_URL: overrides backend.url
//   - TELLY_REQUEST_TIMEOUT_SECS: overrides backend.request_timeout_secs
//   - TELLY_INACTIVITY_TIMEOUT_SECS: overrides session.inactivity_timeout_secs
//   - TELLY_CACHE_PATH: overrides session.cache_path
//   - TELLY_CREDENTIALS_PATH: overrides session.credentials_path
//   - TELLY_THEME: overrides ui.theme
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TELLY_BACKEND_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("TELLY_REQUEST_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Backend.RequestTimeoutSecs = n
		}
	}
	if v := os.Getenv("TELLY_INACTIVITY_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Session.InactivityTimeoutSecs = n
		}
	}
	if v := os.Getenv("TELLY_CACHE_PATH"); v != "" {
		c.Session.CachePath = v
	}
	if v := os.Getenv("TELLY_CREDENTIALS_PATH"); v != "" {
		c.Session.CredentialsPath = v
	}
	if v := os.Getenv("TELLY_THEME"); v != "" {
		c.UI.Theme = v
	}
}
