// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package idle tracks user inactivity for the automatic logout trigger.
package idle

import (
	"strconv"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// IDLE MANAGER
// =============================================================================

// Manager tracks the time since the last user interaction and decides when
// to warn and when to force a logout. A zero timeout disables expiry
// entirely.
type Manager struct {
	mu sync.Mutex

	startTime    time.Time
	lastActivity time.Time

	timeout       time.Duration
	warningBefore time.Duration
	warningShown  bool

	onTimeout func()
	onWarning func(remaining time.Duration)
}

// Config holds configuration for the idle manager.
type Config struct {
	// Timeout is the inactivity window before forced logout (0 disables it)
	Timeout time.Duration

	// WarningBefore is how long before timeout to show a warning
	WarningBefore time.Duration
}

// DefaultConfig returns the default idle configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:       30 * time.Minute,
		WarningBefore: 2 * time.Minute,
	}
}

// NewManager creates a new idle manager.
func NewManager(cfg Config) *Manager {
	now := time.Now()
	return &Manager{
		startTime:     now,
		lastActivity:  now,
		timeout:       cfg.Timeout,
		warningBefore: cfg.WarningBefore,
	}
}

// =============================================================================
// ACTIVITY TRACKING
// =============================================================================

// RecordActivity updates the last activity timestamp. Called on every user
// input.
func (m *Manager) RecordActivity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastActivity = time.Now()
	m.warningShown = false
}

// IdleTime returns how long since the last activity.
func (m *Manager) IdleTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return time.Since(m.lastActivity)
}

// RemainingTime returns the time until forced logout, or 0 when already
// expired. With expiry disabled it always returns 0.
func (m *Manager) RemainingTime() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timeout == 0 {
		return 0
	}
	remaining := m.timeout - time.Since(m.lastActivity)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// =============================================================================
// CALLBACKS
// =============================================================================

// SetTimeoutCallback sets the function called when the idle window elapses.
func (m *Manager) SetTimeoutCallback(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTimeout = fn
}

// SetWarningCallback sets the function called when approaching timeout.
func (m *Manager) SetWarningCallback(fn func(remaining time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onWarning = fn
}

// =============================================================================
// EXPIRY CHECKING
// =============================================================================

// IsExpired returns true when the idle window has elapsed.
func (m *Manager) IsExpired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiredLocked()
}

func (m *Manager) expiredLocked() bool {
	if m.timeout == 0 {
		return false
	}
	return time.Since(m.lastActivity) >= m.timeout
}

// ShouldShowWarning returns true when the warning window has been entered
// and the warning has not been shown yet.
func (m *Manager) ShouldShowWarning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timeout == 0 || m.warningShown {
		return false
	}

	idle := time.Since(m.lastActivity)
	threshold := m.timeout - m.warningBefore
	return idle >= threshold && idle < m.timeout
}

// Check evaluates idle state and triggers the appropriate callbacks.
// Returns true while the user is still considered present.
func (m *Manager) Check() bool {
	m.mu.Lock()
	expired := m.expiredLocked()

	shouldWarn := false
	var remaining time.Duration
	if !m.warningShown && !expired && m.timeout > 0 {
		idle := time.Since(m.lastActivity)
		threshold := m.timeout - m.warningBefore
		if idle >= threshold {
			shouldWarn = true
			remaining = m.timeout - idle
			m.warningShown = true
		}
	}

	onTimeout := m.onTimeout
	onWarning := m.onWarning
	m.mu.Unlock()

	// Callbacks run outside the lock.
	if shouldWarn && onWarning != nil {
		onWarning(remaining)
	}
	if expired && onTimeout != nil {
		onTimeout()
	}

	return !expired
}

// =============================================================================
// BUBBLE TEA INTEGRATION
// =============================================================================

// TickMsg is sent periodically to check idle state.
type TickMsg struct {
	Time time.Time
}

// TimeoutWarningMsg indicates the idle window is about to elapse.
type TimeoutWarningMsg struct {
	Remaining time.Duration
}

// TimeoutMsg indicates the idle window has elapsed.
type TimeoutMsg struct{}

// TickCmd returns a command that ticks periodically.
func TickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

// HandleTick processes a tick and returns appropriate messages.
func (m *Manager) HandleTick() tea.Cmd {
	var cmds []tea.Cmd

	if m.ShouldShowWarning() {
		remaining := m.RemainingTime()
		cmds = append(cmds, func() tea.Msg {
			return TimeoutWarningMsg{Remaining: remaining}
		})
		m.mu.Lock()
		m.warningShown = true
		m.mu.Unlock()
	}

	if m.IsExpired() {
		cmds = append(cmds, func() tea.Msg {
			return TimeoutMsg{}
		})
	}

	cmds = append(cmds, TickCmd())
	return tea.Batch(cmds...)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// SetTimeout updates the idle window.
func (m *Manager) SetTimeout(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
}

// SetWarningTime updates when to show the timeout warning.
func (m *Manager) SetWarningTime(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warningBefore = d
}

// =============================================================================
// HELPERS
// =============================================================================

// FormatDuration returns a human-readable duration string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return strconv.Itoa(int(d.Seconds())) + "s"
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return strconv.Itoa(mins) + "m"
	}
	return strconv.Itoa(mins) + "m " + strconv.Itoa(secs) + "s"
}
