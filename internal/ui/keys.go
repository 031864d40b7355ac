// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"github.com/charmbracelet/bubbles/key"
)

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines all keyboard bindings for the telly interface.
type KeyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Submit   key.Binding
	Cancel   key.Binding

	PrevSession   key.Binding
	NextSession   key.Binding
	NewSession    key.Binding
	DeleteSession key.Binding
	RenameSession key.Binding

	ThumbsUp   key.Binding
	ThumbsDown key.Binding

	Logout key.Binding
	Quit   key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Up: key.NewBinding(
			key.WithKeys("up"),
			key.WithHelp("up", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down"),
			key.WithHelp("down", "scroll down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup"),
			key.WithHelp("PgUp", "page up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown"),
			key.WithHelp("PgDn", "page down"),
		),
		Submit: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("Enter", "send"),
		),
		Cancel: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("Esc", "cancel"),
		),
		PrevSession: key.NewBinding(
			key.WithKeys("ctrl+p"),
			key.WithHelp("C-p", "previous session"),
		),
		NextSession: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "next session"),
		),
		NewSession: key.NewBinding(
			key.WithKeys("ctrl+t"),
			key.WithHelp("C-t", "new session"),
		),
		DeleteSession: key.NewBinding(
			key.WithKeys("ctrl+w"),
			key.WithHelp("C-w", "delete session"),
		),
		RenameSession: key.NewBinding(
			key.WithKeys("ctrl+e"),
			key.WithHelp("C-e", "rename session"),
		),
		ThumbsUp: key.NewBinding(
			key.WithKeys("ctrl+g"),
			key.WithHelp("C-g", "thumbs up"),
		),
		ThumbsDown: key.NewBinding(
			key.WithKeys("ctrl+b"),
			key.WithHelp("C-b", "thumbs down"),
		),
		Logout: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("C-l", "log out"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "ctrl+q"),
			key.WithHelp("C-c", "quit"),
		),
	}
}

// ShortHelp returns the bindings shown in the status bar.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Submit, k.NewSession, k.PrevSession, k.NextSession, k.ThumbsUp, k.ThumbsDown, k.Quit}
}

// FullHelp returns all bindings, grouped.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown},
		{k.PrevSession, k.NextSession, k.NewSession, k.DeleteSession, k.RenameSession},
		{k.Submit, k.ThumbsUp, k.ThumbsDown, k.Logout, k.Quit},
	}
}
