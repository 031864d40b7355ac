// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui is the bubbletea front end for telly.
//
// The Model is a thin observer over chat.Provider: every mutation goes to
// the provider, and the view re-renders from the latest immutable snapshot
// whenever the provider signals a change. The UI never mutates session
// state directly.
package ui

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/telly-tui/internal/auth"
	"github.com/jeranaias/telly-tui/internal/backend"
	"github.com/jeranaias/telly-tui/internal/chat"
	"github.com/jeranaias/telly-tui/internal/idle"
	"github.com/jeranaias/telly-tui/internal/model"
	"github.com/jeranaias/telly-tui/internal/state"
	"github.com/jeranaias/telly-tui/internal/ui/styles"
)

// =============================================================================
// MODES
// =============================================================================

// viewMode is the current interaction mode of the interface.
type viewMode int

const (
	modeLogin viewMode = iota
	modeChat
	modeNaming        // typing a name for a new session
	modeRenaming      // typing a new name for the current session
	modeConfirmDelete // confirming deletion of the current session
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the top-level bubbletea model.
type Model struct {
	provider *chat.Provider
	client   *backend.Client
	authSvc  *auth.Service
	idler    *idle.Manager
	theme    *styles.Theme
	keys     KeyMap

	mode viewMode
	st   state.State

	width  int
	height int
	ready  bool

	viewport  viewport.Model
	input     textinput.Model
	nameInput textinput.Model
	userInput textinput.Model
	passInput textinput.Model
	spin      spinner.Model

	// loginFocus is 0 for the user field, 1 for the secret field.
	loginFocus int

	renderer *glamour.TermRenderer

	status  string
	warning string
	errText string

	revoked <-chan struct{}
}

// New creates the top-level model. When the auth service already holds an
// identity the login screen is skipped and hydration starts immediately.
func New(provider *chat.Provider, client *backend.Client, authSvc *auth.Service, idler *idle.Manager, theme *styles.Theme, revoked <-chan struct{}) Model {
	input := textinput.New()
	input.Placeholder = "Ask a question..."
	input.CharLimit = 2000
	input.Prompt = "> "

	nameInput := textinput.New()
	nameInput.Placeholder = "Session name"
	nameInput.CharLimit = 120

	userInput := textinput.New()
	userInput.Placeholder = "user id"
	userInput.CharLimit = 120
	userInput.Focus()

	passInput := textinput.New()
	passInput.Placeholder = "secret"
	passInput.CharLimit = 200
	passInput.EchoMode = textinput.EchoPassword

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	mode := modeLogin
	if _, _, ok := authSvc.Credentials(); ok {
		mode = modeChat
		input.Focus()
	}

	return Model{
		provider:  provider,
		client:    client,
		authSvc:   authSvc,
		idler:     idler,
		theme:     theme,
		keys:      DefaultKeyMap(),
		mode:      mode,
		st:        provider.Snapshot(),
		input:     input,
		nameInput: nameInput,
		userInput: userInput,
		passInput: passInput,
		spin:      spin,
		revoked:   revoked,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{
		textinput.Blink,
		m.spin.Tick,
		idle.TickCmd(),
		m.listenUpdates(),
		m.listenRevoked(),
	}
	if m.mode == modeChat {
		cmds = append(cmds, m.hydrateCmd())
	}
	return tea.Batch(cmds...)
}

// currentSession returns the selected session, or nil.
func (m Model) currentSession() *model.Session {
	return m.st.Current
}
