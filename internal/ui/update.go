// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/telly-tui/internal/chat"
	"github.com/jeranaias/telly-tui/internal/idle"
	"github.com/jeranaias/telly-tui/internal/model"
)

// =============================================================================
// MESSAGES
// =============================================================================

// stateMsg signals that the provider has a new snapshot.
type stateMsg struct{}

// revokedMsg signals that the credential file disappeared underneath us.
type revokedMsg struct{}

// loginDoneMsg carries the result of a login plus hydration attempt.
type loginDoneMsg struct{ err error }

// hydrateDoneMsg carries the result of a startup hydration.
type hydrateDoneMsg struct{ err error }

// opDoneMsg carries the result of a session operation or feedback write.
type opDoneMsg struct{ err error }

// =============================================================================
// COMMANDS
// =============================================================================

// listenUpdates waits for the next provider notification.
func (m Model) listenUpdates() tea.Cmd {
	updates := m.provider.Updates()
	return func() tea.Msg {
		<-updates
		return stateMsg{}
	}
}

// listenRevoked waits for a credential revocation.
func (m Model) listenRevoked() tea.Cmd {
	revoked := m.revoked
	if revoked == nil {
		return nil
	}
	return func() tea.Msg {
		<-revoked
		return revokedMsg{}
	}
}

func (m Model) hydrateCmd() tea.Cmd {
	provider := m.provider
	return func() tea.Msg {
		return hydrateDoneMsg{err: provider.Hydrate(context.Background())}
	}
}

func (m Model) loginCmd(user, secret string) tea.Cmd {
	authSvc, client, provider := m.authSvc, m.client, m.provider
	return func() tea.Msg {
		if err := authSvc.Login(context.Background(), client, user, secret); err != nil {
			return loginDoneMsg{err: err}
		}
		return loginDoneMsg{err: provider.Hydrate(context.Background())}
	}
}

func (m Model) logoutCmd() tea.Cmd {
	authSvc, client, provider := m.authSvc, m.client, m.provider
	return func() tea.Msg {
		provider.Reset()
		return opDoneMsg{err: authSvc.Logout(context.Background(), client)}
	}
}

func (m Model) createSessionCmd(name string) tea.Cmd {
	provider := m.provider
	return func() tea.Msg {
		_, err := provider.CreateSession(context.Background(), name)
		return opDoneMsg{err: err}
	}
}

func (m Model) deleteSessionCmd(id string) tea.Cmd {
	provider := m.provider
	return func() tea.Msg {
		return opDoneMsg{err: provider.DeleteSession(context.Background(), id)}
	}
}

func (m Model) renameSessionCmd(id, name string) tea.Cmd {
	provider := m.provider
	return func() tea.Msg {
		return opDoneMsg{err: provider.RenameSession(context.Background(), id, name)}
	}
}

func (m Model) feedbackCmd(sessionID, answerID string, value model.Feedback) tea.Cmd {
	provider := m.provider
	return func() tea.Msg {
		return opDoneMsg{err: provider.SetFeedback(context.Background(), sessionID, answerID, value)}
	}
}

// =============================================================================
// UPDATE
// =============================================================================

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.theme.SetSize(msg.Width, msg.Height)
		m.layout()
		m.refreshViewport()
		return m, nil

	case tea.KeyMsg:
		m.idler.RecordActivity()
		m.warning = ""
		return m.handleKey(msg)

	case stateMsg:
		m.st = m.provider.Snapshot()
		m.refreshViewport()
		return m, m.listenUpdates()

	case revokedMsg:
		m.provider.Reset()
		m.toLogin("Access revoked. Log in again.")
		return m, m.listenRevoked()

	case hydrateDoneMsg:
		if msg.err != nil {
			if errors.Is(msg.err, chat.ErrStaleSession) {
				m.toLogin("Your session expired. Log in again.")
				return m, nil
			}
			m.errText = msg.err.Error()
		}
		m.st = m.provider.Snapshot()
		m.refreshViewport()
		return m, nil

	case loginDoneMsg:
		if msg.err != nil {
			m.errText = loginErrorText(msg.err)
			return m, nil
		}
		m.errText = ""
		m.mode = modeChat
		m.userInput.Reset()
		m.passInput.Reset()
		m.input.Focus()
		m.st = m.provider.Snapshot()
		m.refreshViewport()
		return m, nil

	case opDoneMsg:
		if msg.err != nil {
			m.errText = msg.err.Error()
		}
		return m, nil

	case idle.TickMsg:
		return m, m.idler.HandleTick()

	case idle.TimeoutWarningMsg:
		m.warning = "Logging out in " + idle.FormatDuration(msg.Remaining) + " due to inactivity"
		return m, nil

	case idle.TimeoutMsg:
		if m.mode != modeLogin {
			m.toLogin("Logged out due to inactivity.")
			return m, m.logoutCmd()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		// The spinner frame is rendered inside the viewport content.
		if sess := m.currentSession(); sess != nil {
			if _, ok := m.st.TypingText(sess.ID); ok {
				m.refreshViewport()
			}
		}
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	switch m.mode {
	case modeLogin:
		return m.handleLoginKey(msg)
	case modeNaming, modeRenaming:
		return m.handleNameKey(msg)
	case modeConfirmDelete:
		return m.handleConfirmKey(msg)
	default:
		return m.handleChatKey(msg)
	}
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "tab", "shift+tab", "up", "down":
		m.loginFocus = 1 - m.loginFocus
		if m.loginFocus == 0 {
			m.userInput.Focus()
			m.passInput.Blur()
		} else {
			m.passInput.Focus()
			m.userInput.Blur()
		}
		return m, nil
	case "enter":
		user := strings.TrimSpace(m.userInput.Value())
		secret := m.passInput.Value()
		if user == "" || secret == "" {
			m.errText = "User id and secret are both required."
			return m, nil
		}
		m.errText = ""
		m.status = "Signing in..."
		return m, m.loginCmd(user, secret)
	}

	var cmd tea.Cmd
	if m.loginFocus == 0 {
		m.userInput, cmd = m.userInput.Update(msg)
	} else {
		m.passInput, cmd = m.passInput.Update(msg)
	}
	return m, cmd
}

func (m Model) handleNameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.mode = modeChat
		m.nameInput.Reset()
		m.input.Focus()
		return m, nil
	case key.Matches(msg, m.keys.Submit):
		name := strings.TrimSpace(m.nameInput.Value())
		if name == "" {
			return m, nil
		}
		renaming := m.mode == modeRenaming
		m.mode = modeChat
		m.nameInput.Reset()
		m.input.Focus()
		if renaming {
			if sess := m.currentSession(); sess != nil {
				return m, m.renameSessionCmd(sess.ID, name)
			}
			return m, nil
		}
		return m, m.createSessionCmd(name)
	}

	var cmd tea.Cmd
	m.nameInput, cmd = m.nameInput.Update(msg)
	return m, cmd
}

func (m Model) handleConfirmKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		m.mode = modeChat
		m.input.Focus()
		if sess := m.currentSession(); sess != nil {
			return m, m.deleteSessionCmd(sess.ID)
		}
		return m, nil
	default:
		m.mode = modeChat
		m.input.Focus()
		return m, nil
	}
}

func (m Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Submit):
		sess := m.currentSession()
		text := m.input.Value()
		if sess == nil || strings.TrimSpace(text) == "" {
			return m, nil
		}
		if m.st.IsInFlight(sess.ID) {
			// One stream at a time per session; keep the draft.
			return m, nil
		}
		m.input.Reset()
		m.provider.ProcessQuestion(context.Background(), sess.ID, text)
		return m, nil

	case key.Matches(msg, m.keys.NewSession):
		m.mode = modeNaming
		m.input.Blur()
		m.nameInput.Focus()
		return m, nil

	case key.Matches(msg, m.keys.RenameSession):
		if sess := m.currentSession(); sess != nil {
			m.mode = modeRenaming
			m.input.Blur()
			m.nameInput.SetValue(sess.Name)
			m.nameInput.Focus()
		}
		return m, nil

	case key.Matches(msg, m.keys.DeleteSession):
		if m.currentSession() != nil {
			m.mode = modeConfirmDelete
			m.input.Blur()
		}
		return m, nil

	case key.Matches(msg, m.keys.PrevSession):
		m.selectNeighbor(-1)
		return m, nil

	case key.Matches(msg, m.keys.NextSession):
		m.selectNeighbor(1)
		return m, nil

	case key.Matches(msg, m.keys.ThumbsUp):
		return m, m.toggleFeedback(model.FeedbackPositive)

	case key.Matches(msg, m.keys.ThumbsDown):
		return m, m.toggleFeedback(model.FeedbackNegative)

	case key.Matches(msg, m.keys.Logout):
		m.toLogin("")
		return m, m.logoutCmd()

	case key.Matches(msg, m.keys.Up), key.Matches(msg, m.keys.Down),
		key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// HELPERS
// =============================================================================

// selectNeighbor moves the selection up or down the session list.
func (m *Model) selectNeighbor(delta int) {
	if len(m.st.Sessions) == 0 {
		return
	}
	idx := 0
	if cur := m.st.Current; cur != nil {
		for i, sess := range m.st.Sessions {
			if sess.ID == cur.ID {
				idx = i
				break
			}
		}
	}
	idx += delta
	if idx < 0 || idx >= len(m.st.Sessions) {
		return
	}
	if err := m.provider.SelectSession(m.st.Sessions[idx].ID); err == nil {
		m.st = m.provider.Snapshot()
		m.refreshViewport()
	}
}

// toggleFeedback targets the most recent settled answer of the current
// session. Pending answers have no id yet and cannot take feedback.
func (m *Model) toggleFeedback(value model.Feedback) tea.Cmd {
	sess := m.currentSession()
	if sess == nil {
		return nil
	}
	for i := len(sess.Exchanges) - 1; i >= 0; i-- {
		if id := sess.Exchanges[i].Answer.ID; id != "" {
			return m.feedbackCmd(sess.ID, id, value)
		}
	}
	return nil
}

// toLogin switches back to the login screen with an optional notice.
func (m *Model) toLogin(notice string) {
	m.mode = modeLogin
	m.errText = notice
	m.status = ""
	m.loginFocus = 0
	m.input.Blur()
	m.userInput.Reset()
	m.passInput.Reset()
	m.userInput.Focus()
	m.st = m.provider.Snapshot()
	m.refreshViewport()
}

// layout resizes the widgets to the current terminal size.
func (m *Model) layout() {
	sidebar := m.sidebarWidth()
	mainWidth := m.width - sidebar
	if mainWidth < 20 {
		mainWidth = 20
	}
	// Header, input border, input line, and status bar take four rows.
	bodyHeight := m.height - 4
	if bodyHeight < 3 {
		bodyHeight = 3
	}

	if !m.ready {
		m.viewport = viewport.New(mainWidth, bodyHeight)
		m.ready = true
	} else {
		m.viewport.Width = mainWidth
		m.viewport.Height = bodyHeight
	}
	m.input.Width = mainWidth - 4

	if r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(mainWidth-4),
	); err == nil {
		m.renderer = r
	}
}

func loginErrorText(err error) string {
	if errors.Is(err, chat.ErrStaleSession) {
		return "Your session expired. Log in again."
	}
	return err.Error()
}
