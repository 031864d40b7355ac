// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/telly-tui/internal/chat"
	"github.com/jeranaias/telly-tui/internal/model"
	"github.com/jeranaias/telly-tui/internal/ui/styles"
	"github.com/jeranaias/telly-tui/internal/util"
)

const sidebarColumns = 28

// sidebarWidth returns the sidebar width for the current layout, 0 when the
// sidebar is hidden.
func (m Model) sidebarWidth() int {
	if m.theme.GetLayoutMode() == styles.LayoutNarrow {
		return 0
	}
	return sidebarColumns
}

// =============================================================================
// TOP-LEVEL VIEW
// =============================================================================

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return "loading..."
	}
	if m.mode == modeLogin {
		return m.loginView()
	}
	return m.chatView()
}

// =============================================================================
// LOGIN SCREEN
// =============================================================================

func (m Model) loginView() string {
	var b strings.Builder
	b.WriteString(m.theme.LoginTitle.Render("telly"))
	b.WriteString("\n\n")
	b.WriteString(m.theme.LoginLabel.Render("User"))
	b.WriteString("\n")
	b.WriteString(m.userInput.View())
	b.WriteString("\n\n")
	b.WriteString(m.theme.LoginLabel.Render("Secret"))
	b.WriteString("\n")
	b.WriteString(m.passInput.View())
	if m.errText != "" {
		b.WriteString("\n\n")
		b.WriteString(m.theme.ErrorText.Render(m.errText))
	}
	if m.status != "" {
		b.WriteString("\n\n")
		b.WriteString(m.theme.LoginLabel.Render(m.status))
	}
	b.WriteString("\n\n")
	b.WriteString(m.theme.ShortcutDesc.Render("Tab to switch fields, Enter to sign in"))

	box := m.theme.LoginBox.Render(b.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// =============================================================================
// CHAT SCREEN
// =============================================================================

func (m Model) chatView() string {
	header := m.headerView()
	body := m.viewport.View()
	if sw := m.sidebarWidth(); sw > 0 {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(sw), body)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		body,
		m.inputView(),
		m.statusView(),
	)
}

func (m Model) headerView() string {
	title := "telly"
	if sess := m.currentSession(); sess != nil {
		title = "telly / " + sess.Name
	}
	return m.theme.Header.Width(m.width).Render(runewidth.Truncate(title, m.width-4, "..."))
}

func (m Model) sidebarView(width int) string {
	inner := width - 2
	var b strings.Builder
	b.WriteString(m.theme.SidebarTitle.Render("Sessions"))
	b.WriteString("\n")

	cur := m.st.Current
	for _, sess := range m.st.Sessions {
		name := runewidth.Truncate(sess.Name, inner-2, "...")
		if cur != nil && sess.ID == cur.ID {
			b.WriteString(m.theme.SessionItemSelected.Render(name))
		} else {
			b.WriteString(m.theme.SessionItem.Render(name))
		}
		b.WriteString("\n")
		if preview := sess.Preview(inner - 2); preview != "" {
			b.WriteString(m.theme.SessionPreview.Render(preview))
			b.WriteString("\n")
		}
	}
	if len(m.st.Sessions) == 0 {
		b.WriteString(m.theme.SessionPreview.Render("no sessions yet"))
		b.WriteString("\n")
	}

	return m.theme.Sidebar.Width(width).Height(m.viewport.Height).Render(b.String())
}

func (m Model) inputView() string {
	switch m.mode {
	case modeNaming:
		return m.theme.InputContainer.Width(m.width).Render(
			m.theme.InputPrompt.Render("New session: ") + m.nameInput.View())
	case modeRenaming:
		return m.theme.InputContainer.Width(m.width).Render(
			m.theme.InputPrompt.Render("Rename to: ") + m.nameInput.View())
	case modeConfirmDelete:
		name := ""
		if sess := m.currentSession(); sess != nil {
			name = sess.Name
		}
		return m.theme.InputContainer.Width(m.width).Render(
			m.theme.Warning.Render(fmt.Sprintf("Delete %q? (y/n)", name)))
	}
	return m.theme.InputContainer.Width(m.width).Render(m.input.View())
}

func (m Model) statusView() string {
	if m.warning != "" {
		return m.theme.StatusBar.Width(m.width).Render(m.theme.Warning.Render(m.warning))
	}
	if m.errText != "" {
		return m.theme.StatusBar.Width(m.width).Render(m.theme.ErrorText.Render(
			runewidth.Truncate(m.errText, m.width-2, "...")))
	}

	var parts []string
	for _, binding := range m.keys.ShortHelp() {
		help := binding.Help()
		parts = append(parts,
			m.theme.ShortcutKey.Render(help.Key)+" "+m.theme.ShortcutDesc.Render(help.Desc))
	}
	return m.theme.StatusBar.Width(m.width).Render(strings.Join(parts, "  "))
}

// =============================================================================
// CONVERSATION RENDERING
// =============================================================================

// refreshViewport re-renders the current conversation into the viewport and
// keeps the view pinned to the bottom.
func (m *Model) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.conversationContent())
	m.viewport.GotoBottom()
}

func (m Model) conversationContent() string {
	sess := m.currentSession()
	if sess == nil {
		return m.theme.Typing.Render("Create a session with C-t to start asking questions.")
	}

	width := m.viewport.Width - 4
	if width < 10 {
		width = 10
	}

	var b strings.Builder
	for _, ex := range sess.Exchanges {
		b.WriteString(m.theme.Question.Width(width).Render(ex.Question.Content))
		b.WriteString("\n")
		if ex.Pending() {
			continue
		}
		b.WriteString(m.theme.Answer.Width(width).Render(m.renderMarkdown(ex.Answer.Content)))
		b.WriteString("\n")
		b.WriteString(m.renderSources(ex.Answer.Sources))
		b.WriteString(m.renderFeedback(ex.Answer.Feedback))
	}

	if text, ok := m.st.TypingText(sess.ID); ok {
		if text == chat.TypingPlaceholder {
			b.WriteString("\n")
			b.WriteString(m.spin.View())
			b.WriteString(" ")
			b.WriteString(m.theme.Typing.Render(text))
		} else if text == chat.FailureMessage {
			b.WriteString("\n")
			b.WriteString(m.theme.ErrorText.Render(text))
		} else {
			// A partial answer streaming in.
			b.WriteString(m.theme.Answer.Width(width).Render(text))
		}
		b.WriteString("\n")
	}

	return b.String()
}

// renderMarkdown renders answer markdown through glamour, falling back to the
// raw text when rendering fails.
func (m Model) renderMarkdown(content string) string {
	if m.renderer == nil || content == "" {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimRight(out, "\n")
}

func (m Model) renderSources(sources []string) string {
	if len(sources) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("  ")
	b.WriteString(m.theme.SourceHeader.Render("Sources"))
	b.WriteString("\n")
	for _, src := range sources {
		b.WriteString("  - ")
		b.WriteString(m.theme.SourceLink.Render(util.TruncateRunes(src, 120)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderFeedback(fb model.Feedback) string {
	up, down := m.theme.FeedbackOff, m.theme.FeedbackOff
	switch fb {
	case model.FeedbackPositive:
		up = m.theme.FeedbackOn
	case model.FeedbackNegative:
		down = m.theme.FeedbackOn
	}
	return "  " + up.Render("[+1]") + " " + down.Render("[-1]") + "\n"
}
