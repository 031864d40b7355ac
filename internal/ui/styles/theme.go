// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application.
// It detects the terminal's color capability and adjusts accordingly.
type Theme struct {
	IsDark       bool
	ColorProfile termenv.Profile

	// Layout dimensions
	Width  int
	Height int

	// ==========================================================================
	// APPLICATION CONTAINER STYLES
	// ==========================================================================

	App    lipgloss.Style
	Header lipgloss.Style

	// ==========================================================================
	// SESSION SIDEBAR STYLES
	// ==========================================================================

	Sidebar             lipgloss.Style
	SidebarTitle        lipgloss.Style
	SessionItem         lipgloss.Style
	SessionItemSelected lipgloss.Style
	SessionPreview      lipgloss.Style

	// ==========================================================================
	// CONVERSATION STYLES
	// ==========================================================================

	Question     lipgloss.Style
	Answer       lipgloss.Style
	SourceLink   lipgloss.Style
	SourceHeader lipgloss.Style
	Typing       lipgloss.Style
	FeedbackOn   lipgloss.Style
	FeedbackOff  lipgloss.Style

	// ==========================================================================
	// INPUT AREA STYLES
	// ==========================================================================

	InputContainer lipgloss.Style
	InputPrompt    lipgloss.Style

	// ==========================================================================
	// STATUS BAR STYLES
	// ==========================================================================

	StatusBar    lipgloss.Style
	ShortcutKey  lipgloss.Style
	ShortcutDesc lipgloss.Style
	Warning      lipgloss.Style

	// ==========================================================================
	// LOGIN AND ERROR STYLES
	// ==========================================================================

	LoginBox   lipgloss.Style
	LoginTitle lipgloss.Style
	LoginLabel lipgloss.Style
	ErrorText  lipgloss.Style
}

// NewTheme creates a new theme with all styles configured. mode is one of
// "dark", "light", "auto"; auto asks the terminal.
func NewTheme(mode string) *Theme {
	isDark := termenv.HasDarkBackground()
	switch mode {
	case "dark":
		isDark = true
	case "light":
		isDark = false
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		IsDark:       isDark,
		ColorProfile: termenv.ColorProfile(),
	}
	t.initStyles()
	return t
}

// initStyles initializes all the lip gloss styles.
func (t *Theme) initStyles() {
	t.App = lipgloss.NewStyle()

	t.Header = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan).
		Background(SurfaceDim).
		Padding(0, 2)

	// Session sidebar
	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(Overlay).
		PaddingRight(1)

	t.SidebarTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Purple).
		Padding(0, 1)

	t.SessionItem = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Padding(0, 1)

	t.SessionItemSelected = lipgloss.NewStyle().
		Background(Purple).
		Foreground(TextInverse).
		Bold(true).
		Padding(0, 1)

	t.SessionPreview = lipgloss.NewStyle().
		Foreground(TextMuted).
		Padding(0, 1)

	// Conversation
	t.Question = lipgloss.NewStyle().
		Foreground(QuestionFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(QuestionBorder).
		PaddingLeft(1).
		MarginTop(1)

	t.Answer = lipgloss.NewStyle().
		Foreground(AnswerFg).
		BorderStyle(lipgloss.NormalBorder()).
		BorderLeft(true).
		BorderForeground(AnswerBorder).
		PaddingLeft(1)

	t.SourceHeader = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Bold(true)

	t.SourceLink = lipgloss.NewStyle().
		Foreground(LinkColor).
		Underline(true)

	t.Typing = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)

	t.FeedbackOn = lipgloss.NewStyle().
		Foreground(Emerald).
		Bold(true)

	t.FeedbackOff = lipgloss.NewStyle().
		Foreground(TextMuted)

	// Input area
	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderTop(true).
		BorderForeground(Overlay).
		Padding(0, 1)

	t.InputPrompt = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	// Status bar
	t.StatusBar = lipgloss.NewStyle().
		Background(SurfaceDim).
		Foreground(TextSecondary).
		Padding(0, 1)

	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)

	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Warning = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)

	// Login and errors
	t.LoginBox = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Purple).
		Padding(1, 4)

	t.LoginTitle = lipgloss.NewStyle().
		Bold(true).
		Foreground(Cyan)

	t.LoginLabel = lipgloss.NewStyle().
		Foreground(TextSecondary)

	t.ErrorText = lipgloss.NewStyle().
		Foreground(Rose).
		Bold(true)
}

// SetSize updates the theme dimensions for responsive layouts.
func (t *Theme) SetSize(width, height int) {
	t.Width = width
	t.Height = height
}

// LayoutMode represents the current responsive layout mode.
type LayoutMode int

const (
	LayoutNarrow LayoutMode = iota // < 60 columns
	LayoutMedium                   // 60-100 columns
	LayoutWide                     // > 100 columns
)

// GetLayoutMode returns the current layout mode based on width. The sidebar
// is hidden in narrow mode.
func (t *Theme) GetLayoutMode() LayoutMode {
	if t.Width < 60 {
		return LayoutNarrow
	}
	if t.Width < 100 {
		return LayoutMedium
	}
	return LayoutWide
}
