// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jeranaias/telly-tui/internal/chat"
	"github.com/jeranaias/telly-tui/internal/model"
	"github.com/jeranaias/telly-tui/internal/ui/styles"
)

func TestDefaultKeyMapHelp(t *testing.T) {
	keys := DefaultKeyMap()

	if len(keys.ShortHelp()) == 0 {
		t.Fatal("short help must list at least one binding")
	}
	for _, group := range keys.FullHelp() {
		for _, binding := range group {
			help := binding.Help()
			if help.Key == "" || help.Desc == "" {
				t.Errorf("binding %v missing help text", binding.Keys())
			}
		}
	}
}

func TestLoginErrorText(t *testing.T) {
	stale := fmt.Errorf("%w: server said no", chat.ErrStaleSession)
	if got := loginErrorText(stale); !strings.Contains(got, "expired") {
		t.Errorf("stale session text = %q, want mention of expiry", got)
	}
	plain := errors.New("connection refused")
	if got := loginErrorText(plain); got != "connection refused" {
		t.Errorf("plain error text = %q", got)
	}
}

func TestRenderFeedbackMarkers(t *testing.T) {
	m := Model{theme: styles.NewTheme("dark")}

	tests := []struct {
		name string
		fb   model.Feedback
	}{
		{"none", model.FeedbackNone},
		{"positive", model.FeedbackPositive},
		{"negative", model.FeedbackNegative},
	}
	for _, tt := range tests {
		out := m.renderFeedback(tt.fb)
		if !strings.Contains(out, "[+1]") || !strings.Contains(out, "[-1]") {
			t.Errorf("%s: markers missing from %q", tt.name, out)
		}
	}
}

func TestSidebarWidthHiddenWhenNarrow(t *testing.T) {
	theme := styles.NewTheme("dark")
	m := Model{theme: theme}

	theme.SetSize(50, 40)
	if got := m.sidebarWidth(); got != 0 {
		t.Errorf("narrow layout sidebar width = %d, want 0", got)
	}
	theme.SetSize(120, 40)
	if got := m.sidebarWidth(); got == 0 {
		t.Error("wide layout must show the sidebar")
	}
}
