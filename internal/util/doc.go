// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small shared helpers for the telly TUI:
// crash-safe file writes used by the cache and credential stores, and
// rune-aware string truncation used by the sidebar and previews.
package util
