// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and
// question/answer exchanges.
//
// # Key Types
//
//   - Session: a named, persistent conversation thread owned by one user
//   - Exchange: one question paired with its (possibly still-forming) answer
//   - Answer: the streamed completion, its sources, and its feedback state
//   - Feedback: a tri-state opinion (none/positive/negative)
//
// JSON field names match the telly backend wire format, so the same structs
// serve the /load response, the local cache slot, and rendering.
package model
