// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend implements the client for the telly answering service.
//
// All calls authenticate with the caller's basic credential pair, supplied
// through a CredentialSource so the client never owns secrets. Ordinary
// operations (login, logout, load, session CRUD, feedback) are single-attempt
// request/response calls: failures are surfaced to the caller, never retried.
// Ask opens a long-lived server-push channel and delivers the streamed answer
// as discrete AskEvent values.
package backend
