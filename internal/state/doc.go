// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package state holds the single source of truth for the session collection
// and the pure transition function that is the only way to mutate it.
//
// Every mutation in the application, from session CRUD to streamed tokens
// and feedback toggles, is expressed as one of a closed set of Event variants
// and applied through Apply. Apply is copy-on-write: it never modifies the
// input state, so a snapshot handed to an observer stays valid forever and
// no observer can see a half-applied mutation.
package state
