// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat is the session registry and streaming coordinator.
//
// The Provider owns the authoritative state.State and is the only writer to
// it. Every mutation flows through a single mutex-serialized dispatch of a
// state.Event, so observers always see a consistent snapshot and never a
// half-applied transition. Remote calls are made outside the lock and are
// single-attempt; a failed call leaves local state untouched.
//
// Question submission spawns one ingest goroutine per answer stream. The
// ingestor walks a small phase machine (submitted, streaming, then settled or
// errored) and reports progress back through dispatch. A generation counter
// guards against late deliveries: Reset bumps it, and any stream started
// under an older generation finds its dispatches silently dropped.
package chat
