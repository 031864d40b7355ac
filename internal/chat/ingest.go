// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"log"

	"github.com/jeranaias/telly-tui/internal/backend"
	"github.com/jeranaias/telly-tui/internal/model"
	"github.com/jeranaias/telly-tui/internal/state"
)

// =============================================================================
// INGEST PHASES
// =============================================================================

// ingestPhase tracks where an answer stream is in its lifecycle. Exactly one
// transition path exists: submitted to streaming on the first token, then to
// settled on a clean close or errored on any failure. Both terminal phases
// clear the in-flight gate.
type ingestPhase int

const (
	ingestSubmitted ingestPhase = iota
	ingestStreaming
	ingestSettled
	ingestErrored
)

func (p ingestPhase) String() string {
	switch p {
	case ingestSubmitted:
		return "submitted"
	case ingestStreaming:
		return "streaming"
	case ingestSettled:
		return "settled"
	case ingestErrored:
		return "errored"
	}
	return "unknown"
}

// =============================================================================
// INGESTOR
// =============================================================================

// ingest opens the answer stream for one submitted question and drives it to
// a terminal phase. It runs on its own goroutine; every state change goes
// through applyIfCurrent so a Reset mid-stream turns the remainder of the
// stream into no-ops.
func (p *Provider) ingest(ctx context.Context, gen uint64, sessionID, question string) {
	events, err := p.client.Ask(ctx, question, sessionID)
	if err != nil {
		log.Printf("Stream open failed for session %s: %v", sessionID, err)
		p.fail(gen, sessionID)
		return
	}
	p.consume(gen, sessionID, events)
}

// consume drives an open event channel to a terminal phase.
func (p *Provider) consume(gen uint64, sessionID string, events <-chan backend.AskEvent) {
	phase := ingestSubmitted
	var (
		answerID string
		content  string
		sources  []string
	)

	for ev := range events {
		switch {
		case ev.Err != nil:
			log.Printf("Stream failed for session %s in phase %s: %v", sessionID, phase, ev.Err)
			p.fail(gen, sessionID)
			return

		case ev.IsSources():
			// Last write wins when the backend sends more than one list.
			sources = ev.Docs

		default:
			if phase == ingestSubmitted {
				phase = ingestStreaming
			}
			content += ev.Text
			if ev.ID != "" {
				answerID = ev.ID
			}
			partial := content
			if !p.applyIfCurrent(gen, state.SetTyping{SessionID: sessionID, Text: &partial}) {
				// Abandoned by a Reset. Drain the remainder so the producer
				// can reach its close and release the transport; its sends
				// would otherwise block once the channel buffer fills.
				go func() {
					for range events {
					}
				}()
				return
			}
		}
	}

	// Clean close. An empty stream still settles: the pending exchange
	// becomes a degraded answer with no id rather than staying pending
	// forever.
	phase = ingestSettled
	if sources == nil {
		sources = []string{}
	}
	answer := model.Answer{ID: answerID, Content: content, Sources: sources}

	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return
	}
	p.apply(state.UpdateAnswer{SessionID: sessionID, AnswerID: "", Answer: answer})
	p.apply(state.SetInFlight{SessionID: sessionID, Value: false})
	p.apply(state.SetTyping{SessionID: sessionID, Text: nil})
	p.mu.Unlock()

	log.Printf("Stream %s for session %s (answer %s, %d bytes)", phase, sessionID, answerID, len(content))
	p.persist()
}

// fail moves a stream to the errored phase: the failure text replaces the
// live typing area, the gate clears, and the pending exchange stays visible
// so the user can see what went unanswered.
func (p *Provider) fail(gen uint64, sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return
	}
	msg := FailureMessage
	p.apply(state.SetTyping{SessionID: sessionID, Text: &msg})
	p.apply(state.SetInFlight{SessionID: sessionID, Value: false})
}
