// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/jeranaias/telly-tui/internal/util"
)

// =============================================================================
// FEEDBACK
// =============================================================================

// Feedback is the tri-state opinion attached to a settled answer.
// The zero value means no feedback has been given.
type Feedback string

// Feedback values. The non-empty values match the backend wire strings.
const (
	FeedbackNone     Feedback = ""
	FeedbackPositive Feedback = "positive"
	FeedbackNegative Feedback = "negative"
)

// ToggleFeedback resolves a feedback click against the current value:
// clicking the already-active value clears it, anything else selects the
// clicked value. The registry and the reducer both use this single helper so
// the remote call and the local mutation can never drift apart.
func ToggleFeedback(current, clicked Feedback) Feedback {
	if current == clicked {
		return FeedbackNone
	}
	return clicked
}

// =============================================================================
// EXCHANGE
// =============================================================================

// Question is the user half of an exchange.
type Question struct {
	Content string `json:"content"`
}

// Answer is the service half of an exchange. ID is assigned by the backend
// only when the answer stream completes; while tokens are still arriving the
// ID is empty and the exchange counts as pending.
type Answer struct {
	ID       string   `json:"id"`
	Content  string   `json:"content"`
	Feedback Feedback `json:"feedback,omitempty"`
	Sources  []string `json:"sources"`
}

// Exchange pairs one question with its answer.
type Exchange struct {
	Question Question `json:"question"`
	Answer   Answer   `json:"answer"`
}

// Pending reports whether the exchange is still waiting for its answer to be
// finalized by the backend.
func (e Exchange) Pending() bool {
	return e.Answer.ID == ""
}

// NewPendingExchange builds the exchange appended when a question is
// submitted: an empty answer with no ID and no sources yet.
func NewPendingExchange(question string) Exchange {
	return Exchange{
		Question: Question{Content: question},
		Answer:   Answer{Sources: []string{}},
	}
}

// =============================================================================
// SESSION
// =============================================================================

// Session holds a complete named conversation with history and metadata.
// Exchanges are strictly chronological and append-only; only an answer's
// feedback field is ever mutated after the fact.
type Session struct {
	ID             string     `json:"session_id"`
	Name           string     `json:"session_name"`
	UserID         string     `json:"user_id"`
	CreatedAt      time.Time  `json:"created_at"`
	LastModifiedAt time.Time  `json:"last_modified_at"`
	Exchanges      []Exchange `json:"chats"`
}

// NewSession creates an empty session owned by userID. The caller supplies
// the id (generated locally, confirmed remotely before the session is added
// to the collection).
func NewSession(id, name, userID string) *Session {
	now := time.Now()
	return &Session{
		ID:             id,
		Name:           name,
		UserID:         userID,
		CreatedAt:      now,
		LastModifiedAt: now,
		Exchanges:      []Exchange{},
	}
}

// HasPending reports whether the session currently holds a pending exchange.
func (s *Session) HasPending() bool {
	for _, e := range s.Exchanges {
		if e.Pending() {
			return true
		}
	}
	return false
}

// AnswerByID returns the answer with the given id, or nil if no exchange in
// the session carries it. The empty id matches the pending exchange.
func (s *Session) AnswerByID(answerID string) *Answer {
	for i := range s.Exchanges {
		if s.Exchanges[i].Answer.ID == answerID {
			return &s.Exchanges[i].Answer
		}
	}
	return nil
}

// Preview returns a single-line summary of the most recent question, for the
// session sidebar. Empty sessions preview as the empty string.
func (s *Session) Preview(maxRunes int) string {
	if len(s.Exchanges) == 0 {
		return ""
	}
	last := s.Exchanges[len(s.Exchanges)-1]
	return util.PreviewLine(last.Question.Content, maxRunes)
}

// Clone returns a deep copy of the session. The reducer copies sessions
// before mutating them so older snapshots stay valid for observers.
func (s *Session) Clone() *Session {
	cp := *s
	cp.Exchanges = make([]Exchange, len(s.Exchanges))
	copy(cp.Exchanges, s.Exchanges)
	for i := range cp.Exchanges {
		src := s.Exchanges[i].Answer.Sources
		if src != nil {
			cp.Exchanges[i].Answer.Sources = append([]string(nil), src...)
		}
	}
	return &cp
}
