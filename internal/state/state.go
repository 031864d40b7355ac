// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package state

import (
	"time"

	"github.com/jeranaias/telly-tui/internal/model"
)

// =============================================================================
// STATE
// =============================================================================

// State is the authoritative collection of sessions plus the per-session
// transient flags. Sessions are ordered most-recently-created first.
//
// Current, when non-nil, points at an element of Sessions. InFlight marks
// sessions with an open answer stream; Typing carries the partial answer text
// shown while a stream is running (absence means no live text).
type State struct {
	Sessions []*model.Session
	Current  *model.Session
	InFlight map[string]bool
	Typing   map[string]string
}

// New returns an empty state with initialized maps.
func New() State {
	return State{
		Sessions: []*model.Session{},
		InFlight: map[string]bool{},
		Typing:   map[string]string{},
	}
}

// Session returns the session with the given id, or nil.
func (s State) Session(id string) *model.Session {
	for _, sess := range s.Sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

// IsInFlight reports whether the session has an open answer stream.
func (s State) IsInFlight(sessionID string) bool {
	return s.InFlight[sessionID]
}

// TypingText returns the live typing text for a session and whether one is
// set.
func (s State) TypingText(sessionID string) (string, bool) {
	t, ok := s.Typing[sessionID]
	return t, ok
}

// =============================================================================
// EVENTS
// =============================================================================

// Event is the closed set of state transitions. Each variant carries exactly
// the data its reduction needs; nothing else ever touches State.
type Event interface {
	isEvent()
}

// ReplaceSessions swaps the whole collection. Used by hydration, create,
// delete, and rename, which each build the successor collection explicitly.
type ReplaceSessions struct {
	Sessions []*model.Session
}

// ReplaceCurrent sets the selected session by id. An empty id clears the
// selection.
type ReplaceCurrent struct {
	SessionID string
}

// AppendExchange appends an exchange to one session's history.
type AppendExchange struct {
	SessionID string
	Exchange  model.Exchange
}

// UpdateAnswer replaces the answer identified by AnswerID inside the given
// session wholesale. The empty AnswerID addresses the newest pending
// exchange, which is how a finished stream settles its turn; a session can
// also hold older failed turns whose answers carry no id, and those are
// never the target.
type UpdateAnswer struct {
	SessionID string
	AnswerID  string
	Answer    model.Answer
}

// ToggleFeedback applies the feedback toggle rule to one answer: same value
// clears, different value selects. Content, sources, and id are untouched.
type ToggleFeedback struct {
	SessionID string
	AnswerID  string
	Value     model.Feedback
}

// SetInFlight sets or clears the streaming gate for a session.
type SetInFlight struct {
	SessionID string
	Value     bool
}

// SetTyping sets the live typing text for a session, or clears it when Text
// is nil.
type SetTyping struct {
	SessionID string
	Text      *string
}

func (ReplaceSessions) isEvent() {}
func (ReplaceCurrent) isEvent()  {}
func (AppendExchange) isEvent()  {}
func (UpdateAnswer) isEvent()    {}
func (ToggleFeedback) isEvent()  {}
func (SetInFlight) isEvent()     {}
func (SetTyping) isEvent()       {}

// =============================================================================
// REDUCER
// =============================================================================

// Apply reduces one event into a successor state. It is pure: the input
// state and the sessions it references are never modified, and no I/O
// happens here. Network calls and cache writes are the caller's job, after
// a successful application.
func Apply(s State, ev Event) State {
	switch e := ev.(type) {
	case ReplaceSessions:
		next := s
		next.Sessions = e.Sessions
		return deriveCurrent(next)

	case ReplaceCurrent:
		next := s
		if e.SessionID == "" {
			next.Current = nil
			return next
		}
		next.Current = next.Session(e.SessionID)
		return next

	case AppendExchange:
		next := s
		next.Sessions = mapSession(s.Sessions, e.SessionID, func(sess *model.Session) {
			sess.Exchanges = append(sess.Exchanges, e.Exchange)
			sess.LastModifiedAt = time.Now()
		})
		return deriveCurrent(next)

	case UpdateAnswer:
		next := s
		next.Sessions = mapSession(s.Sessions, e.SessionID, func(sess *model.Session) {
			// Newest match wins. Failed turns leave older exchanges with an
			// empty answer id in history, and a settling stream must never
			// land on one of those instead of the turn it belongs to.
			for i := len(sess.Exchanges) - 1; i >= 0; i-- {
				if sess.Exchanges[i].Answer.ID == e.AnswerID {
					sess.Exchanges[i].Answer = e.Answer
					sess.LastModifiedAt = time.Now()
					return
				}
			}
		})
		return deriveCurrent(next)

	case ToggleFeedback:
		next := s
		next.Sessions = mapSession(s.Sessions, e.SessionID, func(sess *model.Session) {
			for i := range sess.Exchanges {
				if sess.Exchanges[i].Answer.ID == e.AnswerID {
					current := sess.Exchanges[i].Answer.Feedback
					sess.Exchanges[i].Answer.Feedback = model.ToggleFeedback(current, e.Value)
					return
				}
			}
		})
		return deriveCurrent(next)

	case SetInFlight:
		next := s
		next.InFlight = cloneBoolMap(s.InFlight)
		if e.Value {
			next.InFlight[e.SessionID] = true
		} else {
			delete(next.InFlight, e.SessionID)
		}
		return next

	case SetTyping:
		next := s
		next.Typing = cloneStringMap(s.Typing)
		if e.Text == nil {
			delete(next.Typing, e.SessionID)
		} else {
			next.Typing[e.SessionID] = *e.Text
		}
		return next
	}

	return s
}

// deriveCurrent re-points the selection at the collection element carrying
// the previously selected id, keeping Current and Sessions consistent after
// any collection change. If the id is gone the selection is left untouched
// structurally; the registry decides the replacement via ReplaceCurrent.
func deriveCurrent(s State) State {
	if s.Current == nil {
		return s
	}
	if found := s.Session(s.Current.ID); found != nil {
		s.Current = found
	}
	return s
}

// mapSession returns a new slice where the session with the given id has
// been cloned and passed through fn. All other elements are shared with the
// input slice; the input slice itself is never modified.
func mapSession(sessions []*model.Session, id string, fn func(*model.Session)) []*model.Session {
	out := make([]*model.Session, len(sessions))
	for i, sess := range sessions {
		if sess.ID == id {
			cp := sess.Clone()
			fn(cp)
			out[i] = cp
		} else {
			out[i] = sess
		}
	}
	return out
}

func cloneBoolMap(m map[string]bool) map[string]bool {
	out := make(map[string]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
