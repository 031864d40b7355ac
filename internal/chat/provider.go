// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/telly-tui/internal/backend"
	"github.com/jeranaias/telly-tui/internal/cache"
	"github.com/jeranaias/telly-tui/internal/model"
	"github.com/jeranaias/telly-tui/internal/state"
)

// Error variables for registry operations.
var (
	// ErrHydrating indicates a mutation arrived while the initial load was
	// still running.
	ErrHydrating = errors.New("hydration in progress")

	// ErrNoIdentity indicates no credential pair is present.
	ErrNoIdentity = errors.New("no identity")

	// ErrUnknownSession indicates the target session id is not in the
	// collection.
	ErrUnknownSession = errors.New("unknown session")

	// ErrStaleSession indicates the backend rejected our view of the remote
	// session; all local state has been cleared and the user must
	// authenticate again.
	ErrStaleSession = errors.New("stale remote session")
)

// Fixed texts shown in place of a live answer.
const (
	// TypingPlaceholder is displayed from submission until the first token.
	TypingPlaceholder = "Just a moment, crafting a response ..."

	// FailureMessage is displayed when an answer stream fails.
	FailureMessage = "Backend encountered a problem. Try again later."
)

// =============================================================================
// PROVIDER
// =============================================================================

// Provider is the session registry. It owns the state, serializes every
// mutation, talks to the backend, and keeps the persistence slot current.
type Provider struct {
	mu        sync.Mutex
	st        state.State
	gen       uint64
	hydrating bool

	client *backend.Client
	store  *cache.Store
	creds  backend.CredentialSource

	// updates is a size-1 coalescing notification channel. Observers drain
	// it and take a fresh Snapshot; dropped notifications are fine because
	// the snapshot is always the latest state.
	updates chan struct{}
}

// NewProvider creates a registry over the given backend client, cache slot,
// and credential source.
func NewProvider(client *backend.Client, store *cache.Store, creds backend.CredentialSource) *Provider {
	return &Provider{
		st:      state.New(),
		client:  client,
		store:   store,
		creds:   creds,
		updates: make(chan struct{}, 1),
	}
}

// Snapshot returns the current state. The snapshot is immutable: reducer
// discipline guarantees no session it references will be modified after the
// fact.
func (p *Provider) Snapshot() state.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.st
}

// Updates returns the notification channel. One receive may cover any number
// of coalesced state changes.
func (p *Provider) Updates() <-chan struct{} {
	return p.updates
}

// apply reduces one event and notifies observers. Callers hold mu.
func (p *Provider) apply(ev state.Event) {
	p.st = state.Apply(p.st, ev)
	select {
	case p.updates <- struct{}{}:
	default:
	}
}

// applyIfCurrent applies an event only when the registry is still on the
// generation the caller started under. Stale deliveries from abandoned
// streams land here and are dropped.
func (p *Provider) applyIfCurrent(gen uint64, ev state.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return false
	}
	p.apply(ev)
	return true
}

// persist writes the current collection to the cache slot. Persistence
// failures are logged, not surfaced: the in-memory state is already correct
// and the next successful write repairs the slot.
func (p *Provider) persist() {
	p.mu.Lock()
	sessions := p.st.Sessions
	p.mu.Unlock()

	if err := p.store.Save(sessions); err != nil {
		log.Printf("Session cache write failed: %v", err)
	}
}

// =============================================================================
// HYDRATION AND RESET
// =============================================================================

// Hydrate populates the collection, preferring the local cache slot and
// falling back to a remote load. The first session becomes the selection.
// A client-error class rejection of the remote load means our remote session
// is stale: all local state is cleared and ErrStaleSession is returned.
func (p *Provider) Hydrate(ctx context.Context) error {
	p.mu.Lock()
	if p.hydrating {
		p.mu.Unlock()
		return ErrHydrating
	}
	p.hydrating = true
	gen := p.gen
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.hydrating = false
		p.mu.Unlock()
	}()

	sessions, ok, err := p.store.Load()
	if err != nil {
		log.Printf("Session cache read failed, falling back to remote: %v", err)
	}

	fromRemote := false
	if !ok {
		sessions, err = p.client.Load(ctx)
		if err != nil {
			if backend.IsStale(err) {
				p.Reset()
				return fmt.Errorf("%w: %v", ErrStaleSession, err)
			}
			return err
		}
		fromRemote = true
	}

	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return nil
	}
	p.apply(state.ReplaceSessions{Sessions: sessions})
	if len(sessions) > 0 {
		p.apply(state.ReplaceCurrent{SessionID: sessions[0].ID})
	} else {
		p.apply(state.ReplaceCurrent{})
	}
	p.mu.Unlock()

	if fromRemote {
		p.persist()
	}
	return nil
}

// Reset clears all local state: the collection, the selection, every
// transient flag, and the cache slot. The generation bump abandons any open
// answer streams; their remaining events are dropped on delivery.
func (p *Provider) Reset() {
	p.mu.Lock()
	p.gen++
	p.st = state.New()
	select {
	case p.updates <- struct{}{}:
	default:
	}
	p.mu.Unlock()

	if err := p.store.Clear(); err != nil {
		log.Printf("Session cache clear failed: %v", err)
	}
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

// CreateSession registers a new named session remotely, then prepends it to
// the collection and selects it. Remote-first: a rejected create leaves the
// collection untouched.
func (p *Provider) CreateSession(ctx context.Context, name string) (string, error) {
	p.mu.Lock()
	if p.hydrating {
		p.mu.Unlock()
		return "", ErrHydrating
	}
	p.mu.Unlock()

	userID, _, ok := p.creds.Credentials()
	if !ok {
		return "", ErrNoIdentity
	}

	id := uuid.NewString()
	if err := p.client.CreateSession(ctx, id, name); err != nil {
		return "", err
	}

	p.mu.Lock()
	next := make([]*model.Session, 0, len(p.st.Sessions)+1)
	next = append(next, model.NewSession(id, name, userID))
	next = append(next, p.st.Sessions...)
	p.apply(state.ReplaceSessions{Sessions: next})
	p.apply(state.ReplaceCurrent{SessionID: id})
	p.mu.Unlock()

	p.persist()
	return id, nil
}

// DeleteSession removes a session remotely and locally. If the deleted
// session was the selection, the first remaining session (if any) takes its
// place; otherwise the selection is untouched.
func (p *Provider) DeleteSession(ctx context.Context, sessionID string) error {
	p.mu.Lock()
	if p.st.Session(sessionID) == nil {
		p.mu.Unlock()
		return ErrUnknownSession
	}
	p.mu.Unlock()

	if err := p.client.DeleteSession(ctx, sessionID); err != nil {
		return err
	}

	p.mu.Lock()
	wasCurrent := p.st.Current != nil && p.st.Current.ID == sessionID
	next := make([]*model.Session, 0, len(p.st.Sessions))
	for _, sess := range p.st.Sessions {
		if sess.ID != sessionID {
			next = append(next, sess)
		}
	}
	p.apply(state.ReplaceSessions{Sessions: next})
	if wasCurrent {
		if len(next) > 0 {
			p.apply(state.ReplaceCurrent{SessionID: next[0].ID})
		} else {
			p.apply(state.ReplaceCurrent{})
		}
	}
	p.mu.Unlock()

	p.persist()
	return nil
}

// RenameSession updates a session's name remotely and locally. Renaming to
// the current name is a no-op and makes no request.
func (p *Provider) RenameSession(ctx context.Context, sessionID, newName string) error {
	p.mu.Lock()
	sess := p.st.Session(sessionID)
	if sess == nil {
		p.mu.Unlock()
		return ErrUnknownSession
	}
	if sess.Name == newName {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if err := p.client.RenameSession(ctx, sessionID, newName); err != nil {
		return err
	}

	p.mu.Lock()
	next := make([]*model.Session, len(p.st.Sessions))
	for i, s := range p.st.Sessions {
		if s.ID == sessionID {
			cp := s.Clone()
			cp.Name = newName
			cp.LastModifiedAt = time.Now()
			next[i] = cp
		} else {
			next[i] = s
		}
	}
	p.apply(state.ReplaceSessions{Sessions: next})
	p.mu.Unlock()

	p.persist()
	return nil
}

// SelectSession changes the selection. Purely local.
func (p *Provider) SelectSession(sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.st.Session(sessionID) == nil {
		return ErrUnknownSession
	}
	p.apply(state.ReplaceCurrent{SessionID: sessionID})
	return nil
}

// =============================================================================
// QUESTION SUBMISSION
// =============================================================================

// ProcessQuestion submits a question on a session and starts its answer
// stream. Submission is declined silently when the text is blank, the
// session is unknown, or the session already has a stream in flight; the
// in-flight flag is the sole gate.
func (p *Provider) ProcessQuestion(ctx context.Context, sessionID, text string) {
	question := strings.TrimSpace(text)
	if question == "" {
		return
	}

	p.mu.Lock()
	if p.st.Session(sessionID) == nil || p.st.IsInFlight(sessionID) {
		p.mu.Unlock()
		return
	}
	gen := p.gen
	p.apply(state.SetInFlight{SessionID: sessionID, Value: true})
	p.apply(state.AppendExchange{SessionID: sessionID, Exchange: model.NewPendingExchange(question)})
	placeholder := TypingPlaceholder
	p.apply(state.SetTyping{SessionID: sessionID, Text: &placeholder})
	p.mu.Unlock()

	go p.ingest(ctx, gen, sessionID, question)
}

// =============================================================================
// FEEDBACK
// =============================================================================

// SetFeedback toggles feedback on a settled answer: clicking the value it
// already carries clears it, clicking the other value selects it. The
// resolved value is sent remotely first; only an accepted write mutates local
// state.
func (p *Provider) SetFeedback(ctx context.Context, sessionID, answerID string, clicked model.Feedback) error {
	p.mu.Lock()
	sess := p.st.Session(sessionID)
	if sess == nil {
		p.mu.Unlock()
		return ErrUnknownSession
	}
	answer := sess.AnswerByID(answerID)
	if answer == nil || answerID == "" {
		p.mu.Unlock()
		return backend.ErrBadMessageID
	}
	resolved := model.ToggleFeedback(answer.Feedback, clicked)
	gen := p.gen
	p.mu.Unlock()

	if err := p.client.SendFeedback(ctx, sessionID, answerID, resolved); err != nil {
		return err
	}

	if p.applyIfCurrent(gen, state.ToggleFeedback{SessionID: sessionID, AnswerID: answerID, Value: clicked}) {
		p.persist()
	}
	return nil
}
