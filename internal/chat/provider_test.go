// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jeranaias/telly-tui/internal/backend"
	"github.com/jeranaias/telly-tui/internal/cache"
	"github.com/jeranaias/telly-tui/internal/model"
	"github.com/jeranaias/telly-tui/internal/state"
)

func newTestProvider(t *testing.T, handler http.Handler) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	creds := backend.StaticCredentials{UserID: "alice", Secret: "s"}
	store := cache.New(filepath.Join(t.TempDir(), "sessions.json"))
	return NewProvider(backend.NewClient(srv.URL, creds), store, creds)
}

func noRequests(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
	})
}

// =============================================================================
// HYDRATION
// =============================================================================

func TestHydratePrefersCache(t *testing.T) {
	p := newTestProvider(t, noRequests(t))
	if err := p.store.Save([]*model.Session{
		model.NewSession("s1", "Trip", "alice"),
		model.NewSession("s2", "Work", "alice"),
	}); err != nil {
		t.Fatal(err)
	}

	if err := p.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}

	st := p.Snapshot()
	if len(st.Sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(st.Sessions))
	}
	if st.Current == nil || st.Current.ID != "s1" {
		t.Errorf("first session must become the selection: %+v", st.Current)
	}
}

func TestHydrateFallsBackToRemote(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/load" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		io.WriteString(w, `{
			"sessions": [{"session_id": "s1", "session_name": "Trip", "user_id": "alice"}],
			"histories": [{"messages": []}]
		}`)
	}))

	if err := p.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}

	st := p.Snapshot()
	if len(st.Sessions) != 1 || st.Current == nil || st.Current.ID != "s1" {
		t.Errorf("state after remote hydrate: %+v", st)
	}

	// A remote hydrate warms the cache slot.
	if _, ok, _ := p.store.Load(); !ok {
		t.Error("cache slot not written after remote hydrate")
	}
}

func TestHydrateStaleSessionResets(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode("User alice has already been logged in elsewhere")
	}))

	err := p.Hydrate(context.Background())
	if !errors.Is(err, ErrStaleSession) {
		t.Fatalf("expected ErrStaleSession, got %v", err)
	}
	if st := p.Snapshot(); len(st.Sessions) != 0 || st.Current != nil {
		t.Errorf("state must be cleared: %+v", st)
	}
}

func TestHydrateEmptyCollectionClearsSelection(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"sessions": [], "histories": []}`)
	}))

	if err := p.Hydrate(context.Background()); err != nil {
		t.Fatalf("Hydrate failed: %v", err)
	}
	if st := p.Snapshot(); st.Current != nil {
		t.Errorf("selection must be empty: %+v", st.Current)
	}
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

func TestCreateSessionPrependsAndSelects(t *testing.T) {
	var gotPath, gotName string
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		gotName = body["session_name"]
		w.WriteHeader(http.StatusOK)
	}))
	p.mu.Lock()
	p.apply(stateReplace(model.NewSession("old", "Old", "alice")))
	p.mu.Unlock()

	id, err := p.CreateSession(context.Background(), "Trip")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if id == "" {
		t.Fatal("empty session id")
	}
	if gotPath != "/sessions/"+id+"/create" || gotName != "Trip" {
		t.Errorf("request: path=%q name=%q", gotPath, gotName)
	}

	st := p.Snapshot()
	if len(st.Sessions) != 2 || st.Sessions[0].ID != id {
		t.Errorf("new session must be first: %+v", st.Sessions)
	}
	if st.Current == nil || st.Current.ID != id {
		t.Error("new session must be selected")
	}
	if st.Sessions[0].UserID != "alice" {
		t.Errorf("owner = %q", st.Sessions[0].UserID)
	}
	if _, ok, _ := p.store.Load(); !ok {
		t.Error("create not persisted")
	}
}

func TestCreateSessionRemoteFailureLeavesState(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	if _, err := p.CreateSession(context.Background(), "Trip"); err == nil {
		t.Fatal("expected error")
	}
	if st := p.Snapshot(); len(st.Sessions) != 0 {
		t.Errorf("rejected create mutated state: %+v", st.Sessions)
	}
}

func TestDeleteSessionReselectsOnlyWhenCurrent(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	p.mu.Lock()
	p.apply(stateReplace(
		model.NewSession("s1", "One", "alice"),
		model.NewSession("s2", "Two", "alice"),
		model.NewSession("s3", "Three", "alice"),
	))
	p.apply(stateSelect("s2"))
	p.mu.Unlock()

	// Deleting a non-selected session leaves the selection alone.
	if err := p.DeleteSession(context.Background(), "s3"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if st := p.Snapshot(); st.Current == nil || st.Current.ID != "s2" {
		t.Errorf("selection moved: %+v", st.Current)
	}

	// Deleting the selected session promotes the first remaining one.
	if err := p.DeleteSession(context.Background(), "s2"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	st := p.Snapshot()
	if len(st.Sessions) != 1 || st.Current == nil || st.Current.ID != "s1" {
		t.Errorf("state after delete: sessions=%+v current=%+v", st.Sessions, st.Current)
	}

	// Deleting the last session empties the selection.
	if err := p.DeleteSession(context.Background(), "s1"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
	if st := p.Snapshot(); st.Current != nil {
		t.Errorf("selection must be empty: %+v", st.Current)
	}
}

func TestDeleteUnknownSession(t *testing.T) {
	p := newTestProvider(t, noRequests(t))
	if err := p.DeleteSession(context.Background(), "nope"); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
}

func TestRenameSession(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	p.mu.Lock()
	p.apply(stateReplace(model.NewSession("s1", "Old name", "alice")))
	p.apply(stateSelect("s1"))
	p.mu.Unlock()

	if err := p.RenameSession(context.Background(), "s1", "New name"); err != nil {
		t.Fatalf("RenameSession failed: %v", err)
	}

	st := p.Snapshot()
	if st.Sessions[0].Name != "New name" {
		t.Errorf("name = %q", st.Sessions[0].Name)
	}
	// The selection follows the renamed element.
	if st.Current != st.Sessions[0] {
		t.Error("selection must alias the renamed collection element")
	}
}

func TestRenameToSameNameMakesNoRequest(t *testing.T) {
	p := newTestProvider(t, noRequests(t))
	p.mu.Lock()
	p.apply(stateReplace(model.NewSession("s1", "Same", "alice")))
	p.mu.Unlock()

	if err := p.RenameSession(context.Background(), "s1", "Same"); err != nil {
		t.Fatalf("no-op rename failed: %v", err)
	}
}

func TestSelectSession(t *testing.T) {
	p := newTestProvider(t, noRequests(t))
	p.mu.Lock()
	p.apply(stateReplace(
		model.NewSession("s1", "One", "alice"),
		model.NewSession("s2", "Two", "alice"),
	))
	p.mu.Unlock()

	if err := p.SelectSession("s2"); err != nil {
		t.Fatalf("SelectSession failed: %v", err)
	}
	if st := p.Snapshot(); st.Current == nil || st.Current.ID != "s2" {
		t.Errorf("current = %+v", st.Current)
	}
	if err := p.SelectSession("nope"); !errors.Is(err, ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
}

// =============================================================================
// QUESTION SUBMISSION AND STREAMING
// =============================================================================

func TestProcessQuestionFullFlow(t *testing.T) {
	var (
		mu       sync.Mutex
		feedback []string
	)
	mux := http.NewServeMux()
	mux.HandleFunc("/ask", func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("question"); got != "capital of France?" {
			t.Errorf("question = %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"docs\": [\"http://wiki/paris\"]}\n\n")
		io.WriteString(w, "data: {\"id\": 2, \"response\": \"Par\"}\n\n")
		io.WriteString(w, "data: {\"id\": 2, \"response\": \"is\"}\n\n")
	})
	mux.HandleFunc("/feedback", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		feedback = append(feedback, string(body["feedback"]))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	p := newTestProvider(t, mux)
	p.mu.Lock()
	p.apply(stateReplace(model.NewSession("s1", "Trip", "alice")))
	p.apply(stateSelect("s1"))
	p.mu.Unlock()

	p.ProcessQuestion(context.Background(), "s1", "capital of France?")

	waitFor(t, func() bool {
		st := p.Snapshot()
		sess := st.Session("s1")
		return len(sess.Exchanges) == 1 && sess.Exchanges[0].Answer.ID == "2" && !st.IsInFlight("s1")
	})

	a := p.Snapshot().Session("s1").Exchanges[0].Answer
	if a.Content != "Paris" {
		t.Errorf("content = %q", a.Content)
	}
	if len(a.Sources) != 1 || a.Sources[0] != "http://wiki/paris" {
		t.Errorf("sources = %+v", a.Sources)
	}

	// First click selects, second identical click clears.
	if err := p.SetFeedback(context.Background(), "s1", "2", model.FeedbackPositive); err != nil {
		t.Fatalf("SetFeedback failed: %v", err)
	}
	if got := p.Snapshot().Session("s1").Exchanges[0].Answer.Feedback; got != model.FeedbackPositive {
		t.Errorf("feedback = %q", got)
	}
	if err := p.SetFeedback(context.Background(), "s1", "2", model.FeedbackPositive); err != nil {
		t.Fatalf("SetFeedback failed: %v", err)
	}
	if got := p.Snapshot().Session("s1").Exchanges[0].Answer.Feedback; got != model.FeedbackNone {
		t.Errorf("feedback after second click = %q", got)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(feedback) != 2 || feedback[0] != `"positive"` || feedback[1] != "null" {
		t.Errorf("feedback wire values = %v", feedback)
	}
}

func TestProcessQuestionInFlightGate(t *testing.T) {
	release := make(chan struct{})
	var (
		mu   sync.Mutex
		asks int
	)
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		asks++
		mu.Unlock()
		<-release
	}))
	p.mu.Lock()
	p.apply(stateReplace(model.NewSession("s1", "Trip", "alice")))
	p.mu.Unlock()

	p.ProcessQuestion(context.Background(), "s1", "first")
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return asks == 1
	})

	// Second submission on the same session is silently declined.
	p.ProcessQuestion(context.Background(), "s1", "second")

	st := p.Snapshot()
	if got := len(st.Session("s1").Exchanges); got != 1 {
		t.Errorf("expected 1 exchange, got %d", got)
	}
	mu.Lock()
	if asks != 1 {
		t.Errorf("asks = %d", asks)
	}
	mu.Unlock()
	close(release)
}

func TestProcessQuestionDeclinesBlankAndUnknown(t *testing.T) {
	p := newTestProvider(t, noRequests(t))
	p.mu.Lock()
	p.apply(stateReplace(model.NewSession("s1", "Trip", "alice")))
	p.mu.Unlock()

	p.ProcessQuestion(context.Background(), "s1", "   ")
	p.ProcessQuestion(context.Background(), "nope", "hello")

	st := p.Snapshot()
	if len(st.Session("s1").Exchanges) != 0 {
		t.Error("blank question must not append an exchange")
	}
	if st.IsInFlight("s1") || st.IsInFlight("nope") {
		t.Error("declined submissions must not set the gate")
	}
}

func TestResetAbandonsOpenStream(t *testing.T) {
	streaming := make(chan struct{})
	release := make(chan struct{})
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"id\": 2, \"response\": \"Par\"}\n\n")
		w.(http.Flusher).Flush()
		close(streaming)
		<-release
		io.WriteString(w, "data: {\"id\": 2, \"response\": \"is\"}\n\n")
	}))
	p.mu.Lock()
	p.apply(stateReplace(model.NewSession("s1", "Trip", "alice")))
	p.mu.Unlock()

	p.ProcessQuestion(context.Background(), "s1", "capital of France?")
	<-streaming
	p.Reset()
	close(release)

	// Whatever the abandoned stream still delivers must not resurrect state.
	waitFor(t, func() bool {
		st := p.Snapshot()
		return len(st.Sessions) == 0 && !st.IsInFlight("s1")
	})
	st := p.Snapshot()
	if _, ok := st.TypingText("s1"); ok {
		t.Error("abandoned stream left typing text behind")
	}
}

func TestProcessQuestionOpenFailure(t *testing.T) {
	p := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	p.mu.Lock()
	p.apply(stateReplace(model.NewSession("s1", "Trip", "alice")))
	p.mu.Unlock()

	p.ProcessQuestion(context.Background(), "s1", "hello")

	waitFor(t, func() bool {
		st := p.Snapshot()
		text, _ := st.TypingText("s1")
		return !st.IsInFlight("s1") && text == FailureMessage
	})
	if !p.Snapshot().Session("s1").Exchanges[0].Pending() {
		t.Error("pending exchange must survive an open failure")
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func stateReplace(sessions ...*model.Session) state.Event {
	return state.ReplaceSessions{Sessions: sessions}
}

func stateSelect(id string) state.Event {
	return state.ReplaceCurrent{SessionID: id}
}
