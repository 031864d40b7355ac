// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jeranaias/telly-tui/internal/model"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, StaticCredentials{UserID: "alice", Secret: "s3cret"})
}

// =============================================================================
// AUTH AND ERROR MAPPING
// =============================================================================

func TestLoginSendsBasicAuth(t *testing.T) {
	var gotUser, gotPass string
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, gotPass, _ = r.BasicAuth()
		if r.Method != http.MethodPost || r.URL.Path != "/login" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.Login(context.Background()); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if gotUser != "alice" || gotPass != "s3cret" {
		t.Errorf("credentials not sent: %q/%q", gotUser, gotPass)
	}
}

func TestLoginAuthFailure(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"detail": "bad credentials"})
	}))

	err := client.Login(context.Background())
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("expected ErrAuthFailed, got %v", err)
	}
}

func TestNoCredentialsFailsFast(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := NewClient(srv.URL, StaticCredentials{})
	if err := client.Login(context.Background()); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
	if called {
		t.Error("no request should be made without credentials")
	}
}

func TestAPIErrorAndIsStale(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode("User alice has already been logged in elsewhere")
	}))

	_, err := client.Load(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Status != http.StatusBadRequest {
		t.Errorf("status = %d", apiErr.Status)
	}
	if apiErr.Message != "User alice has already been logged in elsewhere" {
		t.Errorf("message = %q", apiErr.Message)
	}
	if !IsStale(err) {
		t.Error("4xx load failure must classify as stale")
	}
}

func TestIsStaleIgnoresServerErrors(t *testing.T) {
	if IsStale(&APIError{Status: http.StatusInternalServerError}) {
		t.Error("5xx is not stale")
	}
	if IsStale(errors.New("network down")) {
		t.Error("transport errors are not stale")
	}
}

// =============================================================================
// LOAD
// =============================================================================

func TestLoadMergesHistories(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/load" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		io.WriteString(w, `{
			"sessions": [
				{"session_id": "s1", "session_name": "Trip", "user_id": "alice"},
				{"session_id": "s2", "session_name": "Work", "user_id": "alice"}
			],
			"histories": [
				{"messages": [
					{"question": {"content": "q1"},
					 "answer": {"id": "2", "content": "a1", "feedback": "positive", "sources": ["http://a"]}}
				]},
				{"messages": []}
			]
		}`)
	}))

	sessions, err := client.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].Name != "Trip" || len(sessions[0].Exchanges) != 1 {
		t.Errorf("first session not merged: %+v", sessions[0])
	}
	a := sessions[0].Exchanges[0].Answer
	if a.ID != "2" || a.Content != "a1" || a.Feedback != model.FeedbackPositive || len(a.Sources) != 1 {
		t.Errorf("answer round-trip mismatch: %+v", a)
	}
	if sessions[1].Exchanges == nil || len(sessions[1].Exchanges) != 0 {
		t.Errorf("empty history must yield an empty (non-nil) exchange list")
	}
}

// =============================================================================
// SESSION CRUD
// =============================================================================

func TestCreateSession(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/sessions/abc/create" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["session_name"] != "Trip" {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.CreateSession(context.Background(), "abc", "Trip"); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
}

func TestDeleteSession(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/sessions/abc/remove" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.DeleteSession(context.Background(), "abc"); err != nil {
		t.Fatalf("DeleteSession failed: %v", err)
	}
}

func TestRenameSession(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/sessions/abc/rename" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["new_session_name"] != "Better name" {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.RenameSession(context.Background(), "abc", "Better name"); err != nil {
		t.Fatalf("RenameSession failed: %v", err)
	}
}

// =============================================================================
// FEEDBACK
// =============================================================================

func TestSendFeedback(t *testing.T) {
	var got map[string]json.RawMessage
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/feedback" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))

	err := client.SendFeedback(context.Background(), "s1", "42", model.FeedbackPositive)
	if err != nil {
		t.Fatalf("SendFeedback failed: %v", err)
	}
	if string(got["message_id"]) != "42" {
		t.Errorf("message_id = %s", got["message_id"])
	}
	if string(got["feedback"]) != `"positive"` {
		t.Errorf("feedback = %s", got["feedback"])
	}
}

func TestSendFeedbackNoneIsNull(t *testing.T) {
	var got map[string]json.RawMessage
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))

	if err := client.SendFeedback(context.Background(), "s1", "42", model.FeedbackNone); err != nil {
		t.Fatalf("SendFeedback failed: %v", err)
	}
	if string(got["feedback"]) != "null" {
		t.Errorf("clearing feedback must send null, got %s", got["feedback"])
	}
}

func TestSendFeedbackRejectsBadMessageID(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should be made for an invalid id")
	}))

	err := client.SendFeedback(context.Background(), "s1", "", model.FeedbackPositive)
	if !errors.Is(err, ErrBadMessageID) {
		t.Fatalf("expected ErrBadMessageID, got %v", err)
	}
}
