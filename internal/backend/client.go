// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jeranaias/telly-tui/internal/model"
)

// Configuration constants for the telly backend API.
const (
	// DefaultTimeout is the default timeout for ordinary API requests.
	// Streaming requests are exempt; they are bounded by their context.
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps response bodies to prevent memory exhaustion.
	MaxResponseSize = 4 * 1024 * 1024 // 4MB
)

// Error variables for common backend failures.
var (
	// ErrNotAuthenticated indicates no credential pair is available.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrAuthFailed indicates the backend rejected the credential pair.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrBadMessageID indicates a feedback target id that is not a backend
	// message identifier.
	ErrBadMessageID = errors.New("invalid message id")
)

// APIError represents a non-success response from the backend.
type APIError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (HTTP %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("backend error (HTTP %d)", e.Status)
}

// IsStale reports whether err is the client-error class response that marks
// the local view of the remote session as stale. Hydration treats it as a
// signal to clear all local state and force re-authentication.
func IsStale(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= 400 && apiErr.Status < 500
	}
	return false
}

// CredentialSource supplies the basic credential pair for outgoing calls.
// ok is false when no identity is present (logged out).
type CredentialSource interface {
	Credentials() (userID, secret string, ok bool)
}

// StaticCredentials is a fixed credential pair, mainly for tests.
type StaticCredentials struct {
	UserID string
	Secret string
}

// Credentials implements CredentialSource.
func (c StaticCredentials) Credentials() (string, string, bool) {
	return c.UserID, c.Secret, c.UserID != ""
}

// Client is a client for the telly backend.
type Client struct {
	baseURL    string
	creds      CredentialSource
	httpClient *http.Client

	// streamClient has no timeout; ask channels live as long as the answer
	// takes and are bounded by the request context instead.
	streamClient *http.Client
}

// NewClient creates a backend client against the given base URL.
func NewClient(baseURL string, creds CredentialSource) *Client {
	return &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		creds:        creds,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		streamClient: &http.Client{},
	}
}

// WithTimeout sets the timeout for ordinary (non-streaming) requests.
func (c *Client) WithTimeout(timeout time.Duration) *Client {
	c.httpClient.Timeout = timeout
	return c
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// REQUEST PLUMBING
// =============================================================================

// newRequest builds an authenticated request. Fails fast with
// ErrNotAuthenticated when no identity is present.
func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	user, secret, ok := c.creds.Credentials()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(user, secret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do performs a single attempt of an ordinary request and returns the body.
// No retry: failures are the caller's to surface.
func (c *Client) do(req *http.Request) ([]byte, error) {
	log.Printf("API Request: %s %s", req.Method, req.URL.Path)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	log.Printf("API Response: %d %s (%v)", resp.StatusCode, resp.Status, time.Since(start))

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

// readResponse reads a response body with a size limit.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) == MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// handleErrorResponse converts a non-success response into a Go error. The
// backend reports problems either as a bare JSON string or as a
// {"detail": ...} object.
func handleErrorResponse(statusCode int, body []byte) error {
	message := parseErrorMessage(body)

	if statusCode == http.StatusUnauthorized {
		if message != "" {
			return fmt.Errorf("%w: %s", ErrAuthFailed, message)
		}
		return ErrAuthFailed
	}

	return &APIError{Status: statusCode, Message: message}
}

func parseErrorMessage(body []byte) string {
	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail != "" {
		return detail.Detail
	}
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(body))
}

// =============================================================================
// AUTHENTICATION
// =============================================================================

// Login establishes the identity for subsequent calls.
func (c *Client) Login(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/login", nil)
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}

// Logout clears the remote session state for the current identity.
func (c *Client) Logout(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/logout", nil)
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// loadResponse mirrors the /load payload: the session list plus one history
// entry per session, aligned by index.
type loadResponse struct {
	Sessions  []*model.Session `json:"sessions"`
	Histories []struct {
		Messages []model.Exchange `json:"messages"`
	} `json:"histories"`
}

// Load fetches every session with its full message history.
func (c *Client) Load(ctx context.Context) ([]*model.Session, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/load", nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, err
	}

	var lr loadResponse
	if err := json.Unmarshal(body, &lr); err != nil {
		return nil, fmt.Errorf("failed to parse load response: %w", err)
	}

	for i, sess := range lr.Sessions {
		if i < len(lr.Histories) {
			sess.Exchanges = lr.Histories[i].Messages
		}
		if sess.Exchanges == nil {
			sess.Exchanges = []model.Exchange{}
		}
	}
	return lr.Sessions, nil
}

// CreateSession registers a locally generated session id under the given
// name.
func (c *Client) CreateSession(ctx context.Context, sessionID, name string) error {
	payload := struct {
		SessionName string `json:"session_name"`
	}{SessionName: name}

	req, err := c.newRequest(ctx, http.MethodPut, "/sessions/"+sessionID+"/create", payload)
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}

// DeleteSession removes a session and its history remotely.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/sessions/"+sessionID+"/remove", nil)
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}

// RenameSession updates a session's name remotely.
func (c *Client) RenameSession(ctx context.Context, sessionID, newName string) error {
	payload := struct {
		NewSessionName string `json:"new_session_name"`
	}{NewSessionName: newName}

	req, err := c.newRequest(ctx, http.MethodPost, "/sessions/"+sessionID+"/rename", payload)
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}

// =============================================================================
// FEEDBACK
// =============================================================================

// SendFeedback records feedback for a settled answer. The backend expects a
// numeric message id and null for "no feedback"; messageID is the decimal
// string the answer settled with.
func (c *Client) SendFeedback(ctx context.Context, sessionID, messageID string, feedback model.Feedback) error {
	id, err := strconv.Atoi(messageID)
	if err != nil || id <= 0 {
		return fmt.Errorf("%w: %q", ErrBadMessageID, messageID)
	}

	payload := struct {
		MessageID int     `json:"message_id"`
		SessionID string  `json:"session_id"`
		Feedback  *string `json:"feedback"`
	}{MessageID: id, SessionID: sessionID}

	if feedback != model.FeedbackNone {
		v := string(feedback)
		payload.Feedback = &v
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/feedback", payload)
	if err != nil {
		return err
	}
	_, err = c.do(req)
	return err
}
