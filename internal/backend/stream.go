// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// =============================================================================
// ASK EVENTS
// =============================================================================

// AskEvent is one message from the answer push channel. Exactly one of the
// three shapes is populated:
//
//   - sources: Docs is non-nil (replaces any prior source list)
//   - token: ID carries the eventual answer id, Text the fragment to append
//   - error: Err is non-nil and the channel closes afterwards
//
// A normal close of the channel carries no event; finalization uses only
// previously accumulated state.
type AskEvent struct {
	Docs []string
	ID   string
	Text string
	Err  error
}

// IsSources reports whether the event replaces the accumulated source list.
func (e AskEvent) IsSources() bool {
	return e.Docs != nil
}

// askPayload is the wire shape of a push-channel message: either
// {"docs": [...]} or {"id": N, "response": "fragment"}.
type askPayload struct {
	Docs     []string    `json:"docs"`
	ID       json.Number `json:"id"`
	Response string      `json:"response"`
}

// =============================================================================
// SSE READER
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadData reads the next event's data payload from the stream.
// Returns io.EOF when the stream ends. Non-data fields (event:, id:, retry:,
// comments) are ignored; multi-line data is joined with newlines.
func (s *SSEReader) ReadData() ([]byte, error) {
	var dataLines [][]byte

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				// Flush a trailing event that was not newline-terminated.
				if len(dataLines) > 0 {
					return bytes.Join(dataLines, []byte("\n")), nil
				}
				return nil, io.EOF
			}
			return nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line signals end of event.
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		if bytes.HasPrefix(line, []byte("data:")) {
			dataLines = append(dataLines, bytes.TrimSpace(line[5:]))
		}
	}
}

// =============================================================================
// ASK CHANNEL
// =============================================================================

// Ask submits a question on a session and opens the answer push channel.
//
// A failure to open the channel (transport error or non-success status) is
// returned directly and nothing is streamed. On success the returned channel
// delivers sources and token events in exactly the order the backend sends
// them, then closes; a mid-stream failure is delivered as a final event with
// Err set. Exactly one channel should be open per session at a time; the
// caller's in-flight gate enforces that.
func (c *Client) Ask(ctx context.Context, question, sessionID string) (<-chan AskEvent, error) {
	user, secret, ok := c.creds.Credentials()
	if !ok {
		return nil, ErrNotAuthenticated
	}

	q := url.Values{}
	q.Set("question", question)
	q.Set("session_id", sessionID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/ask?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(user, secret)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		resp.Body.Close()
		return nil, handleErrorResponse(resp.StatusCode, body)
	}

	events := make(chan AskEvent, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		reader := NewSSEReader(resp.Body)
		for {
			data, err := reader.ReadData()
			if err != nil {
				if err == io.EOF {
					return // normal close
				}
				if ctx.Err() != nil {
					err = ctx.Err()
				}
				emit(ctx, events, AskEvent{Err: fmt.Errorf("stream error: %w", err)})
				return
			}

			var payload askPayload
			if err := json.Unmarshal(data, &payload); err != nil {
				// Skip malformed messages rather than killing the stream.
				continue
			}

			if payload.Docs != nil {
				emit(ctx, events, AskEvent{Docs: payload.Docs})
				continue
			}
			if payload.Response == "" {
				// An empty fragment carries nothing to append and its id
				// must not be adopted either.
				continue
			}
			emit(ctx, events, AskEvent{ID: payload.ID.String(), Text: payload.Response})
		}
	}()

	return events, nil
}

// emit delivers an event unless the context has been torn down.
func emit(ctx context.Context, events chan<- AskEvent, ev AskEvent) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}
