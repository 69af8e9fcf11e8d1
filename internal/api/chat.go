// ABOUTME: Chat turn streaming over POST /api/chat.
// ABOUTME: Failures become in-band error events; never a Go error.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"

	"github.com/2389/helix-console/internal/stream"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Stream    bool   `json:"stream"`
}

// StreamTurn sends one user message and returns a decoder over the resulting
// event stream. Request failures and non-2xx responses are folded in as a
// single error event so the caller handles every outcome through the decoder.
//
// Each turn carries a fresh Idempotency-Key header; a backend that has seen
// the key suppresses the duplicate turn.
func (c *Client) StreamTurn(ctx context.Context, sessionID, message string) *stream.Decoder {
	payload, err := json.Marshal(chatRequest{Message: message, SessionID: sessionID, Stream: true})
	if err != nil {
		return stream.FailedDecoder(err.Error())
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat", bytes.NewReader(payload))
	if err != nil {
		return stream.FailedDecoder(err.Error())
	}
	req.Header.Set("Idempotency-Key", uuid.New().String())
	req.Header.Set("Accept", "text/event-stream")

	// The default client timeout would kill a long-lived stream; chat uses
	// a transport without one and relies on ctx for cancellation.
	resp, err := (&http.Client{Transport: c.http.Transport}).Do(req)
	if err != nil {
		c.logger.Warn("chat request failed", "session_id", sessionID, "error", err)
		return stream.FailedDecoder(err.Error())
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		err := httpError(resp)
		c.logger.Warn("chat request rejected", "session_id", sessionID, "status", resp.StatusCode)
		return stream.FailedDecoder(err.Error())
	}

	return stream.NewDecoder(&closingReader{rc: resp.Body})
}

// closingReader closes the underlying body as soon as the read side is done
// with it, so a fully consumed stream releases its connection. Close covers
// streams abandoned early, such as after a terminal error event.
type closingReader struct {
	rc     io.ReadCloser
	closed bool
}

func (r *closingReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if err != nil && !r.closed {
		r.closed = true
		r.rc.Close()
	}
	return n, err
}

func (r *closingReader) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.rc.Close()
}
