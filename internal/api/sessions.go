// ABOUTME: Session endpoints: list, create, rename, delete, history,
// ABOUTME: title generation, and context compression.

package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/2389/helix-console/internal/conversation"
)

// ListSessions returns all sessions, most recently updated first.
func (c *Client) ListSessions(ctx context.Context) ([]conversation.Session, error) {
	var sessions []conversation.Session
	if err := c.doJSON(ctx, http.MethodGet, "/api/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// CreateSession creates a fresh session.
func (c *Client) CreateSession(ctx context.Context) (conversation.Session, error) {
	var session conversation.Session
	if err := c.doJSON(ctx, http.MethodPost, "/api/sessions", nil, &session); err != nil {
		return conversation.Session{}, err
	}
	return session, nil
}

// RenameSession sets a session's title.
func (c *Client) RenameSession(ctx context.Context, id, title string) error {
	body := map[string]string{"title": title}
	return c.doJSON(ctx, http.MethodPut, "/api/sessions/"+url.PathEscape(id), body, nil)
}

// DeleteSession removes a session and its messages.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, nil)
}

// History returns the raw stored records for a session, oldest first.
func (c *Client) History(ctx context.Context, id string) ([]conversation.HistoryRecord, error) {
	var records []conversation.HistoryRecord
	path := fmt.Sprintf("/api/sessions/%s/history", url.PathEscape(id))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// GenerateTitle asks the backend to derive a short title for a session and
// returns it.
func (c *Client) GenerateTitle(ctx context.Context, id string) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
		Title     string `json:"title"`
	}
	path := fmt.Sprintf("/api/sessions/%s/generate-title", url.PathEscape(id))
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &out); err != nil {
		return "", err
	}
	return out.Title, nil
}

// CompressSession archives the oldest half of a session's messages into a
// summary on the backend.
func (c *Client) CompressSession(ctx context.Context, id string) (conversation.CompressResult, error) {
	var result conversation.CompressResult
	path := fmt.Sprintf("/api/sessions/%s/compress", url.PathEscape(id))
	if err := c.doJSON(ctx, http.MethodPost, path, nil, &result); err != nil {
		return conversation.CompressResult{}, err
	}
	return result, nil
}
