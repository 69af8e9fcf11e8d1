// ABOUTME: Workspace file, skills, token-stats, and retrieval-mode endpoints.

package api

import (
	"context"
	"net/http"
	"net/url"
)

// Skill is one entry from the backend's skills directory.
type Skill struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// TokenStats is the approximate context-size breakdown for a session.
type TokenStats struct {
	SessionID     string `json:"session_id"`
	SystemTokens  int    `json:"system_tokens"`
	MessageTokens int    `json:"message_tokens"`
	TotalTokens   int    `json:"total_tokens"`
}

// ReadFile fetches a whitelisted workspace file's content.
func (c *Client) ReadFile(ctx context.Context, path string) (string, error) {
	var out struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	q := url.Values{"path": {path}}
	if err := c.doJSON(ctx, http.MethodGet, "/api/files?"+q.Encode(), nil, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// SaveFile writes a whitelisted workspace file.
func (c *Client) SaveFile(ctx context.Context, path, content string) error {
	body := map[string]string{"path": path, "content": content}
	return c.doJSON(ctx, http.MethodPost, "/api/files", body, nil)
}

// ListSkills returns the available skills.
func (c *Client) ListSkills(ctx context.Context) ([]Skill, error) {
	var skills []Skill
	if err := c.doJSON(ctx, http.MethodGet, "/api/skills", nil, &skills); err != nil {
		return nil, err
	}
	return skills, nil
}

// SessionTokens returns the token breakdown for a session.
func (c *Client) SessionTokens(ctx context.Context, id string) (TokenStats, error) {
	var stats TokenStats
	if err := c.doJSON(ctx, http.MethodGet, "/api/tokens/session/"+url.PathEscape(id), nil, &stats); err != nil {
		return TokenStats{}, err
	}
	return stats, nil
}

// RagMode reads the backend's retrieval-mode flag.
func (c *Client) RagMode(ctx context.Context) (bool, error) {
	var out struct {
		RagMode bool `json:"rag_mode"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/config/rag-mode", nil, &out); err != nil {
		return false, err
	}
	return out.RagMode, nil
}

// SetRagMode flips the backend's retrieval-mode flag.
func (c *Client) SetRagMode(ctx context.Context, enabled bool) error {
	body := map[string]bool{"enabled": enabled}
	return c.doJSON(ctx, http.MethodPut, "/api/config/rag-mode", body, nil)
}
