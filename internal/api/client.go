// ABOUTME: HTTP client core for the helix backend API.
// ABOUTME: Request plumbing, bearer auth, JSON helpers, token resolution.

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	defaultTimeout = 30 * time.Second

	// Cap on error-body reads so a misbehaving backend cannot balloon an
	// error message.
	maxErrorBody = 4096
)

// Client talks to a helix backend over HTTP. Safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a Client for the backend at baseURL. token may be empty, in
// which case no Authorization header is sent.
func New(baseURL, token string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger.With("component", "api"),
	}
}

// LoadToken resolves a bearer token from the environment or the XDG config
// directory. Resolution order: HELIX_TOKEN, then the first line of
// ~/.config/helix/token. Returns "" when no token is configured.
func LoadToken() string {
	if tok := os.Getenv("HELIX_TOKEN"); tok != "" {
		return tok
	}
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	data, err := os.ReadFile(filepath.Join(dir, "helix", "token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// newRequest builds a request with the standard headers applied.
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

// doJSON performs a request with an optional JSON body and decodes the JSON
// response into out (skipped when out is nil). Non-2xx responses become an
// error carrying the status and body text.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, reader)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return httpError(resp)
	}

	if out == nil {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, path, err)
	}
	return nil
}

// httpError converts a non-2xx response into an error. The body text is used
// when present, matching how the backend reports failures.
func httpError(resp *http.Response) error {
	text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(text))
	if msg == "" {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)
}
