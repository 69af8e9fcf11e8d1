// ABOUTME: Tests for session, file, token, and config handlers.
// ABOUTME: Runs against a real sqlite store in a temp directory.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/helix-console/internal/agent"
	"github.com/2389/helix-console/internal/store"
)

func newTestServer(t *testing.T, script *agent.Script) (*Server, *store.SQLiteStore, string) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	baseDir := t.TempDir()

	srv := New(st, agent.NewScripted(script, 0, nil), nil, Options{
		MaxMessageLength:  200,
		CompressThreshold: 6,
		BaseDir:           baseDir,
	}, nil)
	return srv, st, baseDir
}

func doRequest(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func createSession(t *testing.T, srv *Server) sessionMeta {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, "/api/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var meta sessionMeta
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meta))
	return meta
}

func TestSessions_CRUD(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	meta := createSession(t, srv)
	assert.NotEmpty(t, meta.ID)
	assert.Equal(t, "New Chat", meta.Title)

	rec := doRequest(t, srv, http.MethodGet, "/api/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var sessions []sessionMeta
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	require.Len(t, sessions, 1)

	rec = doRequest(t, srv, http.MethodPut, "/api/sessions/"+meta.ID, map[string]string{"title": "Proteomics"})
	require.Equal(t, http.StatusOK, rec.Code)
	var renamed sessionMeta
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &renamed))
	assert.Equal(t, "Proteomics", renamed.Title)

	rec = doRequest(t, srv, http.MethodDelete, "/api/sessions/"+meta.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/sessions", nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sessions))
	assert.Empty(t, sessions)
}

func TestSessions_RenameBlankFallsBack(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	meta := createSession(t, srv)

	rec := doRequest(t, srv, http.MethodPut, "/api/sessions/"+meta.ID, map[string]string{"title": "   "})
	require.Equal(t, http.StatusOK, rec.Code)
	var renamed sessionMeta
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &renamed))
	assert.Equal(t, "New Chat", renamed.Title)
}

func TestSessions_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	assert.Equal(t, http.StatusNotFound,
		doRequest(t, srv, http.MethodPut, "/api/sessions/nope", map[string]string{"title": "x"}).Code)
	assert.Equal(t, http.StatusNotFound,
		doRequest(t, srv, http.MethodDelete, "/api/sessions/nope", nil).Code)
	assert.Equal(t, http.StatusNotFound,
		doRequest(t, srv, http.MethodGet, "/api/sessions/nope/history", nil).Code)
}

func TestHistory_IncludesToolCalls(t *testing.T) {
	srv, st, _ := newTestServer(t, nil)
	meta := createSession(t, srv)

	ctx := context.Background()
	require.NoError(t, st.SaveMessage(ctx, &store.Message{
		ID: "m1", SessionID: meta.ID, Role: "user", Content: "hi", CreatedAt: time.Now(),
	}))
	require.NoError(t, st.SaveMessage(ctx, &store.Message{
		ID: "m2", SessionID: meta.ID, Role: "assistant", Content: "done",
		ToolCallsJSON: `[{"tool":"terminal","input":"ls","output":"f"}]`,
		CreatedAt:     time.Now().Add(time.Second),
	}))

	rec := doRequest(t, srv, http.MethodGet, "/api/sessions/"+meta.ID+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var records []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	require.Len(t, records, 2)
	assert.Nil(t, records[0]["tool_calls"])
	calls, ok := records[1]["tool_calls"].([]any)
	require.True(t, ok)
	require.Len(t, calls, 1)
}

func TestGenerateTitle(t *testing.T) {
	srv, st, _ := newTestServer(t, nil)
	meta := createSession(t, srv)

	ctx := context.Background()
	require.NoError(t, st.SaveMessage(ctx, &store.Message{
		ID: "m1", SessionID: meta.ID, Role: "user",
		Content:   "How does the RuBisCO enzyme fix carbon, and why is it considered inefficient compared to alternatives?",
		CreatedAt: time.Now(),
	}))

	rec := doRequest(t, srv, http.MethodPost, "/api/sessions/"+meta.ID+"/generate-title", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	title := out["title"]
	assert.NotEmpty(t, title)
	assert.LessOrEqual(t, len(strings.Fields(title)), 10)
	assert.LessOrEqual(t, len(title), 60)

	session, err := st.GetSession(ctx, meta.ID)
	require.NoError(t, err)
	assert.Equal(t, title, session.Title)
}

func TestGenerateTitle_NoMessages(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	meta := createSession(t, srv)

	rec := doRequest(t, srv, http.MethodPost, "/api/sessions/"+meta.ID+"/generate-title", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompress(t *testing.T) {
	srv, st, _ := newTestServer(t, nil)
	meta := createSession(t, srv)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		require.NoError(t, st.SaveMessage(ctx, &store.Message{
			ID: uuidLike(i), SessionID: meta.ID, Role: role,
			Content:   "message body",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}))
	}

	rec := doRequest(t, srv, http.MethodPost, "/api/sessions/"+meta.ID+"/compress", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		ArchivedCount  int    `json:"archived_count"`
		RemainingCount int    `json:"remaining_count"`
		Summary        string `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 4, out.ArchivedCount)
	assert.Equal(t, 4, out.RemainingCount)
	assert.NotEmpty(t, out.Summary)

	msgs, err := st.GetMessages(ctx, meta.ID, false)
	require.NoError(t, err)
	assert.Len(t, msgs, 4)

	session, err := st.GetSession(ctx, meta.ID)
	require.NoError(t, err)
	assert.Equal(t, out.Summary, session.Summary)
}

func TestCompress_TooFewMessages(t *testing.T) {
	srv, st, _ := newTestServer(t, nil)
	meta := createSession(t, srv)

	require.NoError(t, st.SaveMessage(context.Background(), &store.Message{
		ID: "m1", SessionID: meta.ID, Role: "user", Content: "hi", CreatedAt: time.Now(),
	}))

	rec := doRequest(t, srv, http.MethodPost, "/api/sessions/"+meta.ID+"/compress", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFiles_ReadWriteRoundTrip(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/files",
		map[string]string{"path": "memory/MEMORY.md", "content": "# notes"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/files?path=memory%2FMEMORY.md", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "# notes", out["content"])
}

func TestFiles_WhitelistAndTraversal(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		path string
	}{
		{name: "outside whitelist", path: "secrets/key.pem"},
		{name: "traversal", path: "workspace/../../etc/passwd"},
		{name: "root file not allowed", path: "config.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, srv, http.MethodGet, "/api/files?path="+tt.path, nil)
			assert.Equal(t, http.StatusForbidden, rec.Code)

			rec = doRequest(t, srv, http.MethodPost, "/api/files",
				map[string]string{"path": tt.path, "content": "x"})
			assert.Equal(t, http.StatusForbidden, rec.Code)
		})
	}
}

func TestFiles_SnapshotRootFileAllowed(t *testing.T) {
	srv, _, baseDir := newTestServer(t, nil)
	require.NoError(t, os.WriteFile(filepath.Join(baseDir, "SKILLS_SNAPSHOT.md"), []byte("snapshot"), 0644))

	rec := doRequest(t, srv, http.MethodGet, "/api/files?path=SKILLS_SNAPSHOT.md", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestFiles_NotFound(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)
	rec := doRequest(t, srv, http.MethodGet, "/api/files?path=workspace/missing.txt", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSkills_List(t *testing.T) {
	srv, _, baseDir := newTestServer(t, nil)

	for _, name := range []string{"pubmed", "blast"} {
		dir := filepath.Join(baseDir, "skills", name)
		require.NoError(t, os.MkdirAll(dir, 0755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte("# "+name), 0644))
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/skills", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var skills []struct {
		Name string `json:"name"`
		Path string `json:"path"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &skills))
	require.Len(t, skills, 2)
	assert.Equal(t, "blast", skills[0].Name)
	assert.Equal(t, "skills/blast/SKILL.md", skills[0].Path)
}

func TestSessionTokens(t *testing.T) {
	srv, st, _ := newTestServer(t, nil)
	meta := createSession(t, srv)

	require.NoError(t, st.SaveMessage(context.Background(), &store.Message{
		ID: "m1", SessionID: meta.ID, Role: "user",
		Content: "five words in this message", CreatedAt: time.Now(),
	}))

	rec := doRequest(t, srv, http.MethodGet, "/api/tokens/session/"+meta.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var out struct {
		MessageTokens int `json:"message_tokens"`
		TotalTokens   int `json:"total_tokens"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, 5, out.MessageTokens)
	assert.Equal(t, 5, out.TotalTokens)
}

func TestRagMode_RoundTrip(t *testing.T) {
	srv, _, _ := newTestServer(t, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/config/rag-mode", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rag_mode":false}`, rec.Body.String())

	rec = doRequest(t, srv, http.MethodPut, "/api/config/rag-mode", map[string]bool{"enabled": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/config/rag-mode", nil)
	assert.JSONEq(t, `{"rag_mode":true}`, rec.Body.String())
}

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{name: "short message", message: "Explain RuBisCO kinetics", want: "Explain RuBisCO kinetics"},
		{name: "punctuation stripped", message: "What is CRISPR?", want: "What is CRISPR"},
		{name: "empty falls back", message: "???", want: "New Chat"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, deriveTitle(tt.message))
		})
	}

	long := deriveTitle(strings.Repeat("word ", 40))
	assert.LessOrEqual(t, len(strings.Fields(long)), 10)
	assert.LessOrEqual(t, len(long), 60)
}

func uuidLike(i int) string {
	return strings.Repeat("0", 7) + string(rune('a'+i))
}
