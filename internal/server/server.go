// ABOUTME: HTTP server core: routing, shared helpers, wire conversions.
// ABOUTME: Handlers live in sessions.go, chat.go, and files.go.

package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/helix-console/internal/agent"
	"github.com/2389/helix-console/internal/dedupe"
	"github.com/2389/helix-console/internal/store"
)

// Agent produces the scripted event stream for one chat turn.
type Agent interface {
	Run(ctx context.Context, message string) <-chan agent.Event
}

// Options carries the tunable limits for a Server.
type Options struct {
	MaxMessageLength  int
	CompressThreshold int
	BaseDir           string // root for file and skill endpoints; empty disables them
}

// Server holds the handler dependencies.
type Server struct {
	store  store.Store
	agent  Agent
	dedupe *dedupe.Cache
	opts   Options
	logger *slog.Logger
}

// New creates a Server. dedupeCache may be nil to disable duplicate
// suppression.
func New(st store.Store, ag Agent, dedupeCache *dedupe.Cache, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:  st,
		agent:  ag,
		dedupe: dedupeCache,
		opts:   opts,
		logger: logger.With("component", "server"),
	}
}

// Handler returns the routed API handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)

	mux.HandleFunc("GET /api/sessions", s.handleListSessions)
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("PUT /api/sessions/{id}", s.handleRenameSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("GET /api/sessions/{id}/history", s.handleHistory)
	mux.HandleFunc("POST /api/sessions/{id}/generate-title", s.handleGenerateTitle)
	mux.HandleFunc("POST /api/sessions/{id}/compress", s.handleCompress)

	mux.HandleFunc("GET /api/files", s.handleReadFile)
	mux.HandleFunc("POST /api/files", s.handleSaveFile)
	mux.HandleFunc("GET /api/skills", s.handleListSkills)
	mux.HandleFunc("GET /api/tokens/session/{id}", s.handleSessionTokens)
	mux.HandleFunc("POST /api/tokens/files", s.handleFileTokens)

	mux.HandleFunc("GET /api/config/rag-mode", s.handleGetRagMode)
	mux.HandleFunc("PUT /api/config/rag-mode", s.handleSetRagMode)

	return mux
}

// sessionMeta is the wire form of a session.
type sessionMeta struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	UpdatedAt    float64 `json:"updated_at"`
	MessageCount int     `json:"message_count"`
}

func toSessionMeta(session *store.Session) sessionMeta {
	return sessionMeta{
		ID:           session.ID,
		Title:        session.Title,
		UpdatedAt:    float64(session.UpdatedAt.UnixMilli()) / 1000.0,
		MessageCount: session.MessageCount,
	}
}

// historyRecord is the wire form of one stored message.
type historyRecord struct {
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	ToolCalls json.RawMessage `json:"tool_calls,omitempty"`
}

func toHistoryRecord(msg *store.Message) historyRecord {
	rec := historyRecord{Role: msg.Role, Content: msg.Content}
	if msg.ToolCallsJSON != "" {
		rec.ToolCalls = json.RawMessage(msg.ToolCallsJSON)
	}
	return rec
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func now() time.Time {
	return time.Now().UTC()
}
