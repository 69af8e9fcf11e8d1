// ABOUTME: Session CRUD, history, title generation, and compression handlers.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/2389/helix-console/internal/store"
)

const (
	defaultSessionTitle = "New Chat"
	maxTitleLength      = 60
	maxTitleWords       = 10
	maxRenameLength     = 200
	maxSummaryLength    = 2000
	minCompressMessages = 4
)

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		s.logger.Error("failed to list sessions", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]sessionMeta, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, toSessionMeta(session))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session := &store.Session{
		ID:        uuid.New().String(),
		Title:     defaultSessionTitle,
		CreatedAt: now(),
		UpdatedAt: now(),
	}
	if err := s.store.CreateSession(r.Context(), session); err != nil {
		s.logger.Error("failed to create session", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.logger.Info("session created", "session_id", session.ID)
	s.writeJSON(w, http.StatusCreated, toSessionMeta(session))
}

func (s *Server) handleRenameSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var body struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(body.Title) > maxRenameLength {
		s.sendJSONError(w, http.StatusBadRequest, "title too long (max 200 characters)")
		return
	}
	title := strings.TrimSpace(body.Title)
	if title == "" {
		title = defaultSessionTitle
	}

	if err := s.store.RenameSession(r.Context(), id, title); err != nil {
		s.storeError(w, err, "failed to rename session")
		return
	}

	session, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		s.storeError(w, err, "failed to load session")
		return
	}
	s.writeJSON(w, http.StatusOK, toSessionMeta(session))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteSession(r.Context(), id); err != nil {
		s.storeError(w, err, "failed to delete session")
		return
	}
	s.logger.Info("session deleted", "session_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := s.store.GetSession(r.Context(), id); err != nil {
		s.storeError(w, err, "failed to load session")
		return
	}

	messages, err := s.store.GetMessages(r.Context(), id, false)
	if err != nil {
		s.logger.Error("failed to load history", "error", err, "session_id", id)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	out := make([]historyRecord, 0, len(messages))
	for _, msg := range messages {
		out = append(out, toHistoryRecord(msg))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGenerateTitle(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	messages, err := s.store.GetMessages(r.Context(), id, false)
	if err != nil {
		s.logger.Error("failed to load messages", "error", err, "session_id", id)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if len(messages) == 0 {
		s.sendJSONError(w, http.StatusBadRequest, "Session has no messages")
		return
	}

	var firstUser string
	for _, msg := range messages {
		if msg.Role == "user" {
			firstUser = msg.Content
			break
		}
	}
	if firstUser == "" {
		s.sendJSONError(w, http.StatusBadRequest, "No user messages found")
		return
	}

	title := deriveTitle(firstUser)
	if err := s.store.RenameSession(r.Context(), id, title); err != nil {
		s.storeError(w, err, "failed to store title")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"session_id": id, "title": title})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	result, err := s.compressSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		if errors.Is(err, errTooFewMessages) {
			s.sendJSONError(w, http.StatusBadRequest, "Need at least 4 messages to compress.")
			return
		}
		s.logger.Error("compression failed", "error", err, "session_id", id)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"session_id":      id,
		"archived_count":  result.archived,
		"remaining_count": result.remaining,
		"summary":         result.summary,
	})
}

var errTooFewMessages = errors.New("too few messages to compress")

type compressOutcome struct {
	archived  int
	remaining int
	summary   string
}

// compressSession archives the oldest half of a session's messages (at least
// four) and stores a summary derived from them. Also used by the chat
// handler's auto-compression.
func (s *Server) compressSession(ctx context.Context, id string) (compressOutcome, error) {
	if _, err := s.store.GetSession(ctx, id); err != nil {
		return compressOutcome{}, err
	}

	messages, err := s.store.GetMessages(ctx, id, false)
	if err != nil {
		return compressOutcome{}, err
	}
	if len(messages) < minCompressMessages {
		return compressOutcome{}, errTooFewMessages
	}

	n := len(messages) / 2
	if n < minCompressMessages {
		n = minCompressMessages
	}
	toArchive := messages[:n]

	summary := summarize(toArchive)
	if err := s.store.SetSummary(ctx, id, summary); err != nil {
		return compressOutcome{}, err
	}

	ids := make([]string, len(toArchive))
	for i, msg := range toArchive {
		ids[i] = msg.ID
	}
	if err := s.store.ArchiveMessages(ctx, id, ids); err != nil {
		return compressOutcome{}, err
	}

	s.logger.Info("session compressed", "session_id", id,
		"archived", len(toArchive), "remaining", len(messages)-n)

	return compressOutcome{
		archived:  len(toArchive),
		remaining: len(messages) - n,
		summary:   summary,
	}, nil
}

// summarize builds a compressed-context summary from archived messages. A
// development backend has no model, so the summary is a role-tagged digest of
// the archived conversation, capped at the same length the production
// summarizer uses.
func summarize(messages []*store.Message) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Compressed context of %d earlier messages:\n", len(messages))
	for _, msg := range messages {
		line := fmt.Sprintf("%s: %s\n", strings.ToUpper(msg.Role), msg.Content)
		if b.Len()+len(line) > maxSummaryLength {
			break
		}
		b.WriteString(line)
	}
	summary := strings.TrimSpace(b.String())
	if len(summary) > maxSummaryLength {
		summary = summary[:maxSummaryLength]
	}
	return summary
}

// deriveTitle produces a short session title from the first user message:
// the first few words, punctuation stripped, capped in length.
func deriveTitle(message string) string {
	fields := strings.Fields(message)
	if len(fields) > maxTitleWords {
		fields = fields[:maxTitleWords]
	}

	words := make([]string, 0, len(fields))
	for _, f := range fields {
		cleaned := strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if cleaned != "" {
			words = append(words, cleaned)
		}
	}

	title := strings.Join(words, " ")
	if len(title) > maxTitleLength {
		title = strings.TrimSpace(title[:maxTitleLength])
	}
	if title == "" {
		return defaultSessionTitle
	}
	return title
}

func (s *Server) storeError(w http.ResponseWriter, err error, logMsg string) {
	if errors.Is(err, store.ErrNotFound) {
		s.sendJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	s.logger.Error(logMsg, "error", err)
	s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
}
