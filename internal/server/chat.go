// ABOUTME: SSE chat handler: streams scripted agent events and persists the turn.
// ABOUTME: User message saved exactly once, assistant segments saved on done.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/2389/helix-console/internal/agent"
	"github.com/2389/helix-console/internal/store"
)

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Stream    bool   `json:"stream"`
}

// wireToolCall is the persisted tool-call shape, identical to the wire form.
type wireToolCall struct {
	Tool   string `json:"tool"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// segment is one assistant response, split from the next by new_response.
type segment struct {
	content   strings.Builder
	toolCalls []wireToolCall
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		s.sendJSONError(w, http.StatusBadRequest, "message is required")
		return
	}
	if s.opts.MaxMessageLength > 0 && len(req.Message) > s.opts.MaxMessageLength {
		s.sendJSONError(w, http.StatusBadRequest,
			fmt.Sprintf("message too long (max %d characters)", s.opts.MaxMessageLength))
		return
	}

	ctx := r.Context()

	if _, err := s.store.GetSession(ctx, req.SessionID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.sendJSONError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("failed to load session", "error", err, "session_id", req.SessionID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if key := r.Header.Get("Idempotency-Key"); key != "" && s.dedupe != nil {
		if s.dedupe.CheckAndMark(key) {
			s.logger.Debug("duplicate chat turn ignored", "idempotency_key", key)
			s.sendJSONError(w, http.StatusConflict, "duplicate turn")
			return
		}
	}

	existing, err := s.store.GetMessages(ctx, req.SessionID, false)
	if err != nil {
		s.logger.Error("failed to load messages", "error", err, "session_id", req.SessionID)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	// Title generation keys off "no assistant reply yet", not "no messages":
	// a failed first turn still saves the user message, and the first
	// successful reply should still get a title.
	isFirstMessage := true
	for _, msg := range existing {
		if msg.Role == "assistant" {
			isFirstMessage = false
			break
		}
	}

	// Auto-compress long histories before the turn runs.
	if s.opts.CompressThreshold > 0 && len(existing) >= s.opts.CompressThreshold {
		if _, err := s.compressSession(ctx, req.SessionID); err != nil && !errors.Is(err, errTooFewMessages) {
			s.logger.Warn("auto-compression failed", "error", err, "session_id", req.SessionID)
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")

	s.streamTurn(ctx, w, flusher, req, isFirstMessage)
}

// streamTurn drives one agent run, framing events as SSE and persisting the
// turn's messages.
func (s *Server) streamTurn(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, req chatRequest, isFirstMessage bool) {
	var (
		segments     []*segment
		current      = &segment{}
		pendingTools = map[string]wireToolCall{}
		userSaved    bool
	)

	flushSegment := func() {
		if current.content.Len() > 0 || len(current.toolCalls) > 0 {
			segments = append(segments, current)
		}
		current = &segment{}
	}

	// The user message is saved exactly once per turn, including on error
	// paths, so the history stays consistent for future turns.
	saveUserMessage := func() {
		if userSaved {
			return
		}
		userSaved = true
		err := s.store.SaveMessage(ctx, &store.Message{
			ID:        uuid.New().String(),
			SessionID: req.SessionID,
			Role:      "user",
			Content:   req.Message,
			CreatedAt: now(),
		})
		if err != nil {
			s.logger.Error("failed to save user message", "error", err, "session_id", req.SessionID)
		}
	}

	events := s.agent.Run(ctx, req.Message)
	for {
		select {
		case <-ctx.Done():
			saveUserMessage()
			return

		case ev, open := <-events:
			if !open {
				flushSegment()
				s.finishTurn(ctx, w, flusher, req, segments, saveUserMessage, isFirstMessage)
				return
			}

			switch ev.Kind {
			case agent.KindRetrieval:
				results := make([]map[string]any, 0, len(ev.Results))
				for _, res := range ev.Results {
					results = append(results, map[string]any{
						"text": res.Text, "score": res.Score, "source": res.Source,
					})
				}
				s.writeSSE(w, flusher, map[string]any{
					"type": "retrieval", "query": ev.Query, "results": results,
				})

			case agent.KindToken:
				current.content.WriteString(ev.Content)
				s.writeSSE(w, flusher, map[string]any{"type": "token", "content": ev.Content})

			case agent.KindToolStart:
				runID := ev.RunID
				if runID == "" {
					runID = ev.Tool
				}
				pendingTools[runID] = wireToolCall{Tool: ev.Tool, Input: ev.Input}
				// run_id stays server-side; clients fall back to the tool name.
				s.writeSSE(w, flusher, map[string]any{
					"type": "tool_start", "tool": ev.Tool, "input": ev.Input,
				})

			case agent.KindToolEnd:
				runID := ev.RunID
				if runID == "" {
					runID = ev.Tool
				}
				started, ok := pendingTools[runID]
				if !ok {
					started = wireToolCall{Tool: ev.Tool}
				}
				delete(pendingTools, runID)
				started.Output = ev.Output
				current.toolCalls = append(current.toolCalls, started)
				s.writeSSE(w, flusher, map[string]any{
					"type": "tool_end", "tool": ev.Tool, "output": ev.Output,
				})

			case agent.KindNewResponse:
				flushSegment()
				s.writeSSE(w, flusher, map[string]any{"type": "new_response"})

			case agent.KindError:
				saveUserMessage()
				s.writeSSE(w, flusher, map[string]any{"type": "error", "error": ev.Content})
				return
			}
		}
	}
}

// finishTurn persists the completed turn and emits done, plus a title event
// on the first successful assistant reply.
func (s *Server) finishTurn(
	ctx context.Context,
	w http.ResponseWriter,
	flusher http.Flusher,
	req chatRequest,
	segments []*segment,
	saveUserMessage func(),
	isFirstMessage bool,
) {
	saveUserMessage()

	var finalParts []string
	for _, seg := range segments {
		content := seg.content.String()
		if content != "" {
			finalParts = append(finalParts, content)
		}

		var toolCallsJSON string
		if len(seg.toolCalls) > 0 {
			data, err := json.Marshal(seg.toolCalls)
			if err != nil {
				s.logger.Error("failed to encode tool calls", "error", err)
			} else {
				toolCallsJSON = string(data)
			}
		}

		err := s.store.SaveMessage(ctx, &store.Message{
			ID:            uuid.New().String(),
			SessionID:     req.SessionID,
			Role:          "assistant",
			Content:       content,
			ToolCallsJSON: toolCallsJSON,
			CreatedAt:     now(),
		})
		if err != nil {
			s.logger.Error("failed to save assistant message", "error", err, "session_id", req.SessionID)
		}
	}

	if err := s.store.TouchSession(ctx, req.SessionID, now()); err != nil {
		s.logger.Warn("failed to touch session", "error", err, "session_id", req.SessionID)
	}

	finalContent := strings.Join(finalParts, " ")
	s.writeSSE(w, flusher, map[string]any{
		"type": "done", "content": finalContent, "session_id": req.SessionID,
	})

	if isFirstMessage && finalContent != "" {
		title := deriveTitle(req.Message)
		if err := s.store.RenameSession(ctx, req.SessionID, title); err != nil {
			s.logger.Warn("failed to store generated title", "error", err, "session_id", req.SessionID)
			return
		}
		s.writeSSE(w, flusher, map[string]any{
			"type": "title", "session_id": req.SessionID, "title": title,
		})
	}
}

func (s *Server) writeSSE(w http.ResponseWriter, flusher http.Flusher, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("failed to marshal SSE payload", "error", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}
