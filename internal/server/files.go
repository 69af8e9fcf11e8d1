// ABOUTME: File read/write endpoints with path whitelist protection,
// ABOUTME: skills listing, token approximation, and retrieval-mode config.

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/2389/helix-console/internal/store"
)

// Paths the API is allowed to serve, relative to the base directory.
var allowedPrefixes = []string{"workspace/", "memory/", "skills/", "knowledge/"}

var allowedRootFiles = map[string]bool{"SKILLS_SNAPSHOT.md": true}

var (
	errPathTraversal = errors.New("path traversal is not allowed")
	errPathDenied    = errors.New("access denied")
)

// resolvePath validates a relative path against the whitelist and returns
// the absolute path under the base directory.
func (s *Server) resolvePath(relative string) (string, error) {
	clean := strings.TrimPrefix(strings.TrimPrefix(relative, "/"), "./")

	// Traversal guard before the whitelist check.
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return "", errPathTraversal
		}
	}

	base, err := filepath.Abs(s.opts.BaseDir)
	if err != nil {
		return "", err
	}
	target := filepath.Join(base, filepath.FromSlash(clean))
	if target != base && !strings.HasPrefix(target, base+string(filepath.Separator)) {
		return "", errPathTraversal
	}

	allowed := allowedRootFiles[clean]
	for _, prefix := range allowedPrefixes {
		if strings.HasPrefix(clean, prefix) {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", errPathDenied
	}

	return target, nil
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	if s.opts.BaseDir == "" {
		s.sendJSONError(w, http.StatusNotFound, "file serving is not configured")
		return
	}

	relative := r.URL.Query().Get("path")
	if relative == "" {
		s.sendJSONError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}

	target, err := s.resolvePath(relative)
	if err != nil {
		s.sendJSONError(w, http.StatusForbidden, err.Error())
		return
	}

	info, err := os.Stat(target)
	if os.IsNotExist(err) {
		s.sendJSONError(w, http.StatusNotFound, fmt.Sprintf("File not found: %s", relative))
		return
	}
	if err != nil {
		s.logger.Error("failed to stat file", "error", err, "path", relative)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if info.IsDir() {
		s.sendJSONError(w, http.StatusBadRequest, fmt.Sprintf("Not a file: %s", relative))
		return
	}

	content, err := os.ReadFile(target)
	if err != nil {
		s.logger.Error("failed to read file", "error", err, "path", relative)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"path": relative, "content": string(content)})
}

func (s *Server) handleSaveFile(w http.ResponseWriter, r *http.Request) {
	if s.opts.BaseDir == "" {
		s.sendJSONError(w, http.StatusNotFound, "file serving is not configured")
		return
	}

	var body struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Path == "" {
		s.sendJSONError(w, http.StatusBadRequest, "path is required")
		return
	}

	target, err := s.resolvePath(body.Path)
	if err != nil {
		s.sendJSONError(w, http.StatusForbidden, err.Error())
		return
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		s.logger.Error("failed to create directory", "error", err, "path", body.Path)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if err := os.WriteFile(target, []byte(body.Content), 0644); err != nil {
		s.logger.Error("failed to write file", "error", err, "path", body.Path)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"path": body.Path, "saved": true})
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	type skill struct {
		Name string `json:"name"`
		Path string `json:"path"`
	}
	skills := []skill{}

	if s.opts.BaseDir != "" {
		pattern := filepath.Join(s.opts.BaseDir, "skills", "*", "SKILL.md")
		matches, err := filepath.Glob(pattern)
		if err != nil {
			s.logger.Error("failed to glob skills", "error", err)
			s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
			return
		}
		sort.Strings(matches)
		for _, match := range matches {
			relative, err := filepath.Rel(s.opts.BaseDir, match)
			if err != nil {
				continue
			}
			skills = append(skills, skill{
				Name: filepath.Base(filepath.Dir(match)),
				Path: filepath.ToSlash(relative),
			})
		}
	}

	s.writeJSON(w, http.StatusOK, skills)
}

// countTokens approximates token counts as whitespace-separated words. A
// development backend carries no tokenizer; word counts track real token
// counts closely enough for a context-size readout.
func countTokens(text string) int {
	return len(strings.Fields(text))
}

func (s *Server) handleSessionTokens(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	messages, err := s.store.GetMessages(r.Context(), id, false)
	if err != nil {
		s.logger.Error("failed to load messages", "error", err, "session_id", id)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	systemTokens := 0
	if s.opts.BaseDir != "" {
		if data, err := os.ReadFile(filepath.Join(s.opts.BaseDir, "SKILLS_SNAPSHOT.md")); err == nil {
			systemTokens = countTokens(string(data))
		}
	}

	messageTokens := 0
	for _, msg := range messages {
		messageTokens += countTokens(msg.Content)
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"session_id":     id,
		"system_tokens":  systemTokens,
		"message_tokens": messageTokens,
		"total_tokens":   systemTokens + messageTokens,
	})
}

func (s *Server) handleFileTokens(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Paths []string `json:"paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	type fileTokens struct {
		Path   string `json:"path"`
		Tokens int    `json:"tokens"`
	}
	results := make([]fileTokens, 0, len(body.Paths))
	for _, relative := range body.Paths {
		tokens := 0
		if s.opts.BaseDir != "" {
			if target, err := s.resolvePath(relative); err == nil {
				if data, err := os.ReadFile(target); err == nil {
					tokens = countTokens(string(data))
				}
			}
		}
		results = append(results, fileTokens{Path: relative, Tokens: tokens})
	}

	s.writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleGetRagMode(w http.ResponseWriter, r *http.Request) {
	value, err := s.store.GetSetting(r.Context(), store.SettingRagMode)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		s.logger.Error("failed to read rag mode", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"rag_mode": value == "true"})
}

func (s *Server) handleSetRagMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	value := "false"
	if body.Enabled {
		value = "true"
	}
	if err := s.store.SetSetting(r.Context(), store.SettingRagMode, value); err != nil {
		s.logger.Error("failed to store rag mode", "error", err)
		s.sendJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"rag_mode": body.Enabled})
}
