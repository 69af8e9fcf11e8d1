// ABOUTME: Shared data model for sessions, messages, and tool calls.
// ABOUTME: JSON tags match the backend wire shapes where the types cross it.

package conversation

import (
	"github.com/2389/helix-console/internal/stream"
)

// Role identifies who authored a message.
type Role string

// Roles kept in a reconstructed transcript. System records exist on the
// backend but are dropped from the visible history.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Session is the cached metadata for one backend session. The list is
// ordered most-recent-first and mutated optimistically on local actions.
type Session struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	UpdatedAt    float64 `json:"updated_at"`
	MessageCount int     `json:"message_count"`
}

// ToolCall is one completed tool invocation attached to a message.
type ToolCall struct {
	Tool   string `json:"tool"`
	Input  string `json:"input"`
	Output string `json:"output"`
}

// PendingTool is a tool invocation that has started but not yet finished.
// RunID correlates it with the eventual tool_end event.
type PendingTool struct {
	Tool  string
	Input string
	RunID string
}

// Message is one entry of the in-memory transcript. IDs are locally
// generated and opaque; they are never sent to the backend.
//
// Streaming is true only while the message is the single active target of
// decoder events. Content is append-only while streaming.
type Message struct {
	ID           string
	Role         Role
	Content      string
	ToolCalls    []ToolCall
	Retrievals   []stream.RetrievalResult
	Streaming    bool
	PendingTools []PendingTool
}

// HistoryRecord is one raw role/content record as returned by the backend
// history endpoint.
type HistoryRecord struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// CompressResult reports what a session compression did on the backend.
type CompressResult struct {
	ArchivedCount  int    `json:"archived_count"`
	RemainingCount int    `json:"remaining_count"`
	Summary        string `json:"summary"`
}
