// ABOUTME: Store interface and data types for helix-backend persistence.
// ABOUTME: Defines Session, Message structs and the Store interface.

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Session represents one conversation session.
type Session struct {
	ID        string
	Title     string
	Summary   string // compressed-context summary, empty until first compression
	CreatedAt time.Time
	UpdatedAt time.Time

	// MessageCount counts non-archived messages. Populated by ListSessions
	// and GetSession, not stored.
	MessageCount int
}

// Message represents a single stored message within a session. ToolCallsJSON
// holds the serialized tool-call list; empty means none.
type Message struct {
	ID            string
	SessionID     string
	Role          string
	Content       string
	ToolCallsJSON string
	Archived      bool
	CreatedAt     time.Time
}

// Setting keys used by the backend.
const (
	SettingRagMode = "rag_mode"
)

// Store is the persistence interface for the helix backend.
type Store interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context) ([]*Session, error)
	RenameSession(ctx context.Context, id, title string) error
	TouchSession(ctx context.Context, id string, at time.Time) error
	SetSummary(ctx context.Context, id, summary string) error
	DeleteSession(ctx context.Context, id string) error

	SaveMessage(ctx context.Context, msg *Message) error
	GetMessages(ctx context.Context, sessionID string, includeArchived bool) ([]*Message, error)
	ArchiveMessages(ctx context.Context, sessionID string, ids []string) error

	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error

	Close() error
}
