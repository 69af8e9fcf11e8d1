// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides session/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			tool_calls TEXT NOT NULL DEFAULT '',
			archived INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);

		CREATE INDEX IF NOT EXISTS idx_messages_session_id
			ON messages(session_id, archived, created_at);

		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateSession inserts a new session row.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, title, summary, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		session.ID, session.Title, session.Summary, session.CreatedAt, session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("creating session: %w", err)
	}
	return nil
}

// GetSession returns one session with its message count.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT s.id, s.title, s.summary, s.created_at, s.updated_at,
		        (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id AND m.archived = 0)
		 FROM sessions s WHERE s.id = ?`, id)

	var session Session
	err := row.Scan(&session.ID, &session.Title, &session.Summary,
		&session.CreatedAt, &session.UpdatedAt, &session.MessageCount)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session: %w", err)
	}
	return &session, nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT s.id, s.title, s.summary, s.created_at, s.updated_at,
		        (SELECT COUNT(*) FROM messages m WHERE m.session_id = s.id AND m.archived = 0)
		 FROM sessions s ORDER BY s.updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var session Session
		if err := rows.Scan(&session.ID, &session.Title, &session.Summary,
			&session.CreatedAt, &session.UpdatedAt, &session.MessageCount); err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}

// RenameSession sets a session title. Like every session write, it bumps
// updated_at so the session surfaces in the most-recent-first list.
func (s *SQLiteStore) RenameSession(ctx context.Context, id, title string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?`,
		title, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("renaming session: %w", err)
	}
	return requireRow(result)
}

// TouchSession bumps a session's updated_at timestamp.
func (s *SQLiteStore) TouchSession(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	return requireRow(result)
}

// SetSummary stores the compressed-context summary for a session.
func (s *SQLiteStore) SetSummary(ctx context.Context, id, summary string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET summary = ? WHERE id = ?`, summary, id)
	if err != nil {
		return fmt.Errorf("setting summary: %w", err)
	}
	return requireRow(result)
}

// DeleteSession removes a session and all of its messages.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	// Explicit delete of messages keeps behavior independent of whether
	// foreign key cascades are active on this connection.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM messages WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("deleting session messages: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return requireRow(result)
}

// SaveMessage inserts a message row.
func (s *SQLiteStore) SaveMessage(ctx context.Context, msg *Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, session_id, role, content, tool_calls, archived, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Role, msg.Content, msg.ToolCallsJSON,
		boolToInt(msg.Archived), msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving message: %w", err)
	}
	return nil
}

// GetMessages returns a session's messages in insertion order. Archived
// messages are excluded unless includeArchived is set.
func (s *SQLiteStore) GetMessages(ctx context.Context, sessionID string, includeArchived bool) ([]*Message, error) {
	query := `SELECT id, session_id, role, content, tool_calls, archived, created_at
	          FROM messages WHERE session_id = ?`
	if !includeArchived {
		query += ` AND archived = 0`
	}
	query += ` ORDER BY created_at ASC, rowid ASC`

	rows, err := s.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("getting messages: %w", err)
	}
	defer rows.Close()

	var messages []*Message
	for rows.Next() {
		var msg Message
		var archived int
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content,
			&msg.ToolCallsJSON, &archived, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msg.Archived = archived != 0
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

// ArchiveMessages marks the given messages of a session as archived.
func (s *SQLiteStore) ArchiveMessages(ctx context.Context, sessionID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, 0, len(ids)+1)
	args = append(args, sessionID)
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET archived = 1 WHERE session_id = ? AND id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("archiving messages: %w", err)
	}
	return nil
}

// GetSetting returns a settings value, or ErrNotFound.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting setting %q: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts a settings value.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("setting %q: %w", key, err)
	}
	return nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
