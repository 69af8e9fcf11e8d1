// ABOUTME: Controller owns the session cache and drives turns end to end.
// ABOUTME: Enforces single-flight, auto-provisions sessions, reconciles metadata.

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/helix-console/internal/stream"
)

// ErrTurnInFlight is returned by SendTurn while a turn is already streaming.
// The call is a pure no-op: no message is appended and no stream is opened.
var ErrTurnInFlight = errors.New("a turn is already in flight")

// ErrNoActiveSession is returned by operations that need a selected session.
var ErrNoActiveSession = errors.New("no active session")

// Backend is everything the controller needs from the chat backend. The
// concrete implementation lives in the api package; tests substitute fakes.
type Backend interface {
	ListSessions(ctx context.Context) ([]Session, error)
	CreateSession(ctx context.Context) (Session, error)
	RenameSession(ctx context.Context, id, title string) error
	DeleteSession(ctx context.Context, id string) error
	History(ctx context.Context, id string) ([]HistoryRecord, error)
	CompressSession(ctx context.Context, id string) (CompressResult, error)
	RagMode(ctx context.Context) (bool, error)
	SetRagMode(ctx context.Context, enabled bool) error

	// StreamTurn opens the event stream for one turn. Transport failures are
	// reported in-band: the returned decoder then yields a single synthetic
	// error event.
	StreamTurn(ctx context.Context, sessionID, message string) *stream.Decoder
}

// EventHook observes each stream event after it has been applied. target is
// the current streaming target (nil once the turn has finished). Used by the
// console for incremental rendering; it must not mutate controller state.
type EventHook func(ev stream.Event, target *Message)

// Controller is the conversation state machine. It is explicitly constructed
// and injectable — there is no package-level instance — and is driven from a
// single goroutine (see package docs).
type Controller struct {
	backend Backend
	logger  *slog.Logger

	sessions   []Session
	currentID  string
	transcript Transcript
	ragMode    bool

	// OnEvent, when set, is invoked for every applied stream event.
	OnEvent EventHook
}

// New creates a Controller talking to the given backend.
func New(backend Backend, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		backend: backend,
		logger:  logger.With("component", "conversation"),
	}
}

// Bootstrap loads the session list and retrieval-mode flag, and selects the
// most recent session when one exists. Backend unavailability is tolerated:
// failures are logged and the controller starts empty.
func (c *Controller) Bootstrap(ctx context.Context) {
	sessions, err := c.backend.ListSessions(ctx)
	if err != nil {
		c.logger.Warn("bootstrap: session list unavailable", "error", err)
	} else {
		c.sessions = sessions
	}

	ragMode, err := c.backend.RagMode(ctx)
	if err != nil {
		c.logger.Warn("bootstrap: rag mode unavailable", "error", err)
	} else {
		c.ragMode = ragMode
	}

	if len(c.sessions) > 0 {
		if err := c.SelectSession(ctx, c.sessions[0].ID); err != nil {
			c.logger.Warn("bootstrap: history load failed", "error", err, "session_id", c.sessions[0].ID)
		}
	}
}

// Sessions returns the cached session list, most recent first.
func (c *Controller) Sessions() []Session {
	out := make([]Session, len(c.sessions))
	copy(out, c.sessions)
	return out
}

// CurrentSessionID returns the active session's ID, or "" if none.
func (c *Controller) CurrentSessionID() string {
	return c.currentID
}

// Messages returns the active transcript's messages in order.
func (c *Controller) Messages() []*Message {
	return c.transcript.Messages()
}

// Streaming reports whether a turn is in flight.
func (c *Controller) Streaming() bool {
	return c.transcript.Streaming()
}

// RagMode returns the cached retrieval-mode flag.
func (c *Controller) RagMode() bool {
	return c.ragMode
}

// SendTurn sends one user message and consumes the resulting event stream,
// applying every event to the transcript in arrival order. It blocks until
// the stream ends (done, error, or transport close) and then releases the
// single-flight guard.
//
// A second SendTurn while one is in flight returns ErrTurnInFlight without
// touching any state. With no session selected, one is created first.
func (c *Controller) SendTurn(ctx context.Context, text string) error {
	if c.transcript.Streaming() {
		return ErrTurnInFlight
	}

	if c.currentID == "" {
		session, err := c.backend.CreateSession(ctx)
		if err != nil {
			return fmt.Errorf("auto-creating session: %w", err)
		}
		c.sessions = append([]Session{session}, c.sessions...)
		c.currentID = session.ID
		c.transcript.Clear()
		c.logger.Debug("session auto-created", "session_id", session.ID)
	}

	sessionID := c.currentID
	c.transcript.BeginTurn(text)

	dec := c.backend.StreamTurn(ctx, sessionID, text)
	// The error-event path returns without consuming the rest of the stream;
	// closing releases the transport connection on that path too.
	defer dec.Close()
	for dec.Scan() {
		ev := dec.Event()

		if ev.Type == stream.EventTitle {
			c.applyTitle(sessionID, ev)
			c.notify(ev)
			continue
		}

		terminal := c.transcript.Apply(ev)
		c.notify(ev)

		if ev.Type == stream.EventDone {
			// A title event may still follow done, so the stream keeps
			// being consumed; only the metadata reconciliation runs now.
			c.reconcileSessions(ctx)
		}
		if terminal && ev.Type == stream.EventError {
			// The guard is released and remaining events from this stream
			// are not consumed.
			c.logger.Debug("turn ended with error event", "session_id", sessionID, "error", ev.Error)
			return nil
		}
	}

	if err := dec.Err(); err != nil && c.transcript.Streaming() {
		// A read failure mid-stream is folded in as an error event so the
		// partial content is preserved and the guard is released.
		c.transcript.Apply(stream.Event{Type: stream.EventError, Error: err.Error()})
		c.logger.Warn("stream read failed", "session_id", sessionID, "error", err)
		return nil
	}

	if c.transcript.Streaming() {
		// Stream closed cleanly without a done event.
		c.transcript.Finish()
		c.logger.Debug("stream closed without done event", "session_id", sessionID)
	}
	return nil
}

// SelectSession makes the given session active and replaces the transcript
// with its reconstructed history. Selecting the already-active session is a
// no-op. On history failure nothing is mutated.
//
// Switching away mid-stream does not cancel the in-flight request; its
// events simply stop landing on a visible message, because application
// targets a message ID rather than whatever is displayed.
func (c *Controller) SelectSession(ctx context.Context, id string) error {
	if id == c.currentID {
		return nil
	}
	records, err := c.backend.History(ctx, id)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}
	c.currentID = id
	c.transcript.Replace(ReconstructHistory(records))
	return nil
}

// DeleteSession removes a session. If it was active, the active session and
// transcript are cleared.
func (c *Controller) DeleteSession(ctx context.Context, id string) error {
	if err := c.backend.DeleteSession(ctx, id); err != nil {
		return err
	}
	kept := c.sessions[:0]
	for _, s := range c.sessions {
		if s.ID != id {
			kept = append(kept, s)
		}
	}
	c.sessions = kept
	if id == c.currentID {
		c.currentID = ""
		c.transcript.Clear()
	}
	return nil
}

// RenameSession renames a session and updates the cached title.
func (c *Controller) RenameSession(ctx context.Context, id, title string) error {
	if err := c.backend.RenameSession(ctx, id, title); err != nil {
		return err
	}
	for i := range c.sessions {
		if c.sessions[i].ID == id {
			c.sessions[i].Title = title
		}
	}
	return nil
}

// CreateSession explicitly creates a session and makes it active with an
// empty transcript.
func (c *Controller) CreateSession(ctx context.Context) (Session, error) {
	session, err := c.backend.CreateSession(ctx)
	if err != nil {
		return Session{}, err
	}
	c.sessions = append([]Session{session}, c.sessions...)
	c.currentID = session.ID
	c.transcript.Clear()
	return session, nil
}

// CompressSession archives the oldest half of the active session's history
// on the backend, then reloads the remaining history and refreshes the
// session list (titles and timestamps may change).
func (c *Controller) CompressSession(ctx context.Context) (CompressResult, error) {
	if c.currentID == "" {
		return CompressResult{}, ErrNoActiveSession
	}
	result, err := c.backend.CompressSession(ctx, c.currentID)
	if err != nil {
		return CompressResult{}, err
	}
	records, err := c.backend.History(ctx, c.currentID)
	if err != nil {
		return result, fmt.Errorf("reloading history after compression: %w", err)
	}
	c.transcript.Replace(ReconstructHistory(records))
	c.reconcileSessions(ctx)
	return result, nil
}

// RefreshSessions re-fetches the session list from the backend.
func (c *Controller) RefreshSessions(ctx context.Context) error {
	sessions, err := c.backend.ListSessions(ctx)
	if err != nil {
		return err
	}
	c.sessions = sessions
	return nil
}

// SetRagMode flips the backend retrieval-mode flag and caches the result.
func (c *Controller) SetRagMode(ctx context.Context, enabled bool) error {
	if err := c.backend.SetRagMode(ctx, enabled); err != nil {
		return err
	}
	c.ragMode = enabled
	return nil
}

// applyTitle updates the cached title for the session named by a title
// event. Message state is untouched.
func (c *Controller) applyTitle(turnSessionID string, ev stream.Event) {
	id := ev.SessionID
	if id == "" {
		id = turnSessionID
	}
	for i := range c.sessions {
		if c.sessions[i].ID == id {
			c.sessions[i].Title = ev.Title
		}
	}
}

// reconcileSessions refreshes session metadata after a completed turn so
// updated timestamps and generated titles surface. Failure is not fatal: the
// cache simply stays stale until the next refresh.
func (c *Controller) reconcileSessions(ctx context.Context) {
	if err := c.RefreshSessions(ctx); err != nil {
		c.logger.Warn("session reconciliation failed", "error", err)
	}
}

func (c *Controller) notify(ev stream.Event) {
	if c.OnEvent != nil {
		c.OnEvent(ev, c.transcript.Target())
	}
}
