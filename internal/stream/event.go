// ABOUTME: Typed chat stream events and their JSON wire decoding.
// ABOUTME: One Event struct with a Type discriminator, mirroring the backend payloads.

package stream

import "encoding/json"

// EventType discriminates the variants of a chat stream event.
type EventType string

// Event types emitted by the backend during a chat turn.
const (
	EventRetrieval   EventType = "retrieval"
	EventToken       EventType = "token"
	EventToolStart   EventType = "tool_start"
	EventToolEnd     EventType = "tool_end"
	EventNewResponse EventType = "new_response"
	EventDone        EventType = "done"
	EventTitle       EventType = "title"
	EventError       EventType = "error"
)

// RetrievalResult is one retrieved context fragment attached to a retrieval
// event. Score is the backend's relevance score for the fragment.
type RetrievalResult struct {
	Text   string  `json:"text"`
	Score  float64 `json:"score"`
	Source string  `json:"source"`
}

// Event is one decoded chat stream event. Exactly one variant is active,
// selected by Type; fields not belonging to the variant are zero.
type Event struct {
	Type EventType

	// token, done
	Content string

	// retrieval
	Query   string
	Results []RetrievalResult

	// tool_start, tool_end
	Tool   string
	Input  string
	Output string
	RunID  string

	// done, title
	SessionID string
	Title     string

	// error
	Error string
}

// wireEvent is the superset of fields the backend puts on a payload line.
type wireEvent struct {
	Type      string            `json:"type"`
	Content   string            `json:"content"`
	Query     string            `json:"query"`
	Results   []RetrievalResult `json:"results"`
	Tool      string            `json:"tool"`
	Input     string            `json:"input"`
	Output    string            `json:"output"`
	RunID     string            `json:"run_id"`
	SessionID string            `json:"session_id"`
	Title     string            `json:"title"`
	Error     string            `json:"error"`
}

// parseEvent decodes one payload line into an Event.
// Returns ok=false for malformed JSON or an unknown type tag; callers skip
// those lines rather than failing the stream.
func parseEvent(payload []byte) (Event, bool) {
	var w wireEvent
	if err := json.Unmarshal(payload, &w); err != nil {
		return Event{}, false
	}

	switch EventType(w.Type) {
	case EventRetrieval:
		return Event{Type: EventRetrieval, Query: w.Query, Results: w.Results}, true
	case EventToken:
		return Event{Type: EventToken, Content: w.Content}, true
	case EventToolStart:
		return Event{Type: EventToolStart, Tool: w.Tool, Input: w.Input, RunID: runID(w)}, true
	case EventToolEnd:
		return Event{Type: EventToolEnd, Tool: w.Tool, Output: w.Output, RunID: runID(w)}, true
	case EventNewResponse:
		return Event{Type: EventNewResponse}, true
	case EventDone:
		return Event{Type: EventDone, Content: w.Content, SessionID: w.SessionID}, true
	case EventTitle:
		return Event{Type: EventTitle, SessionID: w.SessionID, Title: w.Title}, true
	case EventError:
		msg := w.Error
		if msg == "" {
			msg = "unknown error"
		}
		return Event{Type: EventError, Error: msg}, true
	default:
		// Forward compatibility: unknown event types are dropped.
		return Event{}, false
	}
}

// runID returns the correlation id pairing tool_start with tool_end.
// The backend omits run_id on the wire, so the tool name is the fallback key.
func runID(w wireEvent) string {
	if w.RunID != "" {
		return w.RunID
	}
	return w.Tool
}
