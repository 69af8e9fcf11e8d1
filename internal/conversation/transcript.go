// ABOUTME: Transcript state and the event-application transition table.
// ABOUTME: Deterministic, transport-free core of the conversation state machine.

package conversation

import (
	"github.com/google/uuid"

	"github.com/2389/helix-console/internal/stream"
)

// errorNotice prefixes the inline annotation appended when a turn fails.
// Partial content already streamed stays in place above it.
const errorNotice = "⚠️ Error: "

// Transcript holds the ordered message list for the active session together
// with the current streaming target. Apply folds one decoded event into the
// state; it performs no I/O, which keeps the full event table testable
// without a transport.
type Transcript struct {
	messages  []*Message
	targetID  string
	streaming bool
}

// Messages returns the transcript's messages in order. The returned slice is
// shared; callers must treat it as read-only.
func (t *Transcript) Messages() []*Message {
	return t.messages
}

// Streaming reports whether a turn is currently in flight. This flag is the
// source of truth for single-flight enforcement, independent of any UI state.
func (t *Transcript) Streaming() bool {
	return t.streaming
}

// Target returns the current streaming target, or nil when no turn is in
// flight.
func (t *Transcript) Target() *Message {
	if t.targetID == "" {
		return nil
	}
	return t.byID(t.targetID)
}

// Replace swaps the whole message list, e.g. after loading a session's
// history. Any in-flight streaming state is discarded: reconstructed history
// is inherently static.
func (t *Transcript) Replace(messages []*Message) {
	t.messages = messages
	t.targetID = ""
	t.streaming = false
}

// Clear empties the transcript.
func (t *Transcript) Clear() {
	t.Replace(nil)
}

// BeginTurn appends the finalized user message and an empty assistant
// message flagged streaming, which becomes the target of subsequent events.
func (t *Transcript) BeginTurn(text string) {
	user := &Message{
		ID:      uuid.New().String(),
		Role:    RoleUser,
		Content: text,
	}
	assistant := &Message{
		ID:        uuid.New().String(),
		Role:      RoleAssistant,
		Streaming: true,
	}
	t.messages = append(t.messages, user, assistant)
	t.targetID = assistant.ID
	t.streaming = true
}

// Apply folds one decoded event into the transcript, strictly in arrival
// order. It returns true when the event terminated the turn (done or error);
// after an error the caller must stop consuming the stream.
//
// Events arriving while no target exists are dropped: this happens when the
// user navigated to another session mid-stream, and the stream's events must
// not land on whatever is on screen.
func (t *Transcript) Apply(ev stream.Event) bool {
	target := t.Target()

	switch ev.Type {
	case stream.EventRetrieval:
		if target != nil {
			target.Retrievals = ev.Results
		}

	case stream.EventToken:
		if target != nil {
			target.Content += ev.Content
		}

	case stream.EventToolStart:
		if target != nil {
			t.startTool(target, ev)
		}

	case stream.EventToolEnd:
		if target != nil {
			t.endTool(target, ev)
		}

	case stream.EventNewResponse:
		// Finalize-old, create-new, retarget as one step so the very next
		// event is guaranteed to land on the new message.
		if target != nil {
			target.Streaming = false
			target.PendingTools = nil
		}
		next := &Message{
			ID:        uuid.New().String(),
			Role:      RoleAssistant,
			Streaming: true,
		}
		t.messages = append(t.messages, next)
		t.targetID = next.ID

	case stream.EventDone:
		t.finish(target)
		return true

	case stream.EventError:
		if target != nil {
			sep := ""
			if target.Content != "" {
				sep = "\n\n"
			}
			target.Content += sep + errorNotice + ev.Error
		}
		t.finish(target)
		return true

	case stream.EventTitle:
		// Session metadata, not message state. Handled by the Controller.
	}

	return false
}

// Finish finalizes the target and releases the turn without recording
// anything, used when the transport closes before a done event arrives.
func (t *Transcript) Finish() {
	t.finish(t.Target())
}

func (t *Transcript) finish(target *Message) {
	if target != nil {
		target.Streaming = false
		target.PendingTools = nil
	}
	t.targetID = ""
	t.streaming = false
}

// startTool records a pending tool. A repeated tool_start with the same run
// id replaces the earlier one; distinct run ids may be pending concurrently.
func (t *Transcript) startTool(target *Message, ev stream.Event) {
	pending := PendingTool{Tool: ev.Tool, Input: ev.Input, RunID: ev.RunID}
	for i, p := range target.PendingTools {
		if p.RunID == ev.RunID {
			target.PendingTools[i] = pending
			return
		}
	}
	target.PendingTools = append(target.PendingTools, pending)
}

// endTool pops the pending tool matching the event's run id and appends the
// completed call. With no match, the event's own tool name is used and the
// input recorded as empty — a defined degraded path, not an error.
func (t *Transcript) endTool(target *Message, ev stream.Event) {
	call := ToolCall{Tool: ev.Tool, Input: "", Output: ev.Output}
	for i, p := range target.PendingTools {
		if p.RunID == ev.RunID {
			call.Tool = p.Tool
			call.Input = p.Input
			target.PendingTools = append(target.PendingTools[:i], target.PendingTools[i+1:]...)
			break
		}
	}
	target.ToolCalls = append(target.ToolCalls, call)
}

func (t *Transcript) byID(id string) *Message {
	for _, m := range t.messages {
		if m.ID == id {
			return m
		}
	}
	return nil
}
