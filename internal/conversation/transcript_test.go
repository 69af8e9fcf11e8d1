// ABOUTME: Tests for the Transcript event-application table.
// ABOUTME: Exercises ordering, response splitting, tool correlation, and errors.

package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/helix-console/internal/stream"
)

func token(s string) stream.Event {
	return stream.Event{Type: stream.EventToken, Content: s}
}

func TestTranscript_BeginTurn(t *testing.T) {
	var tr Transcript
	tr.BeginTurn("hello")

	msgs := tr.Messages()
	require.Len(t, msgs, 2)

	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.False(t, msgs[0].Streaming, "user message is finalized immediately")

	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Empty(t, msgs[1].Content)
	assert.True(t, msgs[1].Streaming)
	assert.True(t, tr.Streaming())
	assert.Same(t, msgs[1], tr.Target())
}

func TestTranscript_TokensAppendInOrder(t *testing.T) {
	var tr Transcript
	tr.BeginTurn("q")

	for _, s := range []string{"a", "b", "c"} {
		tr.Apply(token(s))
	}

	assert.Equal(t, "abc", tr.Target().Content)
}

func TestTranscript_ToolLifecycle(t *testing.T) {
	var tr Transcript
	tr.BeginTurn("q")

	tr.Apply(stream.Event{Type: stream.EventToolStart, Tool: "terminal", Input: "ls", RunID: "r1"})
	target := tr.Target()
	require.Len(t, target.PendingTools, 1)
	assert.Equal(t, "ls", target.PendingTools[0].Input)

	tr.Apply(stream.Event{Type: stream.EventToolEnd, Tool: "terminal", Output: "file.txt", RunID: "r1"})
	assert.Empty(t, target.PendingTools)
	require.Len(t, target.ToolCalls, 1)
	assert.Equal(t, ToolCall{Tool: "terminal", Input: "ls", Output: "file.txt"}, target.ToolCalls[0])
}

func TestTranscript_ConcurrentPendingTools(t *testing.T) {
	var tr Transcript
	tr.BeginTurn("q")

	tr.Apply(stream.Event{Type: stream.EventToolStart, Tool: "fetch_url", Input: "a", RunID: "r1"})
	tr.Apply(stream.Event{Type: stream.EventToolStart, Tool: "terminal", Input: "b", RunID: "r2"})

	// Ending the second one first must not disturb the first.
	tr.Apply(stream.Event{Type: stream.EventToolEnd, Tool: "terminal", Output: "out2", RunID: "r2"})
	tr.Apply(stream.Event{Type: stream.EventToolEnd, Tool: "fetch_url", Output: "out1", RunID: "r1"})

	target := tr.Target()
	require.Len(t, target.ToolCalls, 2)
	assert.Equal(t, ToolCall{Tool: "terminal", Input: "b", Output: "out2"}, target.ToolCalls[0])
	assert.Equal(t, ToolCall{Tool: "fetch_url", Input: "a", Output: "out1"}, target.ToolCalls[1])
}

func TestTranscript_UnmatchedToolEnd(t *testing.T) {
	var tr Transcript
	tr.BeginTurn("q")

	tr.Apply(stream.Event{Type: stream.EventToolEnd, Tool: "terminal", Output: "out", RunID: "ghost"})

	target := tr.Target()
	require.Len(t, target.ToolCalls, 1)
	assert.Equal(t, ToolCall{Tool: "terminal", Input: "", Output: "out"}, target.ToolCalls[0])
}

func TestTranscript_ToolStartSameRunIDReplaces(t *testing.T) {
	var tr Transcript
	tr.BeginTurn("q")

	tr.Apply(stream.Event{Type: stream.EventToolStart, Tool: "terminal", Input: "first", RunID: "r1"})
	tr.Apply(stream.Event{Type: stream.EventToolStart, Tool: "terminal", Input: "second", RunID: "r1"})

	target := tr.Target()
	require.Len(t, target.PendingTools, 1)
	assert.Equal(t, "second", target.PendingTools[0].Input)
}

func TestTranscript_RetrievalReplacesBatch(t *testing.T) {
	var tr Transcript
	tr.BeginTurn("q")

	first := []stream.RetrievalResult{{Text: "old", Score: 0.1, Source: "a"}}
	second := []stream.RetrievalResult{
		{Text: "new1", Score: 0.9, Source: "b"},
		{Text: "new2", Score: 0.8, Source: "c"},
	}
	tr.Apply(stream.Event{Type: stream.EventRetrieval, Results: first})
	tr.Apply(stream.Event{Type: stream.EventRetrieval, Results: second})

	assert.Equal(t, second, tr.Target().Retrievals)
}

func TestTranscript_ResponseSplitting(t *testing.T) {
	var tr Transcript
	tr.BeginTurn("q")

	tr.Apply(token("a"))
	tr.Apply(stream.Event{Type: stream.EventNewResponse})
	tr.Apply(token("b"))
	finished := tr.Apply(stream.Event{Type: stream.EventDone})

	assert.True(t, finished)
	msgs := tr.Messages()
	require.Len(t, msgs, 3) // user + two assistant messages

	assert.Equal(t, "a", msgs[1].Content)
	assert.False(t, msgs[1].Streaming)
	assert.Equal(t, "b", msgs[2].Content)
	assert.False(t, msgs[2].Streaming)
	assert.False(t, tr.Streaming())
	assert.Nil(t, tr.Target())
}

func TestTranscript_ErrorPreservesPartialContent(t *testing.T) {
	var tr Transcript
	tr.BeginTurn("q")

	tr.Apply(token("partial "))
	finished := tr.Apply(stream.Event{Type: stream.EventError, Error: "boom"})

	assert.True(t, finished)
	msg := tr.Messages()[1]
	assert.Equal(t, "partial \n\n"+errorNotice+"boom", msg.Content)
	assert.False(t, msg.Streaming)
	assert.False(t, tr.Streaming())
}

func TestTranscript_ErrorOnEmptyMessageHasNoSeparator(t *testing.T) {
	var tr Transcript
	tr.BeginTurn("q")

	tr.Apply(stream.Event{Type: stream.EventError, Error: "boom"})

	assert.Equal(t, errorNotice+"boom", tr.Messages()[1].Content)
}

func TestTranscript_ExactlyOneStreamingMessage(t *testing.T) {
	var tr Transcript
	tr.BeginTurn("q")

	tr.Apply(token("a"))
	tr.Apply(stream.Event{Type: stream.EventNewResponse})
	tr.Apply(stream.Event{Type: stream.EventNewResponse})

	var streaming int
	for _, m := range tr.Messages() {
		if m.Streaming {
			streaming++
		}
	}
	assert.Equal(t, 1, streaming)
}

func TestTranscript_EventsWithoutTargetAreDropped(t *testing.T) {
	var tr Transcript

	// No turn in flight: nothing to apply onto, nothing must panic.
	assert.False(t, tr.Apply(token("stray")))
	assert.Empty(t, tr.Messages())

	tr.BeginTurn("q")
	tr.Apply(stream.Event{Type: stream.EventDone})
	tr.Apply(token("late"))
	assert.Empty(t, tr.Messages()[1].Content)
}

func TestTranscript_FinishReleasesWithoutAnnotation(t *testing.T) {
	var tr Transcript
	tr.BeginTurn("q")
	tr.Apply(token("half"))

	tr.Finish()

	msg := tr.Messages()[1]
	assert.Equal(t, "half", msg.Content)
	assert.False(t, msg.Streaming)
	assert.False(t, tr.Streaming())
}

func TestTranscript_ReplaceDiscardsStreamingState(t *testing.T) {
	var tr Transcript
	tr.BeginTurn("q")

	tr.Replace([]*Message{{ID: "x", Role: RoleUser, Content: "old"}})

	assert.False(t, tr.Streaming())
	assert.Nil(t, tr.Target())
	require.Len(t, tr.Messages(), 1)
}
