// ABOUTME: Tests for the chat stream Decoder.
// ABOUTME: Covers chunk-boundary invariance, malformed-line tolerance, and failure paths.

package stream

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader delivers its payload in fixed-size reads to simulate a
// transport that splits events at arbitrary byte boundaries.
type chunkReader struct {
	data []byte
	size int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.size
	if n > len(r.data) {
		n = len(r.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func collect(t *testing.T, d *Decoder) []Event {
	t.Helper()
	var events []Event
	for d.Scan() {
		events = append(events, d.Event())
	}
	return events
}

const sampleStream = `data: {"type":"retrieval","query":"q","results":[{"text":"frag","score":0.9,"source":"memory/MEMORY.md"}]}

data: {"type":"token","content":"Hel"}

data: {"type":"token","content":"lo"}

data: {"type":"tool_start","tool":"search_knowledge","input":"{\"query\":\"x\"}"}

data: {"type":"tool_end","tool":"search_knowledge","output":"found"}

data: {"type":"done","content":"Hello","session_id":"s1"}

`

func TestDecoder_FullStream(t *testing.T) {
	d := NewDecoder(strings.NewReader(sampleStream))
	events := collect(t, d)
	require.NoError(t, d.Err())

	require.Len(t, events, 6)
	assert.Equal(t, EventRetrieval, events[0].Type)
	assert.Equal(t, "q", events[0].Query)
	require.Len(t, events[0].Results, 1)
	assert.Equal(t, "frag", events[0].Results[0].Text)
	assert.InDelta(t, 0.9, events[0].Results[0].Score, 1e-9)

	assert.Equal(t, EventToken, events[1].Type)
	assert.Equal(t, "Hel", events[1].Content)
	assert.Equal(t, "lo", events[2].Content)

	assert.Equal(t, EventToolStart, events[3].Type)
	assert.Equal(t, "search_knowledge", events[3].Tool)
	// run_id is absent on the wire; the tool name is the fallback key.
	assert.Equal(t, "search_knowledge", events[3].RunID)

	assert.Equal(t, EventToolEnd, events[4].Type)
	assert.Equal(t, "found", events[4].Output)

	assert.Equal(t, EventDone, events[5].Type)
	assert.Equal(t, "Hello", events[5].Content)
	assert.Equal(t, "s1", events[5].SessionID)
}

func TestDecoder_ChunkBoundaryInvariance(t *testing.T) {
	want := collect(t, NewDecoder(strings.NewReader(sampleStream)))

	// Every chunk size must yield the identical event sequence, including
	// size 1 which splits every line and every separator.
	for _, size := range []int{1, 2, 3, 7, 16, 64, 1024} {
		d := NewDecoder(&chunkReader{data: []byte(sampleStream), size: size})
		got := collect(t, d)
		require.NoError(t, d.Err())
		assert.Equal(t, want, got, "chunk size %d", size)
	}
}

func TestDecoder_MalformedLineSkipped(t *testing.T) {
	in := "data: {\"type\":\"token\",\"content\":\"a\"}\n\n" +
		"data: {not json at all\n\n" +
		"data: {\"type\":\"token\",\"content\":\"b\"}\n\n"

	d := NewDecoder(strings.NewReader(in))
	events := collect(t, d)
	require.NoError(t, d.Err())

	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Content)
	assert.Equal(t, "b", events[1].Content)
}

func TestDecoder_UnknownTypeIgnored(t *testing.T) {
	in := "data: {\"type\":\"heartbeat\"}\n\n" +
		"data: {\"type\":\"token\",\"content\":\"x\"}\n\n"

	d := NewDecoder(strings.NewReader(in))
	events := collect(t, d)

	require.Len(t, events, 1)
	assert.Equal(t, EventToken, events[0].Type)
}

func TestDecoder_NonDataLinesIgnored(t *testing.T) {
	in := "event: message\nretry: 500\ndata: {\"type\":\"token\",\"content\":\"x\"}\n\n"

	d := NewDecoder(strings.NewReader(in))
	events := collect(t, d)

	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].Content)
}

func TestDecoder_FinalBlockWithoutSeparator(t *testing.T) {
	// Server closed the connection right after the last block.
	in := "data: {\"type\":\"token\",\"content\":\"a\"}\n\n" +
		"data: {\"type\":\"done\",\"content\":\"a\"}"

	d := NewDecoder(strings.NewReader(in))
	events := collect(t, d)
	require.NoError(t, d.Err())

	require.Len(t, events, 2)
	assert.Equal(t, EventDone, events[1].Type)
}

func TestDecoder_EmptyStream(t *testing.T) {
	d := NewDecoder(strings.NewReader(""))
	assert.False(t, d.Scan())
	assert.NoError(t, d.Err())
}

func TestFailedDecoder(t *testing.T) {
	d := FailedDecoder("HTTP 502: bad gateway")
	events := collect(t, d)

	require.Len(t, events, 1)
	assert.Equal(t, EventError, events[0].Type)
	assert.Equal(t, "HTTP 502: bad gateway", events[0].Error)
	assert.False(t, d.Scan())
	assert.NoError(t, d.Err())
}

// errAfterReader yields its data, then a non-EOF error.
type errAfterReader struct {
	data []byte
	err  error
}

func (r *errAfterReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestDecoder_TransportErrorSurfacedViaErr(t *testing.T) {
	boom := errors.New("connection reset")
	d := NewDecoder(&errAfterReader{
		data: []byte("data: {\"type\":\"token\",\"content\":\"partial\"}\n\n"),
		err:  boom,
	})

	events := collect(t, d)
	require.Len(t, events, 1)
	assert.Equal(t, "partial", events[0].Content)
	assert.ErrorIs(t, d.Err(), boom)
}

// closeRecorder tracks whether the transport was released.
type closeRecorder struct {
	io.Reader
	closed bool
}

func (r *closeRecorder) Close() error {
	r.closed = true
	return nil
}

func TestDecoder_CloseReleasesTransport(t *testing.T) {
	in := "data: {\"type\":\"token\",\"content\":\"partial\"}\n\n" +
		"data: {\"type\":\"token\",\"content\":\"never read\"}\n\n"
	r := &closeRecorder{Reader: strings.NewReader(in)}

	d := NewDecoder(r)
	require.True(t, d.Scan())
	assert.Equal(t, "partial", d.Event().Content)

	// Abandoning the stream mid-way must still close the transport.
	require.NoError(t, d.Close())
	assert.True(t, r.closed)
	assert.False(t, d.Scan(), "closed decoder yields no further events")
}

func TestDecoder_CloseWithoutCloserIsNoOp(t *testing.T) {
	d := NewDecoder(strings.NewReader(""))
	assert.NoError(t, d.Close())
	assert.NoError(t, FailedDecoder("boom").Close())
}

func TestParseEvent_ErrorFallbackMessage(t *testing.T) {
	ev, ok := parseEvent([]byte(`{"type":"error"}`))
	require.True(t, ok)
	assert.Equal(t, "unknown error", ev.Error)
}

func TestParseEvent_RunIDPreferredWhenPresent(t *testing.T) {
	ev, ok := parseEvent([]byte(`{"type":"tool_start","tool":"terminal","input":"ls","run_id":"r-42"}`))
	require.True(t, ok)
	assert.Equal(t, "r-42", ev.RunID)
}
