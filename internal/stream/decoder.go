// ABOUTME: Chunk-boundary-tolerant decoder for the chat SSE stream.
// ABOUTME: Buffers raw bytes, splits on blank-line separators, parses data lines.

package stream

import (
	"bytes"
	"io"
)

const (
	// dataPrefix marks payload lines inside an event block.
	dataPrefix = "data: "
	// readChunkSize is the transport read granularity. Event boundaries do
	// not align with it; the buffer split handles that.
	readChunkSize = 4096
)

var eventSeparator = []byte("\n\n")

// Decoder turns a raw byte stream into an in-order sequence of Events.
//
// Incoming bytes are appended to an internal buffer which is split on the
// blank-line event separator. Every complete segment is decoded as one event;
// the trailing (possibly incomplete) segment is retained for the next read.
// This makes the decoded sequence invariant under how the transport chunks
// the bytes.
//
// Decoder is not safe for concurrent use and cannot be restarted.
type Decoder struct {
	r       io.Reader
	buf     []byte
	pending []Event
	ev      Event
	err     error
	eof     bool
}

// NewDecoder returns a Decoder reading events from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// FailedDecoder returns a Decoder that yields a single synthetic error event
// and then ends. Used when the chat request itself fails before any byte of
// the stream arrives, so transport failures surface through the same path as
// mid-stream agent errors.
func FailedDecoder(reason string) *Decoder {
	return &Decoder{
		pending: []Event{{Type: EventError, Error: reason}},
		eof:     true,
	}
}

// Scan advances to the next event. It returns false when the stream ends or
// a read error occurs; Err reports the error, if any.
func (d *Decoder) Scan() bool {
	for {
		if len(d.pending) > 0 {
			d.ev = d.pending[0]
			d.pending = d.pending[1:]
			return true
		}
		if d.eof {
			return false
		}
		if !d.fill() {
			return false
		}
	}
}

// Event returns the event produced by the most recent successful Scan.
func (d *Decoder) Event() Event {
	return d.ev
}

// Err returns the first transport error encountered, if any. io.EOF is the
// normal end of stream and is not reported.
func (d *Decoder) Err() error {
	return d.err
}

// Close releases the underlying transport when it is closable and ends the
// stream. Callers that stop consuming before the stream ends must call it;
// closing after the stream ended is a no-op.
func (d *Decoder) Close() error {
	d.eof = true
	d.pending = nil
	if c, ok := d.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// fill reads one chunk from the transport and decodes any event blocks it
// completes. Returns false when nothing further can be produced.
func (d *Decoder) fill() bool {
	chunk := make([]byte, readChunkSize)
	n, err := d.r.Read(chunk)
	if n > 0 {
		d.buf = append(d.buf, chunk[:n]...)
		d.drain(false)
	}
	if err != nil {
		d.eof = true
		if err != io.EOF {
			d.err = err
		}
		// Flush whatever remains: a final block may lack the trailing
		// separator when the server closes the connection after it.
		d.drain(true)
	}
	return len(d.pending) > 0 || !d.eof
}

// drain splits the buffer on event separators and decodes complete segments.
// With flush set, the remaining tail is decoded as a final segment.
func (d *Decoder) drain(flush bool) {
	for {
		i := bytes.Index(d.buf, eventSeparator)
		if i < 0 {
			break
		}
		segment := d.buf[:i]
		d.buf = d.buf[i+len(eventSeparator):]
		d.decodeSegment(segment)
	}
	if flush && len(d.buf) > 0 {
		d.decodeSegment(d.buf)
		d.buf = nil
	}
}

// decodeSegment parses the payload lines of one event block. Lines without
// the data prefix and payloads that fail to parse are skipped silently.
func (d *Decoder) decodeSegment(segment []byte) {
	for _, line := range bytes.Split(segment, []byte("\n")) {
		if !bytes.HasPrefix(line, []byte(dataPrefix)) {
			continue
		}
		payload := line[len(dataPrefix):]
		if ev, ok := parseEvent(payload); ok {
			d.pending = append(d.pending, ev)
		}
	}
}
