// Package stream decodes the helix backend's chat event stream.
//
// # Wire format
//
// A chat turn (POST /api/chat) answers with a text/event-stream body made of
// blocks separated by a blank line. Each block carries one JSON payload on a
// "data: " line, discriminated by its "type" field:
//
//	data: {"type":"token","content":"Hel"}
//
//	data: {"type":"tool_end","tool":"search_knowledge","output":"..."}
//
//	data: {"type":"done","content":"Hello","session_id":"abc"}
//
// Event types: retrieval, token, tool_start, tool_end, new_response, done,
// title, error. Unknown types are ignored so older clients survive protocol
// additions.
//
// # Decoder
//
// Decoder reconstructs whole events from arbitrary chunk boundaries: bytes
// are buffered until a blank-line separator completes a block, so a transport
// may split an event (or a single line) anywhere without changing the decoded
// sequence. Usage mirrors bufio.Scanner:
//
//	dec := stream.NewDecoder(resp.Body)
//	for dec.Scan() {
//	    ev := dec.Event()
//	    // apply ev
//	}
//	if err := dec.Err(); err != nil { ... }
//
// A payload line that fails to parse is skipped silently: a live conversation
// must not die on one malformed line.
//
// Decoders are single-use. A fresh stream must be opened per turn.
package stream
