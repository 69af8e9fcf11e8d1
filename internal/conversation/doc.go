// Package conversation maintains the transcript of the active chat session
// and the cached session list, and folds decoded stream events into them.
//
// # Layers
//
// Two pieces compose the package:
//
//   - Transcript: the ordered message list plus the current streaming target.
//     Apply implements the event table as a deterministic transition, so the
//     full streaming behavior is unit-testable with no transport attached.
//   - Controller: owns a Transcript and the session cache, talks to the
//     backend through the Backend interface, and enforces single-flight
//     execution (at most one turn in flight per session).
//
// # Event application
//
// Events are applied strictly in arrival order to the current streaming
// target:
//
//	retrieval     replace the target's retrieval batch
//	token         append content to the target's text
//	tool_start    record a pending tool, keyed by run id
//	tool_end      pop the matching pending tool, append a completed ToolCall
//	new_response  finalize the target, retarget to a fresh assistant message
//	done          finalize, release the turn, reconcile the session list
//	title         update the cached session title
//	error         append an error notice, finalize, release, stop the stream
//
// A tool_end with no matching pending tool still records a ToolCall using the
// event's own tool name and an empty input. Multiple pending tools may be
// outstanding at once; run ids pair each start with its end.
//
// # Concurrency
//
// Controller and Transcript are single-goroutine types: all mutation happens
// synchronously while a turn is being consumed or a direct operation runs.
// Callers must not share a Controller across goroutines without their own
// serialization.
package conversation
