// Package server implements the helix-backend HTTP API.
//
// # Endpoints
//
//	POST   /api/chat                            SSE chat turn
//	GET    /api/sessions                        list sessions
//	POST   /api/sessions                        create session
//	PUT    /api/sessions/{id}                   rename
//	DELETE /api/sessions/{id}                   delete
//	GET    /api/sessions/{id}/history           raw messages with tool_calls
//	POST   /api/sessions/{id}/generate-title    derive and store a short title
//	POST   /api/sessions/{id}/compress          archive oldest half into summary
//	GET    /api/files?path=...                  read a whitelisted file
//	POST   /api/files                           write a whitelisted file
//	GET    /api/skills                          list skills
//	GET    /api/tokens/session/{id}             approximate context size
//	POST   /api/tokens/files                    approximate sizes for paths
//	GET    /api/config/rag-mode                 retrieval-mode flag
//	PUT    /api/config/rag-mode                 set retrieval-mode flag
//
// # Chat streaming
//
// The chat handler frames events as "data: <json>\n\n" blocks. During a turn
// it accumulates assistant output into segments (split by new_response) and
// persists everything on done: the user message exactly once, then one
// assistant message per non-empty segment with its tool calls. Error paths
// also persist the user message so the history stays consistent for future
// turns. After the first successful assistant reply a short title is derived
// from the user message and emitted as a title event following done.
//
// # Limits
//
// Messages above the configured length cap are rejected before streaming.
// Sessions at or above the compress threshold are compressed before the turn
// runs. Replayed Idempotency-Key headers make the turn a duplicate no-op.
package server
