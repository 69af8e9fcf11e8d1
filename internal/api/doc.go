// Package api is the HTTP client for the helix backend.
//
// # Overview
//
// The Client wraps every backend endpoint the console needs: session CRUD,
// history, chat streaming, compression, title generation, workspace files,
// skills, token statistics, and the retrieval-mode flag. It satisfies the
// conversation.Backend interface, so a Controller can be wired directly to a
// live backend:
//
//	client := api.New("http://localhost:8002", api.LoadToken(), logger)
//	ctrl := conversation.New(client, logger)
//
// # Chat streaming
//
// StreamTurn never returns an error. Transport failures and non-2xx responses
// are reported in-band as a single synthetic error event on the returned
// decoder, which keeps the caller's event loop uniform: there is exactly one
// way a turn ends badly, and it looks the same whether the backend refused the
// request or died halfway through the stream.
//
// # Authentication
//
// When a bearer token is configured every request carries an Authorization
// header. LoadToken resolves the token from HELIX_TOKEN or the XDG config
// directory (~/.config/helix/token); an empty token disables auth entirely,
// which is the normal mode against a local development backend.
package api
