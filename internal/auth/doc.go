// Package auth provides JWT bearer authentication for the helix backend.
//
// Tokens are HS256-signed JWTs carrying the subject in the "sub" claim. The
// JWTVerifier both mints tokens (helix-admin) and verifies them (the HTTP
// middleware). Auth is opt-in: the backend only installs the middleware when
// a secret is configured, so local development runs open by default.
//
//	verifier := auth.NewJWTVerifier([]byte(secret))
//	mux.Handle("/api/", auth.Middleware(verifier)(apiHandler))
//
// Handlers can recover the authenticated subject with SubjectFromContext.
package auth
