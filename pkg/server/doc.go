// Package server exposes session validation over HTTP.
//
// SessionMiddleware runs the validator once per request and hands the resulting
// session.AuthStatus to handlers through the request context. Routes:
//
//	GET      /auth/status          always 200, the caller's AuthStatus
//	GET      /auth/{provider}/me   the principal, or 401 {"error": reason}
//	GET|POST /auth/logout          destroys the session
//	GET      /auth/dev/login       only when dev login is enabled
//
// Application routes are guarded with Protect:
//
//	router.Handle("/api/facts", srv.Protect(factsHandler)).Methods("GET")
package server
