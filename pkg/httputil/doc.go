// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, status)
//	httputil.WriteUnauthorized(w, string(session.ReasonTokenExpired))
//
// # Request Origin
//
// OriginFromRequest reports the peer address and whether any proxy header is present.
// The admin provider only accepts loopback or private peers that were not proxied:
//
//	in := session.Input{Now: time.Now(), Origin: httputil.OriginFromRequest(r)}
//
// # Middleware
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.CORSMiddleware(cfg.Server.AllowedOrigins),
//	)(router)
package httputil
