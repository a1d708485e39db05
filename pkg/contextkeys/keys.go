// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here.
//
//	ctx = contextkeys.WithAuthStatus(ctx, status)
//	status, ok := ctx.Value(contextkeys.AuthStatusKey).(session.AuthStatus)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthStatusKey contains session.AuthStatus
	// Set by: server.SessionMiddleware
	// Used by: server.RequireAuth, status handlers
	AuthStatusKey Key = "auth_status"

	// SessionIDKey contains the session id string of the current request
	// Set by: server.SessionMiddleware
	// Used by: protected handlers
	SessionIDKey Key = "session_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: httputil.RequestIDMiddleware
	// Used by: Logger, responses
	RequestIDKey Key = "request_id"

	// LoggerKey contains logrus.FieldLogger
	// Set by: httputil.LoggingMiddleware
	// Used by: observability.FromContext
	LoggerKey Key = "logger"
)

// WithAuthStatus adds the validated auth status to the context
func WithAuthStatus(ctx context.Context, status interface{}) context.Context {
	return context.WithValue(ctx, AuthStatusKey, status)
}

// WithSessionID adds the session id to the context
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetSessionID retrieves the session id from context
func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(SessionIDKey).(string); ok {
		return id
	}
	return ""
}
