// Package contextkeys holds the context keys shared across packages.
//
// All request-scoped values are stored under keys defined here so that the
// middleware that sets a value and the code that reads it agree on the key.
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// AuthKey contains *auth.Claims.
	// Set by middleware.Authenticate; read by every protected handler.
	AuthKey Key = "auth_claims"

	// RequestIDKey contains the request ID string (UUID).
	// Set by middleware.RequestID; read by the logger.
	RequestIDKey Key = "request_id"

	// UserIDKey contains the authenticated user's ID as int64.
	// Set by middleware.Authenticate; read by the logger.
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	LoggerKey Key = "logger"
)

// WithAuth adds authentication claims to the context
func WithAuth(ctx context.Context, claims interface{}) context.Context {
	return context.WithValue(ctx, AuthKey, claims)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(RequestIDKey).(string)
	return id, ok
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(UserIDKey).(int64)
	return id, ok
}
