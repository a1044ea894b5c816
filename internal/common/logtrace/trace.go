package logtrace

import (
	"context"
)

type contextKey string

const requestIDKey contextKey = "requestId"

// WithRequestID returns a copy of ctx carrying the request ID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIdFromContext extracts the request ID from the context.
// Returns an empty string if the context is nil or if no request ID is found.
func RequestIdFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	r, ok := ctx.Value(requestIDKey).(string)
	if !ok {
		return ""
	}
	return r
}
