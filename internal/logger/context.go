package logger

import "context"

// contextKey keeps request-scoped values private to this package.
type contextKey int

const requestIDKey contextKey = 0

// WithRequestID stores the request ID for downstream log correlation.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the stored request ID, or "" when none is set.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
