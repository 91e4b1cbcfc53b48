package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/hyphasys/mcp-go/protocol"
)

// contextKey keeps this package's context values collision-free.
type contextKey string

const requestIDKey contextKey = "requestID"

// RequestID tags each request context with a fresh UUID. An id already
// present in the context is kept, so transport-assigned ids win.
func RequestID() Middleware {
	return RequestIDWithGenerator(uuid.NewString)
}

// RequestIDWithGenerator tags request contexts with ids from generator.
func RequestIDWithGenerator(generator func() string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			if RequestIDFromContext(ctx) == "" {
				ctx = ContextWithRequestID(ctx, generator())
			}
			return next(ctx, req)
		}
	}
}

// RequestIDFromContext returns the request id, or empty when none is set.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// ContextWithRequestID returns a context carrying id.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}
