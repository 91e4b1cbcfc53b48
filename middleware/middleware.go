package middleware

import (
	"context"

	"github.com/hyphasys/mcp-go/protocol"
)

// HandlerFunc handles one decoded request frame. Notifications return a nil
// response.
type HandlerFunc func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

// Middleware wraps a handler with additional behavior.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares into one. Chain(a, b, c) runs a outermost, so a
// sees the request first and the response last.
func Chain(middlewares ...Middleware) Middleware {
	return func(final HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// DefaultStack is the recommended baseline: panic containment, request ids,
// and per-request logging, in that order.
func DefaultStack(logger Logger) []Middleware {
	return []Middleware{
		RecoverWithLogger(logger),
		RequestID(),
		Logging(logger),
	}
}
