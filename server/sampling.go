package server

import (
	"context"

	"github.com/hyphasys/mcp-go/protocol"
)

// SamplingHandler fulfills sampling/createMessage requests, typically by
// delegating to a language model. Servers without one configured answer the
// method with method-not-found.
type SamplingHandler interface {
	CreateMessage(ctx context.Context, params *protocol.CreateMessageParams) (*protocol.CreateMessageResult, error)
}

// SamplingHandlerFunc adapts a function to SamplingHandler.
type SamplingHandlerFunc func(ctx context.Context, params *protocol.CreateMessageParams) (*protocol.CreateMessageResult, error)

// CreateMessage implements SamplingHandler.
func (f SamplingHandlerFunc) CreateMessage(ctx context.Context, params *protocol.CreateMessageParams) (*protocol.CreateMessageResult, error) {
	return f(ctx, params)
}

// ProgressHandler observes progress notifications sent by clients. The
// session identifies which connection reported.
type ProgressHandler interface {
	OnProgress(ctx context.Context, sess *Session, params *protocol.ProgressParams)
}

// ProgressHandlerFunc adapts a function to ProgressHandler.
type ProgressHandlerFunc func(ctx context.Context, sess *Session, params *protocol.ProgressParams)

// OnProgress implements ProgressHandler.
func (f ProgressHandlerFunc) OnProgress(ctx context.Context, sess *Session, params *protocol.ProgressParams) {
	f(ctx, sess, params)
}
