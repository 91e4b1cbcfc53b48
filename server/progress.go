package server

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/hyphasys/mcp-go/protocol"
)

// ProgressToken identifies one long-running request for progress reporting.
type ProgressToken string

// ProgressReporter lets a handler push progress notifications to the client
// that issued the current request. Reporters are bound to the request's
// progress token; requests without one get a no-op reporter.
type ProgressReporter interface {
	// Report pushes a progress update in the range 0 to 1. Updates never
	// regress: a value below the previous one is raised to it.
	Report(progress float64, total *float64) error
	// Token returns the token this reporter is bound to, or empty.
	Token() ProgressToken
}

type progressReporter struct {
	token ProgressToken
	sess  *Session

	mu   sync.Mutex
	last float64
}

func newProgressReporter(token ProgressToken, sess *Session) *progressReporter {
	return &progressReporter{token: token, sess: sess}
}

func (p *progressReporter) Token() ProgressToken {
	return p.token
}

func (p *progressReporter) Report(progress float64, total *float64) error {
	p.mu.Lock()
	if progress < p.last {
		progress = p.last
	}
	p.last = progress
	p.mu.Unlock()

	p.sess.enqueue(protocol.NewNotification(protocol.MethodProgress, protocol.ProgressParams{
		ProgressToken: string(p.token),
		Progress:      progress,
		Total:         total,
	}))
	return nil
}

// noopProgressReporter serves requests that carry no progress token.
type noopProgressReporter struct{}

func (noopProgressReporter) Report(float64, *float64) error { return nil }
func (noopProgressReporter) Token() ProgressToken           { return "" }

// progressKey is the context key for the progress reporter.
type progressKey struct{}

// ContextWithProgress returns a context carrying the reporter.
func ContextWithProgress(ctx context.Context, reporter ProgressReporter) context.Context {
	return context.WithValue(ctx, progressKey{}, reporter)
}

// ProgressFromContext returns the request's progress reporter. Handlers can
// call it unconditionally; without a token it returns a no-op reporter.
func ProgressFromContext(ctx context.Context) ProgressReporter {
	if reporter, ok := ctx.Value(progressKey{}).(ProgressReporter); ok {
		return reporter
	}
	return noopProgressReporter{}
}

// extractProgressToken pulls _meta.progressToken out of request params.
func extractProgressToken(params json.RawMessage) ProgressToken {
	if len(params) == 0 {
		return ""
	}

	var meta struct {
		Meta struct {
			ProgressToken string `json:"progressToken"`
		} `json:"_meta"`
	}
	if err := json.Unmarshal(params, &meta); err != nil {
		return ""
	}
	return ProgressToken(meta.Meta.ProgressToken)
}

// withProgress binds a reporter to ctx when the request asked for progress.
func (s *Server) withProgress(ctx context.Context, sess *Session, params json.RawMessage) context.Context {
	token := extractProgressToken(params)
	if token == "" || sess == nil {
		return ctx
	}
	return ContextWithProgress(ctx, newProgressReporter(token, sess))
}
