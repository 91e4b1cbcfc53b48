package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/hyphasys/mcp-go/protocol"
)

// Logger is the structured logging interface the server and its middleware
// write to.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// Field is one key-value pair of a structured log entry.
type Field struct {
	Key   string
	Value any
}

// F builds a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// NopLogger discards all entries. It is the server default.
type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}

// slogLogger bridges Logger to a log/slog backend.
type slogLogger struct {
	l *slog.Logger
}

// NewSlogLogger wraps a slog.Logger as a Logger. A nil argument uses
// slog.Default.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return &slogLogger{l: l}
}

func slogArgs(fields []Field) []any {
	args := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		args = append(args, f.Key, f.Value)
	}
	return args
}

func (s *slogLogger) Debug(msg string, fields ...Field) { s.l.Debug(msg, slogArgs(fields)...) }
func (s *slogLogger) Info(msg string, fields ...Field)  { s.l.Info(msg, slogArgs(fields)...) }
func (s *slogLogger) Warn(msg string, fields ...Field)  { s.l.Warn(msg, slogArgs(fields)...) }
func (s *slogLogger) Error(msg string, fields ...Field) { s.l.Error(msg, slogArgs(fields)...) }

// Logging logs one entry per handled request: completions at info level,
// handler errors at error level. Notifications log under their method name
// like any other frame.
func Logging(logger Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			start := time.Now()

			resp, err := next(ctx, req)

			fields := []Field{
				F("method", req.Method),
				F("duration", time.Since(start)),
			}
			if id := RequestIDFromContext(ctx); id != "" {
				fields = append(fields, F("request_id", id))
			}

			switch {
			case err != nil:
				logger.Error("request failed", append(fields, F("error", err.Error()))...)
			case resp != nil && resp.Error != nil:
				logger.Info("request rejected", append(fields, F("code", resp.Error.Code))...)
			default:
				logger.Info("request completed", fields...)
			}

			return resp, err
		}
	}
}
