package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/hyphasys/mcp-go/protocol"
)

// mockLogger captures entries for assertions.
type mockLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level   string
	message string
	fields  []Field
}

func (l *mockLogger) record(level, msg string, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, message: msg, fields: fields})
}

func (l *mockLogger) Debug(msg string, fields ...Field) { l.record("debug", msg, fields) }
func (l *mockLogger) Info(msg string, fields ...Field)  { l.record("info", msg, fields) }
func (l *mockLogger) Warn(msg string, fields ...Field)  { l.record("warn", msg, fields) }
func (l *mockLogger) Error(msg string, fields ...Field) { l.record("error", msg, fields) }

func (l *mockLogger) all() []logEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logEntry(nil), l.entries...)
}

func (l *mockLogger) fieldValue(entry logEntry, key string) any {
	for _, f := range entry.fields {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

func TestLogging(t *testing.T) {
	req := &protocol.Request{JSONRPC: "2.0", ID: []byte("1"), Method: "tools/list"}

	t.Run("logs completions at info", func(t *testing.T) {
		logger := &mockLogger{}
		wrapped := Logging(logger)(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			return protocol.NewResponse(req.ID, "ok"), nil
		})

		if _, err := wrapped(context.Background(), req); err != nil {
			t.Fatalf("wrapped: %v", err)
		}

		entries := logger.all()
		if len(entries) != 1 {
			t.Fatalf("entries = %d, want 1", len(entries))
		}
		if entries[0].level != "info" || entries[0].message != "request completed" {
			t.Errorf("entry = %+v", entries[0])
		}
		if got := logger.fieldValue(entries[0], "method"); got != "tools/list" {
			t.Errorf("method field = %v", got)
		}
	})

	t.Run("logs handler errors at error", func(t *testing.T) {
		logger := &mockLogger{}
		wrapped := Logging(logger)(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			return nil, errors.New("boom")
		})

		wrapped(context.Background(), req)

		entries := logger.all()
		if len(entries) != 1 || entries[0].level != "error" {
			t.Fatalf("entries = %+v", entries)
		}
		if got := logger.fieldValue(entries[0], "error"); got != "boom" {
			t.Errorf("error field = %v", got)
		}
	})

	t.Run("logs protocol rejections with their code", func(t *testing.T) {
		logger := &mockLogger{}
		wrapped := Logging(logger)(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			return protocol.NewErrorResponse(req.ID, protocol.NewMethodNotFound("nope")), nil
		})

		wrapped(context.Background(), req)

		entries := logger.all()
		if len(entries) != 1 || entries[0].message != "request rejected" {
			t.Fatalf("entries = %+v", entries)
		}
		if got := logger.fieldValue(entries[0], "code"); got != protocol.CodeMethodNotFound {
			t.Errorf("code field = %v", got)
		}
	})

	t.Run("includes the request id when present", func(t *testing.T) {
		logger := &mockLogger{}
		wrapped := Logging(logger)(func(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
			return protocol.NewResponse(req.ID, "ok"), nil
		})

		ctx := ContextWithRequestID(context.Background(), "trace-1")
		wrapped(ctx, req)

		entries := logger.all()
		if got := logger.fieldValue(entries[0], "request_id"); got != "trace-1" {
			t.Errorf("request_id field = %v", got)
		}
	})
}

func TestNewSlogLogger(t *testing.T) {
	t.Run("forwards fields as attributes", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewSlogLogger(slog.New(slog.NewTextHandler(&buf, nil)))

		logger.Info("request completed", F("method", "ping"))

		out := buf.String()
		if !strings.Contains(out, "request completed") || !strings.Contains(out, "method=ping") {
			t.Errorf("output = %q", out)
		}
	})

	t.Run("nil logger falls back to the default", func(t *testing.T) {
		if NewSlogLogger(nil) == nil {
			t.Fatal("expected a logger")
		}
	})
}
