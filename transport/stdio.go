package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/hyphasys/mcp-go/protocol"
)

// Stdio implements MCP transport over stdin/stdout. The byte stream carries
// newline-delimited JSON frames; all output funnels through one serialized
// writer so responses and pushed notifications never interleave.
type Stdio struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	mu sync.Mutex
}

// StdioOption configures a Stdio transport.
type StdioOption func(*Stdio)

// WithStdin sets a custom stdin reader.
func WithStdin(r io.Reader) StdioOption {
	return func(s *Stdio) {
		s.in = r
	}
}

// WithStdout sets a custom stdout writer.
func WithStdout(w io.Writer) StdioOption {
	return func(s *Stdio) {
		s.out = w
	}
}

// WithStderr sets a custom stderr writer.
func WithStderr(w io.Writer) StdioOption {
	return func(s *Stdio) {
		s.errOut = w
	}
}

// NewStdio creates a new stdio transport.
func NewStdio(opts ...StdioOption) *Stdio {
	s := &Stdio{
		in:     os.Stdin,
		out:    os.Stdout,
		errOut: os.Stderr,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Addr returns the transport address.
func (s *Stdio) Addr() string {
	return "stdio"
}

// stdioConn is the single connection a stdio transport carries.
type stdioConn struct {
	id     string
	s      *Stdio
	done   chan struct{}
	closed sync.Once
}

func (c *stdioConn) ID() string {
	return c.id
}

func (c *stdioConn) Push(n *protocol.Notification) error {
	return c.s.writeFrame(n)
}

func (c *stdioConn) Close() error {
	c.closed.Do(func() { close(c.done) })
	return nil
}

// Serve starts processing frames from stdin. The process's byte stream is
// one connection; each decoded frame is handled in its own goroutine so a
// slow handler does not stall the stream.
func (s *Stdio) Serve(ctx context.Context, handler Handler) error {
	conn := &stdioConn{id: uuid.NewString(), s: s, done: make(chan struct{})}
	notifyConnectionOpened(handler, conn)

	var inflight sync.WaitGroup
	defer func() {
		inflight.Wait()
		notifyConnectionClosed(handler, conn.id)
	}()

	ctx = ContextWithConn(ctx, conn)
	ctx = protocol.ContextWithRequestMeta(ctx, protocol.RequestMeta{
		"transport":  "stdio",
		"connection": conn.id,
	})

	scanner := bufio.NewScanner(s.in)

	lines := make(chan string)
	scanErr := make(chan error, 1)

	go func() {
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			case <-conn.done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			scanErr <- err
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-conn.done:
			return nil
		case err := <-scanErr:
			return err
		case line, ok := <-lines:
			if !ok {
				return nil // EOF
			}
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				s.handleLine(ctx, handler, line)
			}()
		}
	}
}

func (s *Stdio) handleLine(ctx context.Context, handler Handler, line string) {
	var req protocol.Request
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		// Diagnostics go to stderr; stdout carries only protocol frames.
		fmt.Fprintf(s.errOut, "mcp: malformed frame: %v\n", err)
		resp := protocol.NewErrorResponse(nil, protocol.NewParseError(err.Error()))
		s.writeFrame(resp)
		return
	}

	resp, err := handler.HandleRequest(ctx, &req)

	// Notifications never get a response, not even on failure.
	if req.IsNotification() {
		return
	}

	if err != nil {
		var mcpErr *protocol.Error
		if errors.As(err, &mcpErr) {
			resp = protocol.NewErrorResponse(req.ID, mcpErr)
		} else {
			resp = protocol.NewErrorResponse(req.ID, protocol.NewInternalError("internal error"))
		}
	}

	if resp != nil {
		s.writeFrame(resp)
	}
}

// writeFrame marshals v and writes it as one line under the writer lock.
func (s *Stdio) writeFrame(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.out.Write(data); err != nil {
		return err
	}
	_, err = s.out.Write([]byte("\n"))
	return err
}
