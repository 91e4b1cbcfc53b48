package server

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hyphasys/mcp-go/protocol"
	"github.com/hyphasys/mcp-go/transport"
)

// Session is the server-side state of one client connection: its lifecycle
// position, the client identity learned during initialize, the minimum log
// level, and a bounded outbound push queue drained by a single pump
// goroutine. Handlers reach it through SessionFromContext to push logging or
// progress to their caller.
type Session struct {
	id   string
	conn transport.Conn

	mu         sync.RWMutex
	clientInfo protocol.ClientInfo
	clientCaps protocol.ClientCapabilities
	logLevel   protocol.LogLevel

	life *lifecycle

	pushCh    chan *protocol.Notification
	done      chan struct{}
	closeOnce sync.Once

	inflight atomic.Int64
	broken   atomic.Bool

	// onBroken runs once, from the pump goroutine, after the first failed
	// push. The server uses it to purge the connection's subscriptions.
	onBroken func(*Session)
}

func newSession(conn transport.Conn, queueSize int, onBroken func(*Session)) *Session {
	s := &Session{
		id:       conn.ID(),
		conn:     conn,
		logLevel: protocol.LogInfo,
		life:     newLifecycle(),
		pushCh:   make(chan *protocol.Notification, queueSize),
		done:     make(chan struct{}),
		onBroken: onBroken,
	}
	go s.pump()
	return s
}

// ID returns the connection ID this session belongs to.
func (s *Session) ID() string {
	return s.id
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	return s.life.current()
}

// ClientInfo returns the identity the client declared during initialize.
func (s *Session) ClientInfo() protocol.ClientInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientInfo
}

// ClientCapabilities returns the capabilities the client declared during
// initialize.
func (s *Session) ClientCapabilities() protocol.ClientCapabilities {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientCaps
}

func (s *Session) setClient(info protocol.ClientInfo, caps protocol.ClientCapabilities) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientInfo = info
	s.clientCaps = caps
}

// pump drains the push queue to the transport connection. Interleaving with
// responses is the transport's concern; the pump only guarantees queue order.
func (s *Session) pump() {
	for {
		select {
		case n := <-s.pushCh:
			if s.broken.Load() {
				continue
			}
			if err := s.conn.Push(n); err != nil {
				if s.broken.CompareAndSwap(false, true) && s.onBroken != nil {
					s.onBroken(s)
				}
			}
		case <-s.done:
			return
		}
	}
}

// enqueue offers a notification to the push queue without blocking. A full
// queue or a closed session drops the notification and reports false.
func (s *Session) enqueue(n *protocol.Notification) bool {
	if s.broken.Load() {
		return false
	}
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.pushCh <- n:
		return true
	default:
		return false
	}
}

// trackRequest records a handler invocation for shutdown draining.
func (s *Session) trackRequest() {
	s.inflight.Add(1)
}

// completeRequest marks a tracked invocation finished.
func (s *Session) completeRequest() {
	s.inflight.Add(-1)
}

// drain waits for in-flight handler calls to finish, polling until the
// timeout elapses.
func (s *Session) drain(timeout time.Duration) error {
	if s.inflight.Load() == 0 {
		return nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-tick.C:
			if s.inflight.Load() == 0 {
				return nil
			}
		case <-deadline.C:
			return fmt.Errorf("drain timed out with %d requests in flight", s.inflight.Load())
		}
	}
}

// close stops the pump and marks the lifecycle terminal. Idempotent.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		s.life.close()
		close(s.done)
	})
}

// SetLogLevel sets the minimum level for Log pushes.
func (s *Session) SetLogLevel(level protocol.LogLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logLevel = level
}

// LogLevel returns the current minimum level.
func (s *Session) LogLevel() protocol.LogLevel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logLevel
}

// Log pushes a logging/message notification to the client when level is at
// or above the session's minimum. Below-threshold messages are discarded
// without touching the queue.
func (s *Session) Log(level protocol.LogLevel, logger string, data any) {
	s.mu.RLock()
	min := s.logLevel
	s.mu.RUnlock()

	if level.Severity() < min.Severity() {
		return
	}

	s.enqueue(protocol.NewNotification(protocol.MethodLoggingMessage, protocol.LoggingMessageParams{
		Level:  level,
		Logger: logger,
		Data:   data,
	}))
}

// Debug logs at debug level.
func (s *Session) Debug(logger string, data any) { s.Log(protocol.LogDebug, logger, data) }

// Info logs at info level.
func (s *Session) Info(logger string, data any) { s.Log(protocol.LogInfo, logger, data) }

// Notice logs at notice level.
func (s *Session) Notice(logger string, data any) { s.Log(protocol.LogNotice, logger, data) }

// Warning logs at warning level.
func (s *Session) Warning(logger string, data any) { s.Log(protocol.LogWarning, logger, data) }

// Error logs at error level.
func (s *Session) Error(logger string, data any) { s.Log(protocol.LogError, logger, data) }

// Critical logs at critical level.
func (s *Session) Critical(logger string, data any) { s.Log(protocol.LogCritical, logger, data) }

// Alert logs at alert level.
func (s *Session) Alert(logger string, data any) { s.Log(protocol.LogAlert, logger, data) }

// Emergency logs at emergency level.
func (s *Session) Emergency(logger string, data any) { s.Log(protocol.LogEmergency, logger, data) }

// sessionKey is the context key for the session.
type sessionKey struct{}

// ContextWithSession returns a context carrying the session.
func ContextWithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session from ctx, or nil if none is
// attached.
func SessionFromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey{}).(*Session)
	return s
}
