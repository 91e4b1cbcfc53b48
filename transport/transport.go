package transport

import (
	"context"

	"github.com/hyphasys/mcp-go/protocol"
)

// Handler processes incoming MCP requests.
type Handler interface {
	HandleRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
}

// HandlerFunc is an adapter to allow ordinary functions as handlers.
type HandlerFunc func(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

// HandleRequest calls f(ctx, req).
func (f HandlerFunc) HandleRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	return f(ctx, req)
}

// ConnectionHandler is implemented by handlers that keep per-connection
// state. Transports probe for it with a type assertion and, when present,
// report every accepted connection and its eventual teardown.
type ConnectionHandler interface {
	Handler

	// ConnectionOpened is called once when a connection is accepted,
	// before any of its frames are handled.
	ConnectionOpened(conn Conn)

	// ConnectionClosed is called once after the connection's receive loop
	// ends. No frames for the connection are handled afterwards.
	ConnectionClosed(id string)
}

// Conn is one accepted client connection. Push delivers an out-of-band
// notification to the peer; implementations serialize Push against response
// writing so frames never interleave.
type Conn interface {
	// ID returns the connection's unique identifier.
	ID() string

	// Push sends a notification to the peer.
	Push(n *protocol.Notification) error

	// Close tears the connection down.
	Close() error
}

// Transport defines the communication layer interface.
type Transport interface {
	// Serve starts the transport, blocking until ctx is canceled or an error occurs.
	Serve(ctx context.Context, handler Handler) error

	// Addr returns the transport's address description.
	Addr() string
}

// connKey is the context key for the current connection.
type connKey struct{}

// ContextWithConn returns a context with the connection attached.
func ContextWithConn(ctx context.Context, conn Conn) context.Context {
	return context.WithValue(ctx, connKey{}, conn)
}

// ConnFromContext returns the connection a request arrived on, or nil when
// the handler is invoked outside a transport.
func ConnFromContext(ctx context.Context) Conn {
	conn, _ := ctx.Value(connKey{}).(Conn)
	return conn
}

// notifyConnectionOpened reports conn to the handler when it tracks
// connections.
func notifyConnectionOpened(handler Handler, conn Conn) {
	if ch, ok := handler.(ConnectionHandler); ok {
		ch.ConnectionOpened(conn)
	}
}

// notifyConnectionClosed reports the closed connection to the handler when
// it tracks connections.
func notifyConnectionClosed(handler Handler, id string) {
	if ch, ok := handler.(ConnectionHandler); ok {
		ch.ConnectionClosed(id)
	}
}
