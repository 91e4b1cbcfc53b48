package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hyphasys/mcp-go/protocol"
)

// closeGrace bounds how long a closing connection waits for in-flight
// requests before abandoning their responses.
const closeGrace = 2 * time.Second

// WebSocket implements MCP transport over full-duplex WebSocket
// connections. Frames are multiplexed by request id: every decoded frame is
// handled in its own goroutine, so overlapping in-flight requests proceed
// concurrently while all writes funnel through one serialized writer per
// socket.
type WebSocket struct {
	addr     string
	upgrader websocket.Upgrader
	server   *http.Server

	readTimeout  time.Duration
	writeTimeout time.Duration

	mu         sync.RWMutex
	listenAddr string
	clients    map[*wsConn]struct{}
}

// WebSocketOption configures a WebSocket transport.
type WebSocketOption func(*WebSocket)

// WithWebSocketReadTimeout sets the read timeout for WebSocket messages.
// Zero, the default, leaves idle connections open indefinitely.
func WithWebSocketReadTimeout(d time.Duration) WebSocketOption {
	return func(ws *WebSocket) {
		ws.readTimeout = d
	}
}

// WithWebSocketWriteTimeout sets the write timeout for WebSocket messages.
func WithWebSocketWriteTimeout(d time.Duration) WebSocketOption {
	return func(ws *WebSocket) {
		ws.writeTimeout = d
	}
}

// WithWebSocketCheckOrigin sets the origin check function for WebSocket upgrades.
func WithWebSocketCheckOrigin(fn func(r *http.Request) bool) WebSocketOption {
	return func(ws *WebSocket) {
		ws.upgrader.CheckOrigin = fn
	}
}

// NewWebSocket creates a new WebSocket transport.
func NewWebSocket(addr string, opts ...WebSocketOption) *WebSocket {
	ws := &WebSocket{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // Allow all origins by default
		},
		writeTimeout: 10 * time.Second,
		clients:      make(map[*wsConn]struct{}),
	}

	for _, opt := range opts {
		opt(ws)
	}

	return ws
}

// Addr returns the transport address.
func (ws *WebSocket) Addr() string {
	return ws.addr
}

// ListenAddr returns the actual address the server is listening on.
func (ws *WebSocket) ListenAddr() string {
	ws.mu.RLock()
	defer ws.mu.RUnlock()
	return ws.listenAddr
}

// Serve starts the WebSocket server.
func (ws *WebSocket) Serve(ctx context.Context, handler Handler) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ws.handleConnection(ctx, w, r, handler)
	})

	listener, err := net.Listen("tcp", ws.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	ws.mu.Lock()
	ws.listenAddr = listener.Addr().String()
	ws.server = &http.Server{
		Handler:     mux,
		ReadTimeout: ws.readTimeout,
	}
	ws.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		if err := ws.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ws.closeAllClients()
		if err := ws.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errChan:
		return err
	}
}

// wsConn is a single WebSocket connection. pending correlates in-flight
// request ids to their cancellation; an entry is removed once its response
// is written.
type wsConn struct {
	id   string
	conn *websocket.Conn

	writeMu      sync.Mutex
	writeTimeout time.Duration

	mu      sync.Mutex
	pending map[string]context.CancelFunc
	closed  bool

	inflight  sync.WaitGroup
	closeOnce sync.Once
}

func (c *wsConn) ID() string {
	return c.id
}

func (c *wsConn) Push(n *protocol.Notification) error {
	return c.writeJSON(n)
}

// Close cancels in-flight requests, waits briefly for them to settle and
// closes the socket. Responses that miss the grace window are abandoned.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		for _, cancel := range c.pending {
			cancel()
		}
		c.mu.Unlock()

		settled := make(chan struct{})
		go func() {
			c.inflight.Wait()
			close(settled)
		}()
		select {
		case <-settled:
		case <-time.After(closeGrace):
		}

		c.writeMu.Lock()
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.conn.Close()
		c.writeMu.Unlock()
	})
	return nil
}

// track registers an in-flight request id and returns its context plus a
// finish func that removes the correlation entry.
func (c *wsConn) track(ctx context.Context, id json.RawMessage) (context.Context, func()) {
	if len(id) == 0 {
		return ctx, func() {}
	}

	ctx, cancel := context.WithCancel(ctx)
	key := string(id)

	c.mu.Lock()
	c.pending[key] = cancel
	c.mu.Unlock()

	return ctx, func() {
		cancel()
		c.mu.Lock()
		delete(c.pending, key)
		c.mu.Unlock()
	}
}

func (c *wsConn) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errors.New("connection closed")
	}

	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.conn.WriteJSON(v)
}

func (ws *WebSocket) handleConnection(ctx context.Context, w http.ResponseWriter, r *http.Request, handler Handler) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	client := &wsConn{
		id:           uuid.NewString(),
		conn:         conn,
		writeTimeout: ws.writeTimeout,
		pending:      make(map[string]context.CancelFunc),
	}

	ws.mu.Lock()
	ws.clients[client] = struct{}{}
	ws.mu.Unlock()

	defer func() {
		ws.mu.Lock()
		delete(ws.clients, client)
		ws.mu.Unlock()
		client.Close()
		notifyConnectionClosed(handler, client.id)
	}()

	notifyConnectionOpened(handler, client)

	connCtx := ContextWithConn(ctx, client)
	connCtx = protocol.ContextWithRequestMeta(connCtx, protocol.RequestMeta{
		"transport":   "websocket",
		"connection":  client.id,
		"remote_addr": r.RemoteAddr,
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if ws.readTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(ws.readTimeout))
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			// Close errors are normal; the client disconnected.
			return
		}

		var req protocol.Request
		if err := json.Unmarshal(message, &req); err != nil {
			resp := protocol.NewErrorResponse(nil, protocol.NewParseError(err.Error()))
			_ = client.writeJSON(resp)
			continue
		}

		client.inflight.Add(1)
		go func(req protocol.Request) {
			defer client.inflight.Done()

			reqCtx, finish := client.track(connCtx, req.ID)
			defer finish()

			resp, err := handler.HandleRequest(reqCtx, &req)

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
				_ = client.writeJSON(resp)
			}
		}(req)
	}
}

func (ws *WebSocket) closeAllClients() {
	ws.mu.Lock()
	clients := make([]*wsConn, 0, len(ws.clients))
	for client := range ws.clients {
		clients = append(clients, client)
	}
	ws.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}
}
