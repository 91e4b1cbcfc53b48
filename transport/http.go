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
	"github.com/tmaxmax/go-sse"

	"github.com/hyphasys/mcp-go/protocol"
)

// HTTP implements an MCP transport over plain HTTP with server-sent events
// for push. Request/response pairs are answered on their own POST exchange;
// each event stream is its own connection and the sole push destination for
// the session bound to it.
//
// Endpoints (relative to the base path, default "/mcp"):
//
//	POST {base}?session=<id>  JSON-RPC requests
//	POST {base}/notify?session=<id>  fire-and-forget notifications
//	GET  {base}/events  SSE stream; announces the session id
//	GET  /health  liveness probe
type HTTP struct {
	addr         string
	basePath     string
	readTimeout  time.Duration
	writeTimeout time.Duration
	corsConfig   *CORSConfig

	mu         sync.RWMutex
	listenAddr string
	server     *http.Server

	conns   map[string]*sseConn
	connsMu sync.RWMutex
}

// HTTPOption configures the HTTP transport.
type HTTPOption func(*HTTP)

// WithReadTimeout sets the read timeout for HTTP requests.
func WithReadTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.readTimeout = d
	}
}

// WithWriteTimeout sets the write timeout for HTTP responses. It applies to
// every endpoint including event streams, so a non-zero value bounds the
// lifetime of push connections.
func WithWriteTimeout(d time.Duration) HTTPOption {
	return func(h *HTTP) {
		h.writeTimeout = d
	}
}

// WithBasePath moves the MCP endpoints under a different path prefix.
func WithBasePath(p string) HTTPOption {
	return func(h *HTTP) {
		h.basePath = p
	}
}

// NewHTTP creates a new HTTP transport listening on addr.
func NewHTTP(addr string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		addr:        addr,
		basePath:    "/mcp",
		readTimeout: 30 * time.Second,
		conns:       make(map[string]*sseConn),
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// Addr returns the configured address.
func (h *HTTP) Addr() string {
	return h.addr
}

// ListenAddr returns the actual address the server is listening on.
func (h *HTTP) ListenAddr() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.listenAddr
}

// Serve starts the HTTP server and handles requests until ctx is canceled.
func (h *HTTP) Serve(ctx context.Context, handler Handler) error {
	httpHandler := h.createHandler(handler)

	listener, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	h.mu.Lock()
	h.listenAddr = listener.Addr().String()
	h.server = &http.Server{
		Handler:      httpHandler,
		ReadTimeout:  h.readTimeout,
		WriteTimeout: h.writeTimeout,
	}
	h.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		if err := h.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		h.closeConns()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	case err := <-errCh:
		h.closeConns()
		return err
	}
}

// createHandler creates the HTTP handler for MCP requests.
func (h *HTTP) createHandler(handler Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	mux.HandleFunc(h.basePath+"/events", func(w http.ResponseWriter, r *http.Request) {
		h.handleEvents(w, r, handler)
	})

	mux.HandleFunc(h.basePath+"/notify", func(w http.ResponseWriter, r *http.Request) {
		h.handleNotify(w, r, handler)
	})

	mux.HandleFunc(h.basePath, func(w http.ResponseWriter, r *http.Request) {
		h.handleRequest(w, r, handler)
	})

	if h.corsConfig != nil {
		return CORSHandler(*h.corsConfig, mux)
	}
	return mux
}

// sseConn is one event-stream connection. Sends are serialized; the go-sse
// session is not safe for concurrent use.
type sseConn struct {
	id   string
	sess *sse.Session

	mu        sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (c *sseConn) ID() string {
	return c.id
}

func (c *sseConn) Push(n *protocol.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}

	msg := &sse.Message{Type: sse.Type("message")}
	msg.AppendData(string(data))

	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return errors.New("connection closed")
	default:
	}

	if err := c.sess.Send(msg); err != nil {
		return err
	}
	return c.sess.Flush()
}

func (c *sseConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

// handleEvents upgrades the exchange to an SSE stream and keeps it open
// until the client disconnects or the server stops. The first event names
// the endpoint the client should POST to for this session.
func (h *HTTP) handleEvents(w http.ResponseWriter, r *http.Request, handler Handler) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	sess, err := sse.Upgrade(w, r)
	if err != nil {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	conn := &sseConn{
		id:   uuid.NewString(),
		sess: sess,
		done: make(chan struct{}),
	}

	h.connsMu.Lock()
	h.conns[conn.id] = conn
	h.connsMu.Unlock()

	defer func() {
		h.connsMu.Lock()
		delete(h.conns, conn.id)
		h.connsMu.Unlock()
		notifyConnectionClosed(handler, conn.id)
	}()

	notifyConnectionOpened(handler, conn)

	endpoint := &sse.Message{Type: sse.Type("endpoint")}
	endpoint.AppendData(fmt.Sprintf("%s?session=%s", h.basePath, conn.id))
	if err := sess.Send(endpoint); err != nil {
		return
	}
	if err := sess.Flush(); err != nil {
		return
	}

	select {
	case <-r.Context().Done():
		conn.Close()
	case <-conn.done:
	}
}

// lookupConn resolves the session query parameter to its event-stream
// connection.
func (h *HTTP) lookupConn(r *http.Request) (*sseConn, bool) {
	id := r.URL.Query().Get("session")
	if id == "" {
		return nil, false
	}
	h.connsMu.RLock()
	defer h.connsMu.RUnlock()
	conn, ok := h.conns[id]
	return conn, ok
}

// handleRequest handles JSON-RPC requests over POST exchanges.
func (h *HTTP) handleRequest(w http.ResponseWriter, r *http.Request, handler Handler) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	var req protocol.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp := protocol.NewErrorResponse(nil, protocol.NewParseError("invalid JSON"))
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	conn, ok := h.lookupConn(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		resp := protocol.NewErrorResponse(req.ID, protocol.NewInvalidRequest("unknown or missing session"))
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	ctx := ContextWithConn(r.Context(), conn)
	ctx = protocol.ContextWithRequestMeta(ctx, protocol.RequestMeta{
		"transport":   "http",
		"connection":  conn.id,
		"remote_addr": r.RemoteAddr,
	})

	resp, err := handler.HandleRequest(ctx, &req)

	if req.IsNotification() {
		w.WriteHeader(http.StatusAccepted)
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
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// handleNotify accepts fire-and-forget notifications. The frame is handed to
// the engine and the exchange completes with 202 regardless of outcome;
// notifications never produce responses.
func (h *HTTP) handleNotify(w http.ResponseWriter, r *http.Request, handler Handler) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req protocol.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if !req.IsNotification() {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	conn, ok := h.lookupConn(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ctx := ContextWithConn(r.Context(), conn)
	ctx = protocol.ContextWithRequestMeta(ctx, protocol.RequestMeta{
		"transport":   "http",
		"connection":  conn.id,
		"remote_addr": r.RemoteAddr,
	})

	_, _ = handler.HandleRequest(ctx, &req)
	w.WriteHeader(http.StatusAccepted)
}

// closeConns tears down every open event stream.
func (h *HTTP) closeConns() {
	h.connsMu.Lock()
	conns := make([]*sseConn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.connsMu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
