package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hyphasys/mcp-go/middleware"
	"github.com/hyphasys/mcp-go/protocol"
	"github.com/hyphasys/mcp-go/transport"
)

// Info identifies the server to clients during initialize.
type Info struct {
	Name    string
	Version string
}

// VersionPolicy decides whether a client-proposed protocol version is
// acceptable. A non-nil error rejects the initialize request and the
// connection stays uninitialized.
type VersionPolicy func(clientVersion string) error

// ExactVersion accepts only the protocol version this library speaks.
func ExactVersion(clientVersion string) error {
	if clientVersion != protocol.MCPVersion {
		return fmt.Errorf("unsupported protocol version %q, server speaks %s", clientVersion, protocol.MCPVersion)
	}
	return nil
}

const (
	defaultPageSize      = 50
	defaultPushQueueSize = 32
	defaultShutdownGrace = 30 * time.Second
)

// Option configures a Server.
type Option func(*Server)

// WithVersionPolicy replaces the exact-match protocol version check.
func WithVersionPolicy(p VersionPolicy) Option {
	return func(s *Server) { s.versionPolicy = p }
}

// WithLogger sets the structured logger for server-side diagnostics. The
// default discards everything.
func WithLogger(l middleware.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithPageSize sets how many entries list requests return per page.
func WithPageSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithPushQueueSize sets the per-connection outbound notification queue
// capacity. When a queue is full further pushes to that connection are
// dropped.
func WithPushQueueSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.pushQueueSize = n
		}
	}
}

// WithShutdownGrace bounds how long a closing connection waits for its
// in-flight handler calls.
func WithShutdownGrace(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.shutdownGrace = d
		}
	}
}

// WithSamplingHandler enables sampling/createMessage, fulfilled by h.
func WithSamplingHandler(h SamplingHandler) Option {
	return func(s *Server) { s.sampling = h }
}

// WithProgressHandler registers an observer for progress notifications sent
// by clients.
func WithProgressHandler(h ProgressHandler) Option {
	return func(s *Server) { s.progress = h }
}

// Server is the MCP server core: three handler registries, one session per
// live connection, and the dispatcher that routes decoded frames. It
// implements transport.Handler and the connection callbacks, so any
// Transport can serve it directly.
type Server struct {
	mu sync.RWMutex

	info          Info
	logger        middleware.Logger
	versionPolicy VersionPolicy
	pageSize      int
	pushQueueSize int
	shutdownGrace time.Duration

	tools     *registry[Tool]
	resources *registry[Resource]
	prompts   *registry[Prompt]

	subs *subscriptionTable

	sessionsMu sync.RWMutex
	sessions   map[string]*Session

	sampling SamplingHandler
	progress ProgressHandler

	middleware []middleware.Middleware
	chainOnce  sync.Once
	handler    middleware.HandlerFunc
}

// New creates a server with the given identity and options.
func New(info Info, opts ...Option) *Server {
	s := &Server{
		info:          info,
		logger:        middleware.NopLogger{},
		versionPolicy: ExactVersion,
		pageSize:      defaultPageSize,
		pushQueueSize: defaultPushQueueSize,
		shutdownGrace: defaultShutdownGrace,
		tools:         newRegistry[Tool](),
		resources:     newRegistry[Resource](),
		prompts:       newRegistry[Prompt](),
		subs:          newSubscriptionTable(),
		sessions:      make(map[string]*Session),
	}

	s.tools.onChange = func() { s.broadcastListChanged(protocol.MethodToolsListChanged) }
	s.resources.onChange = func() { s.broadcastListChanged(protocol.MethodResourcesListChanged) }
	s.prompts.onChange = func() { s.broadcastListChanged(protocol.MethodPromptsListChanged) }

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Info returns the server identity.
func (s *Server) Info() Info {
	return s.info
}

// Use appends middleware to the dispatch chain, executed outermost first.
// Must be called before the server starts handling requests.
func (s *Server) Use(mw ...middleware.Middleware) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.middleware = append(s.middleware, mw...)
}

// AddTool registers a tool. Registering a name again replaces the previous
// tool and keeps its position in listings.
func (s *Server) AddTool(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if t.Handler == nil {
		return fmt.Errorf("tool %q has no handler", t.Name)
	}
	s.tools.add(t.Name, t)
	return nil
}

// RemoveTool unregisters a tool. Removing an unknown name is a no-op.
func (s *Server) RemoveTool(name string) bool {
	return s.tools.remove(name)
}

// Tools returns all registered tools in registration order.
func (s *Server) Tools() []protocol.ToolInfo {
	entries := s.tools.snapshot()
	infos := make([]protocol.ToolInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.value.info())
	}
	return infos
}

// AddResource registers a resource keyed by its URI. Reads resolve by exact
// URI first, then by the longest registered prefix.
func (s *Server) AddResource(r Resource) error {
	if err := protocol.ValidateURI(r.URI); err != nil {
		return fmt.Errorf("resource URI: %w", err)
	}
	if r.Handler == nil {
		return fmt.Errorf("resource %q has no handler", r.URI)
	}
	s.resources.add(r.URI, r)
	return nil
}

// RemoveResource unregisters a resource. Removing an unknown URI is a no-op.
func (s *Server) RemoveResource(uri string) bool {
	return s.resources.remove(uri)
}

// Resources returns all registered resources in registration order.
func (s *Server) Resources() []protocol.ResourceInfo {
	entries := s.resources.snapshot()
	infos := make([]protocol.ResourceInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.value.info())
	}
	return infos
}

// AddPrompt registers a prompt template.
func (s *Server) AddPrompt(p Prompt) error {
	if p.Name == "" {
		return fmt.Errorf("prompt name is required")
	}
	if p.Handler == nil {
		return fmt.Errorf("prompt %q has no handler", p.Name)
	}
	s.prompts.add(p.Name, p)
	return nil
}

// RemovePrompt unregisters a prompt. Removing an unknown name is a no-op.
func (s *Server) RemovePrompt(name string) bool {
	return s.prompts.remove(name)
}

// Prompts returns all registered prompts in registration order.
func (s *Server) Prompts() []protocol.PromptInfo {
	entries := s.prompts.snapshot()
	infos := make([]protocol.PromptInfo, 0, len(entries))
	for _, e := range entries {
		infos = append(infos, e.value.info())
	}
	return infos
}

// capabilities advertises a capability block for each non-empty registry,
// plus sampling when a handler is configured.
func (s *Server) capabilities() protocol.ServerCapabilities {
	caps := protocol.ServerCapabilities{}
	if s.tools.len() > 0 {
		caps.Tools = &protocol.ToolsCapability{ListChanged: true}
	}
	if s.resources.len() > 0 {
		caps.Resources = &protocol.ResourcesCapability{Subscribe: true, ListChanged: true}
	}
	if s.prompts.len() > 0 {
		caps.Prompts = &protocol.PromptsCapability{ListChanged: true}
	}
	if s.sampling != nil {
		caps.Sampling = &protocol.SamplingCapability{}
	}
	return caps
}

// ConnectionOpened creates the session for a new transport connection.
func (s *Server) ConnectionOpened(conn transport.Conn) {
	sess := newSession(conn, s.pushQueueSize, s.pruneBroken)

	s.sessionsMu.Lock()
	s.sessions[sess.ID()] = sess
	s.sessionsMu.Unlock()

	s.logger.Debug("connection opened", middleware.F("connection", sess.ID()))
}

// ConnectionClosed drains and tears down the session for a departed
// connection: in-flight handler calls get the configured grace, then every
// subscription the connection held is purged.
func (s *Server) ConnectionClosed(id string) {
	s.sessionsMu.Lock()
	sess := s.sessions[id]
	delete(s.sessions, id)
	s.sessionsMu.Unlock()

	if sess == nil {
		return
	}

	sess.life.beginShutdown()
	if err := sess.drain(s.shutdownGrace); err != nil {
		s.logger.Warn("connection close", middleware.F("connection", id), middleware.F("error", err.Error()))
	}
	s.purgeSubscriptions(id)
	sess.close()

	s.logger.Debug("connection closed", middleware.F("connection", id))
}

// session returns the live session for a connection ID.
func (s *Server) session(id string) *Session {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return s.sessions[id]
}

// Sessions returns a snapshot of the live sessions.
func (s *Server) Sessions() []*Session {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()

	out := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// purgeSubscriptions drops every membership connID holds and tells the
// owning handlers.
func (s *Server) purgeSubscriptions(connID string) {
	for _, uri := range s.subs.dropConn(connID) {
		if res, ok := s.resolveResource(uri); ok {
			if err := res.Handler.Unsubscribe(context.Background(), uri); err != nil {
				s.logger.Warn("unsubscribe on close", middleware.F("uri", uri), middleware.F("error", err.Error()))
			}
		}
	}
}

// pruneBroken runs from a session pump after a failed push. The connection
// cannot receive notifications anymore, so its subscriptions go away.
func (s *Server) pruneBroken(sess *Session) {
	s.subs.dropConn(sess.ID())
	s.logger.Warn("push failed, pruning subscriber", middleware.F("connection", sess.ID()))
}

// NotifyResourceUpdated pushes a resources/updated notification to every
// ready subscriber of uri. Delivery is best effort: a full queue drops the
// notification and the subscription with it.
func (s *Server) NotifyResourceUpdated(uri string) {
	ids := s.subs.subscribers(uri)
	if len(ids) == 0 {
		return
	}

	n := protocol.NewNotification(protocol.MethodResourcesUpdated, protocol.ResourceUpdatedParams{URI: uri})
	for _, id := range ids {
		sess := s.session(id)
		if sess == nil || sess.State() != StateReady {
			continue
		}
		if !sess.enqueue(n) {
			s.subs.unsubscribe(id, uri)
			s.logger.Warn("push queue full, pruning subscriber",
				middleware.F("connection", id), middleware.F("uri", uri))
		}
	}
}

// broadcastListChanged pushes a registry change notification to every ready
// connection. Runs on every registry mutation.
func (s *Server) broadcastListChanged(method string) {
	n := protocol.NewNotification(method, nil)
	for _, sess := range s.Sessions() {
		if sess.State() != StateReady {
			continue
		}
		if !sess.enqueue(n) {
			s.logger.Debug("list change dropped", middleware.F("connection", sess.ID()))
		}
	}
}

// HandleRequest implements transport.Handler. The middleware chain is
// composed around the dispatcher on first use.
func (s *Server) HandleRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	s.chainOnce.Do(s.buildChain)
	return s.handler(ctx, req)
}

func (s *Server) buildChain() {
	s.mu.RLock()
	mws := make([]middleware.Middleware, len(s.middleware))
	copy(mws, s.middleware)
	s.mu.RUnlock()

	s.handler = middleware.Chain(mws...)(s.dispatch)
}
