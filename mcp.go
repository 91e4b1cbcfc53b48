// Package mcp builds Model Context Protocol servers.
//
// The package is a thin facade over server, transport, middleware, and
// schema. A server carries registries of tools, resources, and prompts,
// tracks one session per connection, and speaks JSON-RPC 2.0 over any of the
// bundled transports.
//
// Basic usage:
//
//	srv := mcp.NewServer(mcp.ServerInfo{Name: "search", Version: "1.0.0"})
//
//	type SearchArgs struct {
//	    Query string `jsonschema:"required,description=What to look for"`
//	}
//
//	tool, err := mcp.NewTypedTool("search", "Search the index",
//	    func(ctx context.Context, args SearchArgs) (*mcp.CallToolResult, error) {
//	        return mcp.TextResult("results for " + args.Query), nil
//	    })
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.AddTool(tool); err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := mcp.ServeStdio(ctx, srv); err != nil {
//	    log.Fatal(err)
//	}
//
// Middleware attaches to the server itself and wraps every dispatched
// request, whatever transport it arrived on:
//
//	srv.Use(mcp.DefaultMiddleware(logger)...)
package mcp

import (
	"context"

	"github.com/hyphasys/mcp-go/middleware"
	"github.com/hyphasys/mcp-go/protocol"
	"github.com/hyphasys/mcp-go/server"
	"github.com/hyphasys/mcp-go/transport"
)

// Server types.

// ServerInfo identifies the server to clients during initialize.
type ServerInfo = server.Info

// Server is the MCP server core. It implements transport.Handler, so any
// transport can serve it directly.
type Server = server.Server

// Option configures a Server.
type Option = server.Option

// Session is the per-connection state a server keeps.
type Session = server.Session

// State is a session's lifecycle phase.
type State = server.State

// Session lifecycle states.
const (
	StateUninitialized = server.StateUninitialized
	StateInitializing  = server.StateInitializing
	StateReady         = server.StateReady
	StateShuttingDown  = server.StateShuttingDown
	StateClosed        = server.StateClosed
)

// Tool, resource, and prompt types.

type (
	Tool            = server.Tool
	ToolHandler     = server.ToolHandler
	ToolHandlerFunc = server.ToolHandlerFunc

	Resource         = server.Resource
	ResourceHandler  = server.ResourceHandler
	ResourceReadFunc = server.ResourceReadFunc

	Prompt            = server.Prompt
	PromptHandler     = server.PromptHandler
	PromptHandlerFunc = server.PromptHandlerFunc

	SamplingHandler     = server.SamplingHandler
	SamplingHandlerFunc = server.SamplingHandlerFunc
)

// Wire types handlers produce and consume.

type (
	CallToolResult  = protocol.CallToolResult
	Content         = protocol.Content
	ResourceContent = protocol.ResourceContent
	GetPromptResult = protocol.GetPromptResult
	PromptMessage   = protocol.PromptMessage
	PromptArgument  = protocol.PromptArgument

	CreateMessageParams = protocol.CreateMessageParams
	CreateMessageResult = protocol.CreateMessageResult
	SamplingMessage     = protocol.SamplingMessage
	SamplingContent     = protocol.SamplingContent
)

// Progress reporting.

type (
	ProgressToken    = server.ProgressToken
	ProgressReporter = server.ProgressReporter
)

// ProgressFromContext returns the reporter for the current tool call. Calls
// without a progress token get a no-op reporter, so handlers can report
// unconditionally:
//
//	reporter := mcp.ProgressFromContext(ctx)
//	total := float64(len(items))
//	for i, item := range items {
//	    process(item)
//	    reporter.Report(float64(i+1), &total)
//	}
var ProgressFromContext = server.ProgressFromContext

// SessionFromContext returns the session a request arrived on, or nil when
// the handler runs outside a connection.
var SessionFromContext = server.SessionFromContext

// NewServer creates an MCP server with the given identity and options.
func NewServer(info ServerInfo, opts ...Option) *Server {
	return server.New(info, opts...)
}

// NewTypedTool builds a tool whose handler takes a concrete argument struct.
// The input schema is generated from the struct's fields and arguments are
// validated against it before the handler runs.
func NewTypedTool[In any](name, description string, fn func(ctx context.Context, in In) (*CallToolResult, error)) (Tool, error) {
	return server.NewTypedTool(name, description, fn)
}

// Result and content constructors.
var (
	TextResult       = server.TextResult
	ErrorResult      = server.ErrorResult
	TextResource     = server.TextResource
	BlobResource     = server.BlobResource
	UserMessage      = server.UserMessage
	AssistantMessage = server.AssistantMessage
	NewTextContent   = protocol.NewTextContent
	NewImageContent  = protocol.NewImageContent
	TextSampling     = protocol.TextSampling
)

// Tool annotation helpers.
var (
	ReadOnlyTool    = server.ReadOnlyTool
	DestructiveTool = server.DestructiveTool
	IdempotentTool  = server.IdempotentTool
	ForAudience     = server.ForAudience
)

// Server options.
var (
	WithLogger          = server.WithLogger
	WithVersionPolicy   = server.WithVersionPolicy
	WithPageSize        = server.WithPageSize
	WithPushQueueSize   = server.WithPushQueueSize
	WithShutdownGrace   = server.WithShutdownGrace
	WithSamplingHandler = server.WithSamplingHandler
	WithProgressHandler = server.WithProgressHandler
)

// Middleware types.

type (
	Middleware = middleware.Middleware
	Logger     = middleware.Logger
	LogField   = middleware.Field
)

// Chain composes middleware into one, applied outermost first.
func Chain(middlewares ...Middleware) Middleware {
	return middleware.Chain(middlewares...)
}

// Recover converts handler panics into internal errors.
func Recover() Middleware {
	return middleware.Recover()
}

// RequestID stamps each request's context with a unique identifier.
func RequestID() Middleware {
	return middleware.RequestID()
}

// Logging logs one line per dispatched request.
func Logging(logger Logger) Middleware {
	return middleware.Logging(logger)
}

// DefaultMiddleware is the recommended stack: recovery, request IDs, and
// request logging.
func DefaultMiddleware(logger Logger) []Middleware {
	return middleware.DefaultStack(logger)
}

// LogF creates a structured log field.
func LogF(key string, value any) LogField {
	return middleware.F(key, value)
}

// NewSlogLogger adapts a *slog.Logger to the middleware Logger interface.
var NewSlogLogger = middleware.NewSlogLogger

// Rate limiting.
var (
	RateLimit            = middleware.RateLimit
	RateLimitByMethod    = middleware.RateLimitByMethod
	WithRateLimitKeyFunc = middleware.WithRateLimitKeyFunc
	WithRateLimitLogger  = middleware.WithRateLimitLogger
)

// OpenTelemetry tracing and metrics.
var (
	OTel                = middleware.OTel
	WithTracerProvider  = middleware.WithTracerProvider
	WithMeterProvider   = middleware.WithMeterProvider
	WithOTelServiceName = middleware.WithOTelServiceName
)

// Transport options.

type (
	StdioOption     = transport.StdioOption
	HTTPOption      = transport.HTTPOption
	WebSocketOption = transport.WebSocketOption
	CORSConfig      = transport.CORSConfig
)

var (
	WithReadTimeout  = transport.WithReadTimeout
	WithWriteTimeout = transport.WithWriteTimeout
	WithBasePath     = transport.WithBasePath
	WithCORS         = transport.WithCORS
	WithDefaultCORS  = transport.WithDefaultCORS

	WithWebSocketReadTimeout  = transport.WithWebSocketReadTimeout
	WithWebSocketWriteTimeout = transport.WithWebSocketWriteTimeout
)

// Serve runs the server on the given transport until ctx is canceled.
func Serve(ctx context.Context, srv *Server, t transport.Transport) error {
	return t.Serve(ctx, srv)
}

// ServeStdio runs the server over stdin and stdout. It blocks until the
// context is canceled or input reaches EOF.
func ServeStdio(ctx context.Context, srv *Server, opts ...StdioOption) error {
	return transport.NewStdio(opts...).Serve(ctx, srv)
}

// ServeHTTP runs the server over HTTP with server-sent events for push. It
// blocks until the context is canceled or the listener fails.
func ServeHTTP(ctx context.Context, srv *Server, addr string, opts ...HTTPOption) error {
	return transport.NewHTTP(addr, opts...).Serve(ctx, srv)
}

// ServeWebSocket runs the server over WebSocket connections. It blocks until
// the context is canceled or the listener fails.
func ServeWebSocket(ctx context.Context, srv *Server, addr string, opts ...WebSocketOption) error {
	return transport.NewWebSocket(addr, opts...).Serve(ctx, srv)
}
