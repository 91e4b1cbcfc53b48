// Package transport carries MCP frames between clients and the engine.
//
// A transport owns the bytes on the wire and nothing else: it decodes each
// inbound frame into a protocol.Request, hands it to a Handler, and writes
// whatever response comes back. Lifecycle rules, method routing, and error
// codes all live behind the Handler.
//
// # Stdio
//
// The stdio transport frames messages as single lines of JSON on stdin and
// stdout, one message per line. Diagnostics go to stderr so stdout stays a
// clean protocol stream. The whole process is one connection:
//
//	t := transport.NewStdio()
//	err := t.Serve(ctx, handler)
//
// # HTTP with server-sent events
//
// The HTTP transport answers requests on POST exchanges and pushes
// server-initiated notifications over an SSE stream. Opening the stream
// creates the connection; the first event names the endpoint to POST to for
// that session. Endpoints relative to the base path (default "/mcp"):
//
//	POST {base}?session=<id>         JSON-RPC requests
//	POST {base}/notify?session=<id>  fire-and-forget notifications
//	GET  {base}/events               SSE stream; announces the session id
//	GET  /health                     liveness probe
//
//	t := transport.NewHTTP(":8080",
//	    transport.WithBasePath("/rpc"),
//	    transport.WithDefaultCORS(),
//	)
//	err := t.Serve(ctx, handler)
//
// # WebSocket
//
// The WebSocket transport runs full duplex: requests, responses, and pushed
// notifications share one socket, and each socket is one connection.
//
//	t := transport.NewWebSocket(":8080")
//	err := t.Serve(ctx, handler)
//
// # Handlers and connections
//
// Every transport drives the same Handler:
//
//	type Handler interface {
//	    HandleRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
//	}
//
// A handler that also implements ConnectionHandler is told when connections
// open and close, which is how the server tracks sessions. Inside a request,
// ConnFromContext(ctx) recovers the originating connection so the handler can
// push notifications back over it.
//
// Handler errors never reach the wire as-is: a *protocol.Error passes
// through, anything else is reported as a bare internal error.
//
// Most programs use the root package's helpers instead of a transport
// directly:
//
//	mcp.ServeStdio(ctx, srv)
//	mcp.ServeHTTP(ctx, srv, ":8080")
//	mcp.ServeWebSocket(ctx, srv, ":8080")
package transport
