package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/hyphasys/mcp-go/protocol"
	"github.com/hyphasys/mcp-go/transport"
)

var connSeq atomic.Int64

// openConn registers a fresh mock connection with the server.
func openConn(t *testing.T, srv *Server) *mockConn {
	t.Helper()
	conn := &mockConn{id: fmt.Sprintf("conn-%d", connSeq.Add(1))}
	srv.ConnectionOpened(conn)
	t.Cleanup(func() { srv.ConnectionClosed(conn.ID()) })
	return conn
}

// testRequest builds a request frame. A nil id makes it a notification.
func testRequest(t *testing.T, id any, method string, params any) *protocol.Request {
	t.Helper()
	var idRaw json.RawMessage
	if id != nil {
		var err error
		idRaw, err = json.Marshal(id)
		if err != nil {
			t.Fatalf("marshal id: %v", err)
		}
	}
	req, err := protocol.NewRequest(idRaw, method, params)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return req
}

// dispatchOn routes a frame as if it arrived on conn.
func dispatchOn(t *testing.T, srv *Server, conn *mockConn, req *protocol.Request) *protocol.Response {
	t.Helper()
	ctx := transport.ContextWithConn(context.Background(), conn)
	resp, err := srv.HandleRequest(ctx, req)
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	return resp
}

// initializeConn performs the initialize exchange for conn.
func initializeConn(t *testing.T, srv *Server, conn *mockConn) {
	t.Helper()
	resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodInitialize, protocol.InitializeParams{
		ProtocolVersion: protocol.MCPVersion,
		ClientInfo:      protocol.ClientInfo{Name: "test-client", Version: "1.0.0"},
	}))
	if resp == nil || resp.Error != nil {
		t.Fatalf("initialize failed: %+v", resp)
	}
}

// readyServer builds a server with one initialized connection.
func readyServer(t *testing.T, opts ...Option) (*Server, *mockConn) {
	t.Helper()
	srv := New(Info{Name: "test-server", Version: "1.0.0"}, opts...)
	conn := openConn(t, srv)
	initializeConn(t, srv, conn)
	return srv, conn
}

func wantErrorCode(t *testing.T, resp *protocol.Response, code int) {
	t.Helper()
	if resp == nil {
		t.Fatal("expected a response")
	}
	if resp.Error == nil {
		t.Fatalf("expected error response, got result %+v", resp.Result)
	}
	if resp.Error.Code != code {
		t.Fatalf("error code = %d, want %d (%s)", resp.Error.Code, code, resp.Error.Message)
	}
}

func TestDispatch_Initialize(t *testing.T) {
	t.Run("moves the connection to ready", func(t *testing.T) {
		srv := New(Info{Name: "test-server", Version: "2.1.0"})
		if err := srv.AddTool(Tool{Name: "echo", Handler: ToolHandlerFunc(echoTool)}); err != nil {
			t.Fatalf("AddTool: %v", err)
		}
		conn := openConn(t, srv)

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodInitialize, protocol.InitializeParams{
			ProtocolVersion: protocol.MCPVersion,
			ClientInfo:      protocol.ClientInfo{Name: "client", Version: "0.1.0"},
		}))

		if resp.Error != nil {
			t.Fatalf("initialize error: %v", resp.Error)
		}
		result, ok := resp.Result.(protocol.InitializeResult)
		if !ok {
			t.Fatalf("result type = %T", resp.Result)
		}
		if result.ProtocolVersion != protocol.MCPVersion {
			t.Errorf("protocolVersion = %q, want %q", result.ProtocolVersion, protocol.MCPVersion)
		}
		if result.ServerInfo.Name != "test-server" || result.ServerInfo.Version != "2.1.0" {
			t.Errorf("serverInfo = %+v", result.ServerInfo)
		}
		if result.Capabilities.Tools == nil || !result.Capabilities.Tools.ListChanged {
			t.Error("expected tools capability with listChanged")
		}
		if result.Capabilities.Resources != nil {
			t.Error("expected no resources capability with empty registry")
		}

		if sess := srv.session(conn.ID()); sess.State() != StateReady {
			t.Errorf("state = %s, want ready", sess.State())
		}
		if got := srv.session(conn.ID()).ClientInfo().Name; got != "client" {
			t.Errorf("recorded client name = %q", got)
		}
	})

	t.Run("version mismatch leaves the connection uninitialized", func(t *testing.T) {
		srv := New(Info{Name: "test-server", Version: "1.0.0"})
		conn := openConn(t, srv)

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodInitialize, protocol.InitializeParams{
			ProtocolVersion: "1999-12-31",
			ClientInfo:      protocol.ClientInfo{Name: "client", Version: "0.1.0"},
		}))
		wantErrorCode(t, resp, protocol.CodeInvalidParams)

		if sess := srv.session(conn.ID()); sess.State() != StateUninitialized {
			t.Fatalf("state = %s, want uninitialized", sess.State())
		}

		// A corrected handshake on the same connection succeeds.
		initializeConn(t, srv, conn)
	})

	t.Run("custom version policy can accept older clients", func(t *testing.T) {
		srv := New(Info{Name: "test-server", Version: "1.0.0"},
			WithVersionPolicy(func(string) error { return nil }))
		conn := openConn(t, srv)

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodInitialize, protocol.InitializeParams{
			ProtocolVersion: "2024-10-07",
			ClientInfo:      protocol.ClientInfo{Name: "client", Version: "0.1.0"},
		}))
		if resp.Error != nil {
			t.Fatalf("initialize error: %v", resp.Error)
		}
	})

	t.Run("repeat initialize is rejected", func(t *testing.T) {
		srv, conn := readyServer(t)

		resp := dispatchOn(t, srv, conn, testRequest(t, 2, protocol.MethodInitialize, protocol.InitializeParams{
			ProtocolVersion: protocol.MCPVersion,
			ClientInfo:      protocol.ClientInfo{Name: "client", Version: "0.1.0"},
		}))
		wantErrorCode(t, resp, protocol.CodeInvalidRequest)

		if sess := srv.session(conn.ID()); sess.State() != StateReady {
			t.Errorf("state = %s, want ready", sess.State())
		}
	})

	t.Run("malformed params are invalid params", func(t *testing.T) {
		srv := New(Info{Name: "test-server", Version: "1.0.0"})
		conn := openConn(t, srv)

		req := testRequest(t, 1, protocol.MethodInitialize, nil)
		req.Params = json.RawMessage(`"not an object"`)

		wantErrorCode(t, dispatchOn(t, srv, conn, req), protocol.CodeInvalidParams)
	})

	t.Run("missing client identity is invalid params", func(t *testing.T) {
		srv := New(Info{Name: "test-server", Version: "1.0.0"})
		conn := openConn(t, srv)

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodInitialize, protocol.InitializeParams{
			ProtocolVersion: protocol.MCPVersion,
		}))
		wantErrorCode(t, resp, protocol.CodeInvalidParams)
	})
}

func TestDispatch_LifecycleGate(t *testing.T) {
	t.Run("requests before ready never reach handlers", func(t *testing.T) {
		srv := New(Info{Name: "test-server", Version: "1.0.0"})
		invoked := false
		srv.AddTool(Tool{Name: "spy", Handler: ToolHandlerFunc(func(ctx context.Context, args json.RawMessage) (*protocol.CallToolResult, error) {
			invoked = true
			return TextResult("never"), nil
		})})
		conn := openConn(t, srv)

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodToolsCall, protocol.CallToolParams{Name: "spy"}))
		wantErrorCode(t, resp, protocol.CodeInvalidRequest)

		if invoked {
			t.Error("handler ran before initialize")
		}
	})

	t.Run("ping answers in every live state", func(t *testing.T) {
		srv := New(Info{Name: "test-server", Version: "1.0.0"})
		conn := openConn(t, srv)
		sess := srv.session(conn.ID())

		ping := func() *protocol.Response {
			return dispatchOn(t, srv, conn, testRequest(t, "ping-id", protocol.MethodPing, nil))
		}

		if resp := ping(); resp.Error != nil {
			t.Errorf("ping while uninitialized: %v", resp.Error)
		}

		initializeConn(t, srv, conn)
		if resp := ping(); resp.Error != nil {
			t.Errorf("ping while ready: %v", resp.Error)
		}

		sess.life.beginShutdown()
		if resp := ping(); resp.Error != nil {
			t.Errorf("ping while shutting down: %v", resp.Error)
		}

		sess.life.close()
		if resp := ping(); resp != nil {
			t.Errorf("expected no response after close, got %+v", resp)
		}
	})

	t.Run("ping echoes the caller id verbatim", func(t *testing.T) {
		srv, conn := readyServer(t)

		resp := dispatchOn(t, srv, conn, testRequest(t, "abc-123", protocol.MethodPing, nil))
		if string(resp.ID) != `"abc-123"` {
			t.Errorf("id = %s, want %q", resp.ID, `"abc-123"`)
		}
	})

	t.Run("notifications before ready are dropped", func(t *testing.T) {
		received := false
		srv := New(Info{Name: "test-server", Version: "1.0.0"},
			WithProgressHandler(ProgressHandlerFunc(func(ctx context.Context, sess *Session, params *protocol.ProgressParams) {
				received = true
			})))
		conn := openConn(t, srv)

		resp := dispatchOn(t, srv, conn, testRequest(t, nil, protocol.MethodProgress, protocol.ProgressParams{
			ProgressToken: "tok", Progress: 0.5,
		}))
		if resp != nil {
			t.Errorf("notification produced a response: %+v", resp)
		}
		if received {
			t.Error("progress observer ran before ready")
		}
	})

	t.Run("requests during shutdown are rejected", func(t *testing.T) {
		srv, conn := readyServer(t)
		srv.session(conn.ID()).life.beginShutdown()

		resp := dispatchOn(t, srv, conn, testRequest(t, 9, protocol.MethodToolsList, nil))
		wantErrorCode(t, resp, protocol.CodeInvalidRequest)
	})

	t.Run("rejects frames without a connection", func(t *testing.T) {
		srv := New(Info{Name: "test-server", Version: "1.0.0"})

		resp, err := srv.HandleRequest(context.Background(), testRequest(t, 1, protocol.MethodPing, nil))
		if err != nil {
			t.Fatalf("HandleRequest: %v", err)
		}
		wantErrorCode(t, resp, protocol.CodeInvalidRequest)
	})
}

func TestDispatch_Envelope(t *testing.T) {
	srv, conn := readyServer(t)

	t.Run("wrong jsonrpc version", func(t *testing.T) {
		req := testRequest(t, 1, protocol.MethodPing, nil)
		req.JSONRPC = "1.0"
		wantErrorCode(t, dispatchOn(t, srv, conn, req), protocol.CodeInvalidRequest)
	})

	t.Run("reserved method prefix", func(t *testing.T) {
		req := testRequest(t, 1, "rpc.discover", nil)
		wantErrorCode(t, dispatchOn(t, srv, conn, req), protocol.CodeInvalidRequest)
	})

	t.Run("unknown method", func(t *testing.T) {
		resp := dispatchOn(t, srv, conn, testRequest(t, 1, "tools/destroy", nil))
		wantErrorCode(t, resp, protocol.CodeMethodNotFound)
	})

	t.Run("unknown notification is ignored", func(t *testing.T) {
		resp := dispatchOn(t, srv, conn, testRequest(t, nil, "custom/event", nil))
		if resp != nil {
			t.Errorf("notification produced a response: %+v", resp)
		}
	})
}

func echoTool(ctx context.Context, args json.RawMessage) (*protocol.CallToolResult, error) {
	return TextResult(string(args)), nil
}

func TestDispatch_Tools(t *testing.T) {
	t.Run("lists in pages", func(t *testing.T) {
		srv := New(Info{Name: "test-server", Version: "1.0.0"}, WithPageSize(2))
		for i := 0; i < 5; i++ {
			srv.AddTool(Tool{Name: fmt.Sprintf("tool-%d", i), Handler: ToolHandlerFunc(echoTool)})
		}
		conn := openConn(t, srv)
		initializeConn(t, srv, conn)

		var names []string
		cursor := ""
		for {
			resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodToolsList, protocol.ListToolsParams{Cursor: cursor}))
			if resp.Error != nil {
				t.Fatalf("tools/list: %v", resp.Error)
			}
			result := resp.Result.(protocol.ListToolsResult)
			for _, info := range result.Tools {
				names = append(names, info.Name)
			}
			if result.NextCursor == "" {
				break
			}
			cursor = result.NextCursor
		}

		if len(names) != 5 {
			t.Fatalf("listed %d tools, want 5", len(names))
		}
		for i, name := range names {
			if want := fmt.Sprintf("tool-%d", i); name != want {
				t.Errorf("names[%d] = %q, want %q", i, name, want)
			}
		}
	})

	t.Run("rejects a malformed cursor", func(t *testing.T) {
		srv, conn := readyServer(t)
		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodToolsList, protocol.ListToolsParams{Cursor: "%%%"}))
		wantErrorCode(t, resp, protocol.CodeInvalidParams)
	})

	t.Run("calls a registered tool", func(t *testing.T) {
		srv, conn := readyServer(t)
		srv.AddTool(Tool{Name: "echo", Handler: ToolHandlerFunc(echoTool)})

		resp := dispatchOn(t, srv, conn, testRequest(t, 7, protocol.MethodToolsCall, protocol.CallToolParams{
			Name:      "echo",
			Arguments: json.RawMessage(`{"text":"hi"}`),
		}))
		if resp.Error != nil {
			t.Fatalf("tools/call: %v", resp.Error)
		}
		result := resp.Result.(*protocol.CallToolResult)
		if result.IsError {
			t.Error("expected success result")
		}
		if len(result.Content) != 1 || result.Content[0].Text != `{"text":"hi"}` {
			t.Errorf("content = %+v", result.Content)
		}
	})

	t.Run("unknown tool is its own error code", func(t *testing.T) {
		srv, conn := readyServer(t)
		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodToolsCall, protocol.CallToolParams{Name: "ghost"}))
		wantErrorCode(t, resp, protocol.CodeToolNotFound)
	})

	t.Run("missing tool name is invalid params", func(t *testing.T) {
		srv, conn := readyServer(t)
		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodToolsCall, protocol.CallToolParams{}))
		wantErrorCode(t, resp, protocol.CodeInvalidParams)
	})

	t.Run("domain failure rides inside a successful response", func(t *testing.T) {
		srv, conn := readyServer(t)
		srv.AddTool(Tool{Name: "divide", Handler: ToolHandlerFunc(func(ctx context.Context, args json.RawMessage) (*protocol.CallToolResult, error) {
			return ErrorResult("division by zero"), nil
		})})

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodToolsCall, protocol.CallToolParams{Name: "divide"}))
		if resp.Error != nil {
			t.Fatalf("expected success envelope, got %v", resp.Error)
		}
		result := resp.Result.(*protocol.CallToolResult)
		if !result.IsError {
			t.Error("expected isError result")
		}
		if result.Content[0].Text != "division by zero" {
			t.Errorf("content = %+v", result.Content)
		}
	})

	t.Run("handler error becomes a generic internal error", func(t *testing.T) {
		srv, conn := readyServer(t)
		srv.AddTool(Tool{Name: "flaky", Handler: ToolHandlerFunc(func(ctx context.Context, args json.RawMessage) (*protocol.CallToolResult, error) {
			return nil, fmt.Errorf("connection string postgres://secret failed")
		})})

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodToolsCall, protocol.CallToolParams{Name: "flaky"}))
		wantErrorCode(t, resp, protocol.CodeInternalError)
		if resp.Error.Message != "internal error" {
			t.Errorf("message = %q, want generic text", resp.Error.Message)
		}
	})

	t.Run("handler panic is contained", func(t *testing.T) {
		srv, conn := readyServer(t)
		srv.AddTool(Tool{Name: "bomb", Handler: ToolHandlerFunc(func(ctx context.Context, args json.RawMessage) (*protocol.CallToolResult, error) {
			panic("boom")
		})})
		srv.AddTool(Tool{Name: "echo", Handler: ToolHandlerFunc(echoTool)})

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodToolsCall, protocol.CallToolParams{Name: "bomb"}))
		wantErrorCode(t, resp, protocol.CodeInternalError)

		// The connection keeps working afterwards.
		resp = dispatchOn(t, srv, conn, testRequest(t, 2, protocol.MethodToolsCall, protocol.CallToolParams{
			Name: "echo", Arguments: json.RawMessage(`{}`),
		}))
		if resp.Error != nil {
			t.Errorf("follow-up call failed: %v", resp.Error)
		}
	})

	t.Run("typed tool validates arguments against its schema", func(t *testing.T) {
		srv, conn := readyServer(t)

		type searchArgs struct {
			Query string `json:"query" jsonschema:"required"`
		}
		tool, err := NewTypedTool("search", "Search for items",
			func(ctx context.Context, args searchArgs) (*protocol.CallToolResult, error) {
				return TextResult("found: " + args.Query), nil
			})
		if err != nil {
			t.Fatalf("NewTypedTool: %v", err)
		}
		srv.AddTool(tool)

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodToolsCall, protocol.CallToolParams{
			Name:      "search",
			Arguments: json.RawMessage(`{"query":"needle"}`),
		}))
		if resp.Error != nil {
			t.Fatalf("valid call: %v", resp.Error)
		}
		if got := resp.Result.(*protocol.CallToolResult).Content[0].Text; got != "found: needle" {
			t.Errorf("content = %q", got)
		}

		resp = dispatchOn(t, srv, conn, testRequest(t, 2, protocol.MethodToolsCall, protocol.CallToolParams{
			Name:      "search",
			Arguments: json.RawMessage(`{"query":42}`),
		}))
		wantErrorCode(t, resp, protocol.CodeInvalidParams)
	})
}

func TestDispatch_Resources(t *testing.T) {
	staticResource := func(text string) Resource {
		return Resource{
			URI:      "file:///config.json",
			Name:     "Config",
			MimeType: "application/json",
			Handler: ResourceReadFunc(func(ctx context.Context, uri string, params map[string]string) ([]protocol.ResourceContent, error) {
				return TextResource(uri, "application/json", text), nil
			}),
		}
	}

	t.Run("reads by exact URI", func(t *testing.T) {
		srv, conn := readyServer(t)
		srv.AddResource(staticResource(`{"debug":true}`))

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodResourcesRead, protocol.ReadResourceParams{
			URI: "file:///config.json",
		}))
		if resp.Error != nil {
			t.Fatalf("resources/read: %v", resp.Error)
		}
		result := resp.Result.(protocol.ReadResourceResult)
		if len(result.Contents) != 1 || result.Contents[0].Text != `{"debug":true}` {
			t.Errorf("contents = %+v", result.Contents)
		}
	})

	t.Run("falls back to the longest registered prefix", func(t *testing.T) {
		srv, conn := readyServer(t)
		var gotURI string
		capture := func(ctx context.Context, uri string, params map[string]string) ([]protocol.ResourceContent, error) {
			gotURI = uri
			return TextResource(uri, "text/plain", "log line"), nil
		}
		srv.AddResource(Resource{URI: "file:///logs/", Handler: ResourceReadFunc(capture)})
		srv.AddResource(Resource{URI: "file:///", Handler: ResourceReadFunc(func(ctx context.Context, uri string, params map[string]string) ([]protocol.ResourceContent, error) {
			t.Error("shorter prefix chosen over longer one")
			return nil, nil
		})})

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodResourcesRead, protocol.ReadResourceParams{
			URI: "file:///logs/app.log",
		}))
		if resp.Error != nil {
			t.Fatalf("resources/read: %v", resp.Error)
		}
		if gotURI != "file:///logs/app.log" {
			t.Errorf("handler saw uri %q", gotURI)
		}
	})

	t.Run("passes query parameters to the handler", func(t *testing.T) {
		srv, conn := readyServer(t)
		var gotParams map[string]string
		srv.AddResource(Resource{URI: "db://users", Handler: ResourceReadFunc(func(ctx context.Context, uri string, params map[string]string) ([]protocol.ResourceContent, error) {
			gotParams = params
			return TextResource(uri, "application/json", "[]"), nil
		})})

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodResourcesRead, protocol.ReadResourceParams{
			URI: "db://users?limit=10&offset=20",
		}))
		if resp.Error != nil {
			t.Fatalf("resources/read: %v", resp.Error)
		}
		if gotParams["limit"] != "10" || gotParams["offset"] != "20" {
			t.Errorf("params = %v", gotParams)
		}
	})

	t.Run("unknown resource is its own error code", func(t *testing.T) {
		srv, conn := readyServer(t)
		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodResourcesRead, protocol.ReadResourceParams{
			URI: "file:///missing.txt",
		}))
		wantErrorCode(t, resp, protocol.CodeResourceNotFound)
	})

	t.Run("read failure hides handler detail", func(t *testing.T) {
		srv, conn := readyServer(t)
		srv.AddResource(Resource{URI: "file:///broken", Handler: ResourceReadFunc(func(ctx context.Context, uri string, params map[string]string) ([]protocol.ResourceContent, error) {
			return nil, fmt.Errorf("disk offline at /dev/sda3")
		})})

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodResourcesRead, protocol.ReadResourceParams{
			URI: "file:///broken",
		}))
		wantErrorCode(t, resp, protocol.CodeInternalError)
		if resp.Error.Message != "internal error" {
			t.Errorf("message = %q leaks detail", resp.Error.Message)
		}
	})
}

// subscribingHandler counts subscribe/unsubscribe calls.
type subscribingHandler struct {
	subscribes   atomic.Int64
	unsubscribes atomic.Int64
}

func (h *subscribingHandler) Read(ctx context.Context, uri string, params map[string]string) ([]protocol.ResourceContent, error) {
	return TextResource(uri, "text/plain", "data"), nil
}

func (h *subscribingHandler) Subscribe(ctx context.Context, uri string) error {
	h.subscribes.Add(1)
	return nil
}

func (h *subscribingHandler) Unsubscribe(ctx context.Context, uri string) error {
	h.unsubscribes.Add(1)
	return nil
}

func TestDispatch_Subscriptions(t *testing.T) {
	t.Run("subscribe records membership and tells the handler once", func(t *testing.T) {
		srv, conn := readyServer(t)
		handler := &subscribingHandler{}
		srv.AddResource(Resource{URI: "file:///watched", Handler: handler})

		for i := 0; i < 3; i++ {
			resp := dispatchOn(t, srv, conn, testRequest(t, i, protocol.MethodResourcesSubscribe, protocol.SubscribeResourceParams{
				URI: "file:///watched",
			}))
			if resp.Error != nil {
				t.Fatalf("subscribe %d: %v", i, resp.Error)
			}
		}

		if got := handler.subscribes.Load(); got != 1 {
			t.Errorf("handler subscribed %d times, want 1", got)
		}
		if !srv.subs.isSubscribed(conn.ID(), "file:///watched") {
			t.Error("membership not recorded")
		}
	})

	t.Run("subscribe to unknown resource is its own error code", func(t *testing.T) {
		srv, conn := readyServer(t)
		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodResourcesSubscribe, protocol.SubscribeResourceParams{
			URI: "file:///missing",
		}))
		wantErrorCode(t, resp, protocol.CodeResourceNotFound)
	})

	t.Run("unsubscribe removes membership and tells the handler", func(t *testing.T) {
		srv, conn := readyServer(t)
		handler := &subscribingHandler{}
		srv.AddResource(Resource{URI: "file:///watched", Handler: handler})

		dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodResourcesSubscribe, protocol.SubscribeResourceParams{URI: "file:///watched"}))
		resp := dispatchOn(t, srv, conn, testRequest(t, 2, protocol.MethodResourcesUnsubscribe, protocol.UnsubscribeResourceParams{URI: "file:///watched"}))
		if resp.Error != nil {
			t.Fatalf("unsubscribe: %v", resp.Error)
		}

		if got := handler.unsubscribes.Load(); got != 1 {
			t.Errorf("handler unsubscribed %d times, want 1", got)
		}
		if srv.subs.isSubscribed(conn.ID(), "file:///watched") {
			t.Error("membership still recorded")
		}
	})

	t.Run("unsubscribe without membership succeeds quietly", func(t *testing.T) {
		srv, conn := readyServer(t)
		handler := &subscribingHandler{}
		srv.AddResource(Resource{URI: "file:///watched", Handler: handler})

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodResourcesUnsubscribe, protocol.UnsubscribeResourceParams{URI: "file:///watched"}))
		if resp.Error != nil {
			t.Fatalf("unsubscribe: %v", resp.Error)
		}
		if got := handler.unsubscribes.Load(); got != 0 {
			t.Errorf("handler told about %d unknown unsubscribes", got)
		}
	})
}

func TestDispatch_Prompts(t *testing.T) {
	greeting := Prompt{
		Name:        "greet",
		Description: "Generate a greeting",
		Arguments:   []protocol.PromptArgument{{Name: "name", Required: true}},
		Handler: PromptHandlerFunc(func(ctx context.Context, args map[string]string) (*protocol.GetPromptResult, error) {
			return &protocol.GetPromptResult{
				Description: "greeting",
				Messages:    []protocol.PromptMessage{UserMessage("Hello, " + args["name"])},
			}, nil
		}),
	}

	t.Run("renders with arguments", func(t *testing.T) {
		srv, conn := readyServer(t)
		srv.AddPrompt(greeting)

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodPromptsGet, protocol.GetPromptParams{
			Name:      "greet",
			Arguments: map[string]any{"name": "Ada"},
		}))
		if resp.Error != nil {
			t.Fatalf("prompts/get: %v", resp.Error)
		}
		result := resp.Result.(*protocol.GetPromptResult)
		if len(result.Messages) != 1 || result.Messages[0].Content.Text != "Hello, Ada" {
			t.Errorf("messages = %+v", result.Messages)
		}
	})

	t.Run("unknown prompt is its own error code", func(t *testing.T) {
		srv, conn := readyServer(t)
		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodPromptsGet, protocol.GetPromptParams{Name: "ghost"}))
		wantErrorCode(t, resp, protocol.CodePromptNotFound)
	})

	t.Run("missing required argument is invalid params", func(t *testing.T) {
		srv, conn := readyServer(t)
		srv.AddPrompt(greeting)

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodPromptsGet, protocol.GetPromptParams{Name: "greet"}))
		wantErrorCode(t, resp, protocol.CodeInvalidParams)
	})

	t.Run("non-string arguments are flattened", func(t *testing.T) {
		srv, conn := readyServer(t)
		var got map[string]string
		srv.AddPrompt(Prompt{
			Name: "fmt",
			Handler: PromptHandlerFunc(func(ctx context.Context, args map[string]string) (*protocol.GetPromptResult, error) {
				got = args
				return &protocol.GetPromptResult{Messages: []protocol.PromptMessage{UserMessage("ok")}}, nil
			}),
		})

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodPromptsGet, protocol.GetPromptParams{
			Name:      "fmt",
			Arguments: map[string]any{"count": float64(3), "flag": true},
		}))
		if resp.Error != nil {
			t.Fatalf("prompts/get: %v", resp.Error)
		}
		if got["count"] != "3" || got["flag"] != "true" {
			t.Errorf("args = %v", got)
		}
	})
}

func TestDispatch_Sampling(t *testing.T) {
	t.Run("without a handler the method does not exist", func(t *testing.T) {
		srv, conn := readyServer(t)
		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodSamplingCreateMessage, protocol.CreateMessageParams{
			Messages: []protocol.SamplingMessage{{Role: "user", Content: protocol.TextSampling("hi")}},
		}))
		wantErrorCode(t, resp, protocol.CodeMethodNotFound)
	})

	t.Run("delegates to the configured handler", func(t *testing.T) {
		srv, conn := readyServer(t, WithSamplingHandler(SamplingHandlerFunc(
			func(ctx context.Context, params *protocol.CreateMessageParams) (*protocol.CreateMessageResult, error) {
				return &protocol.CreateMessageResult{
					Role:    "assistant",
					Content: protocol.TextSampling("echo: " + params.Messages[0].Content.Text),
					Model:   "test-model",
				}, nil
			})))

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodSamplingCreateMessage, protocol.CreateMessageParams{
			Messages: []protocol.SamplingMessage{{Role: "user", Content: protocol.TextSampling("hi")}},
		}))
		if resp.Error != nil {
			t.Fatalf("sampling: %v", resp.Error)
		}
		result := resp.Result.(*protocol.CreateMessageResult)
		if result.Content.Text != "echo: hi" || result.Model != "test-model" {
			t.Errorf("result = %+v", result)
		}
	})

	t.Run("rejects out-of-range tuning", func(t *testing.T) {
		temp := 3.5
		srv, conn := readyServer(t, WithSamplingHandler(SamplingHandlerFunc(
			func(ctx context.Context, params *protocol.CreateMessageParams) (*protocol.CreateMessageResult, error) {
				t.Error("handler ran with invalid params")
				return nil, nil
			})))

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodSamplingCreateMessage, protocol.CreateMessageParams{
			Messages:    []protocol.SamplingMessage{{Role: "user", Content: protocol.TextSampling("hi")}},
			Temperature: &temp,
		}))
		wantErrorCode(t, resp, protocol.CodeInvalidParams)
	})
}

func TestDispatch_Logging(t *testing.T) {
	t.Run("setLevel adjusts the session minimum", func(t *testing.T) {
		srv, conn := readyServer(t)

		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodLoggingSetLevel, protocol.SetLevelParams{
			Level: protocol.LogDebug,
		}))
		if resp.Error != nil {
			t.Fatalf("logging/setLevel: %v", resp.Error)
		}
		if got := srv.session(conn.ID()).LogLevel(); got != protocol.LogDebug {
			t.Errorf("level = %q, want debug", got)
		}
	})

	t.Run("unknown level is invalid params", func(t *testing.T) {
		srv, conn := readyServer(t)
		resp := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodLoggingSetLevel, protocol.SetLevelParams{
			Level: protocol.LogLevel("verbose"),
		}))
		wantErrorCode(t, resp, protocol.CodeInvalidParams)
	})
}

func TestDispatch_ProgressNotification(t *testing.T) {
	t.Run("forwards to the observer", func(t *testing.T) {
		var got *protocol.ProgressParams
		srv := New(Info{Name: "test-server", Version: "1.0.0"},
			WithProgressHandler(ProgressHandlerFunc(func(ctx context.Context, sess *Session, params *protocol.ProgressParams) {
				got = params
			})))
		conn := openConn(t, srv)
		initializeConn(t, srv, conn)

		resp := dispatchOn(t, srv, conn, testRequest(t, nil, protocol.MethodProgress, protocol.ProgressParams{
			ProgressToken: "tok-1", Progress: 0.25,
		}))
		if resp != nil {
			t.Errorf("notification produced a response: %+v", resp)
		}
		if got == nil || got.ProgressToken != "tok-1" || got.Progress != 0.25 {
			t.Errorf("observer saw %+v", got)
		}
	})

	t.Run("invalid payloads are dropped without a response", func(t *testing.T) {
		called := false
		srv := New(Info{Name: "test-server", Version: "1.0.0"},
			WithProgressHandler(ProgressHandlerFunc(func(ctx context.Context, sess *Session, params *protocol.ProgressParams) {
				called = true
			})))
		conn := openConn(t, srv)
		initializeConn(t, srv, conn)

		resp := dispatchOn(t, srv, conn, testRequest(t, nil, protocol.MethodProgress, protocol.ProgressParams{
			ProgressToken: "tok-1", Progress: 7,
		}))
		if resp != nil {
			t.Errorf("notification produced a response: %+v", resp)
		}
		if called {
			t.Error("observer ran for invalid payload")
		}
	})

	t.Run("panicking observer is contained", func(t *testing.T) {
		srv := New(Info{Name: "test-server", Version: "1.0.0"},
			WithProgressHandler(ProgressHandlerFunc(func(ctx context.Context, sess *Session, params *protocol.ProgressParams) {
				panic("observer boom")
			})))
		conn := openConn(t, srv)
		initializeConn(t, srv, conn)

		resp := dispatchOn(t, srv, conn, testRequest(t, nil, protocol.MethodProgress, protocol.ProgressParams{
			ProgressToken: "tok-1", Progress: 0.5,
		}))
		if resp != nil {
			t.Errorf("notification produced a response: %+v", resp)
		}

		// The connection keeps working afterwards.
		if ping := dispatchOn(t, srv, conn, testRequest(t, 1, protocol.MethodPing, nil)); ping.Error != nil {
			t.Errorf("ping after panic: %v", ping.Error)
		}
	})
}
