// Package testutil helps test MCP servers without a wire.
//
// Client drives a server through its real dispatch path over an in-memory
// connection, so lifecycle gating, registry lookups, and schema validation
// all behave exactly as they do behind a transport. The connection records
// pushed notifications for assertions.
//
//	func TestGreet(t *testing.T) {
//	    srv := buildServer()
//	    client := testutil.NewClient(t, srv)
//
//	    result := client.CallTool("greet", map[string]any{"name": "World"})
//	    if got := testutil.Text(result); got != "Hello, World" {
//	        t.Errorf("greet = %q, want %q", got, "Hello, World")
//	    }
//	}
package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hyphasys/mcp-go/protocol"
	"github.com/hyphasys/mcp-go/server"
	"github.com/hyphasys/mcp-go/transport"
)

// Conn is an in-memory transport.Conn that records every pushed
// notification.
type Conn struct {
	id string

	mu     sync.Mutex
	pushed []*protocol.Notification
	closed bool
}

// NewConn creates a connection with the given identifier.
func NewConn(id string) *Conn {
	return &Conn{id: id}
}

// ID implements transport.Conn.
func (c *Conn) ID() string { return c.id }

// Push records the notification. Pushing to a closed connection fails, which
// is how servers detect broken subscribers.
func (c *Conn) Push(n *protocol.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("connection closed")
	}
	c.pushed = append(c.pushed, n)
	return nil
}

// Close implements transport.Conn. Closing twice is fine.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Notifications returns a snapshot of everything pushed so far.
func (c *Conn) Notifications() []*protocol.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*protocol.Notification, len(c.pushed))
	copy(out, c.pushed)
	return out
}

// WaitFor polls until a notification with the given method has been pushed.
// Pushes travel through each session's pump goroutine, so arrival is
// asynchronous even in-memory.
func (c *Conn) WaitFor(method string, timeout time.Duration) (*protocol.Notification, bool) {
	deadline := time.Now().Add(timeout)
	for {
		for _, n := range c.Notifications() {
			if n.Method == method {
				return n, true
			}
		}
		if time.Now().After(deadline) {
			return nil, false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Client talks to a server the way a transport would: one connection, one
// session, requests dispatched with the connection on the context.
type Client struct {
	t    testing.TB
	srv  *server.Server
	conn *Conn
	ctx  context.Context

	mu    sync.Mutex
	reqID int64
}

// NewClient opens a connection and completes the initialize handshake. The
// connection is torn down when the test finishes.
func NewClient(t testing.TB, srv *server.Server) *Client {
	t.Helper()
	c := NewUninitializedClient(t, srv)
	c.Initialize()
	return c
}

// NewUninitializedClient opens a connection but skips the handshake, for
// tests that exercise lifecycle gating themselves.
func NewUninitializedClient(t testing.TB, srv *server.Server) *Client {
	t.Helper()

	conn := NewConn(uuid.NewString())
	srv.ConnectionOpened(conn)

	c := &Client{
		t:    t,
		srv:  srv,
		conn: conn,
		ctx:  transport.ContextWithConn(context.Background(), conn),
	}
	t.Cleanup(c.Close)
	return c
}

// Conn exposes the underlying connection for notification assertions.
func (c *Client) Conn() *Conn { return c.conn }

// Close reports the connection as departed. Safe to call more than once.
func (c *Client) Close() {
	c.srv.ConnectionClosed(c.conn.ID())
}

func (c *Client) nextID() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reqID++
	return json.RawMessage(fmt.Sprintf("%d", c.reqID))
}

// Send dispatches one request and returns the raw response. Use it when a
// test expects an error response; the typed helpers fail the test on any
// error.
func (c *Client) Send(method string, params any) *protocol.Response {
	c.t.Helper()

	req, err := protocol.NewRequest(c.nextID(), method, params)
	if err != nil {
		c.t.Fatalf("marshal %s params: %v", method, err)
	}

	resp, err := c.srv.HandleRequest(c.ctx, req)
	if err != nil {
		c.t.Fatalf("%s returned a transport-level error: %v", method, err)
	}
	if resp == nil {
		c.t.Fatalf("%s produced no response", method)
	}
	return resp
}

// Notify dispatches one notification. Notifications never produce output, so
// there is nothing to return.
func (c *Client) Notify(method string, params any) {
	c.t.Helper()

	req, err := protocol.NewRequest(nil, method, params)
	if err != nil {
		c.t.Fatalf("marshal %s params: %v", method, err)
	}

	resp, err := c.srv.HandleRequest(c.ctx, req)
	if err != nil {
		c.t.Fatalf("notification %s returned an error: %v", method, err)
	}
	if resp != nil {
		c.t.Fatalf("notification %s produced a response: %+v", method, resp)
	}
}

// result unwraps a successful response or fails the test.
func result[T any](c *Client, method string, resp *protocol.Response) T {
	c.t.Helper()
	if resp.Error != nil {
		c.t.Fatalf("%s failed: [%d] %s", method, resp.Error.Code, resp.Error.Message)
	}
	v, ok := resp.Result.(T)
	if !ok {
		c.t.Fatalf("%s result is %T, want %T", method, resp.Result, v)
	}
	return v
}

// Initialize performs the handshake; afterwards the session is ready.
func (c *Client) Initialize() protocol.InitializeResult {
	c.t.Helper()
	resp := c.Send(protocol.MethodInitialize, protocol.InitializeParams{
		ProtocolVersion: protocol.MCPVersion,
		ClientInfo:      protocol.ClientInfo{Name: "testutil", Version: "0.0.0"},
	})
	return result[protocol.InitializeResult](c, protocol.MethodInitialize, resp)
}

// Ping round-trips a ping.
func (c *Client) Ping() {
	c.t.Helper()
	resp := c.Send(protocol.MethodPing, nil)
	result[protocol.EmptyResult](c, protocol.MethodPing, resp)
}

// ListTools fetches one page of tools.
func (c *Client) ListTools(cursor string) protocol.ListToolsResult {
	c.t.Helper()
	resp := c.Send(protocol.MethodToolsList, protocol.ListToolsParams{Cursor: cursor})
	return result[protocol.ListToolsResult](c, protocol.MethodToolsList, resp)
}

// CallTool invokes a tool and fails the test on any protocol error. In-band
// failures (IsError) pass through for the test to assert on.
func (c *Client) CallTool(name string, args any) *protocol.CallToolResult {
	c.t.Helper()

	var raw json.RawMessage
	if args != nil {
		data, err := json.Marshal(args)
		if err != nil {
			c.t.Fatalf("marshal arguments for %s: %v", name, err)
		}
		raw = data
	}

	resp := c.Send(protocol.MethodToolsCall, protocol.CallToolParams{Name: name, Arguments: raw})
	return result[*protocol.CallToolResult](c, protocol.MethodToolsCall, resp)
}

// ListResources fetches one page of resources.
func (c *Client) ListResources(cursor string) protocol.ListResourcesResult {
	c.t.Helper()
	resp := c.Send(protocol.MethodResourcesList, protocol.ListResourcesParams{Cursor: cursor})
	return result[protocol.ListResourcesResult](c, protocol.MethodResourcesList, resp)
}

// ReadResource reads one resource.
func (c *Client) ReadResource(uri string) protocol.ReadResourceResult {
	c.t.Helper()
	resp := c.Send(protocol.MethodResourcesRead, protocol.ReadResourceParams{URI: uri})
	return result[protocol.ReadResourceResult](c, protocol.MethodResourcesRead, resp)
}

// Subscribe subscribes the connection to a resource's updates.
func (c *Client) Subscribe(uri string) {
	c.t.Helper()
	resp := c.Send(protocol.MethodResourcesSubscribe, protocol.SubscribeResourceParams{URI: uri})
	result[protocol.EmptyResult](c, protocol.MethodResourcesSubscribe, resp)
}

// Unsubscribe removes a resource subscription.
func (c *Client) Unsubscribe(uri string) {
	c.t.Helper()
	resp := c.Send(protocol.MethodResourcesUnsubscribe, protocol.UnsubscribeResourceParams{URI: uri})
	result[protocol.EmptyResult](c, protocol.MethodResourcesUnsubscribe, resp)
}

// ListPrompts fetches one page of prompts.
func (c *Client) ListPrompts(cursor string) protocol.ListPromptsResult {
	c.t.Helper()
	resp := c.Send(protocol.MethodPromptsList, protocol.ListPromptsParams{Cursor: cursor})
	return result[protocol.ListPromptsResult](c, protocol.MethodPromptsList, resp)
}

// GetPrompt renders a prompt.
func (c *Client) GetPrompt(name string, args map[string]any) *protocol.GetPromptResult {
	c.t.Helper()
	resp := c.Send(protocol.MethodPromptsGet, protocol.GetPromptParams{Name: name, Arguments: args})
	return result[*protocol.GetPromptResult](c, protocol.MethodPromptsGet, resp)
}

// SetLogLevel sets the session's log level floor.
func (c *Client) SetLogLevel(level protocol.LogLevel) {
	c.t.Helper()
	resp := c.Send(protocol.MethodLoggingSetLevel, protocol.SetLevelParams{Level: level})
	result[protocol.EmptyResult](c, protocol.MethodLoggingSetLevel, resp)
}

// Text returns the first text content of a tool result, or "".
func Text(result *protocol.CallToolResult) string {
	if result == nil || len(result.Content) == 0 {
		return ""
	}
	return result.Content[0].Text
}

// AssertToolExists fails the test unless a tool with the name is listed.
func (c *Client) AssertToolExists(name string) {
	c.t.Helper()
	for _, tool := range c.ListTools("").Tools {
		if tool.Name == name {
			return
		}
	}
	c.t.Errorf("tool %q is not listed", name)
}

// AssertResourceExists fails the test unless a resource with the URI is
// listed.
func (c *Client) AssertResourceExists(uri string) {
	c.t.Helper()
	for _, res := range c.ListResources("").Resources {
		if res.URI == uri {
			return
		}
	}
	c.t.Errorf("resource %q is not listed", uri)
}

// AssertPromptExists fails the test unless a prompt with the name is listed.
func (c *Client) AssertPromptExists(name string) {
	c.t.Helper()
	for _, p := range c.ListPrompts("").Prompts {
		if p.Name == name {
			return
		}
	}
	c.t.Errorf("prompt %q is not listed", name)
}
