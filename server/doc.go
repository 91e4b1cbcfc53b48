// Package server provides the core MCP server implementation.
//
// This package holds the connection lifecycle state machine, the tool,
// resource, and prompt registries, the request dispatcher, and the
// subscription fan-out. Most users should use the higher-level mcp package
// instead of using this package directly.
//
// # Server
//
// The Server type routes decoded JSON-RPC frames and manages one session
// per live connection:
//
//	srv := server.New(server.Info{
//	    Name:    "my-server",
//	    Version: "1.0.0",
//	})
//
// # Tools
//
// Tools pair listing metadata with a handler:
//
//	srv.AddTool(server.Tool{
//	    Name:        "search",
//	    Description: "Search for items",
//	    Handler: server.ToolHandlerFunc(func(ctx context.Context, args json.RawMessage) (*protocol.CallToolResult, error) {
//	        return server.TextResult("result1, result2"), nil
//	    }),
//	})
//
// NewTypedTool derives the input schema from an argument struct:
//
//	type SearchArgs struct {
//	    Query string `json:"query" jsonschema:"required"`
//	}
//
//	tool, err := server.NewTypedTool("search", "Search for items",
//	    func(ctx context.Context, args SearchArgs) (*protocol.CallToolResult, error) {
//	        return server.TextResult("found: " + args.Query), nil
//	    })
//
// # Resources
//
// Resources are registered under a URI; reads resolve exact matches first,
// then the longest registered prefix:
//
//	srv.AddResource(server.Resource{
//	    URI:      "file:///logs/",
//	    Name:     "Logs",
//	    MimeType: "text/plain",
//	    Handler: server.ResourceReadFunc(func(ctx context.Context, uri string, params map[string]string) ([]protocol.ResourceContent, error) {
//	        return server.TextResource(uri, "text/plain", "content"), nil
//	    }),
//	})
//
// # Prompts
//
// Prompts expose parameterized message templates:
//
//	srv.AddPrompt(server.Prompt{
//	    Name:      "greet",
//	    Arguments: []protocol.PromptArgument{{Name: "name", Required: true}},
//	    Handler: server.PromptHandlerFunc(func(ctx context.Context, args map[string]string) (*protocol.GetPromptResult, error) {
//	        return &protocol.GetPromptResult{
//	            Messages: []protocol.PromptMessage{server.UserMessage("Hello, " + args["name"])},
//	        }, nil
//	    }),
//	})
package server
