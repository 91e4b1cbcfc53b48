// Package protocol defines the MCP JSON-RPC 2.0 wire types, method names,
// error codes and structural validation rules.
//
// This package is the lowest layer of mcp-go. Most users should use the
// higher-level mcp and server packages instead.
//
// # Requests and Notifications
//
// Both arrive as the same frame shape; the presence of an id distinguishes
// them:
//
//	type Request struct {
//	    JSONRPC string          `json:"jsonrpc"`
//	    ID      json.RawMessage `json:"id,omitempty"`
//	    Method  string          `json:"method"`
//	    Params  json.RawMessage `json:"params,omitempty"`
//	}
//
// A frame without an id is a notification: it never receives a response, not
// even on failure. A frame with an id always receives exactly one Response
// echoing that id.
//
// # Error Codes
//
// Standard JSON-RPC 2.0 error codes plus the MCP domain codes:
//
//	CodeParseError       = -32700 // Invalid JSON
//	CodeInvalidRequest   = -32600 // Invalid Request object or lifecycle violation
//	CodeMethodNotFound   = -32601 // Method not found
//	CodeInvalidParams    = -32602 // Invalid method parameters
//	CodeInternalError    = -32603 // Internal server error
//	CodeToolNotFound     = -32000 // Unknown tool name
//	CodeResourceNotFound = -32001 // Unknown resource URI
//	CodePromptNotFound   = -32002 // Unknown prompt name
//
// Helper functions create properly formatted errors:
//
//	err := protocol.NewMethodNotFound("unknown/method")
//	err := protocol.NewToolNotFound("tool not found: calculate")
//
// # Validation
//
// The Validate* functions implement the structural rules the dispatcher
// applies after decoding: jsonrpc version pinning, reserved method prefixes,
// URI shape, content exclusivity (text xor blob), sampling bounds and
// progress ranges.
package protocol
