package server

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/hyphasys/mcp-go/protocol"
	"github.com/hyphasys/mcp-go/schema"
)

// ToolHandler executes a tool call. Arguments arrive as raw JSON; the handler
// owns decoding. Expected domain failures are reported in-band by returning a
// result with IsError set; a non-nil error is treated as an internal defect.
type ToolHandler interface {
	Call(ctx context.Context, args json.RawMessage) (*protocol.CallToolResult, error)
}

// ToolHandlerFunc adapts a function to ToolHandler.
type ToolHandlerFunc func(ctx context.Context, args json.RawMessage) (*protocol.CallToolResult, error)

// Call implements ToolHandler.
func (f ToolHandlerFunc) Call(ctx context.Context, args json.RawMessage) (*protocol.CallToolResult, error) {
	return f(ctx, args)
}

// Tool pairs listing metadata with the handler that executes calls. When
// InputSchema is set, call arguments are validated against it before the
// handler runs.
type Tool struct {
	Name        string
	Description string
	InputSchema *schema.Schema
	Annotations *protocol.ToolAnnotations
	Handler     ToolHandler
}

// NewTypedTool builds a Tool whose handler takes a concrete argument struct.
// The input schema is generated from In's fields, so listings advertise it
// and calls are validated against it.
func NewTypedTool[In any](name, description string, fn func(ctx context.Context, in In) (*protocol.CallToolResult, error)) (Tool, error) {
	s, err := schema.GenerateFromType(reflect.TypeOf((*In)(nil)).Elem())
	if err != nil {
		return Tool{}, fmt.Errorf("generate schema for tool %q: %w", name, err)
	}

	handler := ToolHandlerFunc(func(ctx context.Context, args json.RawMessage) (*protocol.CallToolResult, error) {
		var in In
		if len(args) > 0 {
			if err := json.Unmarshal(args, &in); err != nil {
				return nil, protocol.NewInvalidParams(fmt.Sprintf("failed to parse arguments: %v", err))
			}
		}
		return fn(ctx, in)
	})

	return Tool{
		Name:        name,
		Description: description,
		InputSchema: s,
		Handler:     handler,
	}, nil
}

// TextResult wraps plain text in a successful tool result.
func TextResult(text string) *protocol.CallToolResult {
	return &protocol.CallToolResult{
		Content: []protocol.Content{protocol.NewTextContent(text)},
	}
}

// ErrorResult wraps a domain failure message in an in-band error result. The
// surrounding JSON-RPC response is still successful.
func ErrorResult(text string) *protocol.CallToolResult {
	return &protocol.CallToolResult{
		Content: []protocol.Content{protocol.NewTextContent(text)},
		IsError: true,
	}
}

// info renders the registry entry advertised by tools/list.
func (t Tool) info() protocol.ToolInfo {
	info := protocol.ToolInfo{
		Name:        t.Name,
		Description: t.Description,
		Annotations: t.Annotations,
	}
	if t.InputSchema != nil {
		if raw, err := json.Marshal(t.InputSchema); err == nil {
			info.InputSchema = raw
		}
	}
	if info.InputSchema == nil {
		info.InputSchema = json.RawMessage(`{"type":"object"}`)
	}
	return info
}
