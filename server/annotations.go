package server

import "github.com/hyphasys/mcp-go/protocol"

// Bool returns a pointer to v, for optional annotation hints.
func Bool(v bool) *bool { return &v }

// Float returns a pointer to v, for optional annotation hints.
func Float(v float64) *float64 { return &v }

// ReadOnlyTool marks a tool as side-effect free.
func ReadOnlyTool(title string) *protocol.ToolAnnotations {
	return &protocol.ToolAnnotations{
		Title:           title,
		ReadOnlyHint:    Bool(true),
		DestructiveHint: Bool(false),
	}
}

// DestructiveTool marks a tool as making irreversible changes.
func DestructiveTool(title string) *protocol.ToolAnnotations {
	return &protocol.ToolAnnotations{
		Title:           title,
		DestructiveHint: Bool(true),
	}
}

// IdempotentTool marks repeat calls with the same input as equivalent to one.
func IdempotentTool(title string) *protocol.ToolAnnotations {
	return &protocol.ToolAnnotations{
		Title:          title,
		IdempotentHint: Bool(true),
	}
}

// ForAudience builds resource annotations aimed at the given audiences, with
// "user" and "assistant" being the values clients understand.
func ForAudience(audience ...string) *protocol.Annotations {
	return &protocol.Annotations{Audience: audience}
}
