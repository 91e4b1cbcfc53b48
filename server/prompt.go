package server

import (
	"context"
	"fmt"

	"github.com/hyphasys/mcp-go/protocol"
)

// PromptHandler renders a prompt template with the supplied arguments.
type PromptHandler interface {
	Get(ctx context.Context, args map[string]string) (*protocol.GetPromptResult, error)
}

// PromptHandlerFunc adapts a function to PromptHandler.
type PromptHandlerFunc func(ctx context.Context, args map[string]string) (*protocol.GetPromptResult, error)

// Get implements PromptHandler.
func (f PromptHandlerFunc) Get(ctx context.Context, args map[string]string) (*protocol.GetPromptResult, error) {
	return f(ctx, args)
}

// Prompt pairs listing metadata with the handler that renders it. Declared
// required arguments are enforced before the handler runs.
type Prompt struct {
	Name        string
	Description string
	Arguments   []protocol.PromptArgument
	Handler     PromptHandler
}

// checkArgs verifies every required argument is present and non-empty.
func (p Prompt) checkArgs(args map[string]string) error {
	for _, arg := range p.Arguments {
		if !arg.Required {
			continue
		}
		if args[arg.Name] == "" {
			return fmt.Errorf("missing required argument %q", arg.Name)
		}
	}
	return nil
}

// info renders the registry entry advertised by prompts/list.
func (p Prompt) info() protocol.PromptInfo {
	return protocol.PromptInfo{
		Name:        p.Name,
		Description: p.Description,
		Arguments:   p.Arguments,
	}
}

// UserMessage builds a user-role text message for a prompt result.
func UserMessage(text string) protocol.PromptMessage {
	return protocol.PromptMessage{
		Role:    "user",
		Content: protocol.NewTextContent(text),
	}
}

// AssistantMessage builds an assistant-role text message for a prompt result.
func AssistantMessage(text string) protocol.PromptMessage {
	return protocol.PromptMessage{
		Role:    "assistant",
		Content: protocol.NewTextContent(text),
	}
}
