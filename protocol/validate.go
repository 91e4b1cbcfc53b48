package protocol

import (
	"fmt"
	"strings"
)

// requestMethods is the set of cataloged request methods.
var requestMethods = map[string]bool{
	MethodInitialize:            true,
	MethodPing:                  true,
	MethodToolsList:             true,
	MethodToolsCall:             true,
	MethodResourcesList:         true,
	MethodResourcesRead:         true,
	MethodResourcesSubscribe:    true,
	MethodResourcesUnsubscribe:  true,
	MethodPromptsList:           true,
	MethodPromptsGet:            true,
	MethodSamplingCreateMessage: true,
	MethodLoggingSetLevel:       true,
}

// notificationMethods is the set of cataloged notification methods.
var notificationMethods = map[string]bool{
	MethodProgress:             true,
	MethodLoggingMessage:       true,
	MethodResourcesUpdated:     true,
	MethodToolsListChanged:     true,
	MethodResourcesListChanged: true,
	MethodPromptsListChanged:   true,
}

// ValidateRequest checks the envelope of a decoded request or notification.
func ValidateRequest(req *Request) error {
	if req.JSONRPC != JSONRPCVersion {
		return fmt.Errorf("jsonrpc must be %q", JSONRPCVersion)
	}
	if req.Method == "" {
		return fmt.Errorf("method name cannot be empty")
	}
	if strings.HasPrefix(req.Method, "rpc.") {
		return fmt.Errorf("method names starting with 'rpc.' are reserved")
	}
	return nil
}

// ValidateMethodName checks a method name against the catalog. Custom
// methods are acceptable when they are namespaced with '/' or '.'.
func ValidateMethodName(method string) error {
	if method == "" {
		return fmt.Errorf("method name cannot be empty")
	}
	if requestMethods[method] || notificationMethods[method] {
		return nil
	}
	if strings.Contains(method, "/") || strings.Contains(method, ".") {
		return nil
	}
	return fmt.Errorf("unknown or invalid method name: %s", method)
}

// ValidateURI checks that a URI has a scheme or is an absolute path.
func ValidateURI(uri string) error {
	if uri == "" {
		return fmt.Errorf("uri cannot be empty")
	}
	if !strings.Contains(uri, "://") && !strings.HasPrefix(uri, "/") && !strings.HasPrefix(uri, "file:") {
		return fmt.Errorf("uri must have a scheme or be an absolute path")
	}
	return nil
}

// ValidateInitializeParams checks the initialize handshake payload.
func ValidateInitializeParams(p *InitializeParams) error {
	if p.ClientInfo.Name == "" {
		return fmt.Errorf("client name cannot be empty")
	}
	if p.ClientInfo.Version == "" {
		return fmt.Errorf("client version cannot be empty")
	}
	if p.ProtocolVersion == "" {
		return fmt.Errorf("protocol version cannot be empty")
	}
	return nil
}

// ValidateCallToolParams checks a tools/call payload.
func ValidateCallToolParams(p *CallToolParams) error {
	if p.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	return nil
}

// ValidateReadResourceParams checks a resources/read payload.
func ValidateReadResourceParams(p *ReadResourceParams) error {
	if p.URI == "" {
		return fmt.Errorf("resource uri cannot be empty")
	}
	return ValidateURI(p.URI)
}

// ValidateGetPromptParams checks a prompts/get payload.
func ValidateGetPromptParams(p *GetPromptParams) error {
	if p.Name == "" {
		return fmt.Errorf("prompt name cannot be empty")
	}
	return nil
}

// ValidateResourceContent checks a resource read result entry. Exactly one
// of text and blob must be present.
func ValidateResourceContent(c *ResourceContent) error {
	if c.URI == "" {
		return fmt.Errorf("resource content uri cannot be empty")
	}
	if c.Text != "" && c.Blob != "" {
		return fmt.Errorf("resource content cannot have both text and blob")
	}
	if c.Text == "" && c.Blob == "" {
		return fmt.Errorf("resource content must have either text or blob")
	}
	return nil
}

// ValidateContent checks a content block.
func ValidateContent(c *Content) error {
	switch c.Type {
	case "text":
		if c.Text == "" {
			return fmt.Errorf("text content cannot be empty")
		}
	case "image":
		if c.Data == "" {
			return fmt.Errorf("image data cannot be empty")
		}
		if c.MimeType == "" {
			return fmt.Errorf("image mime type cannot be empty")
		}
		if !strings.HasPrefix(c.MimeType, "image/") {
			return fmt.Errorf("image mime type must start with 'image/'")
		}
	default:
		return fmt.Errorf("unknown content type: %s", c.Type)
	}
	return nil
}

// ValidateCreateMessageParams checks a sampling/createMessage payload.
func ValidateCreateMessageParams(p *CreateMessageParams) error {
	if len(p.Messages) == 0 {
		return fmt.Errorf("sampling request must have at least one message")
	}
	for _, m := range p.Messages {
		if m.Role == "" {
			return fmt.Errorf("message role cannot be empty")
		}
	}
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	if p.TopP != nil && (*p.TopP < 0 || *p.TopP > 1) {
		return fmt.Errorf("topP must be between 0.0 and 1.0")
	}
	if p.MaxTokens != nil && *p.MaxTokens <= 0 {
		return fmt.Errorf("maxTokens must be greater than 0")
	}
	return nil
}

// ValidateProgressParams checks a progress notification payload.
func ValidateProgressParams(p *ProgressParams) error {
	if p.ProgressToken == "" {
		return fmt.Errorf("progress token cannot be empty")
	}
	if p.Progress < 0 || p.Progress > 1 {
		return fmt.Errorf("progress must be between 0.0 and 1.0")
	}
	return nil
}

// ValidateSetLevelParams checks a logging/setLevel payload.
func ValidateSetLevelParams(p *SetLevelParams) error {
	if !p.Level.Valid() {
		return fmt.Errorf("unknown logging level: %s", p.Level)
	}
	return nil
}
