package protocol

import (
	"encoding/json"
	"fmt"
)

// ServerInfo identifies an MCP server.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientInfo identifies an MCP client.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ServerCapabilities advertises what a server supports. A nil section means
// the capability is not offered.
type ServerCapabilities struct {
	Prompts   *PromptsCapability   `json:"prompts,omitempty"`
	Resources *ResourcesCapability `json:"resources,omitempty"`
	Tools     *ToolsCapability     `json:"tools,omitempty"`
	Sampling  *SamplingCapability  `json:"sampling,omitempty"`
}

// ClientCapabilities advertises what a client supports.
type ClientCapabilities struct {
	Sampling *SamplingCapability `json:"sampling,omitempty"`
}

// PromptsCapability describes prompt support.
type PromptsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability describes resource support.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// ToolsCapability describes tool support.
type ToolsCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// SamplingCapability describes sampling support. It currently carries no
// fields; its presence alone signals support.
type SamplingCapability struct{}

// Content is a single content block returned by tools or embedded in prompt
// messages. Type discriminates the variant: "text" or "image".
type Content struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// NewTextContent creates a text content block.
func NewTextContent(text string) Content {
	return Content{Type: "text", Text: text}
}

// NewImageContent creates an image content block from base64-encoded data.
func NewImageContent(data, mimeType string) Content {
	return Content{Type: "image", Data: data, MimeType: mimeType}
}

// ResourceContent is one piece of a resource read result. Exactly one of
// Text and Blob must be set; Blob carries base64-encoded binary data.
type ResourceContent struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     string `json:"blob,omitempty"`
}

// Annotations are audience and priority hints attached to a resource.
// Audience values are "user" and "assistant"; Priority ranges 0 to 1.
type Annotations struct {
	Audience []string `json:"audience,omitempty"`
	Priority *float64 `json:"priority,omitempty"`
}

// ToolAnnotations are behavioral hints about a tool. They are advisory
// metadata for clients deciding how to present or gate a tool; the server
// never enforces them.
type ToolAnnotations struct {
	Title           string `json:"title,omitempty"`
	ReadOnlyHint    *bool  `json:"readOnlyHint,omitempty"`
	DestructiveHint *bool  `json:"destructiveHint,omitempty"`
	IdempotentHint  *bool  `json:"idempotentHint,omitempty"`
	OpenWorldHint   *bool  `json:"openWorldHint,omitempty"`
}

// ToolInfo is the listing metadata of a registered tool.
type ToolInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	InputSchema json.RawMessage  `json:"inputSchema"`
	Annotations *ToolAnnotations `json:"annotations,omitempty"`
}

// ResourceInfo is the listing metadata of a registered resource.
type ResourceInfo struct {
	URI         string       `json:"uri"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	MimeType    string       `json:"mimeType,omitempty"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

// PromptInfo is the listing metadata of a registered prompt.
type PromptInfo struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// PromptArgument describes one argument a prompt accepts.
type PromptArgument struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
}

// PromptMessage is one message of a prompt result.
type PromptMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// SamplingMessage is one message of a sampling conversation.
type SamplingMessage struct {
	Role    string          `json:"role"`
	Content SamplingContent `json:"content"`
}

// SamplingContent is either a bare string or a list of content blocks. The
// wire form is untagged: a JSON string or a JSON array.
type SamplingContent struct {
	Text  string
	Parts []Content
}

// TextSampling creates plain-text sampling content.
func TextSampling(text string) SamplingContent {
	return SamplingContent{Text: text}
}

// MarshalJSON encodes the bare-string form unless parts are present.
func (c SamplingContent) MarshalJSON() ([]byte, error) {
	if c.Parts != nil {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON accepts either a JSON string or an array of content blocks.
func (c *SamplingContent) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		c.Text = text
		c.Parts = nil
		return nil
	}
	var parts []Content
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("sampling content must be a string or content array: %w", err)
	}
	c.Text = ""
	c.Parts = parts
	return nil
}

// ModelPreferences carries sampling model selection hints.
type ModelPreferences struct {
	CostPriority    *float64 `json:"costPriority,omitempty"`
	SpeedPriority   *float64 `json:"speedPriority,omitempty"`
	QualityPriority *float64 `json:"qualityPriority,omitempty"`
}

// LogLevel is a syslog-style logging severity.
type LogLevel string

// Logging levels ordered from least to most severe.
const (
	LogDebug     LogLevel = "debug"
	LogInfo      LogLevel = "info"
	LogNotice    LogLevel = "notice"
	LogWarning   LogLevel = "warning"
	LogError     LogLevel = "error"
	LogCritical  LogLevel = "critical"
	LogAlert     LogLevel = "alert"
	LogEmergency LogLevel = "emergency"
)

var logSeverity = map[LogLevel]int{
	LogDebug:     0,
	LogInfo:      1,
	LogNotice:    2,
	LogWarning:   3,
	LogError:     4,
	LogCritical:  5,
	LogAlert:     6,
	LogEmergency: 7,
}

// Valid reports whether the level is one of the defined levels.
func (l LogLevel) Valid() bool {
	_, ok := logSeverity[l]
	return ok
}

// Severity returns the numeric rank of the level, higher meaning more
// severe. Unknown levels rank below debug.
func (l LogLevel) Severity() int {
	if s, ok := logSeverity[l]; ok {
		return s
	}
	return -1
}
