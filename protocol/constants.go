package protocol

// MCPVersion is the MCP protocol revision this server implements.
const MCPVersion = "2024-11-05"

// Request methods.
const (
	MethodInitialize            = "initialize"
	MethodPing                  = "ping"
	MethodToolsList             = "tools/list"
	MethodToolsCall             = "tools/call"
	MethodResourcesList         = "resources/list"
	MethodResourcesRead         = "resources/read"
	MethodResourcesSubscribe    = "resources/subscribe"
	MethodResourcesUnsubscribe  = "resources/unsubscribe"
	MethodPromptsList           = "prompts/list"
	MethodPromptsGet            = "prompts/get"
	MethodSamplingCreateMessage = "sampling/createMessage"
	MethodLoggingSetLevel       = "logging/setLevel"
)

// Notification methods.
const (
	MethodProgress             = "progress"
	MethodLoggingMessage       = "logging/message"
	MethodResourcesUpdated     = "resources/updated"
	MethodToolsListChanged     = "tools/list_changed"
	MethodResourcesListChanged = "resources/list_changed"
	MethodPromptsListChanged   = "prompts/list_changed"
)
