package protocol

const (
	// ProtocolRevision is the MCP revision announced in initialize responses
	ProtocolRevision = "2024-11-05"

	// Methods for lifecycle management
	MethodInitialize = "initialize"
	MethodPing       = "ping"

	// Methods for server features
	MethodListTools = "tools/list"
	MethodCallTool  = "tools/call"

	// Notifications pushed by the server on stream sessions
	NotificationInitialized      = "notification/initialized"
	NotificationToolsListChanged = "notification/tools/list_changed"
)

// InitializeParams defines the parameters for the initialize request.
// All members are optional; the server does not negotiate on them.
type InitializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion,omitempty"`
	Capabilities    map[string]interface{} `json:"capabilities,omitempty"`
	ClientInfo      *ClientInfo            `json:"clientInfo,omitempty"`
}

// ClientInfo provides additional information about the client
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult defines the response for the initialize request
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      ServerInfo         `json:"serverInfo"`
}

// ServerCapabilities lists what the server offers
type ServerCapabilities struct {
	Tools *ToolsCapability `json:"tools"`
}

// ToolsCapability is announced as an empty object
type ToolsCapability struct{}

// ServerInfo identifies the server implementation
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// PingResult is the empty acknowledgement returned for ping
type PingResult struct{}
