package mcp

import (
	"github.com/ajitpratap0/mcp-sse-server/pkg/client"
	"github.com/ajitpratap0/mcp-sse-server/pkg/config"
	"github.com/ajitpratap0/mcp-sse-server/pkg/protocol"
	"github.com/ajitpratap0/mcp-sse-server/pkg/server"
	"github.com/ajitpratap0/mcp-sse-server/pkg/tools"
)

// Version is the release of this module
const Version = "1.0.0"

// ProtocolRevision is the MCP revision the server announces
const ProtocolRevision = protocol.ProtocolRevision

// These exports provide direct access to the core components
var (
	// NewServer creates a server from config, a tool registry and a data provider
	NewServer = server.New

	// NewClient creates a client for a server's event stream endpoint
	NewClient = client.New

	// NewRegistry builds the immutable tool registry
	NewRegistry = tools.NewRegistry

	// LoadConfig reads the server configuration from the environment
	LoadConfig = config.Load

	// DefaultConfig returns the configuration used without overrides
	DefaultConfig = config.Default
)
