package mcp

import (
	"github.com/mark3labs/mcp-go/server"

	"github.com/btouchard/beacon/internal/engine"
)

// Deps holds shared dependencies injected into MCP handlers.
type Deps struct {
	Engine  *engine.Engine
	Version string
}

// NewServer creates and configures the MCP server with all tools registered.
func NewServer(deps *Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"Beacon",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithLogging(),
	)

	registerTools(s, deps)

	return s
}
