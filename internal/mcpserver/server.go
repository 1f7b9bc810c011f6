package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all screening tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("ipintel", "1.0.0")
	client := NewIPIntelClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolScreenIP, h.HandleScreenIP)
	s.AddTool(ToolLookupReputation, h.HandleLookupReputation)
	s.AddTool(ToolCheckCountry, h.HandleCheckCountry)

	return s
}
