package mcp

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/docfetcher/internal/service"
)

// ServerConfig contains configuration for creating an MCP server
type ServerConfig struct {
	Name    string
	Version string
	Service *service.Service
}

// CreateServer creates and configures the MCP server
func CreateServer(cfg ServerConfig) *mcp.Server {
	s := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	if cfg.Service != nil {
		RegisterSearchTool(s, cfg.Service)
		RegisterReadTool(s, cfg.Service)
		RegisterScopeTools(s, cfg.Service)
		RegisterJobTools(s, cfg.Service)
	}

	return s
}
