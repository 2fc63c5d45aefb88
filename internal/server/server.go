// Package server provides the MCP server wrapper with lifecycle management.
package server

import (
	"context"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/raphaelgruber/localgenius/internal/tools"
)

// Name is the implementation name reported to MCP clients.
const Name = "localgenius"

// Server wraps the MCP server with its job tools and logging middleware.
type Server struct {
	mcp    *mcp.Server
	logger *slog.Logger
}

// New creates an MCP server exposing the job tools backed by deps.
func New(version string, deps *tools.Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
		deps.Logger = logger
	}

	s := &Server{
		mcp:    mcp.NewServer(&mcp.Implementation{Name: Name, Version: version}, nil),
		logger: logger,
	}
	s.mcp.AddReceivingMiddleware(LoggingMiddleware(logger))
	tools.RegisterAll(s.mcp, deps)
	return s
}

// Run serves on stdio and blocks until the client disconnects or ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server", "transport", "stdio")
	return s.mcp.Run(ctx, &mcp.StdioTransport{})
}

// MCPServer returns the underlying MCP server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}
