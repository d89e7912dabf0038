// Package mcpserver exposes the dedup and queue use cases as MCP tools so
// an agent can check topics and stage drafts without shelling out.
package mcpserver

import (
	"context"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"ChannelManager/internal/usecase"
)

// Version is the MCP server version.
const Version = "0.1.0"

// Services are the use cases reachable through tools.
type Services struct {
	Channels *usecase.Channels
	Dedup    *usecase.Dedup
	Queue    *usecase.Queue
}

func (s Services) validate() error {
	if s.Channels == nil || s.Dedup == nil || s.Queue == nil {
		return errors.New("mcp server: channels, dedup and queue services are required")
	}
	return nil
}

// Server is the tgcm MCP server.
type Server struct {
	services Services
	server   *mcp.Server
}

// NewServer registers every tool.
func NewServer(services Services) (*Server, error) {
	if err := services.validate(); err != nil {
		return nil, err
	}

	s := &Server{
		services: services,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    "tgcm",
			Version: Version,
		}, nil),
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}
