package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/sebcbi1/postgres-mcp/internal/config"
	"github.com/sebcbi1/postgres-mcp/internal/tools"
)

type MCPServerConfig struct {
	Version string
	Config  *config.Config
	Logger  *zap.Logger
}

func NewMCPServer(cfg MCPServerConfig) (*mcp.Server, *tools.Deps, error) {
	if cfg.Config == nil {
		return nil, nil, fmt.Errorf("runtime configuration is required")
	}

	impl := &mcp.Implementation{Name: "postgres-mcp-server", Version: cfg.Version}
	server := mcp.NewServer(impl, nil)

	// Tools are registered without requiring a reachable database at startup:
	// the pool opens lazily on the first query, and the discovery tools work
	// with no configuration at all.
	deps := tools.NewDeps(cfg.Config, cfg.Logger)
	tools.RegisterTools(server, deps)

	return server, deps, nil
}

func RunStdioServer(cfg MCPServerConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, deps, err := NewMCPServer(cfg)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	defer deps.Close(cfg.Config.CloseGrace)

	cfg.Logger.Info("postgres MCP server running",
		zap.Bool("read_only", cfg.Config.ReadOnly),
		zap.String("project_dir", cfg.Config.ProjectDir))

	return server.Run(ctx, &mcp.StdioTransport{})
}
