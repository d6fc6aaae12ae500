package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/tools"
	"github.com/fyrsmithlabs/designd/internal/workflow"
)

// ToolRunner runs one of the closed set of search tools.
type ToolRunner interface {
	Run(ctx context.Context, k tools.Kind, query string) (string, error)
}

// Asker answers one text turn.
type Asker interface {
	AnswerText(ctx context.Context, id, query string) (*workflow.TextResult, error)
}

// Config configures the MCP server.
type Config struct {
	Name    string
	Version string
	Logger  *zap.Logger
}

// DefaultConfig returns the defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "designd",
		Version: "0.1.0",
		Logger:  zap.NewNop(),
	}
}

// Server wraps the MCP SDK server.
type Server struct {
	mcp     *mcp.Server
	tools   ToolRunner
	asker   Asker
	metrics *Metrics
	logger  *zap.Logger
}

// NewServer creates the server and registers its tools.
func NewServer(cfg *Config, runner ToolRunner, asker Asker) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if runner == nil {
		return nil, fmt.Errorf("tool runner is required")
	}
	if asker == nil {
		return nil, fmt.Errorf("asker is required")
	}

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    cfg.Name,
			Version: cfg.Version,
		},
		nil,
	)

	s := &Server{
		mcp:     mcpServer,
		tools:   runner,
		asker:   asker,
		metrics: NewMetrics(cfg.Logger),
		logger:  cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves on stdio until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	transport := &mcp.StdioTransport{}
	if err := s.mcp.Run(ctx, transport); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}
