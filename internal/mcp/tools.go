package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/tools"
	"github.com/fyrsmithlabs/designd/internal/workflow"
)

type searchInput struct {
	Query string `json:"query" jsonschema:"Search query. Korean is translated before design search."`
}

type searchOutput struct {
	Result string `json:"result" jsonschema:"Formatted search results"`
}

type askInput struct {
	Question string `json:"question" jsonschema:"Question for the design patent assistant"`
	ThreadID string `json:"thread_id,omitempty" jsonschema:"Thread to continue; omit to start a new one"`
}

type askOutput struct {
	ThreadID string `json:"thread_id" jsonschema:"Thread id to pass on follow-up questions"`
	Turn     int    `json:"turn" jsonschema:"Turn number within the thread"`
	Answer   string `json:"answer" jsonschema:"Assistant answer"`
}

func (s *Server) registerTools() {
	s.registerSearchTool(tools.KindDesignSearch,
		"Search registered product designs similar to a text description. Returns article name, application number, registration status and similarity distance.")
	s.registerSearchTool(tools.KindWebSearch,
		"Search the web for recent information on design patents, products or regulations.")

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ask",
		Description: "Ask the design patent assistant a question. It may search the design database or the web. Pass thread_id to continue a conversation.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args askInput) (*mcp.CallToolResult, askOutput, error) {
		var out askOutput
		err := s.instrument(ctx, "ask", func() error {
			if strings.TrimSpace(args.Question) == "" {
				return fmt.Errorf("%w: question is required", workflow.ErrInvalidInput)
			}
			res, err := s.asker.AnswerText(ctx, args.ThreadID, args.Question)
			if err != nil {
				return err
			}
			out = askOutput{ThreadID: res.SessionID, Turn: res.Turn, Answer: res.Answer}
			return nil
		})
		if err != nil {
			return nil, askOutput{}, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: out.Answer}},
		}, out, nil
	})
}

func (s *Server) registerSearchTool(kind tools.Kind, description string) {
	name := kind.String()
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        name,
		Description: description,
	}, func(ctx context.Context, req *mcp.CallToolRequest, args searchInput) (*mcp.CallToolResult, searchOutput, error) {
		var result string
		err := s.instrument(ctx, name, func() error {
			if strings.TrimSpace(args.Query) == "" {
				return errors.New("query is required")
			}
			var err error
			result, err = s.tools.Run(ctx, kind, args.Query)
			return err
		})
		if err != nil {
			return nil, searchOutput{}, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: result}},
		}, searchOutput{Result: result}, nil
	})
}

// instrument records metrics and logs around one tool call.
func (s *Server) instrument(ctx context.Context, tool string, fn func() error) error {
	start := time.Now()
	s.metrics.IncrementActive(ctx, tool)
	err := fn()
	s.metrics.DecrementActive(ctx, tool)
	s.metrics.RecordInvocation(ctx, tool, time.Since(start), err)
	if err != nil {
		s.logger.Warn("mcp tool failed", zap.String("tool", tool), zap.Error(err))
	}
	return err
}
