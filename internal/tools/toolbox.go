package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/llm"
)

// WebSearcher runs a web search.
type WebSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// DesignSearcher runs a design database search.
type DesignSearcher interface {
	Search(ctx context.Context, query string) (string, error)
}

// Toolbox dispatches model tool calls to their implementations.
type Toolbox struct {
	web    WebSearcher
	design DesignSearcher
	logger *zap.Logger
}

// NewToolbox creates a Toolbox.
func NewToolbox(web WebSearcher, design DesignSearcher, logger *zap.Logger) *Toolbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Toolbox{web: web, design: design, logger: logger}
}

type queryArgs struct {
	Query string `json:"query"`
}

var queryParams = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"query": {Type: jsonschema.String, Description: "검색어"},
	},
	Required: []string{"query"},
}

// Definitions returns the tool specs offered to the model.
func (t *Toolbox) Definitions() []llm.ToolSpec {
	return []llm.ToolSpec{
		{
			Name:        NameWebSearch,
			Description: "웹 검색 tool. 특허 뉴스, 법률 정보, 일반 질문 등에 활용됨.",
			Parameters:  queryParams,
		},
		{
			Name:        NameDesignSearch,
			Description: "사용자가 자연어로 유사 디자인을 검색할 경우 사용되는 tool. 예: 둥근 펌프 용기, 사각형 병",
			Parameters:  queryParams,
		},
	}
}

// Run executes the tool of kind k.
func (t *Toolbox) Run(ctx context.Context, k Kind, query string) (string, error) {
	switch k {
	case KindWebSearch:
		return t.web.Search(ctx, query)
	case KindDesignSearch:
		return t.design.Search(ctx, query)
	default:
		return "", fmt.Errorf("unknown tool kind %d", int(k))
	}
}

// Call executes a model tool call and returns the text sent back to the
// model. Failures become the tool output instead of aborting the turn.
func (t *Toolbox) Call(ctx context.Context, call llm.ToolCall) string {
	kind, ok := ParseKind(call.Name)
	if !ok {
		return fmt.Sprintf("Error: %s is not a valid tool, try one of [%s, %s].", call.Name, NameWebSearch, NameDesignSearch)
	}

	var args queryArgs
	if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
		return fmt.Sprintf("Error: invalid arguments for %s: %v", call.Name, err)
	}

	t.logger.Info("tool call", zap.String("tool", call.Name), zap.String("query", args.Query))
	out, err := t.Run(ctx, kind, args.Query)
	if err != nil {
		t.logger.Warn("tool call failed", zap.String("tool", call.Name), zap.Error(err))
		return fmt.Sprintf("Error: %v", err)
	}
	return out
}
