package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/designd/internal/session"
	"github.com/fyrsmithlabs/designd/internal/telemetry"
	"github.com/fyrsmithlabs/designd/internal/tools"
	"github.com/fyrsmithlabs/designd/internal/workflow"
)

type fakeRunner struct {
	kinds   []tools.Kind
	queries []string
	err     error
}

func (f *fakeRunner) Run(_ context.Context, k tools.Kind, query string) (string, error) {
	f.kinds = append(f.kinds, k)
	f.queries = append(f.queries, query)
	if f.err != nil {
		return "", f.err
	}
	return fmt.Sprintf("%s results for %s", k, query), nil
}

type fakeAsker struct {
	turns map[string]int
	err   error
}

func (f *fakeAsker) AnswerText(_ context.Context, id, query string) (*workflow.TextResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	if id == "" {
		id = "thread-1"
	} else if _, ok := f.turns[id]; !ok {
		return nil, session.ErrNotFound
	}
	f.turns[id]++
	return &workflow.TextResult{SessionID: id, Turn: f.turns[id], Answer: "answer: " + query}, nil
}

// connect wires a client session to s over in-memory transports.
func connect(t *testing.T, s *Server) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	ss, err := s.mcp.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, nil, &fakeAsker{})
	assert.ErrorContains(t, err, "tool runner is required")

	_, err = NewServer(nil, &fakeRunner{}, nil)
	assert.ErrorContains(t, err, "asker is required")

	s, err := NewServer(nil, &fakeRunner{}, &fakeAsker{})
	require.NoError(t, err)
	assert.NotNil(t, s.mcp)
}

func TestListTools(t *testing.T) {
	s, err := NewServer(DefaultConfig(), &fakeRunner{}, &fakeAsker{})
	require.NoError(t, err)
	cs := connect(t, s)

	res, err := cs.ListTools(context.Background(), nil)
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{"search_design_db", "web_search", "ask"}, names)
}

func TestSearchTools(t *testing.T) {
	runner := &fakeRunner{}
	s, err := NewServer(nil, runner, &fakeAsker{})
	require.NoError(t, err)
	cs := connect(t, s)
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "search_design_db",
		Arguments: map[string]any{"query": "둥근 의자"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "search_design_db results for 둥근 의자", text(t, res))

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "web_search",
		Arguments: map[string]any{"query": "design patent"},
	})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	assert.Equal(t, []tools.Kind{tools.KindDesignSearch, tools.KindWebSearch}, runner.kinds)
}

func TestSearchTool_Errors(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("%w: tavily 500", tools.ErrSearchFailed)}
	s, err := NewServer(nil, runner, &fakeAsker{})
	require.NoError(t, err)
	cs := connect(t, s)

	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "web_search",
		Arguments: map[string]any{"query": "x"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search_design_db",
		Arguments: map[string]any{"query": "  "},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Len(t, runner.kinds, 1)
}

func TestAskTool_Threads(t *testing.T) {
	asker := &fakeAsker{turns: map[string]int{}}
	s, err := NewServer(nil, &fakeRunner{}, asker)
	require.NoError(t, err)
	cs := connect(t, s)
	ctx := context.Background()

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "ask",
		Arguments: map[string]any{"question": "첫 질문"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, "answer: 첫 질문", text(t, res))

	out, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "thread-1", out["thread_id"])
	assert.EqualValues(t, 1, out["turn"])

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "ask",
		Arguments: map[string]any{"question": "두번째", "thread_id": "thread-1"},
	})
	require.NoError(t, err)
	out = res.StructuredContent.(map[string]any)
	assert.EqualValues(t, 2, out["turn"])

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "ask",
		Arguments: map[string]any{"question": "q", "thread_id": "missing"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestCategorizeError(t *testing.T) {
	assert.Equal(t, "", categorizeError(nil))
	assert.Equal(t, "validation_error", categorizeError(workflow.ErrInvalidInput))
	assert.Equal(t, "not_found", categorizeError(fmt.Errorf("load: %w", session.ErrNotFound)))
	assert.Equal(t, "timeout", categorizeError(context.DeadlineExceeded))
	assert.Equal(t, "upstream_error", categorizeError(tools.ErrSearchFailed))
	assert.Equal(t, "internal_error", categorizeError(errors.New("boom")))
}

func TestMetrics_RecordedPerInvocation(t *testing.T) {
	tt := telemetry.NewTestTelemetry(t)
	s, err := NewServer(nil, &fakeRunner{}, &fakeAsker{turns: map[string]int{}})
	require.NoError(t, err)
	cs := connect(t, s)

	_, err = cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "search_design_db",
		Arguments: map[string]any{"query": "lamp"},
	})
	require.NoError(t, err)

	assert.True(t, tt.HasMetric(t, "designd.mcp.tool.invocations_total"))
	assert.True(t, tt.HasMetric(t, "designd.mcp.tool.duration_seconds"))
}
