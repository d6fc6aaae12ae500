package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/designd/internal/config"
	"github.com/fyrsmithlabs/designd/internal/llm"
	"github.com/fyrsmithlabs/designd/internal/vectorstore"
)

func TestKind(t *testing.T) {
	k, ok := ParseKind("web_search")
	require.True(t, ok)
	assert.Equal(t, KindWebSearch, k)
	assert.Equal(t, "web_search", k.String())

	k, ok = ParseKind("search_design_db")
	require.True(t, ok)
	assert.Equal(t, KindDesignSearch, k)

	_, ok = ParseKind("calculator")
	assert.False(t, ok)
	assert.Equal(t, "unknown", Kind(99).String())
}

func TestFormatWebResults(t *testing.T) {
	out := FormatWebResults([]WebResult{
		{Content: "디자인보호법 개정", URL: "https://example.com/a"},
		{Content: "신규 판례", URL: "https://example.com/b"},
	})
	assert.Equal(t,
		"- 디자인보호법 개정\n  출처: https://example.com/a\n\n- 신규 판례\n  출처: https://example.com/b\n\n",
		out)
	assert.Empty(t, FormatWebResults(nil))
}

func TestWebSearch_Search(t *testing.T) {
	var got tavilyRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		auth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(tavilyResponse{Results: []WebResult{
			{Title: "t", URL: "https://example.com", Content: "내용"},
		}})
	}))
	defer srv.Close()

	ws := NewWebSearch(config.WebSearchConfig{BaseURL: srv.URL, APIKey: "tvly-key", MaxResults: 3}, nil)
	out, err := ws.Search(context.Background(), "디자인 특허 트렌드")
	require.NoError(t, err)

	assert.Equal(t, "- 내용\n  출처: https://example.com\n\n", out)
	assert.Equal(t, "디자인 특허 트렌드", got.Query)
	assert.Equal(t, 3, got.MaxResults)
	assert.Equal(t, "Bearer tvly-key", auth)
}

func TestWebSearch_Errors(t *testing.T) {
	ws := NewWebSearch(config.WebSearchConfig{BaseURL: "http://127.0.0.1:1"}, nil)
	_, err := ws.Search(context.Background(), "q")
	assert.ErrorIs(t, err, ErrSearchFailed, "missing api key")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	ws = NewWebSearch(config.WebSearchConfig{BaseURL: srv.URL, APIKey: "bad"}, nil)
	_, err = ws.Search(context.Background(), "q")
	assert.ErrorIs(t, err, ErrSearchFailed)
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) EmbedImage(context.Context, []byte) ([]float32, error) {
	return []float32{1, 0}, f.err
}

func (f *fakeEmbedder) EmbedText(_ context.Context, text string) ([]float32, string, error) {
	if f.err != nil {
		return nil, text, f.err
	}
	return []float32{1, 0}, "pump bottle", nil
}

type fakeSearcher struct {
	res *vectorstore.QueryResult
	err error
	n   int
}

func (f *fakeSearcher) SearchAndFilter(_ context.Context, _ []float32, n int) (*vectorstore.QueryResult, error) {
	f.n = n
	return f.res, f.err
}

func TestDesignSearch_Formats(t *testing.T) {
	res := vectorstore.EmptyResult()
	res.Append("A-IMG-1", 0.12345, map[string]string{
		vectorstore.MetaArticleName:       "펌프용기",
		vectorstore.MetaApplicationNumber: "3020190001234",
		vectorstore.MetaAdmstStat:         "등록",
	})
	res.Append("B-IMG-0", 0.5, map[string]string{})
	fs := &fakeSearcher{res: res}

	ds := NewDesignSearch(&fakeEmbedder{}, fs, 5, nil)
	out, err := ds.Search(context.Background(), "펌프형 용기")
	require.NoError(t, err)

	want := "'펌프형 용기' 검색 결과 (번역: 'pump bottle'):\n\n" +
		"1. 펌프용기\n   출원번호: 3020190001234\n   등록상태: 등록\n   유사도 거리: 0.1235\n\n" +
		"2. N/A\n   출원번호: N/A\n   등록상태: N/A\n   유사도 거리: 0.5000\n\n"
	assert.Equal(t, want, out)
	assert.Equal(t, 5, fs.n)
}

func TestDesignSearch_EmbeddingFailure(t *testing.T) {
	fs := &fakeSearcher{}
	ds := NewDesignSearch(&fakeEmbedder{err: errors.New("clip down")}, fs, 5, nil)

	out, err := ds.Search(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, EmbeddingFailedMessage, out)
	assert.Zero(t, fs.n, "index is not queried")
}

func TestDesignSearch_IndexFailure(t *testing.T) {
	ds := NewDesignSearch(&fakeEmbedder{}, &fakeSearcher{err: vectorstore.ErrQueryFailed}, 5, nil)
	_, err := ds.Search(context.Background(), "q")
	assert.ErrorIs(t, err, ErrSearchFailed)
}

type stubSearch struct {
	out   string
	err   error
	query string
}

func (s *stubSearch) Search(_ context.Context, q string) (string, error) {
	s.query = q
	return s.out, s.err
}

func TestToolbox_Call(t *testing.T) {
	web := &stubSearch{out: "web-out"}
	design := &stubSearch{out: "design-out"}
	tb := NewToolbox(web, design, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		call llm.ToolCall
		want string
	}{
		{"web", llm.ToolCall{Name: NameWebSearch, Arguments: `{"query":"뉴스"}`}, "web-out"},
		{"design", llm.ToolCall{Name: NameDesignSearch, Arguments: `{"query":"병"}`}, "design-out"},
		{"unknown", llm.ToolCall{Name: "calculator", Arguments: `{}`}, "Error: calculator is not a valid tool, try one of [web_search, search_design_db]."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tb.Call(ctx, tt.call))
		})
	}
	assert.Equal(t, "뉴스", web.query)
	assert.Equal(t, "병", design.query)

	out := tb.Call(ctx, llm.ToolCall{Name: NameWebSearch, Arguments: `not json`})
	assert.Contains(t, out, "Error: invalid arguments")

	web.err = ErrSearchFailed
	out = tb.Call(ctx, llm.ToolCall{Name: NameWebSearch, Arguments: `{"query":"x"}`})
	assert.Contains(t, out, "Error: search failed")
}

func TestToolbox_Definitions(t *testing.T) {
	defs := NewToolbox(nil, nil, nil).Definitions()
	require.Len(t, defs, 2)
	assert.Equal(t, NameWebSearch, defs[0].Name)
	assert.Equal(t, NameDesignSearch, defs[1].Name)
	assert.Equal(t, []string{"query"}, defs[1].Parameters.Required)
}
