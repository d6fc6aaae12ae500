package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/designd/internal/config"
)

const instrumentationName = "github.com/fyrsmithlabs/designd/internal/tools"

// WebSearch queries the Tavily search API.
type WebSearch struct {
	baseURL    string
	apiKey     config.Secret
	maxResults int
	http       *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewWebSearch creates a WebSearch from cfg.
func NewWebSearch(cfg config.WebSearchConfig, logger *zap.Logger) *WebSearch {
	if logger == nil {
		logger = zap.NewNop()
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 3
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &WebSearch{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		maxResults: maxResults,
		http:       &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(5), 5),
		logger:     logger,
	}
}

type tavilyRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// WebResult is one web search hit.
type WebResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type tavilyResponse struct {
	Results []WebResult `json:"results"`
}

// Search runs query and formats each result as "- content\n  출처: url\n\n".
func (w *WebSearch) Search(ctx context.Context, query string) (string, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "tools.web_search")
	defer span.End()

	results, err := w.search(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("results_count", len(results)))
	return FormatWebResults(results), nil
}

func (w *WebSearch) search(ctx context.Context, query string) ([]WebResult, error) {
	if !w.apiKey.IsSet() {
		return nil, fmt.Errorf("%w: web search api key not configured", ErrSearchFailed)
	}
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(tavilyRequest{Query: query, MaxResults: w.maxResults})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.apiKey.Value())

	resp, err := w.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrSearchFailed, resp.StatusCode, string(msg))
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrSearchFailed, err)
	}

	w.logger.Debug("web search finished", zap.Int("results", len(out.Results)))
	return out.Results, nil
}

// FormatWebResults renders search results for the model.
func FormatWebResults(results []WebResult) string {
	var b strings.Builder
	for _, r := range results {
		fmt.Fprintf(&b, "- %s\n  출처: %s\n\n", r.Content, r.URL)
	}
	return b.String()
}
