// Package llm wraps the hosted language and vision models used to analyse,
// compare and report on designs, and to answer free-text questions.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/designd/internal/config"
)

const instrumentationName = "github.com/fyrsmithlabs/designd/internal/llm"

var (
	// ErrCompletionFailed indicates the model call failed or returned nothing.
	ErrCompletionFailed = errors.New("completion failed")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// Client calls an OpenAI-compatible chat completions API.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	limiter     *rate.Limiter
	maxRetries  int
	backoff     time.Duration
	logger      *zap.Logger

	duration metric.Float64Histogram
	tokens   metric.Int64Counter
	failures metric.Int64Counter
}

// NewClient creates a Client from cfg.
func NewClient(cfg config.LLMConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: model required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	oc := openai.DefaultConfig(cfg.APIKey.Value())
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	oc.HTTPClient = &http.Client{Timeout: timeout}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	c := &Client{
		api:         openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: temperature(cfg.Temperature),
		limiter:     rate.NewLimiter(limit, burst),
		maxRetries:  cfg.MaxRetries,
		backoff:     time.Second,
		logger:      logger,
	}
	c.initMetrics()
	return c, nil
}

// temperature maps 0 to the smallest positive float so the field is not
// dropped by omitempty and the API default of 1 is not applied.
func temperature(t float64) float32 {
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return float32(t)
}

func (c *Client) initMetrics() {
	meter := otel.Meter(instrumentationName)
	var err error

	c.duration, err = meter.Float64Histogram(
		"designd.llm.request_duration_seconds",
		metric.WithDescription("Duration of chat completion requests by operation"),
		metric.WithUnit("s"),
	)
	if err != nil {
		c.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	c.tokens, err = meter.Int64Counter(
		"designd.llm.tokens_total",
		metric.WithDescription("Total tokens consumed by operation"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		c.logger.Warn("failed to create tokens counter", zap.Error(err))
	}

	c.failures, err = meter.Int64Counter(
		"designd.llm.errors_total",
		metric.WithDescription("Total failed chat completion requests by operation"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		c.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// DescribeImage asks the vision model for a shape analysis of the image at dataURL.
func (c *Client) DescribeImage(ctx context.Context, dataURL string) (string, error) {
	msgs := []openai.ChatCompletionMessage{{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: ImageAnalysisPrompt},
			imagePart(dataURL),
		},
	}}
	return c.text(ctx, "describe_image", msgs)
}

// CompareImages asks the vision model to compare the input design with a registered one.
func (c *Client) CompareImages(ctx context.Context, inputURL, comparisonURL string) (string, error) {
	msgs := []openai.ChatCompletionMessage{{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: ImageComparisonPrompt},
			imagePart(inputURL),
			imagePart(comparisonURL),
		},
	}}
	return c.text(ctx, "compare_images", msgs)
}

// WriteReport produces the FTO report.
func (c *Client) WriteReport(ctx context.Context, in ReportInput) (string, error) {
	msgs := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleUser,
		Content: ReportPrompt(in),
	}}
	return c.text(ctx, "write_report", msgs)
}

// Complete runs messages without tools and returns the assistant text.
func (c *Client) Complete(ctx context.Context, messages []Message) (string, error) {
	return c.text(ctx, "complete", toOpenAIMessages(messages))
}

// Chat runs messages with tools offered. The reply may request tool calls
// instead of answering.
func (c *Client) Chat(ctx context.Context, messages []Message, tools []ToolSpec) (*Reply, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: c.temperature,
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	msg, err := c.complete(ctx, "chat", req)
	if err != nil {
		return nil, err
	}
	return &Reply{Message: fromOpenAIMessage(msg)}, nil
}

func (c *Client) text(ctx context.Context, op string, msgs []openai.ChatCompletionMessage) (string, error) {
	msg, err := c.complete(ctx, op, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

func (c *Client) complete(ctx context.Context, op string, req openai.ChatCompletionRequest) (openai.ChatCompletionMessage, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "llm."+op)
	defer span.End()
	span.SetAttributes(
		attribute.String("model", req.Model),
		attribute.Int("messages", len(req.Messages)),
		attribute.Int("tools", len(req.Tools)),
	)
	attrs := metric.WithAttributes(attribute.String("operation", op))

	start := time.Now()
	resp, err := c.createWithRetry(ctx, req)
	if c.duration != nil {
		c.duration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
	if err == nil && len(resp.Choices) == 0 {
		err = errors.New("no completion choices returned")
	}
	if err != nil {
		if c.failures != nil {
			c.failures.Add(ctx, 1, attrs)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return openai.ChatCompletionMessage{}, fmt.Errorf("%w: %s: %v", ErrCompletionFailed, op, err)
	}

	if c.tokens != nil {
		c.tokens.Add(ctx, int64(resp.Usage.TotalTokens), attrs)
	}
	span.SetAttributes(attribute.Int("total_tokens", resp.Usage.TotalTokens))
	c.logger.Debug("completion finished",
		zap.String("operation", op),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return resp.Choices[0].Message, nil
}

// createWithRetry waits on the rate limiter and retries 429 and 5xx responses
// with exponential backoff, up to maxRetries extra attempts.
func (c *Client) createWithRetry(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	backoff := c.backoff
	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return openai.ChatCompletionResponse{}, fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err == nil {
			return resp, nil
		}
		if attempt >= c.maxRetries || !isRetryable(err) {
			return resp, err
		}

		c.logger.Warn("retrying completion",
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return resp, ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

func isRetryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return false
}

func imagePart(url string) openai.ChatMessagePart {
	return openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeImageURL,
		ImageURL: &openai.ChatMessageImageURL{
			URL:    url,
			Detail: openai.ImageURLDetailAuto,
		},
	}
}

func toOpenAIMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(msgs))
	for i, m := range msgs {
		om := openai.ChatCompletionMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out[i] = om
	}
	return out
}

func fromOpenAIMessage(m openai.ChatCompletionMessage) Message {
	msg := Message{Role: m.Role, Content: m.Content}
	for _, tc := range m.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return msg
}
