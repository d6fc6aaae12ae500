// Package embeddings turns design images and search text into CLIP vectors.
//
// Images and text share one embedding space, so a text query can be used to
// search an index of drawings. The model runs in a separate inference
// service reached over HTTP.
package embeddings

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/config"
)

var (
	// ErrEmptyInput indicates an empty image or text.
	ErrEmptyInput = errors.New("empty embedding input")

	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrEmbeddingFailed indicates the inference service could not produce a vector.
	ErrEmbeddingFailed = errors.New("embedding generation failed")
)

// Provider produces CLIP embeddings.
type Provider interface {
	// EmbedImage embeds raw image bytes.
	EmbedImage(ctx context.Context, image []byte) ([]float32, error)

	// EmbedText embeds text and returns the text actually embedded, which
	// differs from the input when it was translated.
	EmbedText(ctx context.Context, text string) ([]float32, string, error)
}

// Translator rewrites a query into short English keywords.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Client calls a CLIP inference service.
//
// Endpoints:
//
//	POST {base}/embed/image  {"model": ..., "image": "<base64>"}
//	POST {base}/embed/text   {"model": ..., "text": "..."}
//
// Both answer {"embedding": [...]}.
type Client struct {
	cfg        config.EmbeddingsConfig
	http       *http.Client
	translator Translator
	metrics    *Metrics
	logger     *zap.Logger
}

var _ Provider = (*Client)(nil)

// NewClient creates a Client. translator may be nil, which disables translation.
func NewClient(cfg config.EmbeddingsConfig, translator Translator, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	timeout := cfg.Timeout.Duration()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		cfg:        cfg,
		http:       &http.Client{Timeout: timeout},
		translator: translator,
		metrics:    NewMetrics(logger),
		logger:     logger,
	}, nil
}

type embedRequest struct {
	Model string `json:"model"`
	Image string `json:"image,omitempty"`
	Text  string `json:"text,omitempty"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedImage embeds an image.
func (c *Client) EmbedImage(ctx context.Context, image []byte) ([]float32, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "embeddings.EmbedImage")
	defer span.End()
	span.SetAttributes(attribute.Int("image_bytes", len(image)))

	start := time.Now()
	vec, err := c.embedImage(ctx, image)
	c.metrics.RecordGeneration(ctx, c.cfg.Model, "image", time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return vec, nil
}

func (c *Client) embedImage(ctx context.Context, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, fmt.Errorf("%w: image is empty", ErrEmptyInput)
	}
	return c.post(ctx, "/embed/image", embedRequest{
		Model: c.cfg.Model,
		Image: base64.StdEncoding.EncodeToString(image),
	})
}

// EmbedText embeds text. Text containing Hangul is first translated to
// English, because the CLIP text encoder is trained on English captions.
func (c *Client) EmbedText(ctx context.Context, text string) ([]float32, string, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "embeddings.EmbedText")
	defer span.End()

	start := time.Now()
	vec, used, err := c.embedText(ctx, text)
	c.metrics.RecordGeneration(ctx, c.cfg.Model, "text", time.Since(start), err)
	span.SetAttributes(attribute.Bool("translated", used != text))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, text, err
	}
	return vec, used, nil
}

func (c *Client) embedText(ctx context.Context, text string) ([]float32, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, text, fmt.Errorf("%w: text is empty", ErrEmptyInput)
	}

	query := text
	if !c.cfg.SkipTranslation && c.translator != nil && ContainsHangul(text) {
		translated, err := c.translator.Translate(ctx, text)
		if err != nil {
			return nil, text, fmt.Errorf("%w: translating query: %v", ErrEmbeddingFailed, err)
		}
		query = strings.TrimSpace(translated)
		c.metrics.RecordTranslation(ctx)
		c.logger.Debug("translated query for text embedding",
			zap.String("original", text),
			zap.String("translated", query),
		)
	}

	vec, err := c.post(ctx, "/embed/text", embedRequest{Model: c.cfg.Model, Text: query})
	if err != nil {
		return nil, query, err
	}
	return vec, query, nil
}

func (c *Client) post(ctx context.Context, path string, req embedRequest) ([]float32, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + path
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decoding response: %v", ErrEmbeddingFailed, err)
	}
	if len(out.Embedding) != c.cfg.Dimension {
		return nil, fmt.Errorf("%w: got %d dimensions, want %d", ErrEmbeddingFailed, len(out.Embedding), c.cfg.Dimension)
	}
	return out.Embedding, nil
}

// ContainsHangul reports whether s contains a precomposed Hangul syllable.
func ContainsHangul(s string) bool {
	for _, r := range s {
		if r >= '가' && r <= '힣' {
			return true
		}
	}
	return false
}
