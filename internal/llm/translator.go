package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/fyrsmithlabs/designd/internal/config"
)

// Translator turns Korean search text into short English keywords for the
// CLIP text encoder, using the small translator model.
type Translator struct {
	model llms.Model
}

// NewTranslator creates a Translator using cfg.TranslatorModel.
func NewTranslator(cfg config.LLMConfig) (*Translator, error) {
	if cfg.TranslatorModel == "" {
		return nil, fmt.Errorf("%w: translator model required", ErrInvalidConfig)
	}

	opts := []openai.Option{
		openai.WithModel(cfg.TranslatorModel),
		openai.WithToken(cfg.APIKey.Value()),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating translator client: %w", err)
	}
	return &Translator{model: model}, nil
}

// Translate returns the English keywords for text.
func (t *Translator) Translate(ctx context.Context, text string) (string, error) {
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "llm.translate")
	defer span.End()

	out, err := llms.GenerateFromSinglePrompt(ctx, t.model, TranslationPrompt(text), llms.WithTemperature(0))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("%w: translate: %v", ErrCompletionFailed, err)
	}
	return strings.TrimSpace(out), nil
}
