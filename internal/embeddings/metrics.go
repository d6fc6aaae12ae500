package embeddings

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/designd/internal/embeddings"

// Metrics holds embedding-related instruments.
type Metrics struct {
	meter        metric.Meter
	logger       *zap.Logger
	duration     metric.Float64Histogram
	errors       metric.Int64Counter
	translations metric.Int64Counter
}

// NewMetrics creates Metrics on the global meter provider.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.duration, err = m.meter.Float64Histogram(
		"designd.embedding.generation_duration_seconds",
		metric.WithDescription("Duration of CLIP embedding requests in seconds, labeled by model and input kind (image, text)"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"designd.embedding.errors_total",
		metric.WithDescription("Total embedding failures by model and input kind"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}

	m.translations, err = m.meter.Int64Counter(
		"designd.embedding.translations_total",
		metric.WithDescription("Korean text queries translated before text embedding"),
		metric.WithUnit("{query}"),
	)
	if err != nil {
		m.logger.Warn("failed to create translations counter", zap.Error(err))
	}
}

// RecordGeneration records one embedding request.
func (m *Metrics) RecordGeneration(ctx context.Context, model, kind string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("kind", kind),
	)
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), attrs)
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1, attrs)
	}
}

// RecordTranslation counts one translated query.
func (m *Metrics) RecordTranslation(ctx context.Context) {
	if m.translations != nil {
		m.translations.Add(ctx, 1)
	}
}
