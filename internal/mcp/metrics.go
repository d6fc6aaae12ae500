package mcp

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/designd/internal/embeddings"
	"github.com/fyrsmithlabs/designd/internal/llm"
	"github.com/fyrsmithlabs/designd/internal/session"
	"github.com/fyrsmithlabs/designd/internal/tools"
	"github.com/fyrsmithlabs/designd/internal/vectorstore"
	"github.com/fyrsmithlabs/designd/internal/workflow"
)

const instrumentationName = "github.com/fyrsmithlabs/designd/internal/mcp"

// Metrics holds all MCP-related metrics.
type Metrics struct {
	meter          metric.Meter
	logger         *zap.Logger
	invocations    metric.Int64Counter
	duration       metric.Float64Histogram
	errors         metric.Int64Counter
	activeRequests metric.Int64UpDownCounter
}

// NewMetrics creates a new Metrics instance.
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

	m.invocations, err = m.meter.Int64Counter(
		"designd.mcp.tool.invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		m.logger.Warn("failed to create invocations counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"designd.mcp.tool.duration_seconds",
		metric.WithDescription("Duration of MCP tool invocations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"designd.mcp.tool.errors_total",
		metric.WithDescription("Total number of MCP tool errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}

	m.activeRequests, err = m.meter.Int64UpDownCounter(
		"designd.mcp.tool.active_requests",
		metric.WithDescription("Number of currently active MCP tool requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create active requests gauge", zap.Error(err))
	}
}

// RecordInvocation records a tool invocation metric.
func (m *Metrics) RecordInvocation(ctx context.Context, toolName string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("tool", toolName),
	}

	if m.invocations != nil {
		m.invocations.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	}
	if err != nil && m.errors != nil {
		errorAttrs := append(attrs, attribute.String("reason", categorizeError(err)))
		m.errors.Add(ctx, 1, metric.WithAttributes(errorAttrs...))
	}
}

// IncrementActive increments the active requests counter.
func (m *Metrics) IncrementActive(ctx context.Context, toolName string) {
	if m.activeRequests != nil {
		m.activeRequests.Add(ctx, 1, metric.WithAttributes(
			attribute.String("tool", toolName),
		))
	}
}

// DecrementActive decrements the active requests counter.
func (m *Metrics) DecrementActive(ctx context.Context, toolName string) {
	if m.activeRequests != nil {
		m.activeRequests.Add(ctx, -1, metric.WithAttributes(
			attribute.String("tool", toolName),
		))
	}
}

// categorizeError maps an error to a low-cardinality reason label.
func categorizeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, workflow.ErrInvalidInput), errors.Is(err, workflow.ErrInvalidStage):
		return "validation_error"
	case errors.Is(err, session.ErrNotFound), errors.Is(err, vectorstore.ErrCollectionNotFound):
		return "not_found"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, embeddings.ErrEmbeddingFailed), errors.Is(err, vectorstore.ErrQueryFailed):
		return "storage_error"
	case errors.Is(err, llm.ErrCompletionFailed), errors.Is(err, tools.ErrSearchFailed):
		return "upstream_error"
	default:
		return "internal_error"
	}
}
