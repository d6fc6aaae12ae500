package http

import (
	"time"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const httpInstrumentationName = "github.com/fyrsmithlabs/designd/internal/http"

// HTTPMetrics holds all HTTP-related metrics.
type HTTPMetrics struct {
	meter          metric.Meter
	logger         *zap.Logger
	requestsTotal  metric.Int64Counter
	requestDur     metric.Float64Histogram
	uploadSize     metric.Int64Histogram
	activeRequests metric.Int64UpDownCounter
}

// NewHTTPMetrics creates a new HTTPMetrics instance.
func NewHTTPMetrics(logger *zap.Logger) *HTTPMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &HTTPMetrics{
		meter:  otel.Meter(httpInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *HTTPMetrics) init() {
	var err error

	m.requestsTotal, err = m.meter.Int64Counter(
		"designd.http.requests_total",
		metric.WithDescription("Total HTTP requests labeled by method, endpoint and status code"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create requests counter", zap.Error(err))
	}

	// Chat requests wait on model calls, so the buckets reach into minutes.
	m.requestDur, err = m.meter.Float64Histogram(
		"designd.http.request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds, labeled by method, endpoint and status"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.uploadSize, err = m.meter.Int64Histogram(
		"designd.http.upload_size_bytes",
		metric.WithDescription("Size of uploaded images in bytes"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(10_000, 100_000, 500_000, 1_000_000, 5_000_000, 20_000_000),
	)
	if err != nil {
		m.logger.Warn("failed to create upload size histogram", zap.Error(err))
	}

	m.activeRequests, err = m.meter.Int64UpDownCounter(
		"designd.http.active_requests",
		metric.WithDescription("Number of currently active HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		m.logger.Warn("failed to create active requests gauge", zap.Error(err))
	}
}

// MetricsMiddleware returns an Echo middleware that records HTTP metrics.
func (m *HTTPMetrics) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			ctx := req.Context()

			if m.activeRequests != nil {
				m.activeRequests.Add(ctx, 1)
			}

			err := next(c)

			attrs := metric.WithAttributes(
				attribute.String("method", req.Method),
				attribute.String("endpoint", normalizePath(c.Path())),
				attribute.Int("status", c.Response().Status),
			)
			if m.requestsTotal != nil {
				m.requestsTotal.Add(ctx, 1, attrs)
			}
			if m.requestDur != nil {
				m.requestDur.Record(ctx, time.Since(start).Seconds(), attrs)
			}
			if m.activeRequests != nil {
				m.activeRequests.Add(ctx, -1)
			}

			return err
		}
	}
}

// RecordUpload records the size of an accepted image upload.
func (m *HTTPMetrics) RecordUpload(c echo.Context, size int64) {
	if m == nil || m.uploadSize == nil {
		return
	}
	m.uploadSize.Record(c.Request().Context(), size)
}

// normalizePath keeps label cardinality bounded. All routes are fixed, so
// only unmatched requests need folding.
func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
