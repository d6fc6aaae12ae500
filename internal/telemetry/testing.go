package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// TestTelemetry records spans and metrics in memory.
type TestTelemetry struct {
	SpanRecorder   *tracetest.SpanRecorder
	MetricReader   *sdkmetric.ManualReader
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *sdkmetric.MeterProvider
}

// NewTestTelemetry installs in-memory providers as the otel globals and
// restores the previous ones when tb finishes.
func NewTestTelemetry(tb testing.TB) *TestTelemetry {
	tb.Helper()

	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	prevTP := otel.GetTracerProvider()
	prevMP := otel.GetMeterProvider()
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	tb.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetMeterProvider(prevMP)
		_ = tp.Shutdown(context.Background())
		_ = mp.Shutdown(context.Background())
	})

	return &TestTelemetry{
		SpanRecorder:   recorder,
		MetricReader:   reader,
		TracerProvider: tp,
		MeterProvider:  mp,
	}
}

// SpanNames returns the names of all ended spans in order.
func (t *TestTelemetry) SpanNames() []string {
	spans := t.SpanRecorder.Ended()
	names := make([]string, len(spans))
	for i, s := range spans {
		names[i] = s.Name()
	}
	return names
}

// Collect gathers the current metric snapshot.
func (t *TestTelemetry) Collect(tb testing.TB) metricdata.ResourceMetrics {
	tb.Helper()
	var rm metricdata.ResourceMetrics
	if err := t.MetricReader.Collect(context.Background(), &rm); err != nil {
		tb.Fatalf("collect metrics: %v", err)
	}
	return rm
}

// HasMetric reports whether a metric with name was recorded.
func (t *TestTelemetry) HasMetric(tb testing.TB, name string) bool {
	tb.Helper()
	rm := t.Collect(tb)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return true
			}
		}
	}
	return false
}
