// Package telemetry wires OpenTelemetry tracing and metrics for designd.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/fyrsmithlabs/designd/internal/config"
)

// Telemetry owns the tracer and meter providers.
//
// Exporter failures never stop the service: the instance is marked
// degraded and the global no-op providers stay in place.
type Telemetry struct {
	cfg config.TelemetryConfig

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider

	degraded atomic.Bool
	lastErr  atomic.Value // error
}

// New creates providers from cfg and installs them globally.
// A disabled config returns an instance that does nothing.
func New(ctx context.Context, cfg config.TelemetryConfig) (*Telemetry, error) {
	if cfg.Enabled && cfg.Endpoint == "" {
		return nil, fmt.Errorf("telemetry endpoint is required when telemetry is enabled")
	}

	t := &Telemetry{cfg: cfg}
	if !cfg.Enabled {
		return t, nil
	}

	res := newResource(cfg)

	tp, err := newTracerProvider(ctx, cfg, res)
	if err != nil {
		t.setDegraded(fmt.Errorf("tracer provider: %w", err))
	} else {
		t.tracerProvider = tp
		otel.SetTracerProvider(tp)
	}

	mp, err := newMeterProvider(ctx, cfg, res)
	if err != nil {
		t.setDegraded(fmt.Errorf("meter provider: %w", err))
	} else {
		t.meterProvider = mp
		otel.SetMeterProvider(mp)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return t, nil
}

// Degraded reports whether any provider failed to start, with the last error.
func (t *Telemetry) Degraded() (bool, error) {
	if t == nil {
		return false, nil
	}
	err, _ := t.lastErr.Load().(error)
	return t.degraded.Load(), err
}

// Enabled reports whether telemetry is enabled in config.
func (t *Telemetry) Enabled() bool {
	return t != nil && t.cfg.Enabled
}

// Shutdown flushes and stops the providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
	}

	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("trace provider shutdown: %w", err))
		}
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("meter provider shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (t *Telemetry) setDegraded(err error) {
	t.degraded.Store(true)
	t.lastErr.Store(err)
}
