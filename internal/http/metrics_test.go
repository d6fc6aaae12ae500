package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	m := &HTTPMetrics{
		meter:  mp.Meter(httpInstrumentationName),
		logger: zap.NewNop(),
	}
	m.init()

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/chat/image", func(c echo.Context) error {
		m.RecordUpload(c, 1234)
		return c.JSON(http.StatusOK, map[string]bool{"success": true})
	})

	for _, r := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodPost, "/chat/image", nil),
	} {
		e.ServeHTTP(httptest.NewRecorder(), r)
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]bool{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			found[md.Name] = true
			if md.Name == "designd.http.requests_total" {
				sum, ok := md.Data.(metricdata.Sum[int64])
				require.True(t, ok)
				assert.Len(t, sum.DataPoints, 2)
			}
		}
	}
	assert.True(t, found["designd.http.requests_total"])
	assert.True(t, found["designd.http.request_duration_seconds"])
	assert.True(t, found["designd.http.upload_size_bytes"])
	assert.True(t, found["designd.http.active_requests"])
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/", normalizePath(""))
	assert.Equal(t, "/chat/text", normalizePath("/chat/text"))
}

func TestRecordUpload_NilSafe(t *testing.T) {
	var m *HTTPMetrics
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.NotPanics(t, func() { m.RecordUpload(c, 1) })
}
