package logging

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/designd/internal/config"
)

func TestNewLogger_Defaults(t *testing.T) {
	logger, err := NewLogger(nil, nil)
	require.NoError(t, err)
	require.NotNil(t, logger.Underlying())
	assert.NoError(t, logger.Sync())
}

func TestNewLogger_RejectsNoOutputs(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false

	_, err := NewLogger(cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one output")
}

func TestNewLogger_FileOutput(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.File = &FileOutput{Path: filepath.Join(t.TempDir(), "designd.log"), MaxSizeMB: 1}

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	logger.Info(context.Background(), "written to file")
	require.NoError(t, logger.Sync())
	assert.FileExists(t, cfg.Output.File.Path)
}

func TestNewLogger_StderrOutput(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Output.Stdout = false
	cfg.Output.Stderr = true

	logger, err := NewLogger(cfg, nil)
	require.NoError(t, err)
	logger.Info(context.Background(), "written to stderr")
	require.NoError(t, cfg.Validate())
}

func TestFromSettings(t *testing.T) {
	cfg, err := FromSettings(config.LoggingConfig{
		Level:    "debug",
		Format:   "console",
		Sampling: true,
		Fields:   map[string]string{"env": "test"},
	})
	require.NoError(t, err)

	assert.Equal(t, zapcore.DebugLevel, cfg.Level)
	assert.Equal(t, "console", cfg.Format)
	assert.True(t, cfg.Sampling.Enabled)
	assert.Equal(t, "test", cfg.Fields["env"])
	assert.Equal(t, "designd", cfg.Fields["service"])

	_, err = FromSettings(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestLogger_ContextFields(t *testing.T) {
	tl := NewTestLogger()

	ctx := WithSessionID(context.Background(), "3f0c2a6e-1111-4c4c-9e9e-000000000001")
	ctx = WithRequestID(ctx, "req-42")
	tl.Info(ctx, "session resumed", zap.Int("selected_index", 3))

	tl.AssertLogged(t, zapcore.InfoLevel, "session resumed")
	tl.AssertField(t, "session resumed", "session.id", "3f0c2a6e-1111-4c4c-9e9e-000000000001")
	tl.AssertField(t, "session resumed", "request.id", "req-42")
}

func TestContextFields_TraceCorrelation(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("0102030405060708090a0b0c0d0e0f10")
	spanID, _ := trace.SpanIDFromHex("0102030405060708")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	fields := ContextFields(ctx)
	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		keys = append(keys, f.Key)
	}
	assert.Contains(t, keys, "trace_id")
	assert.Contains(t, keys, "span_id")
}

func TestWithSessionID_IgnoresInvalid(t *testing.T) {
	ctx := WithSessionID(context.Background(), "bad id\nwith newline")
	assert.Empty(t, SessionIDFromContext(ctx))

	ctx = WithRequestID(context.Background(), "")
	assert.Empty(t, RequestIDFromContext(ctx))
}

func TestFromContext(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))

	tl := NewTestLogger()
	ctx := WithLogger(context.Background(), tl.Logger)
	FromContext(ctx).Warn(ctx, "from context")
	tl.AssertLogged(t, zapcore.WarnLevel, "from context")
}

func TestSampledCore_ErrorsAlwaysPass(t *testing.T) {
	tl := NewTestLogger()
	core := newSampledCore(tl.Underlying().Core(), SamplingConfig{
		Enabled: true, Tick: 1e9, Initial: 1, Thereafter: 0,
	})
	logger := zap.New(core)

	for i := 0; i < 5; i++ {
		logger.Info("noisy")
		logger.Error("broken")
	}

	assert.Equal(t, 1, tl.FilterMessage("noisy").Len())
	assert.Equal(t, 5, tl.FilterMessage("broken").Len())
}
