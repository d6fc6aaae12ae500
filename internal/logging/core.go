package logging

import (
	"fmt"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// newCore tees the configured outputs and applies sampling.
func newCore(cfg *Config, otelProvider log.LoggerProvider) (zapcore.Core, error) {
	cores := make([]zapcore.Core, 0, 3)

	if cfg.Output.Stdout {
		cores = append(cores, zapcore.NewCore(newEncoder(cfg.Format), zapcore.AddSync(os.Stdout), cfg.Level))
	}
	if cfg.Output.Stderr {
		cores = append(cores, zapcore.NewCore(newEncoder(cfg.Format), zapcore.Lock(os.Stderr), cfg.Level))
	}

	if f := cfg.Output.File; f != nil {
		writer := &lumberjack.Logger{
			Filename:   f.Path,
			MaxSize:    f.MaxSizeMB,
			MaxBackups: f.MaxBackups,
			MaxAge:     f.MaxAgeDays,
			Compress:   f.Compress,
		}
		// Files are always JSON so they stay machine-readable.
		cores = append(cores, zapcore.NewCore(newEncoder("json"), zapcore.AddSync(writer), cfg.Level))
	}

	if cfg.Output.OTEL && otelProvider != nil {
		cores = append(cores, otelzap.NewCore("designd", otelzap.WithLoggerProvider(otelProvider)))
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("at least one output must be enabled and available")
	}

	core := zapcore.NewTee(cores...)
	return newSampledCore(core, cfg.Sampling), nil
}

// newSampledCore samples entries below error level. Errors always pass.
func newSampledCore(core zapcore.Core, cfg SamplingConfig) zapcore.Core {
	if !cfg.Enabled {
		return core
	}

	errorCore := &levelFilterCore{Core: core, min: zapcore.ErrorLevel, max: zapcore.FatalLevel}
	belowError := &levelFilterCore{Core: core, min: zapcore.DebugLevel, max: zapcore.WarnLevel}

	sampled := zapcore.NewSamplerWithOptions(belowError, cfg.Tick, cfg.Initial, cfg.Thereafter)
	return zapcore.NewTee(errorCore, sampled)
}

// levelFilterCore only passes entries within [min, max].
type levelFilterCore struct {
	zapcore.Core
	min, max zapcore.Level
}

func (c *levelFilterCore) Enabled(lvl zapcore.Level) bool {
	return lvl >= c.min && lvl <= c.max && c.Core.Enabled(lvl)
}

func (c *levelFilterCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.Enabled(e.Level) {
		return ce
	}
	return c.Core.Check(e, ce)
}

func (c *levelFilterCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelFilterCore{Core: c.Core.With(fields), min: c.min, max: c.max}
}
