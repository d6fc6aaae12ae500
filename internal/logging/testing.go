package logging

import (
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// TestLogger is a Logger whose entries can be inspected.
type TestLogger struct {
	*Logger
	observed *observer.ObservedLogs
}

// NewTestLogger creates a logger that records every entry at debug and above.
func NewTestLogger() *TestLogger {
	core, observed := observer.New(zapcore.DebugLevel)
	return &TestLogger{
		Logger:   &Logger{zap: zap.New(core)},
		observed: observed,
	}
}

// All returns all logged entries.
func (t *TestLogger) All() []observer.LoggedEntry {
	return t.observed.All()
}

// FilterMessage returns entries whose message matches exactly.
func (t *TestLogger) FilterMessage(msg string) *observer.ObservedLogs {
	return t.observed.FilterMessage(msg)
}

// AssertLogged fails tb unless an entry at level contains msgContains.
func (t *TestLogger) AssertLogged(tb testing.TB, level zapcore.Level, msgContains string) {
	tb.Helper()
	for _, entry := range t.observed.All() {
		if entry.Level == level && strings.Contains(entry.Message, msgContains) {
			return
		}
	}
	tb.Errorf("expected log at %v containing %q, got %d entries", level, msgContains, t.observed.Len())
}

// AssertField fails tb unless msg was logged with key set to a string value.
func (t *TestLogger) AssertField(tb testing.TB, msg, key, value string) {
	tb.Helper()
	for _, entry := range t.observed.FilterMessage(msg).All() {
		if v, ok := entry.ContextMap()[key]; ok && v == value {
			return
		}
	}
	tb.Errorf("field %q=%q not found on message %q", key, value, msg)
}
