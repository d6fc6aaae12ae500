package logging

import (
	"context"
	"regexp"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type sessionCtxKey struct{}
type requestCtxKey struct{}
type loggerCtxKey struct{}

const maxIDLen = 128

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ContextFields extracts correlation fields from ctx.
func ContextFields(ctx context.Context) []zap.Field {
	if ctx == nil {
		return nil
	}
	fields := make([]zap.Field, 0, 4)

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if id := SessionIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("session.id", id))
	}
	if id := RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request.id", id))
	}
	return fields
}

// validID rejects ids that could forge log structure.
func validID(id string) bool {
	return id != "" && len(id) <= maxIDLen && idPattern.MatchString(id)
}

// WithSessionID attaches a session id. Invalid ids are ignored.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	if !validID(sessionID) {
		return ctx
	}
	return context.WithValue(ctx, sessionCtxKey{}, sessionID)
}

// SessionIDFromContext returns the session id, or "".
func SessionIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(sessionCtxKey{}).(string)
	return s
}

// WithRequestID attaches a request id. Invalid ids are ignored.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if !validID(requestID) {
		return ctx
	}
	return context.WithValue(ctx, requestCtxKey{}, requestID)
}

// RequestIDFromContext returns the request id, or "".
func RequestIDFromContext(ctx context.Context) string {
	r, _ := ctx.Value(requestCtxKey{}).(string)
	return r
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerCtxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or a nop logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerCtxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}
