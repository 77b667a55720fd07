// Package requestctx carries request-scoped values (logger, trace metadata)
// through context without leaking the concrete keys to other packages.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey contextKey = "github.com/threadcraft/api/internal/platform/requestctx/logger"
	traceContextKey  contextKey = "github.com/threadcraft/api/internal/platform/requestctx/trace"
)

var noopLogger = zap.NewNop()

// TraceInfo holds the Cloud Trace identifiers attached to a request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the logger on the context. A nil logger is replaced with
// the shared no-op instance so callers never need to nil-check.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger returns the context logger, or the shared no-op logger when absent.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger returns the shared no-op logger instance. Callers can compare
// against it to detect that no request logger was attached.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores trace metadata for downstream log correlation.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceContextKey, info)
}

// Trace returns the trace metadata when a middleware attached it.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceContextKey).(TraceInfo)
	return info, ok
}

// TraceID is a shortcut for the bare trace identifier, empty when untraced.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}
