package logging

import (
	"context"
	"time"
)

type ctxKey struct{}

// Detach returns a context that ignores parent's cancellation but keeps its
// values, bounded by its own timeout. Persistence writes use it so a request
// that is abandoned mid-flight still records what it already answered.
func Detach(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(parent), timeout)
}

// IntoContext attaches l to ctx.
func IntoContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger attached to ctx, or the global logger.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok && l != nil {
		return l
	}
	return Global()
}
