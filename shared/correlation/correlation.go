// Package correlation carries a per-request identifier through context.Context
// so that every log line produced while serving a request, on any goroutine,
// can be tied back to it.
package correlation

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// HeaderName is read from inbound requests and echoed on responses.
	HeaderName = "X-Correlation-Id"
	// LogField is the structured log key holding the identifier.
	LogField = "corr_id"
)

type ctxKey struct{}

// WithID returns a child of ctx bound to id. The parent is left untouched.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the bound identifier, or "" when none is bound.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// NewID generates a fresh random identifier.
func NewID() string {
	return uuid.NewString()
}

// Resolve reuses a client-supplied identifier when present and generates one otherwise.
func Resolve(headerValue string) string {
	if id := strings.TrimSpace(headerValue); id != "" {
		return id
	}
	return NewID()
}

// Run executes op with id bound for its whole duration. Once op returns, the
// caller's ctx still carries whatever it carried before, whether op
// succeeded, failed or panicked.
func Run[T any](ctx context.Context, id string, op func(context.Context) (T, error)) (T, error) {
	return op(WithID(ctx, id))
}

// Logger decorates base with the identifier bound to ctx, if any.
func Logger(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = zap.NewNop()
	}
	if id := FromContext(ctx); id != "" {
		return base.With(zap.String(LogField, id))
	}
	return base
}
