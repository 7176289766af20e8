package shared

import (
	"context"

	"github.com/google/uuid"
)

type traceKey struct{}
type operatorIDKey struct{}

// WithTraceID attaches a trace_id to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID extracts trace_id from context. Returns "-" if absent.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok && v != "" {
		return v
	}
	return "-"
}

// NewTraceID generates a new trace_id.
func NewTraceID() string {
	return uuid.NewString()
}

// WithOperatorID attaches the Telegram user ID of the caller to the context.
func WithOperatorID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, operatorIDKey{}, id)
}

// OperatorID extracts the caller's user ID (0 if absent).
func OperatorID(ctx context.Context) int64 {
	if v, ok := ctx.Value(operatorIDKey{}).(int64); ok {
		return v
	}
	return 0
}
