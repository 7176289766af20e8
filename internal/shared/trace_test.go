package shared

import (
	"context"
	"testing"
)

func TestTraceID_DefaultDash(t *testing.T) {
	ctx := context.Background()
	if got := TraceID(ctx); got != "-" {
		t.Fatalf("expected '-', got %q", got)
	}
	id := NewTraceID()
	ctx = WithTraceID(ctx, id)
	if got := TraceID(ctx); got != id {
		t.Fatalf("expected %q, got %q", id, got)
	}
}

func TestOperatorID_RoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := OperatorID(ctx); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
	ctx = WithOperatorID(ctx, 42)
	if got := OperatorID(ctx); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
}
