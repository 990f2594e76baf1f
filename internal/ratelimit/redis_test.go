package ratelimit

import (
	"context"
	"testing"
	"time"
)

// A nil *Limiter is the shape every deployment without Redis configured
// uses (see cmd/agentd/commands.go), so its no-op behavior is worth
// pinning directly rather than only exercising it indirectly through the
// HTTP layer, which would otherwise need a live Redis server to cover the
// non-nil path.
func TestNilLimiterAlwaysAllows(t *testing.T) {
	var l *Limiter
	allowed, err := l.Allow(context.Background(), "k", 1, time.Minute)
	if err != nil {
		t.Fatalf("unexpected error from nil limiter: %v", err)
	}
	if !allowed {
		t.Fatalf("expected nil limiter to always allow")
	}
	if err := l.Close(); err != nil {
		t.Fatalf("unexpected error closing nil limiter: %v", err)
	}
}
