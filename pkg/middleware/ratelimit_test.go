package middleware

import (
	"context"
	"testing"
	"time"
)

func TestNewNodeRateLimiter(t *testing.T) {
	rl := NewNodeRateLimiter(10, 20)

	if rl.rps != 10 {
		t.Errorf("RPS = %d, want 10", rl.rps)
	}

	if rl.burst != 20 {
		t.Errorf("Burst = %d, want 20", rl.burst)
	}

	if rl.limiters == nil {
		t.Error("Limiters map is nil")
	}
}

func TestNodeRateLimiter_GetLimiter(t *testing.T) {
	rl := NewNodeRateLimiter(10, 20)

	node := "5.5.5.5:1234"

	limiter1 := rl.getLimiter(node)
	if limiter1 == nil {
		t.Fatal("Limiter is nil")
	}

	limiter2 := rl.getLimiter(node)
	if limiter1 != limiter2 {
		t.Error("Different limiters returned for same node")
	}

	limiter3 := rl.getLimiter("6.6.6.6:1234")
	if limiter1 == limiter3 {
		t.Error("Same limiter returned for different node")
	}
}

func TestNodeRateLimiter_Cleanup(t *testing.T) {
	rl := NewNodeRateLimiter(10, 20)

	rl.getLimiter("5.5.5.5:1234")
	rl.getLimiter("6.6.6.6:1234")

	if len(rl.limiters) != 2 {
		t.Errorf("Expected 2 limiters, got %d", len(rl.limiters))
	}

	rl.Cleanup()

	if len(rl.limiters) != 0 {
		t.Errorf("Expected 0 limiters after cleanup, got %d", len(rl.limiters))
	}
}

func TestNodeRateLimiter_Allow(t *testing.T) {
	rl := NewNodeRateLimiter(2, 2)
	node := "5.5.5.5:1234"

	for i := 0; i < 2; i++ {
		if !rl.Allow(node) {
			t.Errorf("dispatch %d: expected allowed", i+1)
		}
	}

	if rl.Allow(node) {
		t.Error("third dispatch: expected rate limited")
	}
}

func TestNodeRateLimiter_AllowDifferentNodes(t *testing.T) {
	rl := NewNodeRateLimiter(1, 1)

	if !rl.Allow("5.5.5.5:1234") {
		t.Error("first node: expected allowed")
	}
	if !rl.Allow("6.6.6.6:1234") {
		t.Error("second, different node: expected allowed")
	}
	if rl.Allow("5.5.5.5:1234") {
		t.Error("second dispatch to first node: expected rate limited")
	}
}

func TestNodeRateLimiter_Wait(t *testing.T) {
	rl := NewNodeRateLimiter(10, 1)
	node := "5.5.5.5:1234"

	if !rl.Allow(node) {
		t.Fatal("first dispatch: expected allowed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	start := time.Now()
	if err := rl.Wait(ctx, node); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("Wait returned before the bucket could have refilled")
	}
}
