// Package middleware provides cross-cutting request shaping for outbound
// swarm dispatch.
package middleware

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// NodeRateLimiter throttles outbound onion-request dispatch per destination
// swarm node, so a single slow or flaky node can't be hammered with retries
// faster than it can answer.
type NodeRateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rps      int
	burst    int
}

// NewNodeRateLimiter creates a limiter allowing requestsPerSecond sustained
// dispatches per node, with bursts up to burst.
func NewNodeRateLimiter(requestsPerSecond, burst int) *NodeRateLimiter {
	return &NodeRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      requestsPerSecond,
		burst:    burst,
	}
}

// getLimiter returns the rate limiter for a given node key (address or pubkey).
func (rl *NodeRateLimiter) getLimiter(nodeKey string) *rate.Limiter {
	rl.mu.RLock()
	limiter, exists := rl.limiters[nodeKey]
	rl.mu.RUnlock()

	if exists {
		return limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	limiter, exists = rl.limiters[nodeKey]
	if exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Limit(rl.rps), rl.burst)
	rl.limiters[nodeKey] = limiter

	return limiter
}

// Cleanup drops all tracked per-node limiters, releasing memory for nodes
// that have rotated out of the working set.
func (rl *NodeRateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.limiters = make(map[string]*rate.Limiter)
}

// Allow reports whether a dispatch to nodeKey may proceed immediately
// without blocking, consuming a token if so.
func (rl *NodeRateLimiter) Allow(nodeKey string) bool {
	return rl.getLimiter(nodeKey).Allow()
}

// Wait blocks until a dispatch to nodeKey is permitted or ctx is done.
func (rl *NodeRateLimiter) Wait(ctx context.Context, nodeKey string) error {
	return rl.getLimiter(nodeKey).Wait(ctx)
}
