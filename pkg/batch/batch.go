// Package batch coalesces individually-submitted swarm RPC calls into
// a single /batch round trip, the way the client avoids issuing one
// onion request per namespace poll when several land within the same
// short window (spec.md §4.3).
package batch

import (
	"sync"
	"time"

	"github.com/montana2ab/swarmclient/pkg/rpc"
)

// Sender issues one already-assembled batch call and returns its
// per-item results in submission order.
type Sender func(reqs []rpc.BatchSubRequest) ([]rpc.BatchSubResult, error)

type pendingItem struct {
	req    rpc.BatchSubRequest
	result chan<- itemResult
}

type itemResult struct {
	res rpc.BatchSubResult
	err error
}

// Coordinator collects calls submitted within a rolling window and
// dispatches them as one batch when the window elapses. A single
// coordinator instance serializes all of its windows: while one batch
// is building, new submissions join it; once it fires, the next
// submission starts a fresh window.
type Coordinator struct {
	window time.Duration
	send   Sender

	mu      sync.Mutex
	pending []pendingItem
	timer   *time.Timer

	metrics MetricsRecorder
}

// MetricsRecorder receives one observation per flushed batch window.
// Optional; a Coordinator with none set simply skips the call.
type MetricsRecorder interface {
	RecordFlush(size int)
}

func NewCoordinator(window time.Duration, send Sender) *Coordinator {
	return &Coordinator{window: window, send: send}
}

// SetMetrics attaches a MetricsRecorder. Call it before any Submit
// runs concurrently with it, since it is not itself synchronized.
func (c *Coordinator) SetMetrics(rec MetricsRecorder) { c.metrics = rec }

// Submit adds one call to the current (or a freshly-started) batch
// window and blocks until that window's batch completes, returning
// this call's own result.
func (c *Coordinator) Submit(method string, params any) (rpc.BatchSubResult, error) {
	resultCh := make(chan itemResult, 1)

	c.mu.Lock()
	c.pending = append(c.pending, pendingItem{
		req:    rpc.BatchSubRequest{Method: method, Params: params},
		result: resultCh,
	})
	if c.timer == nil {
		c.timer = time.AfterFunc(c.window, c.flush)
	}
	c.mu.Unlock()

	r := <-resultCh
	return r.res, r.err
}

func (c *Coordinator) flush() {
	c.mu.Lock()
	items := c.pending
	c.pending = nil
	c.timer = nil
	c.mu.Unlock()

	if len(items) == 0 {
		return
	}
	if c.metrics != nil {
		c.metrics.RecordFlush(len(items))
	}

	reqs := make([]rpc.BatchSubRequest, len(items))
	for i, it := range items {
		reqs[i] = it.req
	}

	results, err := c.send(reqs)
	if err != nil {
		for _, it := range items {
			it.result <- itemResult{err: err}
		}
		return
	}

	for i, it := range items {
		if i < len(results) {
			it.result <- itemResult{res: results[i]}
		} else {
			it.result <- itemResult{err: errShortBatchResponse}
		}
	}
}
