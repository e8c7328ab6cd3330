package batch

import (
	"encoding/json"
	"time"

	"github.com/montana2ab/swarmclient/pkg/rpc"
	"github.com/montana2ab/swarmclient/pkg/swarmerr"
)

// Caller is the single-RPC surface a Coordinator sends its coalesced
// batch request over — satisfied directly by swarmmgr.Manager.
type Caller interface {
	Call(method string, params any) ([]byte, error)
}

// NewSenderFromCaller adapts any Caller into a Sender by wrapping the
// coalesced sub-requests in one "batch" RPC call and decoding its
// per-item results back out, per spec.md §4.3.
func NewSenderFromCaller(caller Caller) Sender {
	return func(reqs []rpc.BatchSubRequest) ([]rpc.BatchSubResult, error) {
		respBytes, err := caller.Call("batch", rpc.BatchRequest{Requests: reqs})
		if err != nil {
			return nil, err
		}
		var parsed rpc.BatchResponse
		if err := json.Unmarshal(respBytes, &parsed); err != nil {
			return nil, swarmerr.New(swarmerr.KindDecode, err)
		}
		return parsed.Results, nil
	}
}

// BatchCaller adapts a Coordinator back into the single-RPC Caller
// surface nsworker and configsync build on, so namespace pollers never
// have to know whether their calls are being coalesced.
type BatchCaller struct {
	coordinator *Coordinator
}

// NewBatchCaller builds a BatchCaller whose Coordinator sends its
// flushed windows over caller's "batch" RPC.
func NewBatchCaller(window time.Duration, caller Caller) *BatchCaller {
	return &BatchCaller{coordinator: NewCoordinator(window, NewSenderFromCaller(caller))}
}

// SetMetrics attaches a MetricsRecorder to the underlying Coordinator.
func (c *BatchCaller) SetMetrics(rec MetricsRecorder) { c.coordinator.SetMetrics(rec) }

func (c *BatchCaller) Call(method string, params any) ([]byte, error) {
	res, err := c.coordinator.Submit(method, params)
	if err != nil {
		return nil, err
	}
	if res.Code < 200 || res.Code >= 300 {
		return nil, swarmerr.NewStatus(swarmerr.KindJSONRPC, res.Code, nil)
	}
	return []byte(res.Body), nil
}
