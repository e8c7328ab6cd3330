package batch

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/montana2ab/swarmclient/pkg/rpc"
)

type fakeCaller struct {
	lastMethod string
	lastParams any
	resp       []byte
	err        error
}

func (f *fakeCaller) Call(method string, params any) ([]byte, error) {
	f.lastMethod, f.lastParams = method, params
	return f.resp, f.err
}

type recordingMetrics struct{ sizes []int }

func (r *recordingMetrics) RecordFlush(size int) { r.sizes = append(r.sizes, size) }

func TestBatchCaller_WrapsRequestsInOneBatchRPCAndUnwrapsResults(t *testing.T) {
	fc := &fakeCaller{}
	bc := NewBatchCaller(10*time.Millisecond, fc)
	metrics := &recordingMetrics{}
	bc.SetMetrics(metrics)

	fc.resp, _ = json.Marshal(rpc.BatchResponse{Results: []rpc.BatchSubResult{{Code: 200, Body: json.RawMessage(`{"ok":true}`)}}})

	body, err := bc.Call("retrieve", map[string]string{"namespace": "0"})
	require.NoError(t, err)
	require.JSONEq(t, `{"ok":true}`, string(body))
	require.Equal(t, "batch", fc.lastMethod)

	req, ok := fc.lastParams.(rpc.BatchRequest)
	require.True(t, ok)
	require.Len(t, req.Requests, 1)
	require.Equal(t, "retrieve", req.Requests[0].Method)

	require.Eventually(t, func() bool { return len(metrics.sizes) == 1 && metrics.sizes[0] == 1 }, time.Second, 5*time.Millisecond)
}

func TestBatchCaller_NonSuccessCodeIsAnError(t *testing.T) {
	fc := &fakeCaller{}
	bc := NewBatchCaller(5*time.Millisecond, fc)

	fc.resp, _ = json.Marshal(rpc.BatchResponse{Results: []rpc.BatchSubResult{{Code: 404}}})

	_, err := bc.Call("retrieve", nil)
	require.Error(t, err)
}
