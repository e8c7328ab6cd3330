package swarmmgr

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/montana2ab/swarmclient/pkg/common"
)

type recordingMetrics struct {
	resolutions []string
	failures    []string
	retries     int
}

func (r *recordingMetrics) RecordResolution(outcome string)    { r.resolutions = append(r.resolutions, outcome) }
func (r *recordingMetrics) RecordOnionRequest(destination string) {}
func (r *recordingMetrics) RecordDispatchRetry()                { r.retries++ }
func (r *recordingMetrics) RecordDispatchFailure(kind string)   { r.failures = append(r.failures, kind) }

func TestManager_RecordsResolutionOutcome(t *testing.T) {
	resp, _ := json.Marshal(struct {
		Snodes []struct {
			IP            string `json:"ip"`
			Port          uint16 `json:"port"`
			PubkeyEd25519 string `json:"pubkey_ed25519"`
			PubkeyX25519  string `json:"pubkey_x25519"`
		} `json:"snodes"`
	}{Snodes: []struct {
		IP            string `json:"ip"`
		Port          uint16 `json:"port"`
		PubkeyEd25519 string `json:"pubkey_ed25519"`
		PubkeyX25519  string `json:"pubkey_x25519"`
	}{{IP: "5.5.5.5", Port: 1}}})

	bootstrap := &fakeBootstrap{nodes: []common.ServiceNode{node("5.5.5.5")}}
	disp := &stubDispatcher{resp: resp}

	m := NewManager("abc", bootstrap, disp, time.Second, testLogger())
	rec := &recordingMetrics{}
	m.SetMetrics(rec)

	require.NoError(t, m.Resolve(context.Background()))
	require.Equal(t, []string{"ready"}, rec.resolutions)
}

func TestManager_RecordsDispatchFailureWhenWorkingSetExhausted(t *testing.T) {
	m := NewManager("abc", &fakeBootstrap{}, &stubDispatcher{err: context.DeadlineExceeded}, time.Second, testLogger())
	rec := &recordingMetrics{}
	m.SetMetrics(rec)

	_, err := m.DispatchWithRetry(context.Background(), []byte("{}"))
	require.Error(t, err)
	require.NotEmpty(t, rec.failures)
}
