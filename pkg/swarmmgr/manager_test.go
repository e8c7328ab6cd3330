package swarmmgr

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/montana2ab/swarmclient/pkg/common"
	"github.com/montana2ab/swarmclient/pkg/swarmerr"
)

type fakeBootstrap struct {
	nodes []common.ServiceNode
	err   error
}

func (f *fakeBootstrap) FetchServiceNodes(ctx context.Context, limit int) ([]common.ServiceNode, error) {
	return f.nodes, f.err
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func node(ip string) common.ServiceNode {
	addr, _ := common.NewPublicIPv4(ip)
	return common.ServiceNode{IP: addr, StoragePort: 1}
}

func TestResolve_EmptySnodesListIsAnError(t *testing.T) {
	resp, _ := json.Marshal(struct {
		Snodes []struct {
			IP            string `json:"ip"`
			Port          uint16 `json:"port"`
			PubkeyEd25519 string `json:"pubkey_ed25519"`
			PubkeyX25519  string `json:"pubkey_x25519"`
		} `json:"snodes"`
	}{})

	bootstrap := &fakeBootstrap{nodes: []common.ServiceNode{node("5.5.5.5")}}
	disp := &stubDispatcher{resp: resp}

	m := NewManager("abc", bootstrap, disp, time.Second, testLogger())
	err := m.Resolve(context.Background())
	require.Error(t, err) // empty snodes list is treated as no usable nodes
}

type stubDispatcher struct {
	resp []byte
	err  error
}

func (s *stubDispatcher) Dispatch(ctx context.Context, dest common.NodeAddress, payload []byte) ([]byte, error) {
	return s.resp, s.err
}

func TestDispatchWithRetry_NoUsableNodesWhenEmpty(t *testing.T) {
	m := NewManager("abc", &fakeBootstrap{}, &stubDispatcher{}, time.Millisecond, testLogger())
	_, err := m.DispatchWithRetry(context.Background(), []byte("x"))
	require.Error(t, err)
}

func TestDispatchWithRetry_RemovesFailingNodeThenSucceeds(t *testing.T) {
	m := NewManager("abc", &fakeBootstrap{}, &stubDispatcher{}, time.Millisecond, testLogger())
	a := node("1.1.1.1")
	a.Ed25519PubKey = []byte{1}
	b := node("1.1.1.2")
	b.Ed25519PubKey = []byte{2}
	m.working = []common.ServiceNode{a, b}

	calls := 0
	d := &countingDispatcher{onCall: func() ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, swarmerr.New(swarmerr.KindTransport, errors.New("node down"))
		}
		return []byte("ok"), nil
	}}
	m.transport = d

	resp, err := m.DispatchWithRetry(context.Background(), []byte("x"))
	require.NoError(t, err)
	require.Equal(t, []byte("ok"), resp)
	require.Equal(t, 2, calls)
	require.Len(t, m.working, 1)
}

type countingDispatcher struct {
	onCall func() ([]byte, error)
}

func (c *countingDispatcher) Dispatch(ctx context.Context, dest common.NodeAddress, payload []byte) ([]byte, error) {
	return c.onCall()
}

func TestCall_WrapsMethodAndParamsInEnvelope(t *testing.T) {
	m := NewManager("abc", &fakeBootstrap{}, &stubDispatcher{}, time.Millisecond, testLogger())
	m.working = []common.ServiceNode{node("1.1.1.1")}

	var captured []byte
	m.transport = dispatcherFunc(func(ctx context.Context, dest common.NodeAddress, payload []byte) ([]byte, error) {
		captured = payload
		return []byte(`{"ok":true}`), nil
	})

	resp, err := m.Call("retrieve", map[string]string{"pubkey": "abc"})
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, string(resp))

	var env rpcEnvelope
	require.NoError(t, json.Unmarshal(captured, &env))
	require.Equal(t, "retrieve", env.Method)
}

type dispatcherFunc func(ctx context.Context, dest common.NodeAddress, payload []byte) ([]byte, error)

func (f dispatcherFunc) Dispatch(ctx context.Context, dest common.NodeAddress, payload []byte) ([]byte, error) {
	return f(ctx, dest, payload)
}
