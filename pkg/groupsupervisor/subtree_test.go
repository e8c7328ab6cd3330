package groupsupervisor

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/montana2ab/swarmclient/pkg/cfgobject"
	"github.com/montana2ab/swarmclient/pkg/common"
	"github.com/montana2ab/swarmclient/pkg/cryptoprovider"
	"github.com/montana2ab/swarmclient/pkg/namespace"
	"github.com/montana2ab/swarmclient/pkg/rpc"
	"github.com/montana2ab/swarmclient/pkg/store"
)

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "t.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type noopAuth struct{}

func (noopAuth) SignRetrieve(ns namespace.Namespace, ts int64) (string, string, string, string) {
	return "sig", "pub", "", ""
}
func (noopAuth) SignStore(ns namespace.Namespace, ts int64) (string, string, string, string) {
	return "sig", "pub", "", ""
}

// perNamespaceCaller serves one canned batch of messages per
// namespace, exactly once, then empty responses thereafter.
type perNamespaceCaller struct {
	mu       sync.Mutex
	served   map[int16]bool
	messages map[int16][]rpc.RetrieveResult
}

func (c *perNamespaceCaller) Call(method string, params any) ([]byte, error) {
	if method != "retrieve" {
		return json.Marshal(rpc.StoreResponse{Hash: "h", Created: 1})
	}
	req := params.(rpc.RetrieveRequest)

	c.mu.Lock()
	defer c.mu.Unlock()
	var msgs []rpc.RetrieveResult
	if !c.served[req.Namespace] {
		msgs = c.messages[req.Namespace]
		c.served[req.Namespace] = true
	}
	return json.Marshal(rpc.RetrieveResponse{Messages: msgs})
}

func b64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func testSessionID(t *testing.T, prefix common.IDPrefix, fill byte) common.SessionID {
	t.Helper()
	var key [32]byte
	for i := range key {
		key[i] = fill
	}
	id, err := common.ParseSessionID(string(prefix) + hex.EncodeToString(key[:]))
	require.NoError(t, err)
	return id
}

func TestSubtree_PrimesKeysThenDecryptsInfo(t *testing.T) {
	groupID := testSessionID(t, common.PrefixGroup, 0xaa)
	self := testSessionID(t, common.PrefixIndividual, 0xbb)

	groupKey := make([]byte, 32)
	for i := range groupKey {
		groupKey[i] = byte(i + 1)
	}
	gen := cfgobject.KeyGeneration{Generation: 1, EncKey: groupKey}
	genBytes, err := json.Marshal(gen)
	require.NoError(t, err)

	info, err := cfgobject.NewGroupInfo(nil)
	require.NoError(t, err)
	require.NoError(t, info.SetName("book club"))
	infoDump, err := info.Dump()
	require.NoError(t, err)
	sealedInfo, err := cryptoprovider.SealXChaCha20Poly1305(groupKey, infoDump, nil)
	require.NoError(t, err)

	caller := &perNamespaceCaller{
		served: make(map[int16]bool),
		messages: map[int16][]rpc.RetrieveResult{
			int16(namespace.GroupKeys): {{Hash: "keys-1", Created: 1, Data: b64(genBytes)}},
			int16(namespace.GroupInfo): {{Hash: "info-1", Created: 1, Data: b64(sealedInfo)}},
		},
	}

	st := testStore(t)
	state, err := LoadGroupConfigState(context.Background(), st, groupID)
	require.NoError(t, err)

	subtree := NewSubtree(groupID, self, noopAuth{}, caller, st, state, 5*time.Millisecond, 20*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- subtree.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok, _ := state.Info.Get("name", new(string))
		return ok
	}, time.Second, 5*time.Millisecond)

	var name string
	ok, err := state.Info.Get("name", &name)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "book club", name)

	cancel()
	require.NoError(t, <-done)
}

func TestSubtree_BlocksUntilCancelledWhenNoKeysArrive(t *testing.T) {
	groupID := testSessionID(t, common.PrefixGroup, 0xcc)
	self := testSessionID(t, common.PrefixIndividual, 0xdd)

	caller := &perNamespaceCaller{served: make(map[int16]bool), messages: map[int16][]rpc.RetrieveResult{}}

	st := testStore(t)
	state, err := LoadGroupConfigState(context.Background(), st, groupID)
	require.NoError(t, err)

	subtree := NewSubtree(groupID, self, noopAuth{}, caller, st, state, 5*time.Millisecond, 20*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The keys namespace worker never produces a message (its every
	// poll returns empty), so priming never completes and Run must
	// block harmlessly until ctx is cancelled rather than erroring —
	// an empty stream is not the same as a closed one.
	done := make(chan error, 1)
	go func() { done <- subtree.Run(ctx) }()

	select {
	case <-done:
		t.Fatal("subtree returned before ctx cancellation with no keys ever delivered")
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)
}
