package configsync

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/montana2ab/swarmclient/pkg/cfgobject"
	"github.com/montana2ab/swarmclient/pkg/identity"
	"github.com/montana2ab/swarmclient/pkg/namespace"
	"github.com/montana2ab/swarmclient/pkg/nsworker"
	"github.com/montana2ab/swarmclient/pkg/rpc"
	"github.com/montana2ab/swarmclient/pkg/store"
)

type countingCaller struct {
	calls int32
	hash  string
}

func (c *countingCaller) Call(method string, params any) ([]byte, error) {
	atomic.AddInt32(&c.calls, 1)
	return json.Marshal(rpc.StoreResponse{Hash: c.hash, Created: 1})
}

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

func TestSyncer_PersistsOnMergeAndPushesLocalChange(t *testing.T) {
	id, err := identity.FromSeed(make([]byte, identity.SeedSize))
	require.NoError(t, err)

	profile, err := cfgobject.NewUserProfile(nil)
	require.NoError(t, err)
	require.NoError(t, profile.SetDisplayName("alice")) // local mutation before Run

	caller := &countingCaller{hash: "swarm-hash-1"}
	st := testStore(t)
	syncer := NewSyncer(profile, namespace.UserProfile, id.SessionID().String(), IdentityStoreSigner{ID: id}, caller, st, 20*time.Millisecond, testLogger())

	msgCh := make(chan nsworker.Message)
	ctx, cancel := context.WithCancel(context.Background())

	go syncer.Run(ctx, msgCh)

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&caller.calls) > 0
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		_, ok, err := st.LoadConfig(context.Background(), "user_profile")
		return err == nil && ok
	}, time.Second, 5*time.Millisecond)

	cancel()
	close(msgCh)
}
