package blinded

import (
	"context"
	"encoding/hex"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/montana2ab/swarmclient/pkg/cfgobject"
	"github.com/montana2ab/swarmclient/pkg/common"
	"github.com/montana2ab/swarmclient/pkg/store"
	"github.com/montana2ab/swarmclient/pkg/watchable"
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

func TestDeriver_DerivesAndPersistsDeterministically(t *testing.T) {
	var selfKey [32]byte
	for i := range selfKey {
		selfKey[i] = byte(i + 1)
	}
	self := common.NewSessionID(common.PrefixIndividual, selfKey)

	st := testStore(t)
	deriver := NewDeriver(self, st, testLogger())

	userGroups, err := cfgobject.NewUserGroups(nil)
	require.NoError(t, err)
	community := cfgobject.CommunityEntry{BaseURL: "https://example.org", Room: "general", ServerPubKey: hex.EncodeToString(make([]byte, 32))}
	require.NoError(t, userGroups.SetCommunity(community))

	changed := watchable.New(uint64(0))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		deriver.Run(ctx, userGroups, changed.Subscribe())
	}()

	require.Eventually(t, func() bool {
		_, _, ok, err := Load(context.Background(), st, community.Key())
		return err == nil && ok
	}, time.Second, 5*time.Millisecond)

	primary1, secondary1, ok, err := Load(context.Background(), st, community.Key())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, primary1.IsBlinded())
	require.True(t, secondary1.IsBlinded())
	require.NotEqual(t, primary1.String(), secondary1.String())

	// Re-run is deterministic: same community, same keys.
	require.NoError(t, deriver.deriveAndStore(context.Background(), community))
	primary2, secondary2, ok, err := Load(context.Background(), st, community.Key())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, primary1.String(), primary2.String())
	require.Equal(t, secondary1.String(), secondary2.String())

	changed.Close()
	cancel()
	<-done
}
