package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swarmclient.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSettings_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetSetting(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SetSetting(ctx, "display_name", "alice"))
	v, ok, err := s.GetSetting(ctx, "display_name")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "alice", v)

	require.NoError(t, s.SetSetting(ctx, "display_name", "alice2"))
	v, _, _ = s.GetSetting(ctx, "display_name")
	require.Equal(t, "alice2", v)
}

func TestConfigs_NeedsPushUntilMarkedPushed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveConfigDump(ctx, "user_profile", []byte("dump1")))

	needs, err := s.NeedsPushVariants(ctx)
	require.NoError(t, err)
	require.Contains(t, needs, "user_profile")

	require.NoError(t, s.MarkConfigPushed(ctx, "user_profile"))
	needs, err = s.NeedsPushVariants(ctx)
	require.NoError(t, err)
	require.NotContains(t, needs, "user_profile")

	row, ok, err := s.LoadConfig(ctx, "user_profile")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("dump1"), row.Dump)
	require.True(t, row.Pushed)
}

func TestMessages_OrderedByCreated(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, inserted, err := s.InsertMessageIdempotent(ctx, MessageRow{Source: "swarm1", Hash: "hash-c", Namespace: 0, Sender: "a", Receiver: "b", Created: 300, Payload: []byte("c")})
	require.NoError(t, err)
	require.True(t, inserted)
	_, inserted, err = s.InsertMessageIdempotent(ctx, MessageRow{Source: "swarm1", Hash: "hash-a", Namespace: 0, Sender: "a", Receiver: "b", Created: 100, Payload: []byte("a")})
	require.NoError(t, err)
	require.True(t, inserted)
	_, inserted, err = s.InsertMessageIdempotent(ctx, MessageRow{Source: "swarm1", Hash: "hash-b", Namespace: 0, Sender: "a", Receiver: "b", Created: 200, Payload: []byte("b")})
	require.NoError(t, err)
	require.True(t, inserted)

	// A redelivered (source, hash) pair is ignored, not double-inserted.
	_, inserted, err = s.InsertMessageIdempotent(ctx, MessageRow{Source: "swarm1", Hash: "hash-a", Namespace: 0, Sender: "a", Receiver: "b", Created: 100, Payload: []byte("a")})
	require.NoError(t, err)
	require.False(t, inserted)

	msgs, err := s.MessagesSince(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, []byte("a"), msgs[0].Payload)
	require.Equal(t, []byte("b"), msgs[1].Payload)
	require.Equal(t, []byte("c"), msgs[2].Payload)
}

func TestRetrieveState_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	st, err := s.LoadRetrieveState(ctx, "default")
	require.NoError(t, err)
	require.Equal(t, RetrieveState{}, st)

	require.NoError(t, s.SaveRetrieveState(ctx, "default", RetrieveState{LastHash: "h1", LastCreated: 42}))
	st, err = s.LoadRetrieveState(ctx, "default")
	require.NoError(t, err)
	require.Equal(t, "h1", st.LastHash)
	require.Equal(t, int64(42), st.LastCreated)
}

func TestChanges_NotifiesSubscriberOnWrite(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	sub := s.Changes()

	require.NoError(t, s.SetSetting(ctx, "k", "v"))
	select {
	case table := <-sub.C():
		require.Equal(t, "app_settings", table)
	default:
		t.Fatal("expected a change notification")
	}
}
