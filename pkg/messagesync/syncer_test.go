package messagesync

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/montana2ab/swarmclient/pkg/common"
	"github.com/montana2ab/swarmclient/pkg/cryptoprovider"
	"github.com/montana2ab/swarmclient/pkg/identity"
	"github.com/montana2ab/swarmclient/pkg/namespace"
	"github.com/montana2ab/swarmclient/pkg/nsworker"
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

func newTestIdentity(t *testing.T, seedByte byte) *identity.Identity {
	t.Helper()
	seed := make([]byte, identity.SeedSize)
	for i := range seed {
		seed[i] = seedByte
	}
	id, err := identity.FromSeed(seed)
	require.NoError(t, err)
	return id
}

func encryptEnvelope(t *testing.T, sender *identity.Identity, recipientX25519Pub []byte, env Envelope) []byte {
	t.Helper()
	content, err := json.Marshal(env)
	require.NoError(t, err)
	wire, err := sender.EncryptTo(recipientX25519Pub, Pad(content))
	require.NoError(t, err)
	return wire
}

func TestSyncer_DecodesDirectMessageAndDerivesReceiver(t *testing.T) {
	alice := newTestIdentity(t, 0x01)
	bob := newTestIdentity(t, 0x02)

	wire := encryptEnvelope(t, alice, bob.X25519PublicKey(), Envelope{
		Type:      "message",
		Timestamp: 1234,
		Content:   Content{DataMessage: &DataMessage{Body: "hello"}},
	})

	st := testStore(t)
	syncer := NewDirect(bob, st, testLogger())

	msgs := make(chan nsworker.Message, 1)
	msgs <- nsworker.Message{Hash: "h1", Created: 100, Data: wire}
	close(msgs)

	syncer.Run(context.Background(), msgs)

	rows, err := st.MessagesSince(context.Background(), int16(namespace.Default), 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, alice.SessionID().String(), rows[0].Sender)
	require.Equal(t, bob.SessionID().String(), rows[0].Receiver) // no sync_target: falls back to self
	require.Equal(t, "h1", rows[0].Hash)

	var content Content
	require.NoError(t, json.Unmarshal(rows[0].Payload, &content))
	require.Equal(t, "hello", content.DataMessage.Body)
}

func TestSyncer_SyncTargetOverridesReceiver(t *testing.T) {
	alice := newTestIdentity(t, 0x03)
	bob := newTestIdentity(t, 0x04)
	otherConvo, err := common.ParseSessionID("05" + "ff" + strings.Repeat("00", 30) + "ff")
	require.NoError(t, err)

	wire := encryptEnvelope(t, alice, bob.X25519PublicKey(), Envelope{
		Content: Content{DataMessage: &DataMessage{Body: "synced", SyncTarget: otherConvo.String()}},
	})

	st := testStore(t)
	syncer := NewDirect(bob, st, testLogger())
	msgs := make(chan nsworker.Message, 1)
	msgs <- nsworker.Message{Hash: "h2", Created: 1, Data: wire}
	close(msgs)
	syncer.Run(context.Background(), msgs)

	rows, err := st.MessagesSince(context.Background(), int16(namespace.Default), 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, otherConvo.String(), rows[0].Receiver)
}

func TestSyncer_SkipsBadMessageButKeepsRestOfBatch(t *testing.T) {
	alice := newTestIdentity(t, 0x05)
	bob := newTestIdentity(t, 0x06)

	good := encryptEnvelope(t, alice, bob.X25519PublicKey(), Envelope{
		Content: Content{DataMessage: &DataMessage{Body: "ok"}},
	})
	bad := []byte("not a valid onion-encrypted message box")

	st := testStore(t)
	syncer := NewDirect(bob, st, testLogger())
	msgs := make(chan nsworker.Message, 2)
	msgs <- nsworker.Message{Hash: "bad", Created: 1, Data: bad}
	msgs <- nsworker.Message{Hash: "good", Created: 2, Data: good}
	close(msgs)
	syncer.Run(context.Background(), msgs)

	rows, err := st.MessagesSince(context.Background(), int16(namespace.Default), 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "good", rows[0].Hash)
}

type fakeGroupKeys struct{ key []byte }

func (f fakeGroupKeys) CurrentKey() ([]byte, bool) { return f.key, f.key != nil }

func TestSyncer_DecodesGroupMessage(t *testing.T) {
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	content, err := json.Marshal(Envelope{Content: Content{DataMessage: &DataMessage{Body: "group hi"}}})
	require.NoError(t, err)
	sealed, err := cryptoprovider.SealXChaCha20Poly1305(key, content, nil)
	require.NoError(t, err)

	self := newTestIdentity(t, 0x07).SessionID()
	groupID, err := common.ParseSessionID("03" + "aa" + strings.Repeat("00", 30) + "aa")
	require.NoError(t, err)

	st := testStore(t)
	syncer := NewGroup(groupID, self, fakeGroupKeys{key: key}, st, testLogger())

	msgs := make(chan nsworker.Message, 1)
	msgs <- nsworker.Message{Hash: "g1", Created: 5, Data: sealed}
	close(msgs)
	syncer.Run(context.Background(), msgs)

	rows, err := st.MessagesSince(context.Background(), int16(namespace.GroupMessages), 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, groupID.String(), rows[0].Sender)
	require.Equal(t, groupID.String(), rows[0].Source)

	var content Content
	require.NoError(t, json.Unmarshal(rows[0].Payload, &content))
	require.Equal(t, "group hi", content.DataMessage.Body)
}

func TestSyncer_GroupMessageWithoutKeyIsSkipped(t *testing.T) {
	self := newTestIdentity(t, 0x08).SessionID()
	groupID, err := common.ParseSessionID("03" + "bb" + strings.Repeat("00", 30) + "bb")
	require.NoError(t, err)

	st := testStore(t)
	syncer := NewGroup(groupID, self, fakeGroupKeys{key: nil}, st, testLogger())

	msgs := make(chan nsworker.Message, 1)
	msgs <- nsworker.Message{Hash: "g2", Created: 1, Data: []byte("anything")}
	close(msgs)
	syncer.Run(context.Background(), msgs)

	rows, err := st.MessagesSince(context.Background(), int16(namespace.GroupMessages), 0)
	require.NoError(t, err)
	require.Len(t, rows, 0)
}
