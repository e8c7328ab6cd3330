package rpc

import (
	"crypto/ed25519"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/montana2ab/swarmclient/pkg/identity"
	"github.com/montana2ab/swarmclient/pkg/namespace"
)

func testIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, err := identity.FromSeed(make([]byte, identity.SeedSize))
	require.NoError(t, err)
	return id
}

func TestSignRetrieve_DefaultNamespaceOmitsNamespace(t *testing.T) {
	id := testIdentity(t)
	sig, pub := SignRetrieve(id, namespace.Default, 1700000000000)
	require.NotEmpty(t, sig)
	require.Len(t, pub, 64) // hex-encoded 32-byte key

	// The signed string is "retrieve" + timestamp, with no namespace.
	sigBytes, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	require.True(t, ed25519.Verify(id.Ed25519PublicKey(), []byte("retrieve1700000000000"), sigBytes))
}

func TestSignRetrieve_Deterministic(t *testing.T) {
	id := testIdentity(t)
	sig1, _ := SignRetrieve(id, namespace.UserGroups, 42)
	sig2, _ := SignRetrieve(id, namespace.UserGroups, 42)
	require.Equal(t, sig1, sig2)
}

func TestSignStore_IncludesNamespaceAndTimestamp(t *testing.T) {
	id := testIdentity(t)
	sigA, _ := SignStore(id, namespace.UserGroups, 100)
	sigB, _ := SignStore(id, namespace.Contacts, 100)
	require.NotEqual(t, sigA, sigB)
	sigC, _ := SignStore(id, namespace.UserGroups, 101)
	require.NotEqual(t, sigA, sigC)
}

func TestSignStore_PubKeyIsLowercaseHex(t *testing.T) {
	id := testIdentity(t)
	_, pub := SignStore(id, namespace.Default, 1)
	require.Equal(t, strings.ToLower(pub), pub)
}
