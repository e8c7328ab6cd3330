package transport

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/montana2ab/swarmclient/pkg/common"
)

func makeNode(t *testing.T, ip string) common.ServiceNode {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	addr, err := common.NewPublicIPv4(ip)
	require.NoError(t, err)
	return common.ServiceNode{IP: addr, StoragePort: 22021, Ed25519PubKey: pub, X25519PubKey: make([]byte, 32)}
}

func TestSelectPath_TooSmallPool(t *testing.T) {
	pool := []common.ServiceNode{makeNode(t, "8.8.8.8")}
	_, err := selectPath(pool)
	require.Error(t, err)
}

func TestSelectPath_PicksDistinctNodes(t *testing.T) {
	pool := []common.ServiceNode{
		makeNode(t, "1.1.1.1"),
		makeNode(t, "1.1.1.2"),
		makeNode(t, "1.1.1.3"),
		makeNode(t, "1.1.1.4"),
	}
	path, err := selectPath(pool)
	require.NoError(t, err)
	require.Len(t, path, pathLength)

	seen := map[string]bool{}
	for _, n := range path {
		seen[n.IP.String()] = true
	}
	require.Len(t, seen, pathLength)
}

func TestPathCache_ExpiresAfterTTL(t *testing.T) {
	cache := newPathCache(10 * time.Millisecond)
	cache.set([]common.ServiceNode{makeNode(t, "2.2.2.2")})

	_, ok := cache.get()
	require.True(t, ok)

	time.Sleep(20 * time.Millisecond)
	_, ok = cache.get()
	require.False(t, ok)
}

func TestPathCache_InvalidateEntersCooldown(t *testing.T) {
	cache := newPathCache(time.Hour)
	cache.set([]common.ServiceNode{makeNode(t, "3.3.3.3")})
	cache.invalidate(50 * time.Millisecond)

	_, ok := cache.get()
	require.False(t, ok)
	require.True(t, cache.inCooldown())

	time.Sleep(60 * time.Millisecond)
	require.False(t, cache.inCooldown())
}
