package transport

import (
	"context"
	"crypto/rand"
	"math/big"
	"sync"
	"time"

	"github.com/montana2ab/swarmclient/pkg/common"
	"github.com/montana2ab/swarmclient/pkg/swarmerr"
)

const (
	nodePoolFetchSize = 25
	pathLength        = 3
)

// pathCache holds a single cached 3-hop path, expiring it after ttl or
// on demand when a hop proves unusable (spec.md §7: a transport error
// invalidates the whole path, not just the failing hop, since the
// failure might be anywhere along it).
type pathCache struct {
	mu        sync.Mutex
	path      []common.ServiceNode
	builtAt   time.Time
	ttl       time.Duration
	cooldown  time.Time
}

func newPathCache(ttl time.Duration) *pathCache {
	return &pathCache{ttl: ttl}
}

func (c *pathCache) get() ([]common.ServiceNode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path == nil {
		return nil, false
	}
	if time.Since(c.builtAt) > c.ttl {
		return nil, false
	}
	return c.path, true
}

func (c *pathCache) set(path []common.ServiceNode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
	c.builtAt = time.Now()
}

func (c *pathCache) invalidate(cooldown time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = nil
	c.cooldown = time.Now().Add(cooldown)
}

func (c *pathCache) inCooldown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Before(c.cooldown)
}

// selectPath picks pathLength distinct nodes at random from pool. It
// fails with swarmerr.KindNoUsableNodes if the pool is too small.
func selectPath(pool []common.ServiceNode) ([]common.ServiceNode, error) {
	if len(pool) < pathLength {
		return nil, swarmerr.New(swarmerr.KindNoUsableNodes, nil)
	}
	shuffled := append([]common.ServiceNode(nil), pool...)
	for i := len(shuffled) - 1; i > 0; i-- {
		j, err := cryptoRandInt(i + 1)
		if err != nil {
			return nil, swarmerr.New(swarmerr.KindUnknown, err)
		}
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	}
	return shuffled[:pathLength], nil
}

func cryptoRandInt(n int) (int, error) {
	max := big.NewInt(int64(n))
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}

// acquirePath returns the cached path if still valid, otherwise fetches
// a fresh node pool from the seed client and selects a new random path.
func acquirePath(ctx context.Context, cache *pathCache, seeds *SeedClient) ([]common.ServiceNode, error) {
	if path, ok := cache.get(); ok {
		return path, nil
	}
	if cache.inCooldown() {
		return nil, swarmerr.New(swarmerr.KindNoUsableNodes, nil)
	}

	pool, err := seeds.FetchServiceNodes(ctx, nodePoolFetchSize)
	if err != nil {
		return nil, err
	}
	path, err := selectPath(pool)
	if err != nil {
		return nil, err
	}
	cache.set(path)
	return path, nil
}
