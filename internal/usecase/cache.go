package usecase

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const defaultCacheTTL = 60 * time.Second

type cacheEntry[V any] struct {
	value    V
	storedAt time.Time
}

// ttlCache keeps computed results for a fixed time. Age is measured with the
// injected clock on every read and stale entries are evicted there, so a
// fake clock fully controls expiry.
type ttlCache[V any] struct {
	store *ristretto.Cache[string, cacheEntry[V]]
	ttl   time.Duration
	now   func() time.Time
}

func newTTLCache[V any](ttl time.Duration, now func() time.Time) (*ttlCache[V], error) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	store, err := ristretto.NewCache(&ristretto.Config[string, cacheEntry[V]]{
		NumCounters: 10_000,
		MaxCost:     1_000,
		BufferItems: 64,
		// Every entry costs 1, so MaxCost is an entry count.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("usecase: create cache: %w", err)
	}
	return &ttlCache[V]{store: store, ttl: ttl, now: now}, nil
}

func (c *ttlCache[V]) Get(key string) (V, bool) {
	var zero V
	e, ok := c.store.Get(key)
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.storedAt) >= c.ttl {
		c.store.Del(key)
		return zero, false
	}
	return e.value, true
}

// Set stores v under key. Concurrent writers of one key race and the last
// one wins; values for a key are computed identically.
func (c *ttlCache[V]) Set(key string, v V) {
	// The wall-clock TTL only bounds memory; freshness is decided in Get.
	c.store.SetWithTTL(key, cacheEntry[V]{value: v, storedAt: c.now()}, 1, c.ttl)
	c.store.Wait()
}

func (c *ttlCache[V]) Close() {
	c.store.Close()
}
