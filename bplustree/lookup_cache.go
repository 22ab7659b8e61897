package bplus

import (
	"github.com/dgraph-io/ristretto/v2"
)

// lookupCache remembers recent Search results by key. A nil *lookupCache is
// a disabled cache; every method is safe to call on it.
type lookupCache struct {
	cache *ristretto.Cache[string, []byte]
}

func newLookupCache(entries int) (*lookupCache, error) {
	if entries <= 0 {
		return nil, nil
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        int64(entries) * 10,
		MaxCost:            int64(entries),
		BufferItems:        64,
		Metrics:            true,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &lookupCache{cache: cache}, nil
}

func (c *lookupCache) get(key []byte) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	return c.cache.Get(string(key))
}

// put stores a private copy of value and waits for it to be applied, so a
// following invalidate cannot be overtaken by the buffered write.
func (c *lookupCache) put(key, value []byte) {
	if c == nil {
		return
	}
	c.cache.Set(string(key), append([]byte(nil), value...), 1)
	c.cache.Wait()
}

func (c *lookupCache) invalidate(key []byte) {
	if c == nil {
		return
	}
	c.cache.Del(string(key))
}

func (c *lookupCache) metrics() (hits, misses uint64) {
	if c == nil || c.cache.Metrics == nil {
		return 0, 0
	}
	return c.cache.Metrics.Hits(), c.cache.Metrics.Misses()
}

func (c *lookupCache) close() {
	if c == nil {
		return
	}
	c.cache.Close()
}
