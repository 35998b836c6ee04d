// Package cache memoizes content digests for the lifetime of one conversion.
package cache

import (
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/golang/groupcache/singleflight"
)

// DigestMode selects which byte stream of a file was digested.
type DigestMode int

const (
	// DigestRaw hashes the file bytes unchanged.
	DigestRaw DigestMode = iota
	// DigestCompressed hashes the gzip (or tar.gz for directories) stream.
	DigestCompressed
)

func (m DigestMode) String() string {
	if m == DigestCompressed {
		return "compressed"
	}
	return "raw"
}

// DigestKey identifies one digest computation.
type DigestKey struct {
	Path string
	Mode DigestMode
}

func (k DigestKey) flightKey() string {
	return k.Mode.String() + ":" + k.Path
}

// Stats counts cache activity.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
	MaxSize   int
}

// DigestCache is a bounded LRU of digests. Concurrent Do calls for the
// same key share one computation. It is safe for concurrent use.
type DigestCache struct {
	mu      sync.Mutex
	lru     *lru.Cache
	flight  singleflight.Group
	maxSize int
	stats   Stats
}

// NewDigestCache creates a cache holding at most maxSize digests
// (0 = unlimited).
func NewDigestCache(maxSize int) *DigestCache {
	if maxSize < 0 {
		maxSize = 0
	}
	c := &DigestCache{lru: lru.New(maxSize), maxSize: maxSize}
	c.lru.OnEvicted = func(lru.Key, interface{}) { c.stats.Evictions++ }
	return c
}

// Get returns the cached digest for key.
func (c *DigestCache) Get(key DigestKey) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(key)
	if !ok {
		c.stats.Misses++
		return "", false
	}
	c.stats.Hits++
	return v.(string), true
}

// Put records the digest for key.
func (c *DigestCache) Put(key DigestKey, digest string) {
	c.mu.Lock()
	c.lru.Add(key, digest)
	c.mu.Unlock()
}

// Do returns the cached digest for key, calling compute on a miss. A
// failed computation is not cached.
func (c *DigestCache) Do(key DigestKey, compute func() (string, error)) (string, error) {
	if d, ok := c.Get(key); ok {
		return d, nil
	}
	v, err := c.flight.Do(key.flightKey(), func() (interface{}, error) {
		// A concurrent caller may have finished while we waited.
		c.mu.Lock()
		v, ok := c.lru.Get(key)
		c.mu.Unlock()
		if ok {
			return v, nil
		}
		d, err := compute()
		if err != nil {
			return nil, err
		}
		c.Put(key, d)
		return d, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Stats returns a snapshot of the counters.
func (c *DigestCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.lru.Len()
	s.MaxSize = c.maxSize
	return s
}
