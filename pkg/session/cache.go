package session

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// DefaultCacheTTL is how long a verified authorization is considered fresh
	DefaultCacheTTL = 5 * time.Minute

	// DefaultCacheRetention bounds how long stale entries are kept for degraded fallback
	DefaultCacheRetention = 24 * time.Hour

	// DefaultCacheSize is the maximum number of principals held by a MemoryCache
	DefaultCacheSize = 10000
)

// CacheEntry is a previously verified authorization decision
type CacheEntry struct {
	Facts      AuthorizationFacts `json:"facts"`
	VerifiedAt time.Time          `json:"verified_at"`
	TTL        time.Duration      `json:"ttl"`
}

// Fresh reports whether the entry may be used instead of a live upstream check
func (e CacheEntry) Fresh(now time.Time) bool {
	return now.Sub(e.VerifiedAt) < e.TTL
}

// AuthorizationCache stores authorization decisions keyed by provider and principal.
// Implementations must be safe for concurrent use.
type AuthorizationCache interface {
	// Get returns the entry for the principal, stale or not
	Get(ctx context.Context, provider Provider, principalID string) (CacheEntry, bool, error)

	// Put records a verified decision
	Put(ctx context.Context, provider Provider, principalID string, facts AuthorizationFacts, verifiedAt time.Time, ttl time.Duration) error

	// Delete forgets the principal after a live check refused access
	Delete(ctx context.Context, provider Provider, principalID string) error
}

func cacheKey(provider Provider, principalID string) string {
	return string(provider) + ":" + principalID
}

// CacheStats holds lookup counters for a cache
type CacheStats struct {
	Hits   int64
	Misses int64
}

// MemoryCache is a size-bounded in-process AuthorizationCache
type MemoryCache struct {
	entries *lru.LRU[string, CacheEntry]

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemoryCache creates a cache holding at most size principals. Entries are evicted
// once they have been held for the retention window, fresh or not.
func NewMemoryCache(size int, retention time.Duration) *MemoryCache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if retention <= 0 {
		retention = DefaultCacheRetention
	}

	return &MemoryCache{
		entries: lru.NewLRU[string, CacheEntry](size, nil, retention),
	}
}

// Get implements AuthorizationCache
func (c *MemoryCache) Get(ctx context.Context, provider Provider, principalID string) (CacheEntry, bool, error) {
	entry, ok := c.entries.Get(cacheKey(provider, principalID))
	if !ok {
		c.misses.Add(1)
		return CacheEntry{}, false, nil
	}

	c.hits.Add(1)
	return entry, true, nil
}

// Put implements AuthorizationCache
func (c *MemoryCache) Put(ctx context.Context, provider Provider, principalID string, facts AuthorizationFacts, verifiedAt time.Time, ttl time.Duration) error {
	c.entries.Add(cacheKey(provider, principalID), CacheEntry{
		Facts:      facts,
		VerifiedAt: verifiedAt,
		TTL:        ttl,
	})
	return nil
}

// Delete implements AuthorizationCache
func (c *MemoryCache) Delete(ctx context.Context, provider Provider, principalID string) error {
	c.entries.Remove(cacheKey(provider, principalID))
	return nil
}

// Len returns the number of entries currently held
func (c *MemoryCache) Len() int {
	return c.entries.Len()
}

// Stats returns lookup counters
func (c *MemoryCache) Stats() CacheStats {
	return CacheStats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
	}
}
