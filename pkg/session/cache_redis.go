package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache is an AuthorizationCache shared between instances through Redis.
// Keys are stored as authz:<provider>:<principal> and expire after the retention window.
type RedisCache struct {
	client    redis.UniversalClient
	retention time.Duration
}

// NewRedisCache creates a cache over an existing client
func NewRedisCache(client redis.UniversalClient, retention time.Duration) *RedisCache {
	if retention <= 0 {
		retention = DefaultCacheRetention
	}
	return &RedisCache{client: client, retention: retention}
}

func (c *RedisCache) key(provider Provider, principalID string) string {
	return fmt.Sprintf("authz:%s:%s", provider, principalID)
}

// Get implements AuthorizationCache
func (c *RedisCache) Get(ctx context.Context, provider Provider, principalID string) (CacheEntry, bool, error) {
	key := c.key(provider, principalID)

	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return CacheEntry{}, false, nil
	} else if err != nil {
		return CacheEntry{}, false, fmt.Errorf("redis get failed: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt entries are dropped so the next grant can rewrite them
		c.client.Del(ctx, key)
		return CacheEntry{}, false, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}

	return entry, true, nil
}

// Put implements AuthorizationCache
func (c *RedisCache) Put(ctx context.Context, provider Provider, principalID string, facts AuthorizationFacts, verifiedAt time.Time, ttl time.Duration) error {
	data, err := json.Marshal(CacheEntry{
		Facts:      facts,
		VerifiedAt: verifiedAt,
		TTL:        ttl,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	if err := c.client.Set(ctx, c.key(provider, principalID), data, c.retention).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Delete implements AuthorizationCache
func (c *RedisCache) Delete(ctx context.Context, provider Provider, principalID string) error {
	if err := c.client.Del(ctx, c.key(provider, principalID)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
