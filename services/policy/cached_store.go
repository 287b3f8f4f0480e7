// Copyright (C) 2025 Kodiak AI (oss@kodiakai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package policy

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// cachedStoreDefaultTTL bounds staleness when an invalidation is lost (e.g.
// a write racing a cache outage). Writes delete the key, so in normal
// operation entries repopulate immediately after the next read.
const cachedStoreDefaultTTL = 5 * time.Minute

// cacheKeyPrefix is prepended to the tenant ID to form the cache key.
const cacheKeyPrefix = "policy:tenant:v1:"

// ErrCacheMiss is returned by Cache implementations when a key is absent.
var ErrCacheMiss = errors.New("policy: cache miss")

// Cache is the backend interface for CachedStore. Kept minimal so tests can
// supply in-process fakes and fault injectors.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Cache interface {
	// Get returns the cached bytes for key, or ErrCacheMiss when absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Del removes key. Absent keys are not an error.
	Del(ctx context.Context, key string) error
}

// RedisCache adapts a go-redis client to the Cache interface.
//
// Thread Safety: Safe for concurrent use (redis.Client is concurrent-safe).
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a RedisCache over an existing client. The caller
// owns the client lifecycle.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get returns the cached bytes, mapping redis.Nil to ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return raw, err
}

// Set stores value with the given TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Del removes key.
func (c *RedisCache) Del(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// CachedStore fronts a backing Store with a shared cache.
//
// Description:
//
//	Read path: cache hit decodes and returns; cache miss (or any cache
//	failure) reads the backing store and populates the cache on success.
//	Not-found results are NEVER cached — a tenant created moments later
//	must become visible on the next read. Write path: the backing store is
//	written first, then the cache key is DELETED (not overwritten), forcing
//	the next read to repopulate from the backing store.
//
//	Every cache-backend failure — read, write, or delete — falls back to
//	the backing store transparently with a logged warning. A cache outage
//	never causes a request failure.
//
// Thread Safety: Safe for concurrent use.
type CachedStore struct {
	backing Store
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
}

// NewCachedStore creates a CachedStore.
//
// Inputs:
//   - backing: The authoritative store. Must not be nil.
//   - cache: The cache backend. Must not be nil.
//   - ttl: Cache entry lifetime. Pass 0 for the default (5 minutes).
//   - logger: Logger for fallback warnings. Nil uses slog.Default().
//
// Outputs:
//   - *CachedStore: Ready-to-use store.
func NewCachedStore(backing Store, cache Cache, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if backing == nil {
		panic("NewCachedStore: backing store must not be nil")
	}
	if cache == nil {
		panic("NewCachedStore: cache must not be nil")
	}
	if ttl <= 0 {
		ttl = cachedStoreDefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedStore{
		backing: backing,
		cache:   cache,
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "policy_cache")),
	}
}

// GetPolicy reads through the cache with transparent fallback.
func (s *CachedStore) GetPolicy(ctx context.Context, tenantID string) (*TenantLlmPolicy, error) {
	key := cacheKeyPrefix + tenantID

	raw, err := s.cache.Get(ctx, key)
	switch {
	case err == nil:
		var pol TenantLlmPolicy
		if decodeErr := json.Unmarshal(raw, &pol); decodeErr == nil {
			return &pol, nil
		}
		// Corrupt entry: drop it and fall through to the backing store.
		s.logger.Warn("corrupt policy cache entry, invalidating",
			slog.String("tenant_id", tenantID))
		_ = s.cache.Del(ctx, key)
	case errors.Is(err, ErrCacheMiss):
		// Normal miss.
	default:
		s.logger.Warn("policy cache read failed, falling back to backing store",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()))
	}

	pol, err := s.backing.GetPolicy(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if pol == nil {
		// Never cache a negative result.
		return nil, nil
	}

	if raw, encodeErr := json.Marshal(pol); encodeErr == nil {
		if setErr := s.cache.Set(ctx, key, raw, s.ttl); setErr != nil {
			s.logger.Warn("policy cache populate failed",
				slog.String("tenant_id", tenantID),
				slog.String("error", setErr.Error()))
		}
	}
	return pol, nil
}

// SetPolicy writes the backing store, then invalidates the cache key.
func (s *CachedStore) SetPolicy(ctx context.Context, pol *TenantLlmPolicy) error {
	if err := s.backing.SetPolicy(ctx, pol); err != nil {
		return err
	}

	if err := s.cache.Del(ctx, cacheKeyPrefix+pol.TenantID); err != nil {
		// The 5-minute TTL bounds staleness until the next successful read.
		s.logger.Warn("policy cache invalidation failed",
			slog.String("tenant_id", pol.TenantID),
			slog.String("error", err.Error()))
	}
	return nil
}
