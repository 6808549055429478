package core

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Cache.Get when a key does not exist.
var ErrCacheMiss = errors.New("cache: key not found")

// Cache is any service that can store ephemeral data: one-time codes,
// rate-limit counters, lookup caches.
type Cache interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, keys ...string) error
	// Incr increments the counter at key and returns the new value.
	// The window TTL is applied when the counter is first created.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}
