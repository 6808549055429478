package cache

import (
	"context"
	"sync"
	"time"

	"github.com/shuleapp/shule/core"
)

type inMemEntry struct {
	value     string
	counter   int64
	expiresAt time.Time
}

// inMemCache is a map-backed core.Cache for tests and local development
// without a redis server.
type inMemCache struct {
	mu sync.Mutex
	m  map[string]*inMemEntry
}

var _ core.Cache = (*inMemCache)(nil)

func NewInMem() *inMemCache {
	return &inMemCache{m: make(map[string]*inMemEntry)}
}

func (c *inMemCache) get(key string) *inMemEntry {
	e, ok := c.m[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(c.m, key)
		return nil
	}
	return e
}

func (c *inMemCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := &inMemEntry{value: value}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
	}
	c.m[key] = e
	return nil
}

func (c *inMemCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e := c.get(key); e != nil {
		return e.value, nil
	}
	return "", core.ErrCacheMiss
}

func (c *inMemCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.m, key)
	}
	return nil
}

func (c *inMemCache) Incr(_ context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.get(key)
	if e == nil {
		e = &inMemEntry{}
		if window > 0 {
			e.expiresAt = time.Now().Add(window)
		}
		c.m[key] = e
	}
	e.counter++
	return e.counter, nil
}
