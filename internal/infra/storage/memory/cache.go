package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/cogcall/internal/core/domain"
)

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is an in-process response cache with per-entry expiry.
// When full, expired entries are evicted first, then the oldest.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	order      []string
	maxEntries int
	now        func() time.Time
}

// NewCache creates a cache holding at most maxEntries values (default 1000).
func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &Cache{
		entries:    make(map[string]cacheEntry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, domain.ErrCacheMiss
	}
	if !e.expiresAt.IsZero() && !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, domain.ErrCacheMiss
	}
	return append([]byte(nil), e.value...), nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}
	if _, exists := c.entries[key]; !exists {
		c.order = append(c.order, key)
	}
	c.entries[key] = cacheEntry{value: append([]byte(nil), value...), expiresAt: expiresAt}
	c.evictLocked()
	return nil
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictLocked() {
	if len(c.entries) > c.maxEntries {
		now := c.now()
		for k, e := range c.entries {
			if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
				delete(c.entries, k)
			}
		}
	}

	// Drop order slots whose entries are gone, then the oldest live keys.
	kept := c.order[:0]
	for _, k := range c.order {
		if _, ok := c.entries[k]; ok {
			kept = append(kept, k)
		}
	}
	c.order = kept

	for len(c.entries) > c.maxEntries && len(c.order) > 0 {
		delete(c.entries, c.order[0])
		c.order = c.order[1:]
	}
}
