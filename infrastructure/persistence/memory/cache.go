package memory

import (
	"context"
	"sync"
	"time"

	"canvasd/application/ports"
)

// cacheItem holds a cached value with its expiration time
type cacheItem struct {
	value     interface{}
	expiresAt time.Time
}

// Cache is a TTL cache backed by a plain map. Expired entries are dropped
// lazily on read.
type Cache struct {
	mu    sync.RWMutex
	items map[string]cacheItem
}

// NewCache creates an empty in-memory cache
func NewCache() *Cache {
	return &Cache{items: make(map[string]cacheItem)}
}

// Get retrieves a value, reporting whether a live entry was found
func (c *Cache) Get(ctx context.Context, key string) (interface{}, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(item.expiresAt) {
		c.mu.Lock()
		delete(c.items, key)
		c.mu.Unlock()
		return nil, false
	}
	return item.value, true
}

// Set stores a value with a TTL in seconds
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cacheItem{
		value:     value,
		expiresAt: time.Now().Add(time.Duration(ttlSeconds) * time.Second),
	}
	return nil
}

// Delete removes an entry
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

var _ ports.Cache = (*Cache)(nil)
