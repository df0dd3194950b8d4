package cache

import (
	"context"
	"sync"
	"time"

	"github.com/flowmatic/conductor/common/logger"
)

// Cache is a TTL key-value store. The conductor keeps resolved workflow
// definitions and registry metadata here between submits.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// MemoryCache is an in-memory cache implementation
type MemoryCache struct {
	data map[string]*entry
	mu   sync.RWMutex
	log  *logger.Logger
	stop chan struct{}
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(log *logger.Logger) *MemoryCache {
	c := &MemoryCache{
		data: make(map[string]*entry),
		log:  log,
		stop: make(chan struct{}),
	}

	go c.evictLoop()

	return c
}

// Get retrieves a value from cache
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, exists := c.data[key]
	if !exists || time.Now().After(e.expiresAt) {
		return nil, false, nil
	}

	return e.value, true, nil
}

// Set stores a value in cache with TTL
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = &entry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}

	return nil
}

// Delete removes a value from cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
	return nil
}

// Close stops the eviction loop and drops all entries
func (c *MemoryCache) Close() error {
	close(c.stop)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = make(map[string]*entry)
	c.log.Info("memory cache closed")
	return nil
}

func (c *MemoryCache) evictLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, e := range c.data {
				if now.After(e.expiresAt) {
					delete(c.data, key)
				}
			}
			c.mu.Unlock()
		}
	}
}
