package chart

import (
	"sync"
	"time"
)

// Cache holds rendered charts keyed by run and chamber for a short period.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

func cacheKey(runID, chamberID string) string {
	return runID + "/" + chamberID
}

// Get returns the cached chart if still valid.
func (c *Cache) Get(runID, chamberID string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[cacheKey(runID, chamberID)]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.data, true
}

func (c *Cache) Set(runID, chamberID string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.entries[cacheKey(runID, chamberID)] = cacheEntry{data: data, expiresAt: now.Add(c.ttl)}
}
