// Package cache provides an in-memory read cache for reassembled file
// contents, keyed by logical path. It sits in front of the remote store so
// repeated reads of the same file skip the download and decrypt work.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Entry is one cached file.
type Entry struct {
	Data      []byte
	ExpiresAt time.Time
}

// IsExpired reports whether the entry's TTL has elapsed.
func (e *Entry) IsExpired() bool {
	return time.Now().After(e.ExpiresAt)
}

// Cache caches file contents by logical path.
type Cache interface {
	Get(ctx context.Context, path string) ([]byte, bool)
	Set(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	Clear(ctx context.Context) error
	Stats() Stats
}

// Stats holds cache counters.
type Stats struct {
	Size      int64
	Items     int
	Hits      int64
	Misses    int64
	Evictions int64
}

type memoryCache struct {
	mu       sync.Mutex
	entries  map[string]*Entry
	maxSize  int64
	maxItems int
	ttl      time.Duration
	stats    Stats
}

// NewMemoryCache creates an in-memory cache bounded by total bytes and item
// count, with a fixed TTL per entry.
func NewMemoryCache(maxSize int64, maxItems int, ttl time.Duration) Cache {
	return &memoryCache{
		entries:  make(map[string]*Entry),
		maxSize:  maxSize,
		maxItems: maxItems,
		ttl:      ttl,
	}
}

func (c *memoryCache) Get(ctx context.Context, path string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[path]
	if !ok || entry.IsExpired() {
		c.stats.Misses++
		return nil, false
	}

	c.stats.Hits++
	return entry.Data, true
}

func (c *memoryCache) Set(ctx context.Context, path string, data []byte) error {
	// Never cache anything bigger than the whole budget.
	if int64(len(data)) > c.maxSize {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpiredLocked()

	if c.sizeLocked()+int64(len(data)) > c.maxSize || len(c.entries) >= c.maxItems {
		if !c.evictForSpaceLocked(int64(len(data))) {
			return fmt.Errorf("cache full and unable to evict")
		}
	}

	c.entries[path] = &Entry{
		Data:      data,
		ExpiresAt: time.Now().Add(c.ttl),
	}
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, path)
	return nil
}

func (c *memoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry)
	c.stats = Stats{}
	return nil
}

func (c *memoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Size = c.sizeLocked()
	stats.Items = len(c.entries)
	return stats
}

func (c *memoryCache) sizeLocked() int64 {
	var size int64
	for _, entry := range c.entries {
		if !entry.IsExpired() {
			size += int64(len(entry.Data))
		}
	}
	return size
}

func (c *memoryCache) evictExpiredLocked() {
	for path, entry := range c.entries {
		if entry.IsExpired() {
			delete(c.entries, path)
			c.stats.Evictions++
		}
	}
}

// evictForSpaceLocked drops entries until the new payload fits. Eviction
// order is map order; entries are short-lived enough that strict LRU is not
// worth the bookkeeping.
func (c *memoryCache) evictForSpaceLocked(needed int64) bool {
	current := c.sizeLocked()
	for path, entry := range c.entries {
		if current+needed <= c.maxSize && len(c.entries) < c.maxItems {
			break
		}
		delete(c.entries, path)
		c.stats.Evictions++
		current -= int64(len(entry.Data))
	}
	return current+needed <= c.maxSize
}
