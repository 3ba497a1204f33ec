package catalog

import (
	"context"
	"sync"
	"time"

	"nexus-catalog/internal/discovery"
)

const (
	defaultCacheTTL     = 5 * time.Minute
	defaultCacheCleanup = 10 * time.Minute
)

// ResultCache keeps discovery results for a limited time so repeated reads
// of a source do not rediscover it.
type ResultCache struct {
	mu         sync.RWMutex
	entries    map[string]*cachedResult
	ttl        time.Duration
	cleanupInt time.Duration
	stopOnce   sync.Once
	stopChan   chan struct{}
	now        func() time.Time
}

type cachedResult struct {
	result    *discovery.Result
	cachedAt  time.Time
	expiresAt time.Time
}

// CacheStats describes the cache contents.
type CacheStats struct {
	TotalEntries   int           `json:"totalEntries"`
	ActiveEntries  int           `json:"activeEntries"`
	ExpiredEntries int           `json:"expiredEntries"`
	TTL            time.Duration `json:"ttl"`
}

func NewResultCache(ttl time.Duration) *ResultCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &ResultCache{
		entries:    make(map[string]*cachedResult),
		ttl:        ttl,
		cleanupInt: defaultCacheCleanup,
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}
}

// Start evicts expired entries periodically until ctx is done or Stop is
// called.
func (c *ResultCache) Start(ctx context.Context) {
	ticker := time.NewTicker(c.cleanupInt)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopChan:
			return
		case <-ticker.C:
			c.cleanupExpired()
		}
	}
}

func (c *ResultCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

// Get returns the cached result for a source if it has not expired.
func (c *ResultCache) Get(source string) (*discovery.Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[source]
	if !ok || c.now().After(e.expiresAt) {
		return nil, false
	}
	return e.result, true
}

func (c *ResultCache) Set(source string, r *discovery.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.entries[source] = &cachedResult{result: r, cachedAt: now, expiresAt: now.Add(c.ttl)}
}

func (c *ResultCache) Invalidate(source string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, source)
}

func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cachedResult)
}

func (c *ResultCache) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

func (c *ResultCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	expired := 0
	now := c.now()
	for _, e := range c.entries {
		if now.After(e.expiresAt) {
			expired++
		}
	}
	return CacheStats{
		TotalEntries:   len(c.entries),
		ActiveEntries:  len(c.entries) - expired,
		ExpiredEntries: expired,
		TTL:            c.ttl,
	}
}
