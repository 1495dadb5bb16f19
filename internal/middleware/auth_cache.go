package middleware

import (
	"context"
	"errors"
	"sync"
	"time"
)

const (
	orgCacheTTL        = 5 * time.Minute
	negativeCacheTTL   = 30 * time.Second
	maxCacheEntries    = 10000
	cacheCleanupPeriod = 60 * time.Second
)

var errCachedNotFound = errors.New("organization not found (cached)")

// cachedOrg is one cache entry. An empty orgID marks a failed lookup.
type cachedOrg struct {
	orgID     string
	fetchedAt time.Time
}

func (e cachedOrg) negative() bool { return e.orgID == "" }

func (e cachedOrg) expired(now time.Time) bool {
	ttl := orgCacheTTL
	if e.negative() {
		ttl = negativeCacheTTL
	}
	return now.Sub(e.fetchedAt) >= ttl
}

// CachedOrgLookup wraps an OrgLookup with a bounded in-memory cache keyed by
// the SHA-256 of the API key, so raw keys are never held in memory.
type CachedOrgLookup struct {
	inner OrgLookup
	mu    sync.RWMutex
	cache map[string]cachedOrg
	now   func() time.Time
}

// NewCachedOrgLookup creates the cache. ctx bounds the eviction goroutine.
func NewCachedOrgLookup(ctx context.Context, inner OrgLookup) *CachedOrgLookup {
	c := &CachedOrgLookup{
		inner: inner,
		cache: make(map[string]cachedOrg),
		now:   time.Now,
	}
	go c.evictLoop(ctx)
	return c
}

func (c *CachedOrgLookup) evictLoop(ctx context.Context) {
	ticker := time.NewTicker(cacheCleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			c.evictExpiredLocked()
			c.mu.Unlock()
		}
	}
}

func (c *CachedOrgLookup) evictExpiredLocked() {
	now := c.now()
	for k, v := range c.cache {
		if v.expired(now) {
			delete(c.cache, k)
		}
	}
}

// GetOrgByAPIKey returns the cached org id or asks the inner lookup. Failed
// lookups are cached briefly so a bad key cannot hammer the database.
func (c *CachedOrgLookup) GetOrgByAPIKey(ctx context.Context, apiKey string) (string, error) {
	hk := keyHash(apiKey)

	c.mu.RLock()
	entry, ok := c.cache[hk]
	c.mu.RUnlock()

	if ok && !entry.expired(c.now()) {
		if entry.negative() {
			return "", errCachedNotFound
		}
		return entry.orgID, nil
	}

	orgID, err := c.inner.GetOrgByAPIKey(ctx, apiKey)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.cache) >= maxCacheEntries {
		c.evictExpiredLocked()
		for k := range c.cache {
			if len(c.cache) < maxCacheEntries {
				break
			}
			delete(c.cache, k)
		}
	}

	if err != nil {
		c.cache[hk] = cachedOrg{fetchedAt: c.now()}
		return "", err
	}

	c.cache[hk] = cachedOrg{orgID: orgID, fetchedAt: c.now()}
	return orgID, nil
}
