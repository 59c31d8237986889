package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/phonginreallife/enablement/db"
)

// MemoryCache is an in-process LRU with per-entry TTL
type MemoryCache struct {
	cache *lru.LRU[string, []db.EffectiveFeature]
}

// NewMemoryCache creates a MemoryCache holding at most size organizations
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size < 10 {
		size = 10 // Minimum 10 entries
	}
	return &MemoryCache{
		cache: lru.NewLRU[string, []db.EffectiveFeature](size, nil, ttl),
	}
}

// Get returns a copy of the cached features
func (c *MemoryCache) Get(_ context.Context, orgID string) ([]db.EffectiveFeature, error) {
	features, ok := c.cache.Get(orgID)
	if !ok {
		return nil, ErrCacheMiss
	}
	out := make([]db.EffectiveFeature, len(features))
	copy(out, features)
	return out, nil
}

// Set stores a copy so later caller mutations cannot leak into the cache
func (c *MemoryCache) Set(_ context.Context, orgID string, features []db.EffectiveFeature) error {
	stored := make([]db.EffectiveFeature, len(features))
	copy(stored, features)
	c.cache.Add(orgID, stored)
	return nil
}

// Invalidate drops the given organizations
func (c *MemoryCache) Invalidate(_ context.Context, orgIDs ...string) error {
	for _, id := range orgIDs {
		c.cache.Remove(id)
	}
	return nil
}

func (c *MemoryCache) Backend() string { return "memory" }
