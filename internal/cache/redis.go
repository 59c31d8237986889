package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/phonginreallife/enablement/db"
)

const redisKeyPrefix = "enablement:features:"

// DefaultRedisTTL bounds entries when no positive ttl is configured.
// Invalidations are not seen across replicas, so every entry must expire.
const DefaultRedisTTL = 5 * time.Minute

// RedisCache shares resolved features across API replicas
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a RedisCache; a ttl <= 0 falls back to DefaultRedisTTL
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultRedisTTL
	}
	return &RedisCache{client: client, ttl: ttl}
}

func redisKey(orgID string) string {
	return redisKeyPrefix + orgID
}

func (c *RedisCache) Get(ctx context.Context, orgID string) ([]db.EffectiveFeature, error) {
	raw, err := c.client.Get(ctx, redisKey(orgID)).Bytes()
	if err == redis.Nil {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read feature cache: %w", err)
	}

	var features []db.EffectiveFeature
	if err := json.Unmarshal(raw, &features); err != nil {
		return nil, fmt.Errorf("failed to decode feature cache: %w", err)
	}
	return features, nil
}

func (c *RedisCache) Set(ctx context.Context, orgID string, features []db.EffectiveFeature) error {
	b, err := json.Marshal(features)
	if err != nil {
		return fmt.Errorf("failed to encode feature cache: %w", err)
	}
	if err := c.client.Set(ctx, redisKey(orgID), b, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write feature cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, orgIDs ...string) error {
	if len(orgIDs) == 0 {
		return nil
	}
	keys := make([]string, len(orgIDs))
	for i, id := range orgIDs {
		keys[i] = redisKey(id)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate feature cache: %w", err)
	}
	return nil
}

func (c *RedisCache) Backend() string { return "redis" }
