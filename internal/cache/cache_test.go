package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phonginreallife/enablement/db"
)

func sampleFeatures() []db.EffectiveFeature {
	parent := "parent"
	return []db.EffectiveFeature{
		{RAGFeature: "kb", Enabled: true, IsInherited: true, InheritedFrom: &parent, InheritanceSource: db.SourceInherited, CanOverride: true},
		{RAGFeature: "coach", Enabled: false, InheritanceSource: db.SourceExplicit, CanOverride: true},
	}
}

func newRedisCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisCache(client, ttl), mr
}

func TestCaches_RoundTripAndInvalidate(t *testing.T) {
	redisCache, _ := newRedisCache(t, time.Minute)
	caches := []FeatureCache{
		NewMemoryCache(16, time.Minute),
		redisCache,
	}

	for _, c := range caches {
		t.Run(c.Backend(), func(t *testing.T) {
			ctx := context.Background()

			_, err := c.Get(ctx, "org-1")
			assert.ErrorIs(t, err, ErrCacheMiss)

			require.NoError(t, c.Set(ctx, "org-1", sampleFeatures()))
			require.NoError(t, c.Set(ctx, "org-2", sampleFeatures()))

			got, err := c.Get(ctx, "org-1")
			require.NoError(t, err)
			assert.Equal(t, sampleFeatures(), got)

			require.NoError(t, c.Invalidate(ctx, "org-1"))
			_, err = c.Get(ctx, "org-1")
			assert.ErrorIs(t, err, ErrCacheMiss)

			_, err = c.Get(ctx, "org-2")
			assert.NoError(t, err)
		})
	}
}

func TestMemoryCache_CopiesEntries(t *testing.T) {
	c := NewMemoryCache(16, time.Minute)
	ctx := context.Background()
	features := sampleFeatures()
	require.NoError(t, c.Set(ctx, "org-1", features))

	features[0].Enabled = false

	got, err := c.Get(ctx, "org-1")
	require.NoError(t, err)
	assert.True(t, got[0].Enabled)
}

func TestRedisCache_Expires(t *testing.T) {
	c, mr := newRedisCache(t, time.Minute)
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "org-1", sampleFeatures()))

	mr.FastForward(2 * time.Minute)

	_, err := c.Get(ctx, "org-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}

func TestRedisCache_ZeroTTLStillExpires(t *testing.T) {
	for _, ttl := range []time.Duration{0, -time.Second} {
		c, mr := newRedisCache(t, ttl)
		require.NoError(t, c.Set(context.Background(), "org-1", sampleFeatures()))

		assert.Equal(t, DefaultRedisTTL, mr.TTL(redisKey("org-1")), "ttl=%s", ttl)

		mr.FastForward(DefaultRedisTTL + time.Second)
		_, err := c.Get(context.Background(), "org-1")
		assert.ErrorIs(t, err, ErrCacheMiss)
	}
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	c, mr := newRedisCache(t, time.Minute)
	require.NoError(t, mr.Set(redisKey("org-1"), "not-json"))

	_, err := c.Get(context.Background(), "org-1")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrCacheMiss)
}

func TestNop(t *testing.T) {
	var c FeatureCache = Nop{}
	require.NoError(t, c.Set(context.Background(), "org-1", sampleFeatures()))
	_, err := c.Get(context.Background(), "org-1")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
