package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/chirino/messaging-service/internal/config"
	_ "github.com/chirino/messaging-service/internal/plugin/cache/redis"
	registrycache "github.com/chirino/messaging-service/internal/registry/cache"
	"github.com/chirino/messaging-service/internal/testutil/testredis"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisUnreadCache(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RedisURL = testredis.StartRedis(t)
	ctx := config.WithContext(context.Background(), &cfg)

	loader, err := registrycache.Select("redis")
	require.NoError(t, err)
	cache, err := loader(ctx)
	require.NoError(t, err)
	require.True(t, cache.Available())

	alice, bob := uuid.New(), uuid.New()
	_, ok, err := cache.Get(ctx, alice)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, alice, 3, time.Minute))
	require.NoError(t, cache.Set(ctx, bob, 0, 0))

	count, ok, err := cache.Get(ctx, alice)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.EqualValues(t, 3, count)

	count, ok, err = cache.Get(ctx, bob)
	require.NoError(t, err)
	assert.True(t, ok, "a zero count is still a cached value")
	assert.Zero(t, count)

	require.NoError(t, cache.Remove(ctx, alice, bob))
	_, ok, err = cache.Get(ctx, alice)
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, cache.Remove(ctx))
}

func TestRedisLoaderRequiresURL(t *testing.T) {
	cfg := config.DefaultConfig()
	loader, err := registrycache.Select("redis")
	require.NoError(t, err)
	_, err = loader(config.WithContext(context.Background(), &cfg))
	require.Error(t, err)
}
