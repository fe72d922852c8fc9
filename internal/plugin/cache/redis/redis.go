package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chirino/messaging-service/internal/config"
	registrycache "github.com/chirino/messaging-service/internal/registry/cache"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const defaultTTL = 5 * time.Minute

func init() {
	registrycache.Register(registrycache.Plugin{
		Name:   "redis",
		Loader: load,
	})
}

func load(ctx context.Context) (registrycache.UnreadCountCache, error) {
	cfg := config.FromContext(ctx)
	if cfg == nil || cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis cache: MESSAGING_SERVICE_REDIS_URL is required")
	}
	return LoadFromURLWithTTL(ctx, cfg.RedisURL, cfg.UnreadCountTTL)
}

// LoadFromURLWithTTL creates an UnreadCountCache from a Redis-compatible URL.
// ttl applies when Set is called without one.
func LoadFromURLWithTTL(ctx context.Context, redisURL string, ttl time.Duration) (registrycache.UnreadCountCache, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis cache: invalid URL: %w", err)
	}
	return LoadFromOptionsWithTTL(ctx, opts, ttl)
}

// LoadFromOptionsWithTTL creates an UnreadCountCache from go-redis Options.
// This is exported so other plugins (e.g. Infinispan RESP) can reuse the
// implementation with customized options.
func LoadFromOptionsWithTTL(ctx context.Context, opts *goredis.Options, ttl time.Duration) (registrycache.UnreadCountCache, error) {
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis cache: ping failed: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &redisUnreadCache{client: client, ttl: ttl}, nil
}

type redisUnreadCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func unreadKey(userID uuid.UUID) string {
	return "unread-count:" + userID.String()
}

func (c *redisUnreadCache) Available() bool {
	return true
}

func (c *redisUnreadCache) Get(ctx context.Context, userID uuid.UUID) (int64, bool, error) {
	count, err := c.client.Get(ctx, unreadKey(userID)).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return count, true, nil
}

func (c *redisUnreadCache) Set(ctx context.Context, userID uuid.UUID, count int64, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	return c.client.Set(ctx, unreadKey(userID), count, ttl).Err()
}

func (c *redisUnreadCache) Remove(ctx context.Context, userIDs ...uuid.UUID) error {
	if len(userIDs) == 0 {
		return nil
	}
	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = unreadKey(id)
	}
	return c.client.Del(ctx, keys...).Err()
}

var _ registrycache.UnreadCountCache = (*redisUnreadCache)(nil)
