// Package local registers an in-process unread count cache for single-node
// deployments.
package local

import (
	"context"
	"fmt"
	"time"

	"github.com/chirino/messaging-service/internal/config"
	registrycache "github.com/chirino/messaging-service/internal/registry/cache"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
)

const (
	defaultTTL = 5 * time.Minute
	maxEntries = 100_000
)

func init() {
	registrycache.Register(registrycache.Plugin{
		Name: "local",
		Loader: func(ctx context.Context) (registrycache.UnreadCountCache, error) {
			ttl := defaultTTL
			if cfg := config.FromContext(ctx); cfg != nil && cfg.UnreadCountTTL > 0 {
				ttl = cfg.UnreadCountTTL
			}
			return New(ttl)
		},
	})
}

// New creates a ristretto-backed UnreadCountCache. Every entry costs 1, so
// the cache holds at most maxEntries users.
func New(ttl time.Duration) (registrycache.UnreadCountCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config[string, int64]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("local cache: %w", err)
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &localUnreadCache{cache: c, ttl: ttl}, nil
}

type localUnreadCache struct {
	cache *ristretto.Cache[string, int64]
	ttl   time.Duration
}

func (c *localUnreadCache) Available() bool { return true }

func (c *localUnreadCache) Get(_ context.Context, userID uuid.UUID) (int64, bool, error) {
	v, ok := c.cache.Get(userID.String())
	return v, ok, nil
}

func (c *localUnreadCache) Set(_ context.Context, userID uuid.UUID, count int64, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	c.cache.SetWithTTL(userID.String(), count, 1, ttl)
	// Sets are buffered; flush so a following Get or Remove sees this one.
	c.cache.Wait()
	return nil
}

func (c *localUnreadCache) Remove(_ context.Context, userIDs ...uuid.UUID) error {
	for _, id := range userIDs {
		c.cache.Del(id.String())
	}
	return nil
}

var _ registrycache.UnreadCountCache = (*localUnreadCache)(nil)
