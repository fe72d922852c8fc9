package noop

import (
	"context"
	"time"

	"github.com/chirino/messaging-service/internal/registry/cache"
	"github.com/google/uuid"
)

func init() {
	cache.Register(cache.Plugin{
		Name: "none",
		Loader: func(ctx context.Context) (cache.UnreadCountCache, error) {
			return &noopUnreadCache{}, nil
		},
	})
}

type noopUnreadCache struct{}

func (n *noopUnreadCache) Available() bool { return false }
func (n *noopUnreadCache) Get(_ context.Context, _ uuid.UUID) (int64, bool, error) {
	return 0, false, nil
}
func (n *noopUnreadCache) Set(_ context.Context, _ uuid.UUID, _ int64, _ time.Duration) error {
	return nil
}
func (n *noopUnreadCache) Remove(_ context.Context, _ ...uuid.UUID) error { return nil }

var _ cache.UnreadCountCache = (*noopUnreadCache)(nil)
