package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type unreadCacheKey struct{}

// WithUnreadCacheContext returns a new context carrying the given UnreadCountCache.
func WithUnreadCacheContext(ctx context.Context, c UnreadCountCache) context.Context {
	return context.WithValue(ctx, unreadCacheKey{}, c)
}

// UnreadCacheFromContext retrieves the UnreadCountCache from the context.
// Returns nil if none was set.
func UnreadCacheFromContext(ctx context.Context) UnreadCountCache {
	c, _ := ctx.Value(unreadCacheKey{}).(UnreadCountCache)
	return c
}

// UnreadCountCache caches the number of unread messages addressed to a user.
// Entries are dropped whenever a committed write can change the count.
type UnreadCountCache interface {
	Available() bool
	// Get returns the cached count and whether it was present.
	Get(ctx context.Context, userID uuid.UUID) (int64, bool, error)
	Set(ctx context.Context, userID uuid.UUID, count int64, ttl time.Duration) error
	Remove(ctx context.Context, userIDs ...uuid.UUID) error
}

// Loader creates a cache from config.
type Loader func(ctx context.Context) (UnreadCountCache, error)

// Plugin represents a cache plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds a cache plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered cache plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named cache plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown cache %q; valid: %v", name, Names())
}
