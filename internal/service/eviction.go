package service

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"github.com/chirino/messaging-service/internal/security"
)

// Evictor is the subset of the store the eviction loop needs.
type Evictor interface {
	PurgeReadNotifications(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteEmptyConversations(ctx context.Context) (int64, error)
}

var _ Evictor = (registrystore.MessagingStore)(nil)

// EvictionService periodically purges read notifications past retention and
// conversations left without participants.
type EvictionService struct {
	store       Evictor
	interval    time.Duration
	retention   time.Duration
	deleteEmpty bool
	now         func() time.Time
}

// NewEvictionService creates a new eviction service.
func NewEvictionService(store Evictor, interval, retention time.Duration, deleteEmpty bool) *EvictionService {
	return &EvictionService{
		store:       store,
		interval:    interval,
		retention:   retention,
		deleteEmpty: deleteEmpty,
		now:         time.Now,
	}
}

// Start begins the periodic eviction loop. Returns when ctx is cancelled.
func (e *EvictionService) Start(ctx context.Context) {
	if e == nil || e.store == nil || e.interval <= 0 {
		return
	}
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single eviction pass.
func (e *EvictionService) RunOnce(ctx context.Context) {
	if e.retention > 0 {
		cutoff := e.now().Add(-e.retention)
		n, err := e.store.PurgeReadNotifications(ctx, cutoff)
		if err != nil {
			log.Error("Eviction: notification purge failed", "err", err)
		} else if n > 0 {
			security.RecordEvicted("notifications", n)
			log.Info("Eviction: purged read notifications", "count", n, "cutoff", cutoff)
		}
	}

	if e.deleteEmpty {
		n, err := e.store.DeleteEmptyConversations(ctx)
		if err != nil {
			log.Error("Eviction: empty conversation delete failed", "err", err)
		} else if n > 0 {
			security.RecordEvicted("conversations", n)
			log.Info("Eviction: deleted empty conversations", "count", n)
		}
	}
}
