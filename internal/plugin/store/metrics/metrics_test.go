package metrics

import (
	"context"
	"testing"

	"github.com/chirino/messaging-service/internal/model"
	"github.com/chirino/messaging-service/internal/registry/store"
	"github.com/chirino/messaging-service/internal/security"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	store.MessagingStore
	user *model.User
}

func (s *stubStore) GetUser(_ context.Context, _ uuid.UUID) (*model.User, error) {
	return s.user, nil
}

func TestWrapRecordsLatency(t *testing.T) {
	security.InitMetrics(nil)
	user := &model.User{ID: uuid.New()}
	wrapped := Wrap(&stubStore{user: user})

	got, err := wrapped.GetUser(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Same(t, user, got)
	assert.Equal(t, 1, testutil.CollectAndCount(security.StoreLatency, "messaging_service_store_latency_seconds"))
}
