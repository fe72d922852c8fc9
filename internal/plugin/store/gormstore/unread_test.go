package gormstore

import (
	"context"
	"testing"

	"github.com/chirino/messaging-service/internal/config"
	"github.com/chirino/messaging-service/internal/model"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnreadTracking(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	alice := createUser(t, s, "alice", "Anders", model.RoleGuest)
	bob := createUser(t, s, "bob", "Brown", model.RoleGuest)
	conv := createConversation(t, s, alice, bob)
	other := createConversation(t, s, alice, bob)

	m1 := post(t, s, conv, alice, "one", to(bob))
	m2 := post(t, s, conv, alice, "two", to(bob))
	post(t, s, other, alice, "three", to(bob))
	post(t, s, conv, alice, "for everyone")

	unread, err := s.UnreadForUser(ctx, bob.ID, nil)
	require.NoError(t, err)
	require.Len(t, unread, 3)
	assert.Equal(t, m1.ID, unread[0].ID)
	assert.Equal(t, "alice@example.com", unread[0].SenderEmail)
	assert.Equal(t, "alice", unread[0].SenderFirstName)
	assert.Equal(t, "Anders", unread[0].SenderLastName)

	inConv, err := s.UnreadCountForUser(ctx, bob.ID, &conv.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, inConv)

	count, err := s.UnreadCountForUser(ctx, alice.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, count)

	n, err := s.MarkAsRead(ctx, bob.ID, []uuid.UUID{m1.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.MarkAsRead(ctx, bob.ID, []uuid.UUID{m1.ID})
	require.NoError(t, err)
	assert.Zero(t, n, "marking twice changes nothing")

	n, err = s.MarkAsRead(ctx, alice.ID, []uuid.UUID{m2.ID})
	require.NoError(t, err)
	assert.Zero(t, n, "only the receiver can mark a message read")

	n, err = s.MarkAsRead(ctx, bob.ID, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	count, err = s.UnreadCountForUser(ctx, bob.ID, nil)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestUnreadCountCache(t *testing.T) {
	db := openTestDB(t)
	cfg := config.DefaultConfig()
	cache := newMemoryUnreadCache()
	s := New(db, &cfg, cache)
	ctx := context.Background()

	alice := createUser(t, s, "alice", "Anders", model.RoleGuest)
	bob := createUser(t, s, "bob", "Brown", model.RoleGuest)
	conv := createConversation(t, s, alice, bob)
	post(t, s, conv, alice, "one", to(bob))

	count, err := s.UnreadCountForUser(ctx, bob.ID, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	require.True(t, cache.has(bob.ID))

	require.NoError(t, cache.Set(ctx, bob.ID, 42, cfg.UnreadCountTTL))
	count, err = s.UnreadCountForUser(ctx, bob.ID, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 42, count, "served from the cache")

	post(t, s, conv, alice, "two", to(bob))
	assert.False(t, cache.has(bob.ID), "new message invalidates the receiver")

	count, err = s.UnreadCountForUser(ctx, bob.ID, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)

	_, err = s.MarkAsRead(ctx, bob.ID, nil)
	require.NoError(t, err)
	assert.False(t, cache.has(bob.ID))

	inConv, err := s.UnreadCountForUser(ctx, bob.ID, &conv.ID)
	require.NoError(t, err)
	assert.Zero(t, inConv)
	assert.False(t, cache.has(bob.ID), "per conversation counts are not cached")
}
