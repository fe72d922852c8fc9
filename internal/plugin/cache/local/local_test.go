package local

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalUnreadCache(t *testing.T) {
	ctx := context.Background()
	c, err := New(time.Minute)
	require.NoError(t, err)
	require.True(t, c.Available())

	alice, bob := uuid.New(), uuid.New()
	_, ok, err := c.Get(ctx, alice)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, alice, 3, 0))
	require.NoError(t, c.Set(ctx, bob, 0, 0))

	n, ok, err := c.Get(ctx, alice)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(3), n)

	n, ok, _ = c.Get(ctx, bob)
	assert.True(t, ok)
	assert.Zero(t, n)

	require.NoError(t, c.Remove(ctx, alice, bob))
	_, ok, _ = c.Get(ctx, alice)
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, bob)
	assert.False(t, ok)
}
