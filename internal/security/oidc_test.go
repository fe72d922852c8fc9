package security

import (
	"context"
	"testing"

	"github.com/chirino/messaging-service/internal/config"
	"github.com/chirino/messaging-service/internal/testutil/testkeycloak"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_OIDCAccessToken(t *testing.T) {
	kc := testkeycloak.StartKeycloak(t)
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.OIDCIssuer = kc.IssuerURL
	cfg.OIDCDiscoveryURL = kc.DiscoveryURL
	resolver := NewTokenResolver(&cfg)

	token, err := kc.AccessToken(ctx, "alice", "alice")
	require.NoError(t, err)
	id, err := resolver.Resolve(ctx, token, "")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", id.Email)
	assert.False(t, id.IsAdmin)

	token, err = kc.AccessToken(ctx, "root", "root")
	require.NoError(t, err)
	id, err = resolver.Resolve(ctx, token, "")
	require.NoError(t, err)
	assert.Equal(t, "root@example.com", id.Email)
	assert.True(t, id.IsAdmin)

	_, err = resolver.Resolve(ctx, token[:len(token)-4]+"AAAA", "")
	require.ErrorIs(t, err, errInvalidJWT)
}
