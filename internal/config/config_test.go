package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	require.Equal(t, NotificationPolicyBroadcast, cfg.NotificationPolicy)
	require.Equal(t, ThreadQueryAuto, cfg.ThreadQueryMode)
}

func TestValidate_RejectsUnknownPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NotificationPolicy = "everyone"
	require.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ThreadQueryMode = "deep"
	require.Error(t, cfg.Validate())
}

func TestAdminUserSet(t *testing.T) {
	cfg := Config{AdminUsers: " Alice@Example.com, ,bob@example.com"}
	require.Equal(t, map[string]bool{"alice@example.com": true, "bob@example.com": true}, cfg.AdminUserSet())

	var nilCfg *Config
	require.Empty(t, nilCfg.AdminUserSet())
}
