package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/chirino/messaging-service/internal/config"
	"github.com/chirino/messaging-service/internal/plugin/store/sqlite"
	registrymigrate "github.com/chirino/messaging-service/internal/registry/migrate"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	dsn, err := sqlite.DSN("sqlite:///var/lib/messaging.db")
	require.NoError(t, err)
	assert.Equal(t, "file:/var/lib/messaging.db?_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", dsn)

	dsn, err = sqlite.DSN("data.db?cache=shared")
	require.NoError(t, err)
	assert.Equal(t, "file:data.db?cache=shared&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", dsn)

	_, err = sqlite.DSN("")
	require.Error(t, err)
	_, err = sqlite.DSN(":memory:")
	require.Error(t, err)
}

func TestLoaderThroughRegistry(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = filepath.Join(t.TempDir(), "messaging.db")
	ctx, cancel := context.WithCancel(config.WithContext(context.Background(), &cfg))
	defer cancel()

	_ = sqlite.ForceImport
	require.Contains(t, registrymigrate.Names(), "sqlite-schema")
	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registrystore.Select("sqlite")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)

	alice, err := store.CreateUser(ctx, registrystore.CreateUserRequest{Email: "alice@example.com", FirstName: "Alice", LastName: "Anders"})
	require.NoError(t, err)
	conv, err := store.CreateConversation(ctx, alice.ID, nil)
	require.NoError(t, err)
	msg, err := store.CreateMessage(ctx, registrystore.CreateMessageRequest{ConversationID: conv.ID, SenderID: alice.ID, Body: "Hello"})
	require.NoError(t, err)

	subtree, err := store.GetMessageWithReplies(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, "Hello", subtree.Root.Body)

	require.NoError(t, store.DeleteUser(ctx, alice.ID))
}
