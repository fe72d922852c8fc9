package postgres_test

import (
	"context"
	"testing"

	"github.com/chirino/messaging-service/internal/config"
	"github.com/chirino/messaging-service/internal/model"
	"github.com/chirino/messaging-service/internal/plugin/store/postgres"
	registrymigrate "github.com/chirino/messaging-service/internal/registry/migrate"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"github.com/chirino/messaging-service/internal/testutil/testpg"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (registrystore.MessagingStore, context.Context) {
	t.Helper()

	dbURL := testpg.StartPostgres(t)

	cfg := config.DefaultConfig()
	cfg.DBURL = dbURL
	ctx, cancel := context.WithCancel(config.WithContext(context.Background(), &cfg))
	t.Cleanup(cancel)

	// Ensure postgres store plugin is registered
	_ = postgres.ForceImport

	// Run migrations twice; the schema must be re-runnable.
	require.NoError(t, registrymigrate.RunAll(ctx))
	require.NoError(t, registrymigrate.RunAll(ctx))

	loader, err := registrystore.Select("postgres")
	require.NoError(t, err)

	store, err := loader(ctx)
	require.NoError(t, err)

	return store, ctx
}

func mustUser(t *testing.T, ctx context.Context, store registrystore.MessagingStore, name string) *model.User {
	t.Helper()
	u, err := store.CreateUser(ctx, registrystore.CreateUserRequest{
		Email:     name + "@example.com",
		FirstName: name,
		LastName:  "Tester",
	})
	require.NoError(t, err)
	return u
}

func TestUserEmailIsUnique(t *testing.T) {
	store, ctx := setupTestStore(t)
	mustUser(t, ctx, store, "alice")

	_, err := store.CreateUser(ctx, registrystore.CreateUserRequest{Email: "alice@EXAMPLE.com", FirstName: "A", LastName: "B"})
	var conflict *registrystore.ConflictError
	require.ErrorAs(t, err, &conflict)
}

func TestThreadsAndNotifications(t *testing.T) {
	store, ctx := setupTestStore(t)
	alice := mustUser(t, ctx, store, "alice")
	bob := mustUser(t, ctx, store, "bob")
	carol := mustUser(t, ctx, store, "carol")

	conv, err := store.CreateConversation(ctx, alice.ID, []uuid.UUID{bob.ID, carol.ID})
	require.NoError(t, err)

	hello, err := store.CreateMessage(ctx, registrystore.CreateMessageRequest{ConversationID: conv.ID, SenderID: alice.ID, Body: "Hello", ReceiverID: &bob.ID})
	require.NoError(t, err)
	hi, err := store.CreateMessage(ctx, registrystore.CreateMessageRequest{ConversationID: conv.ID, SenderID: bob.ID, Body: "Hi", ParentMessageID: &hello.ID})
	require.NoError(t, err)
	_, err = store.CreateMessage(ctx, registrystore.CreateMessageRequest{ConversationID: conv.ID, SenderID: carol.ID, Body: "Hey", ParentMessageID: &hi.ID})
	require.NoError(t, err)

	forest, err := store.GetThreadTree(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, forest, 1)
	require.Len(t, forest[0].Replies, 1)
	assert.Equal(t, "Hi", forest[0].Replies[0].Body)

	subtree, err := store.GetMessageWithReplies(ctx, hello.ID)
	require.NoError(t, err)
	assert.Equal(t, registrystore.ThreadStrategyRecursive, subtree.Strategy)
	require.Len(t, subtree.Root.Replies, 1)
	require.Len(t, subtree.Root.Replies[0].Replies, 1)
	assert.Equal(t, 2, subtree.Root.Replies[0].Replies[0].Depth)

	depth, err := store.GetThreadDepth(ctx, hi.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	notes, err := store.ListNotifications(ctx, carol.ID, true)
	require.NoError(t, err)
	assert.Len(t, notes, 2, "carol hears about alice and bob")

	_, err = store.UpdateMessage(ctx, alice.ID, hello.ID, "Hello, world")
	require.NoError(t, err)
	history, err := store.GetMessageHistory(ctx, bob.ID, hello.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "Hello", history[0].OldContent)

	count, err := store.UnreadCountForUser(ctx, bob.ID, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
	marked, err := store.MarkAsRead(ctx, bob.ID, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, marked)
}

func TestDeleteUserCascade(t *testing.T) {
	store, ctx := setupTestStore(t)
	alice := mustUser(t, ctx, store, "alice")
	bob := mustUser(t, ctx, store, "bob")

	shared, err := store.CreateConversation(ctx, alice.ID, []uuid.UUID{bob.ID})
	require.NoError(t, err)
	solo, err := store.CreateConversation(ctx, alice.ID, nil)
	require.NoError(t, err)

	root, err := store.CreateMessage(ctx, registrystore.CreateMessageRequest{ConversationID: shared.ID, SenderID: alice.ID, Body: "root"})
	require.NoError(t, err)
	_, err = store.CreateMessage(ctx, registrystore.CreateMessageRequest{ConversationID: shared.ID, SenderID: bob.ID, Body: "reply", ParentMessageID: &root.ID})
	require.NoError(t, err)
	kept, err := store.CreateMessage(ctx, registrystore.CreateMessageRequest{ConversationID: shared.ID, SenderID: bob.ID, Body: "kept"})
	require.NoError(t, err)
	_, err = store.CreateMessage(ctx, registrystore.CreateMessageRequest{ConversationID: solo.ID, SenderID: alice.ID, Body: "memo"})
	require.NoError(t, err)

	require.NoError(t, store.DeleteUser(ctx, alice.ID))

	msgs, err := store.ListMessages(ctx, bob.ID, shared.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, kept.ID, msgs[0].ID)

	var notFound *registrystore.NotFoundError
	_, err = store.GetUser(ctx, alice.ID)
	require.ErrorAs(t, err, &notFound)
	_, err = store.GetRootMessages(ctx, solo.ID)
	require.ErrorAs(t, err, &notFound, "a conversation left without participants is removed")
}
