package unread_test

import (
	"net/http"
	"testing"

	"github.com/chirino/messaging-service/internal/model"
	"github.com/chirino/messaging-service/internal/plugin/route/unread"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"github.com/chirino/messaging-service/internal/testutil/testapi"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ = unread.MountRoutes

func TestUnreadFlow(t *testing.T) {
	api := testapi.New(t)
	alice := api.User("Alice", "Anders", model.RoleHost)
	bob := api.User("Bob", "Baker", model.RoleGuest)
	conv, err := api.Store.CreateConversation(api.Ctx, alice.ID, []uuid.UUID{bob.ID})
	require.NoError(t, err)
	msg, err := api.Store.CreateMessage(api.Ctx, registrystore.CreateMessageRequest{
		ConversationID: conv.ID, SenderID: alice.ID, Body: "Hello", ReceiverID: &bob.ID,
	})
	require.NoError(t, err)

	rec := api.Do(http.MethodGet, "/v1/unread/count", bob.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())

	rec = api.Do(http.MethodGet, "/v1/unread", bob.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	list := testapi.Decode[struct {
		Data []registrystore.UnreadMessage `json:"data"`
	}](t, rec)
	require.Len(t, list.Data, 1)
	assert.Equal(t, msg.ID, list.Data[0].ID)
	assert.Equal(t, "Alice", list.Data[0].SenderFirstName)

	rec = api.Do(http.MethodPost, "/v1/unread/mark-read", bob.Email, map[string]any{})
	testapi.RequireStatus(t, rec, http.StatusBadRequest)

	// Only the receiver's own messages change.
	rec = api.Do(http.MethodPost, "/v1/unread/mark-read", alice.Email, map[string]any{"ids": []uuid.UUID{msg.ID}})
	testapi.RequireStatus(t, rec, http.StatusOK)
	assert.JSONEq(t, `{"updated":0}`, rec.Body.String())

	rec = api.Do(http.MethodPost, "/v1/unread/mark-read", bob.Email, map[string]any{"ids": []uuid.UUID{msg.ID}})
	testapi.RequireStatus(t, rec, http.StatusOK)
	assert.JSONEq(t, `{"updated":1}`, rec.Body.String())

	rec = api.Do(http.MethodGet, "/v1/unread/count", bob.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	assert.JSONEq(t, `{"count":0}`, rec.Body.String())
}

func TestNotifications(t *testing.T) {
	api := testapi.New(t)
	alice := api.User("Alice", "Anders", model.RoleHost)
	bob := api.User("Bob", "Baker", model.RoleGuest)
	conv, err := api.Store.CreateConversation(api.Ctx, alice.ID, []uuid.UUID{bob.ID})
	require.NoError(t, err)
	_, err = api.Store.CreateMessage(api.Ctx, registrystore.CreateMessageRequest{
		ConversationID: conv.ID, SenderID: alice.ID, Body: "Hello",
	})
	require.NoError(t, err)

	type notifications struct {
		Data []model.Notification `json:"data"`
	}

	rec := api.Do(http.MethodGet, "/v1/notifications?unreadOnly=true", bob.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	got := testapi.Decode[notifications](t, rec)
	require.Len(t, got.Data, 1)
	assert.Equal(t, "New message from Alice Anders: Hello", got.Data[0].Content)

	rec = api.Do(http.MethodGet, "/v1/notifications", alice.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	assert.Empty(t, testapi.Decode[notifications](t, rec).Data)

	rec = api.Do(http.MethodGet, "/v1/notifications?unreadOnly=maybe", bob.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusBadRequest)

	rec = api.Do(http.MethodPost, "/v1/notifications/mark-read", bob.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	assert.JSONEq(t, `{"updated":1}`, rec.Body.String())

	rec = api.Do(http.MethodGet, "/v1/notifications?unreadOnly=true", bob.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	assert.Empty(t, testapi.Decode[notifications](t, rec).Data)

	rec = api.Do(http.MethodGet, "/v1/notifications", bob.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	assert.Len(t, testapi.Decode[notifications](t, rec).Data, 1)
}
