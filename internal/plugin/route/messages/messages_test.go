package messages_test

import (
	"net/http"
	"testing"

	"github.com/chirino/messaging-service/internal/model"
	"github.com/chirino/messaging-service/internal/plugin/route/messages"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"github.com/chirino/messaging-service/internal/testutil/testapi"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ = messages.MountRoutes

type fixture struct {
	api        *testapi.API
	alice, bob *model.User
	hello, hi  *model.Message
}

func setup(t *testing.T) fixture {
	api := testapi.New(t)
	alice := api.User("Alice", "Anders", model.RoleHost)
	bob := api.User("Bob", "Baker", model.RoleGuest)
	conv, err := api.Store.CreateConversation(api.Ctx, alice.ID, []uuid.UUID{bob.ID})
	require.NoError(t, err)
	hello, err := api.Store.CreateMessage(api.Ctx, registrystore.CreateMessageRequest{
		ConversationID: conv.ID, SenderID: alice.ID, Body: "Hello", ReceiverID: &bob.ID,
	})
	require.NoError(t, err)
	hi, err := api.Store.CreateMessage(api.Ctx, registrystore.CreateMessageRequest{
		ConversationID: conv.ID, SenderID: bob.ID, Body: "Hi", ParentMessageID: &hello.ID, ReceiverID: &alice.ID,
	})
	require.NoError(t, err)
	return fixture{api: api, alice: alice, bob: bob, hello: hello, hi: hi}
}

type subtreeResponse struct {
	Root struct {
		Body    string `json:"body"`
		Replies []struct {
			Body string `json:"body"`
		} `json:"replies"`
	} `json:"root"`
	Strategy string `json:"strategy"`
}

func TestEditKeepsHistory(t *testing.T) {
	f := setup(t)
	path := "/v1/messages/" + f.hello.ID.String()

	rec := f.api.Do(http.MethodPatch, path, f.bob.Email, map[string]any{"body": "hijacked"})
	testapi.RequireStatus(t, rec, http.StatusForbidden)

	rec = f.api.Do(http.MethodPatch, path, f.alice.Email, map[string]any{"body": ""})
	testapi.RequireStatus(t, rec, http.StatusBadRequest)

	rec = f.api.Do(http.MethodPatch, path, f.alice.Email, map[string]any{"body": "Hello there"})
	testapi.RequireStatus(t, rec, http.StatusOK)
	updated := testapi.Decode[model.Message](t, rec)
	assert.Equal(t, "Hello there", updated.Body)
	assert.True(t, updated.Edited)

	rec = f.api.Do(http.MethodGet, path+"/history", f.bob.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	history := testapi.Decode[struct {
		Data []model.MessageHistory `json:"data"`
	}](t, rec)
	require.Len(t, history.Data, 1)
	assert.Equal(t, "Hello", history.Data[0].OldContent)
	require.NotNil(t, history.Data[0].EditedByID)
	assert.Equal(t, f.alice.ID, *history.Data[0].EditedByID)
}

func TestRepliesAndDepth(t *testing.T) {
	f := setup(t)

	rec := f.api.Do(http.MethodGet, "/v1/messages/"+f.hello.ID.String()+"/replies", f.bob.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	subtree := testapi.Decode[subtreeResponse](t, rec)
	assert.Equal(t, "Hello", subtree.Root.Body)
	require.Len(t, subtree.Root.Replies, 1)
	assert.Equal(t, "Hi", subtree.Root.Replies[0].Body)
	assert.Equal(t, registrystore.ThreadStrategyRecursive, subtree.Strategy)

	rec = f.api.Do(http.MethodGet, "/v1/messages/"+f.hi.ID.String()+"/depth", f.alice.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	assert.JSONEq(t, `{"messageId":"`+f.hi.ID.String()+`","depth":1}`, rec.Body.String())

	outsider := f.api.User("Olga", "Out", model.RoleGuest)
	for _, suffix := range []string{"", "/replies", "/history", "/depth"} {
		rec = f.api.Do(http.MethodGet, "/v1/messages/"+f.hello.ID.String()+suffix, outsider.Email, nil)
		testapi.RequireStatus(t, rec, http.StatusNotFound)
	}
}

func TestDeleteRemovesReplies(t *testing.T) {
	f := setup(t)

	rec := f.api.Do(http.MethodDelete, "/v1/messages/"+f.hello.ID.String(), f.bob.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusForbidden)

	rec = f.api.Do(http.MethodDelete, "/v1/messages/"+f.hello.ID.String(), f.alice.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusNoContent)

	rec = f.api.Do(http.MethodGet, "/v1/messages/"+f.hi.ID.String(), f.alice.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusNotFound)
}
