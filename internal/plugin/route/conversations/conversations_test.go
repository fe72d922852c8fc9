package conversations_test

import (
	"net/http"
	"testing"

	"github.com/chirino/messaging-service/internal/model"
	"github.com/chirino/messaging-service/internal/plugin/route/conversations"
	"github.com/chirino/messaging-service/internal/testutil/testapi"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ = conversations.MountRoutes

type listResponse[T any] struct {
	Data []T `json:"data"`
}

type threadNode struct {
	Body    string       `json:"body"`
	Depth   int          `json:"depth"`
	Replies []threadNode `json:"replies"`
}

func TestCreateConversationByEmail(t *testing.T) {
	api := testapi.New(t)
	alice := api.User("Alice", "Anders", model.RoleHost)
	bob := api.User("Bob", "Baker", model.RoleGuest)

	rec := api.Do(http.MethodPost, "/v1/conversations", alice.Email, map[string]any{
		"participantEmails": []string{bob.Email, "ghost@example.com"},
	})
	testapi.RequireStatus(t, rec, http.StatusNotFound)
	assert.Contains(t, rec.Body.String(), "ghost@example.com")

	rec = api.Do(http.MethodPost, "/v1/conversations", alice.Email, map[string]any{
		"participantEmails": []string{bob.Email},
	})
	testapi.RequireStatus(t, rec, http.StatusCreated)
	conv := testapi.Decode[model.Conversation](t, rec)
	require.Len(t, conv.Participants, 2)

	rec = api.Do(http.MethodGet, "/v1/conversations", bob.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	list := testapi.Decode[listResponse[model.Conversation]](t, rec)
	require.Len(t, list.Data, 1)
	assert.Equal(t, conv.ID, list.Data[0].ID)

	carol := api.User("Carol", "Cole", model.RoleGuest)
	rec = api.Do(http.MethodGet, "/v1/conversations/"+conv.ID.String(), carol.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusNotFound)

	rec = api.Do(http.MethodPost, "/v1/conversations/"+conv.ID.String()+"/participants", alice.Email, map[string]any{
		"email": carol.Email,
	})
	testapi.RequireStatus(t, rec, http.StatusOK)
	conv = testapi.Decode[model.Conversation](t, rec)
	require.Len(t, conv.Participants, 3)

	rec = api.Do(http.MethodDelete, "/v1/conversations/"+conv.ID.String()+"/participants/"+alice.ID.String(), bob.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusForbidden)

	rec = api.Do(http.MethodDelete, "/v1/conversations/"+conv.ID.String()+"/participants/"+carol.ID.String(), carol.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusNoContent)
}

func TestPostAndReadThreads(t *testing.T) {
	api := testapi.New(t)
	alice := api.User("Alice", "Anders", model.RoleHost)
	bob := api.User("Bob", "Baker", model.RoleGuest)
	conv, err := api.Store.CreateConversation(api.Ctx, alice.ID, []uuid.UUID{bob.ID})
	require.NoError(t, err)
	base := "/v1/conversations/" + conv.ID.String()

	rec := api.Do(http.MethodPost, base+"/messages", alice.Email, map[string]any{"body": "Hello", "receiverId": bob.ID})
	testapi.RequireStatus(t, rec, http.StatusCreated)
	hello := testapi.Decode[model.Message](t, rec)

	rec = api.Do(http.MethodPost, base+"/messages", bob.Email, map[string]any{"body": "Hi", "parentMessageId": hello.ID, "receiverId": alice.ID})
	testapi.RequireStatus(t, rec, http.StatusCreated)

	rec = api.Do(http.MethodPost, base+"/messages", bob.Email, map[string]any{"body": "  "})
	testapi.RequireStatus(t, rec, http.StatusBadRequest)

	rec = api.Do(http.MethodPost, base+"/messages", alice.Email, map[string]any{"body": "self", "receiverId": alice.ID})
	testapi.RequireStatus(t, rec, http.StatusBadRequest)

	rec = api.Do(http.MethodGet, base+"/messages", bob.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	all := testapi.Decode[listResponse[model.Message]](t, rec)
	require.Len(t, all.Data, 2)
	assert.Equal(t, "Hello", all.Data[0].Body)

	rec = api.Do(http.MethodGet, base+"/roots", bob.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	roots := testapi.Decode[listResponse[model.Message]](t, rec)
	require.Len(t, roots.Data, 1)
	assert.Equal(t, hello.ID, roots.Data[0].ID)

	rec = api.Do(http.MethodGet, base+"/threads", alice.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	threads := testapi.Decode[listResponse[threadNode]](t, rec)
	require.Len(t, threads.Data, 1)
	require.Len(t, threads.Data[0].Replies, 1)
	assert.Equal(t, "Hi", threads.Data[0].Replies[0].Body)
	assert.Equal(t, 1, threads.Data[0].Replies[0].Depth)

	rec = api.Do(http.MethodGet, base+"/unread/count", alice.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	assert.JSONEq(t, `{"count":1}`, rec.Body.String())

	rec = api.Do(http.MethodGet, base+"/unread", bob.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	assert.Contains(t, rec.Body.String(), `"senderEmail":"alice@example.com"`)

	outsider := api.User("Olga", "Out", model.RoleGuest)
	for _, path := range []string{"/messages", "/roots", "/threads", "/unread", "/unread/count"} {
		rec = api.Do(http.MethodGet, base+path, outsider.Email, nil)
		testapi.RequireStatus(t, rec, http.StatusNotFound)
	}
}

func TestMineFilter(t *testing.T) {
	api := testapi.New(t)
	alice := api.User("Alice", "Anders", model.RoleHost)
	bob := api.User("Bob", "Baker", model.RoleGuest)
	carol := api.User("Carol", "Cole", model.RoleGuest)
	conv, err := api.Store.CreateConversation(api.Ctx, alice.ID, []uuid.UUID{bob.ID, carol.ID})
	require.NoError(t, err)
	base := "/v1/conversations/" + conv.ID.String()

	testapi.RequireStatus(t, api.Do(http.MethodPost, base+"/messages", alice.Email, map[string]any{"body": "to bob", "receiverId": bob.ID}), http.StatusCreated)
	testapi.RequireStatus(t, api.Do(http.MethodPost, base+"/messages", alice.Email, map[string]any{"body": "to carol", "receiverId": carol.ID}), http.StatusCreated)

	rec := api.Do(http.MethodGet, base+"/messages?mine=true", bob.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	mine := testapi.Decode[listResponse[model.Message]](t, rec)
	require.Len(t, mine.Data, 1)
	assert.Equal(t, "to bob", mine.Data[0].Body)
}
