package users_test

import (
	"net/http"
	"testing"

	"github.com/chirino/messaging-service/internal/model"
	"github.com/chirino/messaging-service/internal/plugin/route/users"
	"github.com/chirino/messaging-service/internal/testutil/testapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ = users.MountRoutes

func TestRegisterAndFetch(t *testing.T) {
	api := testapi.New(t)

	rec := api.Do(http.MethodPost, "/v1/users", "", map[string]any{
		"email": " alice@Example.COM", "firstName": "Alice", "lastName": "Anders", "role": "host",
	})
	testapi.RequireStatus(t, rec, http.StatusCreated)
	created := testapi.Decode[model.User](t, rec)
	assert.Equal(t, "alice@example.com", created.Email)
	assert.Equal(t, model.RoleHost, created.Role)

	rec = api.Do(http.MethodPost, "/v1/users", "", map[string]any{
		"email": "alice@example.com", "firstName": "Again", "lastName": "Anders",
	})
	testapi.RequireStatus(t, rec, http.StatusConflict)
	assert.Contains(t, rec.Body.String(), "email_taken")

	rec = api.Do(http.MethodPost, "/v1/users", "", map[string]any{
		"email": "eve@example.com", "firstName": "Eve", "lastName": "E", "role": "admin",
	})
	testapi.RequireStatus(t, rec, http.StatusForbidden)

	rec = api.Do(http.MethodPost, "/v1/users", "", map[string]any{"email": "nobody@example.com"})
	testapi.RequireStatus(t, rec, http.StatusBadRequest)

	rec = api.Do(http.MethodGet, "/v1/users/me", "alice@example.com", nil)
	testapi.RequireStatus(t, rec, http.StatusOK)
	me := testapi.Decode[model.User](t, rec)
	assert.Equal(t, created.ID, me.ID)

	rec = api.Do(http.MethodGet, "/v1/users/"+created.ID.String(), "alice@example.com", nil)
	testapi.RequireStatus(t, rec, http.StatusOK)

	rec = api.Do(http.MethodGet, "/v1/users/not-a-uuid", "alice@example.com", nil)
	testapi.RequireStatus(t, rec, http.StatusBadRequest)

	rec = api.Do(http.MethodGet, "/v1/users/me", "", nil)
	testapi.RequireStatus(t, rec, http.StatusUnauthorized)
}

func TestDeleteSelfRequiresConfirmation(t *testing.T) {
	api := testapi.New(t)
	alice := api.User("Alice", "Anders", model.RoleGuest)

	rec := api.Do(http.MethodDelete, "/v1/users/me", alice.Email, map[string]any{})
	testapi.RequireStatus(t, rec, http.StatusBadRequest)

	rec = api.Do(http.MethodDelete, "/v1/users/me", alice.Email, map[string]any{"confirmDeletion": true})
	testapi.RequireStatus(t, rec, http.StatusNoContent)

	_, err := api.Store.GetUser(api.Ctx, alice.ID)
	require.Error(t, err)

	rec = api.Do(http.MethodGet, "/v1/users/me", alice.Email, nil)
	testapi.RequireStatus(t, rec, http.StatusUnauthorized)
}
