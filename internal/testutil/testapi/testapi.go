// Package testapi wires the registered route plugins to a SQLite-backed store
// so HTTP handlers can be exercised with httptest.
package testapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chirino/messaging-service/internal/config"
	"github.com/chirino/messaging-service/internal/model"
	"github.com/chirino/messaging-service/internal/plugin/store/sqlite"
	registrymigrate "github.com/chirino/messaging-service/internal/registry/migrate"
	registryroute "github.com/chirino/messaging-service/internal/registry/route"
	registrystore "github.com/chirino/messaging-service/internal/registry/store"
	"github.com/chirino/messaging-service/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

// API is a router with every registered main route plugin mounted.
type API struct {
	t      testing.TB
	Ctx    context.Context
	Config *config.Config
	Store  registrystore.MessagingStore
	Router *gin.Engine
}

// New migrates a fresh SQLite database and mounts the route plugins linked
// into the test binary. cfgFn may adjust the config before anything starts.
func New(t testing.TB, cfgFn ...func(*config.Config)) *API {
	t.Helper()
	_ = sqlite.ForceImport

	cfg := config.DefaultConfig()
	cfg.Mode = config.ModeTesting
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = filepath.Join(t.TempDir(), "messaging.db")
	cfg.AdminUsers = "root@example.com"
	for _, fn := range cfgFn {
		fn(&cfg)
	}
	ctx, cancel := context.WithCancel(config.WithContext(context.Background(), &cfg))
	t.Cleanup(cancel)

	require.NoError(t, registrymigrate.RunAll(ctx))
	loader, err := registrystore.Select("sqlite")
	require.NoError(t, err)
	store, err := loader(ctx)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	deps := registryroute.Deps{
		Config: &cfg,
		Store:  store,
		Auth:   security.Authenticate(security.NewTokenResolver(&cfg), store.GetUserByEmail),
	}
	for _, loader := range registryroute.MainRouteLoaders() {
		require.NoError(t, loader(router, deps))
	}
	return &API{t: t, Ctx: ctx, Config: &cfg, Store: store, Router: router}
}

// User registers a user directly in the store. The email is derived from the
// first name.
func (a *API) User(first, last string, role model.Role) *model.User {
	a.t.Helper()
	u, err := a.Store.CreateUser(a.Ctx, registrystore.CreateUserRequest{
		Email:     strings.ToLower(first) + "@example.com",
		FirstName: first,
		LastName:  last,
		Role:      role,
	})
	require.NoError(a.t, err)
	return u
}

// Do sends a request as the caller identified by email. An empty email sends
// no Authorization header. body is JSON encoded unless nil.
func (a *API) Do(method, path, email string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if email != "" {
		req.Header.Set("Authorization", "Bearer "+email)
	}
	rec := httptest.NewRecorder()
	a.Router.ServeHTTP(rec, req)
	return rec
}

// Decode unmarshals a JSON response body.
func Decode[T any](t testing.TB, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// RequireStatus fails the test when the response status differs.
func RequireStatus(t testing.TB, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	require.Equal(t, want, rec.Code, rec.Body.String())
}
