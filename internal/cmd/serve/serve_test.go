package serve

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/chirino/messaging-service/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaxBodySizeMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(maxBodySizeMiddleware(4))
	router.POST("/v1/users", readBodyLengthHandler)

	req := httptest.NewRequest(http.MethodPost, "/v1/users", strings.NewReader("0123456789"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/users", strings.NewReader("0123"))
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "4", rec.Body.String())
}

func readBodyLengthHandler(c *gin.Context) {
	n, err := io.Copy(io.Discard, c.Request.Body)
	if err != nil {
		c.Status(http.StatusRequestEntityTooLarge)
		return
	}
	c.String(http.StatusOK, "%d", n)
}

func TestStartServer_SQLite(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DatastoreType = "sqlite"
	cfg.DBURL = filepath.Join(t.TempDir(), "messaging.db")
	cfg.Mode = config.ModeTesting
	cfg.Listener.Port = 0
	cfg.Listener.EnableTLS = false
	cfg.DrainTimeout = 1

	ctx, cancel := context.WithCancel(config.WithContext(context.Background(), &cfg))
	defer cancel()
	srv, err := StartServer(ctx, &cfg)
	require.NoError(t, err)
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
	}()

	base := fmt.Sprintf("http://127.0.0.1:%d", srv.Running.Port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(base + "/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = client.Post(base+"/v1/users", "application/json",
		strings.NewReader(`{"email":"alice@example.com","firstName":"Alice","lastName":"Anders"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, base+"/v1/users/me", nil)
	require.NoError(t, err)
	req.Header.Set("X-User-Email", "alice@example.com")
	resp, err = client.Do(req)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"firstName":"Alice"`)
}
