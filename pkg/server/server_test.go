package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"camera-fleet/pkg/archive"
	"camera-fleet/pkg/auth"
	"camera-fleet/pkg/config"
	"camera-fleet/pkg/database"
	"camera-fleet/pkg/handlers"
	"camera-fleet/pkg/jobs"
	"camera-fleet/pkg/models"
	"camera-fleet/pkg/resolver"
	"camera-fleet/pkg/store"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)

	tempDir, err := os.MkdirTemp("", "fleet-server")
	if err != nil {
		panic("Failed to create temp dir")
	}
	config.AppConfig.DataDir = tempDir
	config.AppConfig.DatabasePath = filepath.Join(tempDir, "server.db")
	config.AppConfig.AppKey = "test-secret"
	database.InitDB()

	code := m.Run()
	database.GetDB().Close()
	os.RemoveAll(tempDir)
	os.Exit(code)
}

func newRouter(t *testing.T) *gin.Engine {
	reader := archive.NewReader(t.TempDir(), "large")
	res := resolver.New(store.New(database.GetDB()), reader)
	js := jobs.NewStore(database.GetDB(), res, reader, t.TempDir())
	return SetupRouter(handlers.New(nil, js, reader, nil, nil))
}

func bearer(t *testing.T, user *models.User) string {
	token, err := auth.GenerateJWT(user)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestPublicHealth(t *testing.T) {
	router := newRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	router := newRouter(t)

	for _, path := range []string{"/api/requests", "/api/status-history", "/api/archive/a/b/c/preview"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestAuthenticatedRequestList(t *testing.T) {
	router := newRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/requests", nil)
	req.Header.Set("Authorization", bearer(t, &models.User{Username: "jdoe"}))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())
}

func TestSweepIsAdminOnly(t *testing.T) {
	router := newRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/health/sweep", nil)
	req.Header.Set("Authorization", bearer(t, &models.User{Username: "jdoe"}))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUnknownRoute(t *testing.T) {
	router := newRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"NotFound"`)
}

func TestServeStopsWhenContextCancelled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	url := "http://" + ln.Addr().String() + "/api/health"

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, &http.Server{Handler: newRouter(t)}, ln) }()

	assert.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(ShutdownTimeout):
		t.Fatal("server still running after cancel")
	}

	client := &http.Client{Timeout: time.Second}
	_, err = client.Get(url)
	assert.Error(t, err)
}
