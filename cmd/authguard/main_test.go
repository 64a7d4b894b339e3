package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/authguard/internal/config"
	"github.com/vyrodovalexey/authguard/internal/observability"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	cfg, err := loadConfig(cliFlags{})
	require.NoError(t, err)
	assert.Equal(t, config.Default().Server.Address, cfg.Server.Address)

	path := filepath.Join(t.TempDir(), "authguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  address: \":9090\"\nlog:\n  level: warn\n"), 0o600))

	cfg, err = loadConfig(cliFlags{configPath: path, logLevel: "debug", logFormat: "console"})
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)

	_, err = loadConfig(cliFlags{configPath: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestInitApplication(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.APIKey.Store.Principals = []config.PrincipalSpec{
		{ID: "ops", Value: "key-admin", Permissions: []string{"admin"}},
	}
	cfg.JWT.Enabled = true
	cfg.JWT.Secret = "main-test-secret-of-sufficient-length"

	app, err := initApplication(context.Background(), cfg, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { app.close(context.Background(), observability.NopLogger()) })

	handler := app.server.Handler()
	for _, tc := range []struct {
		target string
		key    string
		want   int
	}{
		{target: "/health", want: http.StatusOK},
		{target: "/ready", want: http.StatusOK},
		{target: "/metrics", want: http.StatusOK},
		{target: "/admin/alerts/stats", key: "key-admin", want: http.StatusOK},
		{target: "/api/anything", key: "wrong", want: http.StatusUnauthorized},
	} {
		req := httptest.NewRequest(http.MethodGet, tc.target, nil)
		if tc.key != "" {
			req.Header.Set("X-API-Key", tc.key)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, tc.want, w.Code, tc.target)
	}

	assert.Contains(t, app.checker.Names(), "principal-store")
}

func TestInitApplication_SQLite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg := config.Default()
	cfg.APIKey.Store.Type = config.BackendSQLite
	cfg.APIKey.Store.SQLitePath = filepath.Join(dir, "principals.db")
	cfg.APIKey.Store.Principals = []config.PrincipalSpec{
		{ID: "svc", Value: "key-svc", Permissions: []string{"read"}},
	}
	cfg.Audit.StoreType = config.BackendSQLite
	cfg.Audit.SQLitePath = filepath.Join(dir, "audit.db")

	app, err := initApplication(context.Background(), cfg, observability.NopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { app.close(context.Background(), observability.NopLogger()) })

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("X-API-Key", "key-svc")
	w := httptest.NewRecorder()
	app.server.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	assert.ElementsMatch(t, []string{"audit-db", "principal-db", "principal-store"}, app.checker.Names())
}

func TestInitApplication_InvalidJWKS(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.JWT.Enabled = true
	cfg.JWT.JWKSFile = filepath.Join(t.TempDir(), "missing.json")

	_, err := initApplication(context.Background(), cfg, observability.NopLogger())
	assert.Error(t, err)
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("AUTHGUARD_TEST_VALUE", "set")
	assert.Equal(t, "set", getEnvOrDefault("AUTHGUARD_TEST_VALUE", "default"))
	assert.Equal(t, "default", getEnvOrDefault("AUTHGUARD_TEST_UNSET", "default"))
}
