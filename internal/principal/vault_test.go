package principal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/authguard/internal/config"
	"github.com/vyrodovalexey/authguard/internal/observability"
)

func newVaultServer(t *testing.T, body *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/secret/data/authguard/keys" || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Vault-Token") != "test-token" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body.Load().(string)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestVaultStore(t *testing.T) {
	var body atomic.Value
	body.Store(`{
		"data": {
			"data": {
				"billing": "sk-live-123",
				"reporter": "{\"value\":\"sk-ro-456\",\"permissions\":[\"read\"],\"enabled\":true}"
			},
			"metadata": {"version": 3}
		}
	}`)
	srv := newVaultServer(t, &body)

	ctx := context.Background()
	s, err := NewVaultStore(ctx, config.VaultConfig{
		Address:         srv.URL,
		Token:           "test-token",
		Path:            "/authguard/keys",
		RefreshInterval: config.Duration(20 * time.Millisecond),
	}, observability.NopLogger())
	require.NoError(t, err)

	p, err := s.FindByValue(ctx, "sk-live-123")
	require.NoError(t, err)
	assert.Equal(t, "billing", p.ID)
	assert.True(t, p.Enabled)
	assert.Empty(t, p.Permissions)

	ro, err := s.FindByID(ctx, "reporter")
	require.NoError(t, err)
	assert.Equal(t, []string{"read"}, ro.Permissions.List())

	body.Store(`{"data": {"data": {"billing": "sk-rotated"}, "metadata": {"version": 4}}}`)
	s.Start(ctx)
	defer s.Close()

	assert.Eventually(t, func() bool {
		ok, _ := s.Exists(ctx, "sk-rotated")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	ok, _ := s.Exists(ctx, "sk-ro-456")
	assert.False(t, ok)
}

func TestVaultStore_Errors(t *testing.T) {
	var body atomic.Value
	body.Store(`{"data": {"data": {"bad": "{not json"}}}`)
	srv := newVaultServer(t, &body)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := NewVaultStore(ctx, config.VaultConfig{
		Address: srv.URL,
		Token:   "test-token",
		Path:    "authguard/keys",
	}, nil)
	assert.Error(t, err)

	_, err = NewVaultStore(ctx, config.VaultConfig{
		Address: srv.URL,
		Token:   "test-token",
		Path:    "authguard/absent",
	}, nil)
	assert.Error(t, err)
}

func TestDecodeVaultEntry(t *testing.T) {
	t.Parallel()

	spec, err := decodeVaultEntry("a", "sk-plain")
	require.NoError(t, err)
	assert.Equal(t, "sk-plain", spec.Value)

	_, err = decodeVaultEntry("a", 42)
	assert.Error(t, err)

	_, err = decodeVaultEntry("a", `{"permissions":["read"]}`)
	assert.Error(t, err)
}
