package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefault_IsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "X-API-Key", cfg.Auth.HeaderName)
	assert.Equal(t, time.Hour, cfg.APIKey.CacheTTL.Duration())
	assert.Equal(t, 5*time.Minute, cfg.Cache.SweepInterval.Duration())
	assert.Equal(t, 15*time.Minute, cfg.Alert.Cooldown.Duration())
	assert.Equal(t, 5, cfg.Alert.AuthFailureSpike.Threshold)
	assert.Equal(t, 10, cfg.Alert.SuspiciousIP.Threshold)
	assert.Equal(t, 100, cfg.Alert.Sanitization.Threshold)
	assert.Equal(t, 20, cfg.Alert.TokenAnomaly.Threshold)
}

func TestParse_OverridesDefaults(t *testing.T) {
	t.Setenv("AUTHGUARD_TEST_REDIS", "redis://localhost:6379/1")

	data := []byte(`
server:
  address: ":9090"
auth:
  headerName: X-Client-Key
cache:
  type: redis
  redis:
    url: ${AUTHGUARD_TEST_REDIS}
apiKey:
  cacheTTL: 10m
  store:
    type: memory
    principals:
      - id: ci
        value: sk-ci
        permissions: [read]
        expiresAt: 2030-01-02T03:04:05Z
`)

	cfg, err := Parse(data)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "X-Client-Key", cfg.Auth.HeaderName)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Cache.Redis.URL)
	assert.Equal(t, "authguard:principal:", cfg.Cache.Redis.KeyPrefix)
	assert.Equal(t, 10*time.Minute, cfg.APIKey.CacheTTL.Duration())
	require.Len(t, cfg.APIKey.Store.Principals, 1)

	p := cfg.APIKey.Store.Principals[0]
	assert.True(t, p.IsEnabled())
	assert.Equal(t, []string{"read"}, p.Permissions)
	require.NotNil(t, p.ExpiresAt)
	assert.Equal(t, 2030, p.ExpiresAt.Year())
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("auth:\n  headerNme: X\n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"empty header", func(c *Config) { c.Auth.HeaderName = "" }, "auth.headerName"},
		{"no schemes", func(c *Config) { c.APIKey.Enabled = false }, "auth"},
		{"bad cache type", func(c *Config) { c.Cache.Type = "memcached" }, "cache.type"},
		{"redis cache without url", func(c *Config) { c.Cache.Type = BackendRedis }, "cache.redis.url"},
		{"redis cache without prefix", func(c *Config) {
			c.Cache.Type = BackendRedis
			c.Cache.Redis.URL = "redis://localhost:6379"
			c.Cache.Redis.KeyPrefix = ""
		}, "cache.redis.keyPrefix"},
		{"redis revocation without prefix", func(c *Config) {
			c.Revocation.Type = BackendRedis
			c.Revocation.Redis.URL = "redis://localhost:6379"
			c.Revocation.Redis.KeyPrefix = ""
		}, "revocation.redis.keyPrefix"},
		{"jwt without keys", func(c *Config) { c.JWT.Enabled = true }, "jwt"},
		{"file store without path", func(c *Config) { c.APIKey.Store.Type = BackendFile }, "apiKey.store.file"},
		{"vault store without address", func(c *Config) {
			c.APIKey.Store.Type = BackendVault
			c.APIKey.Store.Vault.Path = "authguard/keys"
		}, "apiKey.store.vault.address"},
		{"bad alert schedule", func(c *Config) { c.Alert.Schedule = "every minute" }, "alert.schedule"},
		{"zero threshold", func(c *Config) { c.Alert.TokenAnomaly.Threshold = 0 }, "alert.tokenAnomaly.threshold"},
		{"kafka without brokers", func(c *Config) { c.Alert.Kafka.Enabled = true }, "alert.kafka.brokers"},
		{"duplicate principal", func(c *Config) {
			c.APIKey.Store.Principals = []PrincipalSpec{
				{ID: "a", Value: "sk-1"},
				{ID: "b", Value: "sk-1"},
			}
		}, "apiKey.store.principals[1].value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidationErrors
			require.ErrorAs(t, err, &verrs)

			paths := make([]string, 0, len(verrs))
			for _, e := range verrs {
				paths = append(paths, e.Path)
			}
			assert.Contains(t, paths, tt.path)
		})
	}
}

func TestSubstituteEnv(t *testing.T) {
	t.Setenv("AUTHGUARD_TEST_SET", "value")

	assert.Equal(t, "value", SubstituteEnv("${AUTHGUARD_TEST_SET}"))
	assert.Equal(t, "fallback", SubstituteEnv("${AUTHGUARD_TEST_UNSET:-fallback}"))
	assert.Equal(t, "", SubstituteEnv("${AUTHGUARD_TEST_UNSET}"))
	assert.Equal(t, "$HOME", SubstituteEnv("$$HOME"))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "authguard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDuration_Encoding(t *testing.T) {
	t.Parallel()

	var y struct {
		D Duration `yaml:"d"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("d: 1h30m"), &y))
	assert.Equal(t, 90*time.Minute, y.D.Duration())

	out, err := yaml.Marshal(y)
	require.NoError(t, err)
	assert.Contains(t, string(out), "1h30m0s")

	var j struct {
		D Duration `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"d":"250ms"}`), &j))
	assert.Equal(t, 250*time.Millisecond, j.D.Duration())

	require.NoError(t, json.Unmarshal([]byte(`{"d":null}`), &j))
	assert.Zero(t, j.D)

	assert.Error(t, yaml.Unmarshal([]byte("d: soon"), &y))
}
