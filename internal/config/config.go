package config

import (
	"time"

	"github.com/vyrodovalexey/authguard/internal/observability"
)

// Store and backend type names.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendVault  = "vault"
)

// Config is the root authguard configuration.
type Config struct {
	Server     ServerConfig               `yaml:"server" json:"server"`
	Log        observability.LogConfig    `yaml:"log" json:"log"`
	Tracing    observability.TracerConfig `yaml:"tracing" json:"tracing"`
	Auth       AuthConfig                 `yaml:"auth" json:"auth"`
	APIKey     APIKeyConfig               `yaml:"apiKey" json:"apiKey"`
	JWT        JWTConfig                  `yaml:"jwt" json:"jwt"`
	Cache      CacheConfig                `yaml:"cache" json:"cache"`
	Revocation RevocationConfig           `yaml:"revocation" json:"revocation"`
	Audit      AuditConfig                `yaml:"audit" json:"audit"`
	Alert      AlertConfig                `yaml:"alert" json:"alert"`
	Breaker    BreakerConfig              `yaml:"breaker" json:"breaker"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address         string   `yaml:"address" json:"address"`
	Upstream        string   `yaml:"upstream,omitempty" json:"upstream,omitempty"`
	ReadTimeout     Duration `yaml:"readTimeout" json:"readTimeout"`
	WriteTimeout    Duration `yaml:"writeTimeout" json:"writeTimeout"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" json:"shutdownTimeout"`
}

// AuthConfig configures credential extraction and the request pipeline.
type AuthConfig struct {
	Enabled       bool           `yaml:"enabled" json:"enabled"`
	HeaderName    string         `yaml:"headerName" json:"headerName"`
	ExcludedPaths []string       `yaml:"excludedPaths" json:"excludedPaths"`
	Timeouts      TimeoutsConfig `yaml:"timeouts" json:"timeouts"`
}

// TimeoutsConfig bounds calls to external collaborators.
type TimeoutsConfig struct {
	Cache Duration `yaml:"cache" json:"cache"`
	Store Duration `yaml:"store" json:"store"`
}

// APIKeyConfig configures the static key scheme.
type APIKeyConfig struct {
	Enabled  bool                 `yaml:"enabled" json:"enabled"`
	CacheTTL Duration             `yaml:"cacheTTL" json:"cacheTTL"`
	Store    PrincipalStoreConfig `yaml:"store" json:"store"`
}

// PrincipalStoreConfig selects where static keys are looked up.
type PrincipalStoreConfig struct {
	Type       string          `yaml:"type" json:"type"`
	File       string          `yaml:"file,omitempty" json:"file,omitempty"`
	Watch      bool            `yaml:"watch" json:"watch"`
	SQLitePath string          `yaml:"sqlitePath,omitempty" json:"sqlitePath,omitempty"`
	Vault      VaultConfig     `yaml:"vault" json:"vault"`
	Principals []PrincipalSpec `yaml:"principals,omitempty" json:"principals,omitempty"`
}

// VaultConfig configures a Vault KV v2 principal source.
type VaultConfig struct {
	Address         string   `yaml:"address" json:"address"`
	Token           string   `yaml:"token" json:"-"`
	Namespace       string   `yaml:"namespace,omitempty" json:"namespace,omitempty"`
	Mount           string   `yaml:"mount" json:"mount"`
	Path            string   `yaml:"path" json:"path"`
	RefreshInterval Duration `yaml:"refreshInterval" json:"refreshInterval"`
}

// PrincipalSpec is the declarative form of a principal used by inline
// configuration and principal files.
type PrincipalSpec struct {
	ID          string                 `yaml:"id" json:"id"`
	Value       string                 `yaml:"value" json:"-"`
	Description string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Enabled     *bool                  `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	CreatedAt   *time.Time             `yaml:"createdAt,omitempty" json:"createdAt,omitempty"`
	ExpiresAt   *time.Time             `yaml:"expiresAt,omitempty" json:"expiresAt,omitempty"`
	Permissions []string               `yaml:"permissions,omitempty" json:"permissions,omitempty"`
	Metadata    map[string]interface{} `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// IsEnabled reports the effective enabled flag; unset means enabled.
func (p PrincipalSpec) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// JWTConfig configures the signed token scheme.
type JWTConfig struct {
	Enabled         bool     `yaml:"enabled" json:"enabled"`
	Issuer          string   `yaml:"issuer,omitempty" json:"issuer,omitempty"`
	Audience        string   `yaml:"audience,omitempty" json:"audience,omitempty"`
	Algorithms      []string `yaml:"algorithms" json:"algorithms"`
	Secret          string   `yaml:"secret,omitempty" json:"-"`
	JWKSFile        string   `yaml:"jwksFile,omitempty" json:"jwksFile,omitempty"`
	JWKSURL         string   `yaml:"jwksURL,omitempty" json:"jwksURL,omitempty"`
	ClockSkew       Duration `yaml:"clockSkew" json:"clockSkew"`
	AllowQueryToken bool     `yaml:"allowQueryToken" json:"allowQueryToken"`
}

// RedisConfig configures a go-redis client.
type RedisConfig struct {
	URL         string   `yaml:"url" json:"-"`
	KeyPrefix   string   `yaml:"keyPrefix" json:"keyPrefix"`
	PoolSize    int      `yaml:"poolSize,omitempty" json:"poolSize,omitempty"`
	DialTimeout Duration `yaml:"dialTimeout,omitempty" json:"dialTimeout,omitempty"`
}

// CacheConfig selects the validation cache backend.
type CacheConfig struct {
	Type          string      `yaml:"type" json:"type"`
	SweepInterval Duration    `yaml:"sweepInterval" json:"sweepInterval"`
	Redis         RedisConfig `yaml:"redis" json:"redis"`
}

// RevocationConfig selects the token revocation list backend.
type RevocationConfig struct {
	Type  string      `yaml:"type" json:"type"`
	Redis RedisConfig `yaml:"redis" json:"redis"`
}

// AuditConfig configures the audit recorder and its store.
type AuditConfig struct {
	Enabled           bool     `yaml:"enabled" json:"enabled"`
	BufferSize        int      `yaml:"bufferSize" json:"bufferSize"`
	WriteTimeout      Duration `yaml:"writeTimeout" json:"writeTimeout"`
	StoreType         string   `yaml:"storeType" json:"storeType"`
	SQLitePath        string   `yaml:"sqlitePath,omitempty" json:"sqlitePath,omitempty"`
	RetentionDays     int      `yaml:"retentionDays" json:"retentionDays"`
	RetentionSchedule string   `yaml:"retentionSchedule" json:"retentionSchedule"`
}

// AlertRuleConfig is the window and threshold of one alert check.
type AlertRuleConfig struct {
	Window    Duration `yaml:"window" json:"window"`
	Threshold int      `yaml:"threshold" json:"threshold"`
}

// AlertConfig configures the alert engine.
type AlertConfig struct {
	Enabled          bool            `yaml:"enabled" json:"enabled"`
	Schedule         string          `yaml:"schedule" json:"schedule"`
	Cooldown         Duration        `yaml:"cooldown" json:"cooldown"`
	AuthFailureSpike AlertRuleConfig `yaml:"authFailureSpike" json:"authFailureSpike"`
	SuspiciousIP     AlertRuleConfig `yaml:"suspiciousIP" json:"suspiciousIP"`
	Sanitization     AlertRuleConfig `yaml:"sanitization" json:"sanitization"`
	TokenAnomaly     AlertRuleConfig `yaml:"tokenAnomaly" json:"tokenAnomaly"`
	Kafka            KafkaConfig     `yaml:"kafka" json:"kafka"`
}

// KafkaConfig configures the Kafka alert sink.
type KafkaConfig struct {
	Enabled      bool     `yaml:"enabled" json:"enabled"`
	Brokers      []string `yaml:"brokers" json:"brokers"`
	Topic        string   `yaml:"topic" json:"topic"`
	WriteTimeout Duration `yaml:"writeTimeout" json:"writeTimeout"`
}

// BreakerConfig configures the circuit breaker around the principal store.
type BreakerConfig struct {
	Enabled          bool     `yaml:"enabled" json:"enabled"`
	MaxRequests      uint32   `yaml:"maxRequests" json:"maxRequests"`
	Interval         Duration `yaml:"interval" json:"interval"`
	Timeout          Duration `yaml:"timeout" json:"timeout"`
	FailureThreshold uint32   `yaml:"failureThreshold" json:"failureThreshold"`
}

// DefaultExcludedPaths bypass authentication entirely.
var DefaultExcludedPaths = []string{
	"/health",
	"/ready",
	"/metrics",
	"/docs/",
	"/static/",
	"/favicon.ico",
}

// Default returns the configuration used for every field the file omits.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:         ":8080",
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Log: observability.DefaultLogConfig(),
		Tracing: observability.TracerConfig{
			ServiceName:  observability.DefaultServiceName,
			SamplingRate: 1.0,
			Insecure:     true,
		},
		Auth: AuthConfig{
			Enabled:       true,
			HeaderName:    "X-API-Key",
			ExcludedPaths: append([]string(nil), DefaultExcludedPaths...),
			Timeouts: TimeoutsConfig{
				Cache: Duration(200 * time.Millisecond),
				Store: Duration(2 * time.Second),
			},
		},
		APIKey: APIKeyConfig{
			Enabled:  true,
			CacheTTL: Duration(time.Hour),
			Store:    PrincipalStoreConfig{Type: BackendMemory, Watch: true},
		},
		JWT: JWTConfig{
			Algorithms:      []string{"HS256", "RS256", "ES256"},
			ClockSkew:       Duration(30 * time.Second),
			AllowQueryToken: true,
		},
		Cache: CacheConfig{
			Type:          BackendMemory,
			SweepInterval: Duration(5 * time.Minute),
			Redis: RedisConfig{
				KeyPrefix:   "authguard:principal:",
				DialTimeout: Duration(5 * time.Second),
			},
		},
		Revocation: RevocationConfig{
			Type:  BackendMemory,
			Redis: RedisConfig{KeyPrefix: "authguard:revoked:"},
		},
		Audit: AuditConfig{
			Enabled:           true,
			BufferSize:        1024,
			WriteTimeout:      Duration(time.Second),
			StoreType:         BackendMemory,
			RetentionDays:     90,
			RetentionSchedule: "0 3 * * *",
		},
		Alert: AlertConfig{
			Enabled:          true,
			Schedule:         "@every 1m",
			Cooldown:         Duration(15 * time.Minute),
			AuthFailureSpike: AlertRuleConfig{Window: Duration(5 * time.Minute), Threshold: 5},
			SuspiciousIP:     AlertRuleConfig{Window: Duration(10 * time.Minute), Threshold: 10},
			Sanitization:     AlertRuleConfig{Window: Duration(60 * time.Minute), Threshold: 100},
			TokenAnomaly:     AlertRuleConfig{Window: Duration(10 * time.Minute), Threshold: 20},
			Kafka: KafkaConfig{
				Topic:        "authguard.security-alerts",
				WriteTimeout: Duration(5 * time.Second),
			},
		},
		Breaker: BreakerConfig{
			Enabled:          true,
			MaxRequests:      1,
			Interval:         Duration(time.Minute),
			Timeout:          Duration(30 * time.Second),
			FailureThreshold: 5,
		},
	}
}
