package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors collects every problem found by Validate.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:", len(e))
	for _, err := range e {
		sb.WriteString("\n  ")
		sb.WriteString(err.Error())
	}
	return sb.String()
}

type validator struct {
	errs ValidationErrors
}

func (v *validator) check(ok bool, path, format string, args ...interface{}) {
	if !ok {
		v.errs = append(v.errs, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
	}
}

func (v *validator) oneOf(value, path string, allowed ...string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.check(false, path, "must be one of %s, got %q", strings.Join(allowed, "|"), value)
}

func (v *validator) cronSpec(spec, path string) {
	if _, err := cron.ParseStandard(spec); err != nil {
		v.check(false, path, "invalid schedule %q: %v", spec, err)
	}
}

// Validate checks the configuration and returns ValidationErrors when any
// field is invalid.
func (c *Config) Validate() error {
	v := &validator{}

	v.check(c.Server.Address != "", "server.address", "is required")
	v.check(c.Auth.HeaderName != "", "auth.headerName", "is required")
	v.check(c.Auth.Timeouts.Cache.Duration() > 0, "auth.timeouts.cache", "must be positive")
	v.check(c.Auth.Timeouts.Store.Duration() > 0, "auth.timeouts.store", "must be positive")
	v.check(!c.Auth.Enabled || c.APIKey.Enabled || c.JWT.Enabled, "auth", "at least one credential scheme must be enabled")

	if c.APIKey.Enabled {
		c.validateAPIKey(v)
	}
	if c.JWT.Enabled {
		v.check(len(c.JWT.Algorithms) > 0, "jwt.algorithms", "must not be empty")
		v.check(c.JWT.Secret != "" || c.JWT.JWKSFile != "" || c.JWT.JWKSURL != "",
			"jwt", "one of secret, jwksFile or jwksURL is required")
	}

	v.oneOf(c.Cache.Type, "cache.type", BackendMemory, BackendRedis)
	if c.Cache.Type == BackendRedis {
		v.check(c.Cache.Redis.URL != "", "cache.redis.url", "is required for the redis cache")
		v.check(c.Cache.Redis.KeyPrefix != "", "cache.redis.keyPrefix", "is required for the redis cache")
	}
	v.check(c.Cache.SweepInterval.Duration() > 0, "cache.sweepInterval", "must be positive")

	v.oneOf(c.Revocation.Type, "revocation.type", BackendMemory, BackendRedis)
	if c.Revocation.Type == BackendRedis {
		v.check(c.Revocation.Redis.URL != "" || c.Cache.Redis.URL != "",
			"revocation.redis.url", "is required for the redis revocation list")
		v.check(c.Revocation.Redis.KeyPrefix != "", "revocation.redis.keyPrefix", "is required for the redis revocation list")
	}

	if c.Audit.Enabled {
		v.check(c.Audit.BufferSize > 0, "audit.bufferSize", "must be positive")
		v.oneOf(c.Audit.StoreType, "audit.storeType", BackendMemory, BackendSQLite)
		if c.Audit.StoreType == BackendSQLite {
			v.check(c.Audit.SQLitePath != "", "audit.sqlitePath", "is required for the sqlite store")
		}
		if c.Audit.RetentionDays > 0 {
			v.cronSpec(c.Audit.RetentionSchedule, "audit.retentionSchedule")
		}
	}

	if c.Alert.Enabled {
		v.check(c.Audit.Enabled, "alert.enabled", "requires audit.enabled")
		v.cronSpec(c.Alert.Schedule, "alert.schedule")
		for name, rule := range map[string]AlertRuleConfig{
			"authFailureSpike": c.Alert.AuthFailureSpike,
			"suspiciousIP":     c.Alert.SuspiciousIP,
			"sanitization":     c.Alert.Sanitization,
			"tokenAnomaly":     c.Alert.TokenAnomaly,
		} {
			v.check(rule.Window.Duration() > 0, "alert."+name+".window", "must be positive")
			v.check(rule.Threshold > 0, "alert."+name+".threshold", "must be positive")
		}
		if c.Alert.Kafka.Enabled {
			v.check(len(c.Alert.Kafka.Brokers) > 0, "alert.kafka.brokers", "must not be empty")
			v.check(c.Alert.Kafka.Topic != "", "alert.kafka.topic", "is required")
		}
	}

	if len(v.errs) > 0 {
		return v.errs
	}
	return nil
}

func (c *Config) validateAPIKey(v *validator) {
	store := c.APIKey.Store
	v.oneOf(store.Type, "apiKey.store.type", BackendMemory, BackendFile, BackendSQLite, BackendVault)
	v.check(c.APIKey.CacheTTL.Duration() > 0, "apiKey.cacheTTL", "must be positive")

	switch store.Type {
	case BackendFile:
		v.check(store.File != "", "apiKey.store.file", "is required for the file store")
	case BackendSQLite:
		v.check(store.SQLitePath != "", "apiKey.store.sqlitePath", "is required for the sqlite store")
	case BackendVault:
		v.check(store.Vault.Address != "", "apiKey.store.vault.address", "is required for the vault store")
		v.check(store.Vault.Path != "", "apiKey.store.vault.path", "is required for the vault store")
	case BackendMemory:
		seen := make(map[string]bool, len(store.Principals))
		for i, p := range store.Principals {
			path := fmt.Sprintf("apiKey.store.principals[%d]", i)
			v.check(p.ID != "", path+".id", "is required")
			v.check(p.Value != "", path+".value", "is required")
			v.check(!seen[p.Value], path+".value", "duplicates another principal")
			seen[p.Value] = true
		}
	}
}
