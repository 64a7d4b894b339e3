// Package principal defines authenticated identities and the stores that
// resolve static credentials to them.
//
// A Store answers FindByValue, FindByID and Exists. Implementations:
//
//   - MemoryStore: in-process map, also the base of FileStore and VaultStore
//   - FileStore: YAML file, reloaded when the file changes
//   - SQLiteStore: SQLite table keyed by the SHA-256 of the credential
//   - VaultStore: Vault KV v2 secret, refreshed periodically
//
// BreakerStore wraps any Store with a circuit breaker so that a failing
// backend is reported as ErrUnavailable instead of being retried on every
// request.
package principal
