package jwt

import (
	"context"
	"time"

	"github.com/vyrodovalexey/authguard/internal/cache"
)

// RevocationStore holds revoked token identities until they expire.
type RevocationStore interface {
	// Contains reports whether id is revoked.
	Contains(ctx context.Context, id string) bool

	// Revoke marks id as revoked for ttl.
	Revoke(ctx context.Context, id string, ttl time.Duration)
}

// CacheRevocationStore keeps revocations in a validation cache, so it runs
// on either cache backend. A failing backend reports nothing as revoked.
type CacheRevocationStore struct {
	cache cache.ValidationCache[bool]
}

// NewRevocationStore creates a revocation store over c.
func NewRevocationStore(c cache.ValidationCache[bool]) *CacheRevocationStore {
	return &CacheRevocationStore{cache: c}
}

// Contains implements RevocationStore.
func (s *CacheRevocationStore) Contains(ctx context.Context, id string) bool {
	return s.cache.Exists(ctx, id)
}

// Revoke implements RevocationStore.
func (s *CacheRevocationStore) Revoke(ctx context.Context, id string, ttl time.Duration) {
	s.cache.Put(ctx, id, true, ttl)
}

// Close releases the underlying cache.
func (s *CacheRevocationStore) Close() error {
	return s.cache.Close()
}
