package jwt

import (
	"context"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
)

// DefaultKeySetRefresh is the minimum refresh interval of remote key sets.
const DefaultKeySetRefresh = 15 * time.Minute

// KeySet provides verification keys for asymmetric algorithms.
type KeySet interface {
	Keys(ctx context.Context) (jwk.Set, error)
}

// StaticKeySet is a fixed key set.
type StaticKeySet struct {
	set jwk.Set
}

// NewStaticKeySet wraps set.
func NewStaticKeySet(set jwk.Set) *StaticKeySet {
	return &StaticKeySet{set: set}
}

// LoadKeySetFile reads a JWKS document from path.
func LoadKeySetFile(path string) (*StaticKeySet, error) {
	set, err := jwk.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read jwks file %s: %w", path, err)
	}
	return NewStaticKeySet(set), nil
}

// Keys implements KeySet.
func (s *StaticKeySet) Keys(_ context.Context) (jwk.Set, error) {
	return s.set, nil
}

// RemoteKeySet fetches a JWKS document and refreshes it in the background
// until the context given to NewRemoteKeySet is done.
type RemoteKeySet struct {
	url   string
	cache *jwk.Cache
}

// NewRemoteKeySet registers url and performs the first fetch.
func NewRemoteKeySet(ctx context.Context, url string, refresh time.Duration) (*RemoteKeySet, error) {
	if refresh <= 0 {
		refresh = DefaultKeySetRefresh
	}

	c := jwk.NewCache(ctx)
	if err := c.Register(url, jwk.WithMinRefreshInterval(refresh)); err != nil {
		return nil, fmt.Errorf("register jwks url: %w", err)
	}
	if _, err := c.Refresh(ctx, url); err != nil {
		return nil, fmt.Errorf("fetch jwks %s: %w", url, err)
	}
	return &RemoteKeySet{url: url, cache: c}, nil
}

// Keys implements KeySet.
func (s *RemoteKeySet) Keys(ctx context.Context) (jwk.Set, error) {
	return s.cache.Get(ctx, s.url)
}
