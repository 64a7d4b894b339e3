package principal

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/vyrodovalexey/authguard/internal/config"
)

var (
	// ErrNotFound is returned when no principal matches the lookup.
	ErrNotFound = errors.New("principal not found")

	// ErrUnavailable is returned when the backing store cannot answer.
	ErrUnavailable = errors.New("principal store unavailable")

	// ErrDuplicate is returned when a credential value is already assigned.
	ErrDuplicate = errors.New("principal credential already exists")
)

// Store resolves static credentials to principals. Lookups return
// ErrNotFound for unknown values; any other error means the store could not
// answer.
type Store interface {
	FindByValue(ctx context.Context, value string) (*Info, error)
	FindByID(ctx context.Context, id string) (*Info, error)
	Exists(ctx context.Context, value string) (bool, error)
}

// MemoryStore is an in-memory Store indexed by credential value and ID.
type MemoryStore struct {
	mu      sync.RWMutex
	byValue map[string]*Info
	byID    map[string]*Info
}

// NewMemoryStore creates a store holding the given principals.
func NewMemoryStore(principals ...*Info) *MemoryStore {
	s := &MemoryStore{}
	s.Replace(principals)
	return s
}

// NewMemoryStoreFromSpecs creates a store from declarative principals.
func NewMemoryStoreFromSpecs(specs []config.PrincipalSpec) *MemoryStore {
	return NewMemoryStore(fromSpecs(specs)...)
}

func fromSpecs(specs []config.PrincipalSpec) []*Info {
	now := time.Now()
	out := make([]*Info, 0, len(specs))
	for _, spec := range specs {
		out = append(out, FromSpec(spec, now))
	}
	return out
}

// FindByValue returns a copy of the principal owning value.
func (s *MemoryStore) FindByValue(_ context.Context, value string) (*Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byValue[value]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// FindByID returns a copy of the principal with id.
func (s *MemoryStore) FindByID(_ context.Context, id string) (*Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// Exists reports whether value is a known credential.
func (s *MemoryStore) Exists(_ context.Context, value string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.byValue[value]
	return ok, nil
}

// Put adds or replaces a principal. Assigning a value owned by another ID
// fails with ErrDuplicate.
func (s *MemoryStore) Put(p *Info) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.byValue[p.SecretValue]; ok && owner.ID != p.ID {
		return ErrDuplicate
	}
	if old, ok := s.byID[p.ID]; ok {
		delete(s.byValue, old.SecretValue)
	}
	c := p.Clone()
	s.byID[p.ID] = c
	s.byValue[p.SecretValue] = c
	return nil
}

// Delete removes the principal with id.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byValue, p.SecretValue)
	return nil
}

// Replace swaps the whole content atomically. Later duplicates of a value
// win.
func (s *MemoryStore) Replace(principals []*Info) {
	byValue := make(map[string]*Info, len(principals))
	byID := make(map[string]*Info, len(principals))
	for _, p := range principals {
		c := p.Clone()
		byValue[c.SecretValue] = c
		byID[c.ID] = c
	}

	s.mu.Lock()
	s.byValue = byValue
	s.byID = byID
	s.mu.Unlock()
}

// Len returns the number of principals.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
