package audit

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrStoreClosed is returned by stores after Close.
var ErrStoreClosed = errors.New("audit store closed")

// DefaultMemoryCapacity bounds the in-process event history.
const DefaultMemoryCapacity = 100000

// Filter selects events. Zero fields match everything. From is inclusive
// and To is exclusive.
type Filter struct {
	From     time.Time
	To       time.Time
	Type     EventType
	UserID   string
	ClientIP string
	Success  *bool
	Limit    int
}

// Match reports whether e satisfies f.
func (f Filter) Match(e Event) bool {
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && !e.Timestamp.Before(f.To) {
		return false
	}
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.ClientIP != "" && e.ClientIP != f.ClientIP {
		return false
	}
	if f.Success != nil && e.Success != *f.Success {
		return false
	}
	return true
}

// Bool returns a pointer to b, for Filter.Success.
func Bool(b bool) *bool {
	return &b
}

// Store persists audit events.
type Store interface {
	// Append writes one event.
	Append(ctx context.Context, e Event) error

	// Query returns matching events ordered by timestamp, oldest first.
	Query(ctx context.Context, f Filter) ([]Event, error)

	// Count returns the number of matching events, ignoring f.Limit.
	Count(ctx context.Context, f Filter) (int, error)

	// DeleteBefore removes events older than t and returns how many.
	DeleteBefore(ctx context.Context, t time.Time) (int, error)

	// Close releases resources.
	Close() error
}

// MemoryStore keeps the most recent events in memory.
type MemoryStore struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
	closed   bool
}

// NewMemoryStore creates a store holding at most capacity events; older
// events are discarded first. A non-positive capacity uses
// DefaultMemoryCapacity.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity}
}

// Append implements Store.
func (s *MemoryStore) Append(_ context.Context, e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	// keep sorted by timestamp; events almost always arrive in order
	i := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].Timestamp.After(e.Timestamp)
	})
	s.events = append(s.events, Event{})
	copy(s.events[i+1:], s.events[i:])
	s.events[i] = e

	// Dropping from the front reslices; append reallocates once the backing
	// array is exhausted and copies only the retained window.
	if over := len(s.events) - s.capacity; over > 0 {
		clear(s.events[:over])
		s.events = s.events[over:]
	}
	return nil
}

// Query implements Store.
func (s *MemoryStore) Query(_ context.Context, f Filter) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	var out []Event
	for _, e := range s.events {
		if !f.Match(e) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// Count implements Store.
func (s *MemoryStore) Count(_ context.Context, f Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	n := 0
	for _, e := range s.events {
		if f.Match(e) {
			n++
		}
	}
	return n, nil
}

// DeleteBefore implements Store.
func (s *MemoryStore) DeleteBefore(_ context.Context, t time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	i := sort.Search(len(s.events), func(i int) bool {
		return !s.events[i].Timestamp.Before(t)
	})
	if i > 0 {
		s.events = append(s.events[:0:0], s.events[i:]...)
	}
	return i, nil
}

// Len returns the number of held events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.events = nil
	s.mu.Unlock()
	return nil
}
