// Package cache provides a small keyed TTL cache for daemon snapshots.
//
// Entries are immutable once stored: a refresh replaces the entry wholesale.
// A miss is "absent or expired". The cache deliberately has no background
// sweeper; expired entries are dropped lazily on read, which is enough for
// the handful of keys the aggregator owns.
package cache

import (
	"sync"
	"time"
)

// Store is a TTL cache mapping string keys to values of type T.
type Store[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
	ttl     time.Duration
	now     func() time.Time
}

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// Option configures a Store.
type Option[T any] func(*Store[T])

// WithClock overrides the time source (for tests).
func WithClock[T any](now func() time.Time) Option[T] {
	return func(s *Store[T]) { s.now = now }
}

// New creates a Store whose entries live for ttl after each Set.
func New[T any](ttl time.Duration, opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		entries: make(map[string]entry[T]),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the live value for key, or the zero value and false on a miss.
func (s *Store[T]) Get(key string) (T, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		var zero T
		return zero, false
	}
	if s.now().After(e.expiresAt) {
		s.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have refreshed it.
		if cur, ok := s.entries[key]; ok && s.now().After(cur.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		var zero T
		return zero, false
	}
	return e.value, true
}

// Set stores value under key, replacing any previous entry.
func (s *Store[T]) Set(key string, value T) {
	s.mu.Lock()
	s.entries[key] = entry[T]{value: value, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
}

// Invalidate removes key if present.
func (s *Store[T]) Invalidate(key string) {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}
