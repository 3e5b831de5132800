// Package syncutil provides keyed mutual exclusion for per-wallet operations.
package syncutil

import (
	"context"
	"sync"
)

// KeyedMutex serializes callers contending for the same key while allowing
// callers with different keys to proceed concurrently. Unlike a fixed shard
// pool, distinct keys never contend with each other; entries are removed
// once the last waiter releases, so the map stays bounded by live keys.
type KeyedMutex struct {
	mu      sync.Mutex
	entries map[string]*keyEntry
}

type keyEntry struct {
	ch   chan struct{} // holds one token when unlocked
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{entries: make(map[string]*keyEntry)}
}

// Lock acquires the mutex for key, blocking until it is available or ctx is
// done. On success it returns an unlock function that the caller MUST invoke
// exactly once. On cancellation it returns ctx.Err() and no unlock function.
func (m *KeyedMutex) Lock(ctx context.Context, key string) (func(), error) {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &keyEntry{ch: make(chan struct{}, 1)}
		e.ch <- struct{}{} // start unlocked
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	select {
	case <-e.ch:
		return func() {
			e.ch <- struct{}{}
			m.release(key, e)
		}, nil
	case <-ctx.Done():
		m.release(key, e)
		return nil, ctx.Err()
	}
}

func (m *KeyedMutex) release(key string, e *keyEntry) {
	m.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(m.entries, key)
	}
	m.mu.Unlock()
}

// Len reports the number of keys currently held or waited on.
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
