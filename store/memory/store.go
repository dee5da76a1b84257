// Package memory provides an in-process store.Store used for tests and
// single-node deployments.
package memory

import (
	"context"
	"sync"

	"github.com/xraph/subledger/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

type entryKey struct {
	class store.Class
	key   string
}

// Store keeps entries in maps guarded by a RWMutex. Purged keys stay behind
// as tombstones so they keep reading as archived.
type Store struct {
	mu sync.RWMutex

	entries  map[entryKey]store.Entry
	archived map[entryKey]struct{}
	closed   bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		entries:  make(map[entryKey]store.Entry),
		archived: make(map[entryKey]struct{}),
	}
}

func (s *Store) Get(_ context.Context, class store.Class, key string) (store.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return store.Entry{}, store.ErrClosed
	}

	k := entryKey{class, key}
	e, ok := s.entries[k]
	if !ok {
		if _, gone := s.archived[k]; gone {
			return store.Entry{}, store.ErrArchived
		}
		return store.Entry{}, store.ErrNotFound
	}

	// Callers own the returned slice.
	out := make([]byte, len(e.Value))
	copy(out, e.Value)
	return store.Entry{Value: out, LiveUntil: e.LiveUntil}, nil
}

// Apply writes the whole batch under a single lock, so readers never see a
// partially applied commit.
func (s *Store) Apply(_ context.Context, _ uint32, muts []store.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}

	for _, m := range muts {
		val := make([]byte, len(m.Value))
		copy(val, m.Value)
		k := entryKey{m.Class, m.Key}
		s.entries[k] = store.Entry{Value: val, LiveUntil: m.LiveUntil}
		delete(s.archived, k)
	}
	return nil
}

func (s *Store) Purge(_ context.Context, now uint32) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, store.ErrClosed
	}

	var count int64
	for k, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, k)
			s.archived[k] = struct{}{}
			count++
		}
	}
	return count, nil
}

// Len returns the number of stored entries, live or not. Archived
// tombstones are not counted.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Core methods
func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
