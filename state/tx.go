package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/xraph/subledger/store"
)

var (
	// ErrTxDone is returned when a Tx is used after Commit.
	ErrTxDone = errors.New("state: transaction already committed")

	// ErrArchived is returned when an operation touches an entry whose
	// lifetime has ended, whether or not the backend has evicted it yet.
	// The entry cannot be read, extended or overwritten.
	ErrArchived = errors.New("state: entry archived")
)

type slot struct {
	key     Key
	entry   store.Entry
	present bool
	dirty   bool
}

// Tx is one invocation's buffered view of the store at a fixed tick.
// A Tx is not safe for concurrent use.
type Tx struct {
	backend  store.Store
	now      uint32
	policies Policies

	slots map[string]*slot
	order []string
	done  bool
}

// Begin opens a Tx over backend at tick now.
func Begin(backend store.Store, now uint32, policies Policies) *Tx {
	return &Tx{
		backend:  backend,
		now:      now,
		policies: policies,
		slots:    make(map[string]*slot),
	}
}

// Now returns the tick the Tx observes.
func (t *Tx) Now() uint32 { return t.now }

// load returns the cached slot for k, reading through to the backend once.
// Entries whose lifetime has elapsed fail with ErrArchived; only keys that
// were never written load as absent.
func (t *Tx) load(ctx context.Context, k Key) (*slot, error) {
	if t.done {
		return nil, ErrTxDone
	}
	name := k.String()
	if s, ok := t.slots[name]; ok {
		return s, nil
	}

	s := &slot{key: k}
	e, err := t.backend.Get(ctx, k.Class(), name)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case errors.Is(err, store.ErrArchived), err == nil && e.Expired(t.now):
		return nil, fmt.Errorf("%w: %s", ErrArchived, name)
	case err != nil:
		return nil, fmt.Errorf("state: get %s: %w", name, err)
	default:
		s.entry = e
		s.present = true
	}
	t.slots[name] = s
	return s, nil
}

func (t *Tx) markDirty(s *slot) {
	if !s.dirty {
		s.dirty = true
		t.order = append(t.order, s.key.String())
	}
}

func (t *Tx) bumpSlot(s *slot) {
	if !s.present {
		return
	}
	next := t.policies.For(s.key.Class()).Extend(t.now, s.entry.LiveUntil)
	if next != s.entry.LiveUntil {
		s.entry.LiveUntil = next
		t.markDirty(s)
	}
}

// Has reports whether a live entry exists under k. It does not extend the
// entry's lifetime.
func (t *Tx) Has(ctx context.Context, k Key) (bool, error) {
	s, err := t.load(ctx, k)
	if err != nil {
		return false, err
	}
	return s.present, nil
}

// Get decodes the entry under k into dst and reports whether it was present.
// Instance-class entries are bumped on every successful read.
func (t *Tx) Get(ctx context.Context, k Key, dst any) (bool, error) {
	s, err := t.load(ctx, k)
	if err != nil {
		return false, err
	}
	if !s.present {
		return false, nil
	}
	if err := json.Unmarshal(s.entry.Value, dst); err != nil {
		return false, fmt.Errorf("state: decode %s: %w", k, err)
	}
	if k.Class() == store.ClassInstance {
		t.bumpSlot(s)
	}
	return true, nil
}

// Set encodes v under k. A new entry starts with the initial lifetime; an
// existing one keeps its own. Instance-class entries are bumped on write.
func (t *Tx) Set(ctx context.Context, k Key, v any) error {
	s, err := t.load(ctx, k)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", k, err)
	}
	if !s.present {
		s.entry.LiveUntil = saturatingAdd(t.now, t.policies.Initial)
		s.present = true
	}
	s.entry.Value = data
	t.markDirty(s)
	if k.Class() == store.ClassInstance {
		t.bumpSlot(s)
	}
	return nil
}

// Bump applies the class lifetime policy to the entry under k. Absent
// entries are left alone.
func (t *Tx) Bump(ctx context.Context, k Key) error {
	s, err := t.load(ctx, k)
	if err != nil {
		return err
	}
	t.bumpSlot(s)
	return nil
}

// LiveUntil returns the lifetime of the entry under k as this Tx sees it,
// and false when the entry is absent.
func (t *Tx) LiveUntil(ctx context.Context, k Key) (uint32, bool, error) {
	s, err := t.load(ctx, k)
	if err != nil {
		return 0, false, err
	}
	return s.entry.LiveUntil, s.present, nil
}

// Pending returns the number of entries the Tx will write on Commit.
func (t *Tx) Pending() int { return len(t.order) }

// Commit hands every buffered write and bump to the backend in one batch.
// The Tx cannot be used afterwards, whether or not Commit succeeds.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if len(t.order) == 0 {
		return nil
	}

	muts := make([]store.Mutation, 0, len(t.order))
	for _, name := range t.order {
		s := t.slots[name]
		muts = append(muts, store.Mutation{
			Class:     s.key.Class(),
			Key:       name,
			Value:     s.entry.Value,
			LiveUntil: s.entry.LiveUntil,
		})
	}
	if err := t.backend.Apply(ctx, t.now, muts); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

// Read is a typed wrapper around Tx.Get.
func Read[T any](ctx context.Context, t *Tx, k Key) (T, bool, error) {
	var v T
	ok, err := t.Get(ctx, k, &v)
	return v, ok, err
}
