// Package store defines the expiring key-value contract that every subledger
// backend implements.
//
// Each entry carries its own lifetime expressed as the last logical tick at
// which it is still live. Backends persist the lifetime alongside the value;
// deciding whether an entry has lapsed and when to extend it is left to the
// caller (see package state).
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no entry exists for the key.
var ErrNotFound = errors.New("store: entry not found")

// ErrArchived is returned by Get when an entry was stored under the key but
// has since been evicted. A key that was ever written never reads as
// ErrNotFound again.
var ErrArchived = errors.New("store: entry archived")

// ErrClosed is returned by backends used after Close.
var ErrClosed = errors.New("store: closed")

// Class partitions the keyspace by lifetime policy.
type Class uint8

const (
	// ClassInstance holds ledger configuration and counters.
	ClassInstance Class = iota + 1
	// ClassPersistent holds durable records and index entries.
	ClassPersistent
)

// String returns the short name backends use as a key namespace.
func (c Class) String() string {
	switch c {
	case ClassInstance:
		return "instance"
	case ClassPersistent:
		return "persistent"
	default:
		return "unknown"
	}
}

// Entry is a stored value and its lifetime.
type Entry struct {
	Value     []byte
	LiveUntil uint32
}

// Expired reports whether the entry is no longer live at tick now.
func (e Entry) Expired(now uint32) bool {
	return e.LiveUntil < now
}

// Mutation is a full upsert of one entry.
type Mutation struct {
	Class     Class
	Key       string
	Value     []byte
	LiveUntil uint32
}

// Store is the expiring key-value storage interface for subledger.
type Store interface {
	// Get returns the entry stored under key. It returns ErrNotFound for a
	// key that was never written and ErrArchived for one that was evicted.
	Get(ctx context.Context, class Class, key string) (Entry, error)

	// Apply upserts all mutations. now is the tick at which the batch was
	// produced; backends with native expiry use it to derive a TTL.
	Apply(ctx context.Context, now uint32, muts []Mutation) error

	// Purge evicts the values of entries whose lifetime ended before now and
	// returns how many were evicted. Evicted keys keep a tombstone so Get
	// reports them as ErrArchived.
	Purge(ctx context.Context, now uint32) (int64, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
