// Package sqlite implements store.Store on SQLite via Grove ORM. It suits
// single-node deployments and tests that want a real SQL backend.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/subledger/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type entryModel struct {
	grove.BaseModel `grove:"table:subledger_entries"`

	Class     int64     `grove:"class,pk"`
	Key       string    `grove:"key,pk"`
	Value     []byte    `grove:"value"`
	LiveUntil int64     `grove:"live_until"`
	Archived  bool      `grove:"archived"`
	UpdatedAt time.Time `grove:"updated_at"`
}

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the entry table using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("subledger/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("subledger/sqlite: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, class store.Class, key string) (store.Entry, error) {
	m := new(entryModel)
	err := s.sdb.NewSelect(m).
		Where("class = ?", int64(class)).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return store.Entry{}, store.ErrNotFound
		}
		return store.Entry{}, fmt.Errorf("subledger/sqlite: get %s: %w", key, err)
	}
	if m.Archived {
		return store.Entry{}, store.ErrArchived
	}
	return store.Entry{Value: m.Value, LiveUntil: uint32(m.LiveUntil)}, nil
}

// Apply upserts each mutation in order.
func (s *Store) Apply(ctx context.Context, _ uint32, muts []store.Mutation) error {
	t := time.Now().UTC()
	for _, mut := range muts {
		m := &entryModel{
			Class:     int64(mut.Class),
			Key:       mut.Key,
			Value:     mut.Value,
			LiveUntil: int64(mut.LiveUntil),
			UpdatedAt: t,
		}
		_, err := s.sdb.NewInsert(m).
			OnConflict("(class, key) DO UPDATE").
			Set("value = EXCLUDED.value").
			Set("live_until = EXCLUDED.live_until").
			Set("archived = EXCLUDED.archived").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("subledger/sqlite: apply %s: %w", mut.Key, err)
		}
	}
	return nil
}

// Purge clears the value of every row whose lifetime ended before now and
// marks it archived. The row itself stays as a tombstone.
func (s *Store) Purge(ctx context.Context, now uint32) (int64, error) {
	res, err := s.sdb.NewUpdate((*entryModel)(nil)).
		Set("archived = ?", true).
		Set("value = ?", []byte{}).
		Set("updated_at = ?", time.Now().UTC()).
		Where("live_until < ?", int64(now)).
		Where("archived = ?", false).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("subledger/sqlite: purge: %w", err)
	}
	return res.RowsAffected()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
