// Package postgres implements store.Store on PostgreSQL via Grove ORM.
// Every entry is one row of subledger_entries keyed by (class, key).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/subledger/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type entryModel struct {
	grove.BaseModel `grove:"table:subledger_entries"`

	Class     int16     `grove:"class,pk"`
	Key       string    `grove:"key,pk"`
	Value     []byte    `grove:"value"`
	LiveUntil int64     `grove:"live_until"`
	Archived  bool      `grove:"archived"`
	UpdatedAt time.Time `grove:"updated_at"`
}

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the entry table using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("subledger/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("subledger/postgres: migration failed: %w", err)
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
	err := s.pg.NewSelect(m).
		Where("class = $1", int16(class)).
		Where("key = $2", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return store.Entry{}, store.ErrNotFound
		}
		return store.Entry{}, fmt.Errorf("subledger/postgres: get %s: %w", key, err)
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
			Class:     int16(mut.Class),
			Key:       mut.Key,
			Value:     mut.Value,
			LiveUntil: int64(mut.LiveUntil),
			UpdatedAt: t,
		}
		_, err := s.pg.NewInsert(m).
			OnConflict("(class, key) DO UPDATE").
			Set("value = EXCLUDED.value").
			Set("live_until = EXCLUDED.live_until").
			Set("archived = EXCLUDED.archived").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("subledger/postgres: apply %s: %w", mut.Key, err)
		}
	}
	return nil
}

// Purge clears the value of every row whose lifetime ended before now and
// marks it archived. The row itself stays as a tombstone.
func (s *Store) Purge(ctx context.Context, now uint32) (int64, error) {
	res, err := s.pg.NewUpdate((*entryModel)(nil)).
		Set("archived = $1", true).
		Set("value = $2", []byte{}).
		Set("updated_at = $3", time.Now().UTC()).
		Where("live_until < $4", int64(now)).
		Where("archived = $5", false).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("subledger/postgres: purge: %w", err)
	}
	return res.RowsAffected()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
