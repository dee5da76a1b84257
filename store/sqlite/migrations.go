package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the subledger entry table (SQLite).
var Migrations = migrate.NewGroup("subledger")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_subledger_entries",
			Version: "20250101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS subledger_entries (
    class      INTEGER NOT NULL,
    key        TEXT NOT NULL,
    value      BLOB NOT NULL,
    live_until INTEGER NOT NULL,
    archived   INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL DEFAULT (datetime('now')),
    PRIMARY KEY (class, key)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS subledger_entries`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "index_subledger_entries_live_until",
			Version: "20250101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE INDEX IF NOT EXISTS idx_subledger_entries_live_until ON subledger_entries (live_until);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP INDEX IF EXISTS idx_subledger_entries_live_until`)
				return err
			},
		},
	)
}
