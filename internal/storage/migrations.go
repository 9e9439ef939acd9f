package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one versioned schema step.
type migration struct {
	Version int
	Name    string
	Apply   func(tx *sql.Tx) error
}

// migrations lists every schema step in order. Versions never change once
// released.
var migrations = []migration{
	{Version: 1, Name: "kv_store", Apply: migrateV001},
}

// MigrationRunner brings a SQLite database up to the latest schema.
type MigrationRunner struct {
	db         *sql.DB
	migrations []migration
}

// NewMigrationRunner creates a MigrationRunner with all registered migrations.
func NewMigrationRunner(db *sql.DB) *MigrationRunner {
	return &MigrationRunner{db: db, migrations: migrations}
}

// Run applies pending migrations in order and returns how many ran. The
// connection is switched to WAL with a busy timeout first so the daemon and
// one-shot commands can share the file.
func (r *MigrationRunner) Run(ctx context.Context) (int, error) {
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := r.db.ExecContext(ctx, pragma); err != nil {
			return 0, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return 0, fmt.Errorf("create schema_migrations table: %w", err)
	}

	done, err := r.applied(ctx)
	if err != nil {
		return 0, fmt.Errorf("read applied migrations: %w", err)
	}

	ran := 0
	for _, m := range r.migrations {
		if done[m.Version] {
			continue
		}
		if err := r.apply(ctx, m); err != nil {
			return ran, fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		ran++
	}
	return ran, nil
}

func (r *MigrationRunner) applied(ctx context.Context) (map[int]bool, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	done := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		done[v] = true
	}
	return done, rows.Err()
}

// apply runs one migration and records it in the same transaction.
func (r *MigrationRunner) apply(ctx context.Context, m migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := m.Apply(tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		m.Version, m.Name,
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

// SchemaVersion returns the highest applied migration, 0 for an empty
// database.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v sql.NullInt64
	err := db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&v)
	if err != nil {
		return 0, err
	}
	return int(v.Int64), nil
}

// LatestSchemaVersion is the version Run migrates to.
func LatestSchemaVersion() int {
	return migrations[len(migrations)-1].Version
}
