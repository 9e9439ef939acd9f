package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB

	// Prepared statements
	upsert *sql.Stmt
	remove *sql.Stmt

	// owned is set when the store opened db itself and must close it.
	owned bool
}

// NewSQLiteStore creates a new SQLiteStore from an already-opened and migrated database.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db}

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

// OpenSQLite opens (creating if needed) the database file at path, runs
// migrations, and returns a ready-to-use store. Closing the store closes
// the database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Immediate transactions take the write lock at BEGIN, so an Update in
	// another process waits instead of reading a value about to change.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := NewMigrationRunner(db).Run(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create store: %w", err)
	}
	store.owned = true

	return store, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.upsert, err = s.db.Prepare(`
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}

	s.remove, err = s.db.Prepare(`DELETE FROM kv WHERE key = ?`)
	if err != nil {
		return err
	}

	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Get returns the stored values for keys in a single query.
func (s *SQLiteStore) Get(ctx context.Context, keys ...string) (map[string][]byte, error) {
	return getKV(ctx, s.db, keys)
}

func getKV(ctx context.Context, q querier, keys []string) (map[string][]byte, error) {
	out := make(map[string][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	args := make([]interface{}, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")

	rows, err := q.QueryContext(ctx,
		"SELECT key, value FROM kv WHERE key IN ("+placeholders+")", args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query kv: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var k string
		var v []byte
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan kv: %w", err)
		}
		out[k] = v
	}

	return out, rows.Err()
}

// Set upserts all values inside one transaction.
func (s *SQLiteStore) Set(ctx context.Context, values map[string][]byte) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt := tx.StmtContext(ctx, s.upsert)
	for k, v := range values {
		if v == nil {
			v = []byte{}
		}
		if _, err := stmt.ExecContext(ctx, k, v); err != nil {
			return fmt.Errorf("upsert %s: %w", k, err)
		}
	}

	return tx.Commit()
}

// Remove deletes keys inside one transaction.
func (s *SQLiteStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt := tx.StmtContext(ctx, s.remove)
	for _, k := range keys {
		if _, err := stmt.ExecContext(ctx, k); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}

	return tx.Commit()
}

// Update runs the read, fn and the writes in one transaction. Databases
// opened with OpenSQLite begin it immediate, holding the write lock
// throughout.
func (s *SQLiteStore) Update(ctx context.Context, keys []string, fn UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	current, err := getKV(ctx, tx, keys)
	if err != nil {
		return err
	}
	changes, err := fn(current)
	if err != nil {
		return err
	}
	if changes.Empty() {
		return nil
	}

	upsert := tx.StmtContext(ctx, s.upsert)
	for k, v := range changes.Set {
		if v == nil {
			v = []byte{}
		}
		if _, err := upsert.ExecContext(ctx, k, v); err != nil {
			return fmt.Errorf("upsert %s: %w", k, err)
		}
	}
	remove := tx.StmtContext(ctx, s.remove)
	for _, k := range changes.Remove {
		if _, err := remove.ExecContext(ctx, k); err != nil {
			return fmt.Errorf("delete %s: %w", k, err)
		}
	}

	return tx.Commit()
}

// Size returns the on-disk size of the database in pages times page size.
func (s *SQLiteStore) Size(ctx context.Context) int64 {
	var pageCount, pageSize int64
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0
	}
	if err := s.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0
	}
	return pageCount * pageSize
}

// SchemaVersion returns the applied schema version.
func (s *SQLiteStore) SchemaVersion(ctx context.Context) (int, error) {
	return SchemaVersion(ctx, s.db)
}

// Close releases all prepared statements. The underlying *sql.DB is only
// closed when the store opened it itself (OpenSQLite).
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{s.upsert, s.remove}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	if s.owned {
		return s.db.Close()
	}
	return nil
}
