package storage

import "database/sql"

// migrateV001 creates the key-value table backing the relay state. Every
// statement uses IF NOT EXISTS for idempotency.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_kv_updated_at ON kv(updated_at)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}
