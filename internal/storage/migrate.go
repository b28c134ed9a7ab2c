package storage

import (
	"database/sql"
	"fmt"
)

// SchemaVersion is the latest schema version supported by the migrator.
const SchemaVersion = 1

// Migrate ensures the SQLite schema exists and is upgraded to SchemaVersion.
func Migrate(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("migrate: db is nil")
	}

	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY);`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}

	var current int
	err = db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&current)
	if err != nil {
		return fmt.Errorf("migrate: read current version: %w", err)
	}

	if current >= SchemaVersion {
		return nil
	}

	transaction, err := db.Begin()
	if err != nil {
		return fmt.Errorf("migrate: begin transaction: %w", err)
	}
	defer func() {
		_ = transaction.Rollback()
	}()

	_, err = transaction.Exec(`
		CREATE TABLE IF NOT EXISTS sweep_rows (
			sweep_id TEXT NOT NULL,
			coverage TEXT NOT NULL,
			probability REAL NOT NULL,
			mean_size REAL NULL,
			epidemics INTEGER NOT NULL,
			failures INTEGER NOT NULL,
			replications INTEGER NOT NULL,
			completed_at TEXT NOT NULL,
			PRIMARY KEY (sweep_id, coverage)
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate: create sweep_rows table: %w", err)
	}

	_, err = transaction.Exec(`INSERT INTO schema_migrations (version) VALUES (?);`, SchemaVersion)
	if err != nil {
		return fmt.Errorf("migrate: record version: %w", err)
	}

	if err := transaction.Commit(); err != nil {
		return fmt.Errorf("migrate: commit: %w", err)
	}
	return nil
}
