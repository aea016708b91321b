package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// InitDB opens/creates a SQLite DB file and ensures tables exist.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}

	// one writer: the persistence worker
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set %s: %w", pragma, err)
		}
	}

	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return db, nil
}

const sqliteDriverName = "sqlite"

const schemaValidationConfig = `
CREATE TABLE IF NOT EXISTS validation_config (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    auto_reset_seconds REAL NOT NULL,
    sound_enabled BOOLEAN NOT NULL,
    station_id TEXT,
    line_id TEXT,
    production_line TEXT,
    product_model TEXT,
    voltage TEXT,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaValidationHistory = `
CREATE TABLE IF NOT EXISTS validation_history (
    id TEXT PRIMARY KEY,
    position INTEGER NOT NULL,
    serial1 TEXT NOT NULL,
    serial2 TEXT NOT NULL,
    state TEXT NOT NULL,
    message TEXT NOT NULL,
    occurred_at TIMESTAMP NOT NULL,
    production_line TEXT,
    product_model TEXT,
    voltage TEXT,
    station_id TEXT,
    line_id TEXT
);
`

const schemaAuditEvents = `
CREATE TABLE IF NOT EXISTS audit_events (
    id TEXT PRIMARY KEY,
    occurred_at TIMESTAMP NOT NULL,
    type TEXT NOT NULL,
    message TEXT NOT NULL,
    meta TEXT
);
`

const schemaAuditEventsIndex = `
CREATE INDEX IF NOT EXISTS idx_audit_events_occurred_at ON audit_events (occurred_at);
`

const schemaSupervisors = `
CREATE TABLE IF NOT EXISTS supervisors (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL
);
`

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for i, stmt := range []string{
		schemaValidationConfig,
		schemaValidationHistory,
		schemaAuditEvents,
		schemaAuditEventsIndex,
		schemaSupervisors,
	} {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
