package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteDriverName = "sqlite"

// pragmas run once after open, ahead of the schema.
var pragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA foreign_keys = ON",
	"PRAGMA busy_timeout = 5000",
}

// InitDB opens or creates the SQLite file at path and applies the schema.
// The pool is capped at one connection so writes never contend.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open(sqliteDriverName, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := prepare(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func prepare(db *sql.DB) error {
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	if err := ensureSchema(db); err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

const schemaDeviceState = `
CREATE TABLE IF NOT EXISTS device_state (
    id TEXT PRIMARY KEY,
    display_name TEXT NOT NULL,
    internal_c REAL NOT NULL,
    ambient_c REAL NOT NULL,
    cook_state TEXT NOT NULL DEFAULT '',
    cook_name TEXT NOT NULL DEFAULT '',
    target_c REAL NOT NULL DEFAULT 0,
    peak_c REAL NOT NULL DEFAULT 0,
    elapsed_s INTEGER NOT NULL DEFAULT 0,
    remaining_s INTEGER NOT NULL DEFAULT 0,
    cook_refresh TEXT NOT NULL DEFAULT 'ACTIVE',
    external BOOLEAN NOT NULL DEFAULT 0,
    firmware TEXT NOT NULL DEFAULT '',
    refresh_s INTEGER NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaSyncEvents = `
CREATE TABLE IF NOT EXISTS sync_events (
    id TEXT PRIMARY KEY,
    occurred_at TIMESTAMP NOT NULL,
    type TEXT NOT NULL,
    device_id TEXT,
    message TEXT NOT NULL,
    meta TEXT
);
`

const indexSyncEvents = `
CREATE INDEX IF NOT EXISTS idx_sync_events_device ON sync_events (device_id, occurred_at);
`

const schemaUsers = `
CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    username TEXT UNIQUE NOT NULL,
    password_hash TEXT NOT NULL
);
`

var schema = []string{
	schemaDeviceState,
	schemaSyncEvents,
	indexSyncEvents,
	schemaUsers,
}

func ensureSchema(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range schema {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema transaction: %w", err)
	}
	return nil
}
