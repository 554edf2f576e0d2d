package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const currentSchemaVersion = 1

func OpenDB(dbPath string) (*sql.DB, error) {
	parentDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		return nil, fmt.Errorf("creating parent directories: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	if err := migrateSchema(db, dbPath); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func migrateSchema(db *sql.DB, dbPath string) error {
	var tableName string
	err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)

	var currentVersion int
	if err == sql.ErrNoRows {
		currentVersion = 0
	} else if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	} else {
		err = db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&currentVersion)
		if err == sql.ErrNoRows {
			currentVersion = 0
		} else if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	if currentVersion > currentSchemaVersion {
		return fmt.Errorf(
			"database schema version %d is newer than this latency-top version supports (max: %d); upgrade latency-top or delete %s to start fresh",
			currentVersion, currentSchemaVersion, dbPath,
		)
	}

	if currentVersion < currentSchemaVersion {
		if err := applyMigrations(db, currentVersion); err != nil {
			return fmt.Errorf("applying migrations: %w", err)
		}
	}

	return nil
}

func applyMigrations(db *sql.DB, fromVersion int) error {
	if fromVersion == 0 {
		if err := migrateV0ToV1(db); err != nil {
			return fmt.Errorf("migration v0→v1: %w", err)
		}
	}

	return nil
}

func migrateV0ToV1(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	statements := []struct {
		name string
		sql  string
	}{
		{"schema_version table", `
			CREATE TABLE IF NOT EXISTS schema_version (
				version INTEGER NOT NULL
			)`},
		{"schema version", "INSERT INTO schema_version (version) VALUES (1)"},
		{"monitors table", `
			CREATE TABLE IF NOT EXISTS monitors (
				monitor TEXT PRIMARY KEY,
				first_sample_ms INTEGER NOT NULL,
				last_sample_ms INTEGER NOT NULL,
				last_latency_ms REAL
			)`},
		{"samples table", `
			CREATE TABLE IF NOT EXISTS samples (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				monitor TEXT NOT NULL,
				latency_ms REAL NOT NULL,
				ts_ms INTEGER NOT NULL
			)`},
		{"daily_latency table", `
			CREATE TABLE IF NOT EXISTS daily_latency (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				monitor TEXT NOT NULL,
				day_start_at INTEGER NOT NULL,
				date TEXT NOT NULL,
				p50_ms REAL,
				p95_ms REAL,
				sample_count INTEGER NOT NULL DEFAULT 0,
				UNIQUE(monitor, day_start_at)
			)`},
		{"idx_samples_monitor_ts", "CREATE INDEX IF NOT EXISTS idx_samples_monitor_ts ON samples(monitor, ts_ms)"},
		{"idx_samples_ts", "CREATE INDEX IF NOT EXISTS idx_samples_ts ON samples(ts_ms)"},
		{"idx_daily_day", "CREATE INDEX IF NOT EXISTS idx_daily_day ON daily_latency(day_start_at)"},
	}

	for _, st := range statements {
		if _, err := tx.Exec(st.sql); err != nil {
			return fmt.Errorf("creating %s: %w", st.name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}
