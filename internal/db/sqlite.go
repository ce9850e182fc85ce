// Package db provides the durable store shared by the foreground and
// background contexts: a SQLite database opened in WAL mode, schema
// migrations, a retrying transaction executor, and a namespaced JSON
// key/value layer on top.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDBPath returns the default path for the reminder database. When
// the home directory cannot be resolved, the path is relative to the
// working directory.
func DefaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".organizador", "reminders.db")
	}

	return filepath.Join(home, ".organizador", "reminders.db")
}

// OpenSQLite opens a SQLite database connection with WAL mode enabled and
// pragmas tuned for a single-writer workload.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database "+
			"directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	)

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Both contexts write through the same connection; SQLite allows a
	// single writer, so the pool is capped at one connection.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := configurePragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	return sqlDB, nil
}

// configurePragmas sets additional SQLite pragmas.
func configurePragmas(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",

		// Negative value is in KiB, 16MB cache. The reminder store is
		// small; no need for a larger cache.
		"PRAGMA cache_size = -16384",

		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w",
				pragma, err)
		}
	}

	return nil
}

// Open opens the database at dbPath, applies pending migrations, and returns
// a Store wrapping it.
func Open(dbPath string) (*Store, error) {
	sqlDB, err := OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	if err := ApplyMigrations(sqlDB, TargetLatest); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return NewStore(sqlDB), nil
}
