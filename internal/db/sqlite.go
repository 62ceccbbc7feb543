package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore creates a new SQLite store and applies migrations
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Serialize writers; concurrent workers share one store.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{sqlStore{db: db}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	return s.exec(
		`PRAGMA busy_timeout = 5000;`,
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			package TEXT NOT NULL DEFAULT '',
			sha256 TEXT NOT NULL DEFAULT '',
			risk_level TEXT NOT NULL,
			risk_rank INTEGER NOT NULL,
			score INTEGER NOT NULL,
			block_execution BOOLEAN NOT NULL DEFAULT 0,
			findings_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			body TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports (created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_sha256 ON reports (sha256);`,
	)
}
