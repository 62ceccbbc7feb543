package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	sqlStore
}

// NewPostgresStore creates a new Postgres store and applies migrations
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{sqlStore{db: db, dollarBinds: true}}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	return s.exec(
		`CREATE TABLE IF NOT EXISTS reports (
			id TEXT PRIMARY KEY,
			package TEXT NOT NULL DEFAULT '',
			sha256 TEXT NOT NULL DEFAULT '',
			risk_level TEXT NOT NULL,
			risk_rank INTEGER NOT NULL,
			score INTEGER NOT NULL,
			block_execution BOOLEAN NOT NULL DEFAULT FALSE,
			findings_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			body JSONB NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports (created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_reports_sha256 ON reports (sha256);`,
	)
}
