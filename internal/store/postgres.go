// Package store provides storage backends for StepUp.
//
// This file implements the PostgreSQL-backed store.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a reactive store persisted to PostgreSQL.
type PostgresStore struct {
	*MemoryStore
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	slog.Debug("Opening Postgres database connection")
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	// Configure connection pool for better performance
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &PostgresStore{MemoryStore: NewMemoryStore(), db: db}
	if err := s.loadRecords(); err != nil {
		return nil, err
	}
	s.onCommit = s.persistRecord
	slog.Debug("PostgresStore ready")
	return s, nil
}

// loadRecords restores all persisted keys into the in-memory store.
func (s *PostgresStore) loadRecords() error {
	rows, err := s.db.Query(`SELECT key, value FROM records`)
	if err != nil {
		slog.Error("PostgresStore loadRecords query failed", "error", err)
		return fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			slog.Error("PostgresStore loadRecords scan failed", "error", err)
			return fmt.Errorf("failed to scan record row: %w", err)
		}
		value, err := decodeValue(Key(key), raw)
		if err != nil {
			slog.Error("PostgresStore loadRecords decode failed", "error", err, "key", key)
			return err
		}
		s.values[Key(key)] = value
		count++
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore loadRecords iteration failed", "error", err)
		return fmt.Errorf("failed to iterate record rows: %w", err)
	}
	slog.Debug("PostgresStore loaded persisted records", "count", count)
	return nil
}

// persistRecord writes a committed value through to the records table.
func (s *PostgresStore) persistRecord(key Key, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		slog.Error("PostgresStore persistRecord marshal failed", "error", err, "key", key)
		return
	}
	_, err = s.db.Exec(
		`INSERT INTO records (key, value, updated_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		string(key), raw,
	)
	if err != nil {
		slog.Error("PostgresStore persistRecord write failed", "error", err, "key", key)
		return
	}
	slog.Debug("PostgresStore persisted record", "key", key)
}

// Close closes the underlying database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
