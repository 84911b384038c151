// Package store provides storage backends for StepUp.
//
// This file implements the SQLite-backed store. Durable keys are written
// through to a records table as JSON; subscriptions and merge semantics come
// from the embedded in-memory store. Challenges are never written here.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a reactive store persisted to a SQLite database file.
type SQLiteStore struct {
	*MemoryStore
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	slog.Debug("Opening SQLite database connection")
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &SQLiteStore{MemoryStore: NewMemoryStore(), db: db}
	if err := s.loadRecords(); err != nil {
		return nil, err
	}
	s.onCommit = s.persistRecord
	slog.Debug("SQLiteStore ready", "path", dsn)
	return s, nil
}

// loadRecords restores all persisted keys into the in-memory store.
func (s *SQLiteStore) loadRecords() error {
	rows, err := s.db.Query(`SELECT key, value FROM records`)
	if err != nil {
		slog.Error("SQLiteStore loadRecords query failed", "error", err)
		return fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			slog.Error("SQLiteStore loadRecords scan failed", "error", err)
			return fmt.Errorf("failed to scan record row: %w", err)
		}
		value, err := decodeValue(Key(key), []byte(raw))
		if err != nil {
			slog.Error("SQLiteStore loadRecords decode failed", "error", err, "key", key)
			return err
		}
		s.values[Key(key)] = value
		count++
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore loadRecords iteration failed", "error", err)
		return fmt.Errorf("failed to iterate record rows: %w", err)
	}
	slog.Debug("SQLiteStore loaded persisted records", "count", count)
	return nil
}

// persistRecord writes a committed value through to the records table.
// Persistence failures are logged rather than surfaced; the in-memory state
// remains authoritative for the running process.
func (s *SQLiteStore) persistRecord(key Key, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		slog.Error("SQLiteStore persistRecord marshal failed", "error", err, "key", key)
		return
	}
	_, err = s.db.Exec(
		`INSERT INTO records (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		string(key), string(raw),
	)
	if err != nil {
		slog.Error("SQLiteStore persistRecord write failed", "error", err, "key", key)
		return
	}
	slog.Debug("SQLiteStore persisted record", "key", key)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
