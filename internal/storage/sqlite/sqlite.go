// Package sqlite provides a SQLite-backed document store implementing storage.Store.
// Every collection is a table of JSON documents queried with json_extract.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/dvloznov/grocery-tracker/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// DefaultAppliedBy is recorded in schema_migrations when the store migrates itself on startup.
const DefaultAppliedBy = "grocery-tracker"

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// open opens the database file, creating its directory if needed.
func open(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers; the guarded read-modify-write
	// transactions rely on it.
	db.SetMaxOpenConns(1)

	return db, nil
}

// New creates a SQLiteStore at dbPath and applies pending migrations.
func New(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := migrate(ctx, db, migrationFiles, DefaultAppliedBy); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate applies pending migrations to the database at dbPath and reports
// which ran in this call and the full applied history.
func Migrate(ctx context.Context, dbPath, appliedBy string) (ran []Migration, history []AppliedMigration, err error) {
	db, err := open(dbPath)
	if err != nil {
		return nil, nil, err
	}
	defer db.Close()

	ran, err = migrate(ctx, db, migrationFiles, appliedBy)
	if err != nil {
		return ran, nil, err
	}

	history, err = appliedMigrations(ctx, db)
	return ran, history, err
}

// Ping verifies the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
