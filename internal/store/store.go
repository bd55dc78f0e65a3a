// Package store is the sole SQL boundary of the pipeline. Every other
// package that needs persistence talks to a *Store method, never to a raw
// *sql.DB or a hand-built query string; this mirrors the teacher's DB
// wrapper, narrowed to exactly the read/write shapes the detector
// corrector, aggregator, fusion, extrapolator, and simulator driver need.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/DLR-TS/sumoldl/internal/logging"
	"github.com/DLR-TS/sumoldl/internal/schema"
)

//go:embed schema.sql
var freshSchemaSQL string

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a *sql.DB opened against a single SQLite file plus the
// table-name indirection a region's deployment selected.
type Store struct {
	db     *sql.DB
	schema schema.Schema
}

// Open opens (creating if necessary) the SQLite database at path, applies
// the pragmas the workload needs, and migrates it to the latest schema
// version before returning.
func Open(path string, sch schema.Schema) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, schema: sch}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for callers that need a raw
// query or transaction (store.Store's own upsert helpers already wrap the
// common cases; the store's tests use it to inspect sqlite_master).
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) migrate() error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("sub fs for embedded migrations: %w", err)
	}
	sourceDriver, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("iofs source driver: %w", err)
	}
	dbDriver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", dbDriver)
	if err != nil {
		return fmt.Errorf("new migrate instance: %w", err)
	}
	m.Log = migrateLogger{}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// migrateLogger adapts the package logger to migrate.Logger.
type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...interface{}) {
	logging.Logf("migrate: "+format, v...)
}

func (migrateLogger) Verbose() bool { return false }

// FreshSchemaSQL is the fresh-install snapshot embedded from schema.sql,
// exposed for comparison against the migrated database; nothing in this
// repository calls it.
func FreshSchemaSQL() string { return freshSchemaSQL }
