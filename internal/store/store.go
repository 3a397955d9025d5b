// Package store provides the shared SQLite persistence layer. Every module
// keeps its tables in the one database file; the store tracks per-module
// schema versions so modules can migrate independently.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/perquyk/snutz/pkg/plugin"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

var _ plugin.Store = (*SQLiteStore)(nil)

// SQLiteStore implements plugin.Store on a single SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	mu   sync.Mutex // serializes Migrate across modules
	once sync.Once  // guards _migrations table creation
}

// Pragmas applied at open. modernc.org/sqlite wants these as statements
// rather than DSN parameters.
var openPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
	"PRAGMA cache_size=-20000",
}

// New opens or creates the SQLite database at path. The pool is capped at a
// single connection; SQLite allows one writer and WAL keeps readers moving.
func New(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite %q: %w", path, err)
	}

	for _, pragma := range openPragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec %q: %w", pragma, err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// DB exposes the underlying *sql.DB for module queries.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Tx runs fn inside a transaction, committing on nil and rolling back on
// error.
func (s *SQLiteStore) Tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original: %w)", rbErr, err)
		}
		return err
	}

	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate applies the module's migrations that have not run yet, in the
// order given. Applied versions are recorded in the shared _migrations
// table, so re-running with the same slice is a no-op.
func (s *SQLiteStore) Migrate(ctx context.Context, module string, migrations []plugin.Migration) error {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	applied, err := s.appliedVersions(ctx, module)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		if err := s.applyMigration(ctx, module, m); err != nil {
			return fmt.Errorf("migration %s/%d (%s): %w", module, m.Version, m.Description, err)
		}
	}

	return nil
}

func (s *SQLiteStore) ensureMigrationsTable(ctx context.Context) error {
	var err error
	s.once.Do(func() {
		_, err = s.db.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS _migrations (
				module_name TEXT    NOT NULL,
				version     INTEGER NOT NULL,
				description TEXT    NOT NULL,
				applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				PRIMARY KEY (module_name, version)
			)
		`)
	})
	return err
}

// appliedVersions returns the set of migration versions already recorded for
// the module.
func (s *SQLiteStore) appliedVersions(ctx context.Context, module string) (map[int]bool, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT version FROM _migrations WHERE module_name = ?", module)
	if err != nil {
		return nil, fmt.Errorf("load migrations for %s: %w", module, err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

// applyMigration runs a single migration and records it, atomically.
func (s *SQLiteStore) applyMigration(ctx context.Context, module string, m plugin.Migration) error {
	return s.Tx(ctx, func(tx *sql.Tx) error {
		if err := m.Up(tx); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			"INSERT INTO _migrations (module_name, version, description) VALUES (?, ?, ?)",
			module, m.Version, m.Description,
		)
		return err
	})
}
