package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/franz/music-shelver/internal/util"
	_ "modernc.org/sqlite" // SQLite driver
)

const (
	currentSchemaVersion = 3
)

// dbtx is satisfied by both *sql.DB and *sql.Tx
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries runs statements against the database or an open transaction
type Queries struct {
	db dbtx
}

// Store represents the application's persistent state
type Store struct {
	*Queries
	db *sql.DB
}

// OpenOptions holds options for opening a database
type OpenOptions struct {
	BusyTimeoutMs int // Wait this long for a locked database (default 5000)
}

// Open opens or creates a SQLite database at the given path with default options
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, nil)
}

// OpenWithOptions opens or creates a SQLite database with custom options
func OpenWithOptions(path string, opts *OpenOptions) (*Store, error) {
	if opts == nil {
		opts = &OpenOptions{}
	}
	if opts.BusyTimeoutMs <= 0 {
		opts.BusyTimeoutMs = 5000
	}

	// Pragmas are applied per connection by the driver
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)",
		path, opts.BusyTimeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := &Store{Queries: &Queries{db: db}, db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return store, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for custom queries
func (s *Store) DB() *sql.DB {
	return s.db
}

// CheckIntegrity runs PRAGMA integrity_check and foreign_key_check
func (s *Store) CheckIntegrity() error {
	var result string
	if err := s.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check query failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	rows, err := s.db.Query("PRAGMA foreign_key_check")
	if err != nil {
		return fmt.Errorf("foreign key check failed: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		return fmt.Errorf("foreign key check failed: dangling references found")
	}
	return rows.Err()
}

// SchemaVersion returns the applied schema version
func (s *Store) SchemaVersion() (int, error) {
	return s.getSchemaVersion()
}

// migrate applies database migrations
func (s *Store) migrate() error {
	version, err := s.getSchemaVersion()
	if err != nil {
		return err
	}

	if version > currentSchemaVersion {
		return fmt.Errorf("%w: database is at version %d, this build supports %d",
			util.ErrSchemaMismatch, version, currentSchemaVersion)
	}
	if version == currentSchemaVersion {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if _, err := tx.Exec(m.sql); err != nil {
			return fmt.Errorf("failed to apply schema v%d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

// getSchemaVersion returns the current schema version
func (s *Store) getSchemaVersion() (int, error) {
	var exists int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}

	var version int
	err = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

// WithTransaction executes fn within a transaction. Any error rolls the
// whole transaction back and is reported as a persistence failure.
func (s *Store) WithTransaction(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", util.ErrPersistence, err)
	}
	defer tx.Rollback()

	if err := fn(&Queries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", util.ErrPersistence, err)
	}
	return nil
}

// Counts summarizes table sizes
type Counts struct {
	Before  int
	After   int
	Albums  int
	Artists int
}

// Counts returns row counts for the main tables
func (q *Queries) Counts(ctx context.Context) (*Counts, error) {
	c := &Counts{}
	err := q.db.QueryRowContext(ctx, `
		SELECT
		  (SELECT COUNT(*) FROM processing_before),
		  (SELECT COUNT(*) FROM processing_after),
		  (SELECT COUNT(*) FROM albums),
		  (SELECT COUNT(*) FROM artist_cache)
	`).Scan(&c.Before, &c.After, &c.Albums, &c.Artists)
	if err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}
	return c, nil
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
