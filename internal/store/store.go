package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	// Postgres through database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// DSN prefixes recognised by Open.
const (
	sqlitePrefix = "sqlite://"
	filePrefix   = "file:"
)

// Store holds the database handle and provides access to repositories.
type Store struct {
	db      *sql.DB
	dialect string
	seq     *sequenceCounter
}

// IsDSN reports whether target names a database rather than a file path.
func IsDSN(target string) bool {
	for _, p := range []string{sqlitePrefix, filePrefix, "postgres://", "postgresql://"} {
		if strings.HasPrefix(target, p) {
			return true
		}
	}
	return false
}

// Open creates a Store for dsn and creates any missing tables.
// Accepted forms:
//
//	sqlite://<path>             SQLite database file, created if missing
//	file:<uri>                  SQLite URI passed through as is
//	postgres://... (postgresql://...)  Postgres via pgx
func Open(dsn string) (*Store, error) {
	driver, dia, source, err := parseDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dia == dialect.SQLite {
		// A single connection keeps in-memory databases alive.
		db.SetMaxOpenConns(1)
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragmas: %w", err)
		}
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	seq, err := newSequenceCounter(ctx, db, dia)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db, dialect: dia, seq: seq}, nil
}

// DB returns the underlying *sql.DB for raw queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the ent dialect name of the database.
func (s *Store) Dialect() string {
	return s.dialect
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SnapshotRepo returns a SnapshotRepo backed by this store.
func (s *Store) SnapshotRepo() SnapshotRepo {
	return &snapshotRepo{db: s.db, dialect: s.dialect}
}

// EventBackend returns the event log table as an eventlog.Backend.
func (s *Store) EventBackend() *EventBackend {
	return &EventBackend{db: s.db, dialect: s.dialect, seq: s.seq}
}

// builder returns an ent SQL builder for the store's dialect so that
// placeholders and quoting match the database.
func builder(dia string) *entsql.DialectBuilder {
	return entsql.Dialect(dia)
}

func parseDSN(dsn string) (driver, dia, source string, err error) {
	switch {
	case strings.HasPrefix(dsn, sqlitePrefix):
		path := strings.TrimPrefix(dsn, sqlitePrefix)
		if path == "" {
			return "", "", "", fmt.Errorf("sqlite DSN %q has no path", dsn)
		}
		if err := EnsureDir(path); err != nil {
			return "", "", "", fmt.Errorf("create database dir: %w", err)
		}
		return "sqlite", dialect.SQLite, path, nil
	case strings.HasPrefix(dsn, filePrefix):
		return "sqlite", dialect.SQLite, dsn, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dialect.Postgres, dsn, nil
	}
	return "", "", "", fmt.Errorf("unsupported database DSN %q", dsn)
}

// applyPragmas configures SQLite for a single local writer.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

// schema is valid for both SQLite and Postgres.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS update_events (
		seq BIGINT PRIMARY KEY,
		entity_id TEXT NOT NULL,
		event_date TEXT NOT NULL,
		field TEXT NOT NULL,
		new_value TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		recorded_at BIGINT NOT NULL,
		UNIQUE (entity_id, event_date, field, new_value)
	)`,
	`CREATE INDEX IF NOT EXISTS update_events_event_date ON update_events (event_date)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		as_of TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		entity_count INTEGER NOT NULL,
		data TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS snapshots_as_of ON snapshots (as_of)`,
	`CREATE INDEX IF NOT EXISTS snapshots_created_at ON snapshots (created_at)`,
}

func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// EnsureDir creates the parent directory of path if it doesn't exist.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0o755)
}
