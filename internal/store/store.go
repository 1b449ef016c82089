// Package store persists projects and matches in SQLite.
//
// Projects are keyed by their source link and are never duplicated:
// re-ingesting a link only refreshes its ingestion time. Matches are
// append-only; every pipeline run inserts new rows.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const (
	driver      = "sqlite"
	timeLayout  = "2006-01-02 15:04:05"
	busyTimeout = 10_000
)

var (
	// ErrPersistence wraps every failed read or write against the database.
	ErrPersistence = errors.New("persistence failure")
	ErrNotFound    = errors.New("not found")
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id              TEXT PRIMARY KEY,
	link            TEXT NOT NULL UNIQUE,
	title           TEXT NOT NULL DEFAULT '',
	company         TEXT NOT NULL DEFAULT '',
	description     TEXT NOT NULL DEFAULT '',
	keywords        TEXT NOT NULL DEFAULT '',
	created_at      TEXT,
	is_featured     INTEGER NOT NULL DEFAULT 0,
	is_end_customer INTEGER NOT NULL DEFAULT 0,
	ingested_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_projects_created_at ON projects(created_at);

CREATE TABLE IF NOT EXISTS matches (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	project_id  TEXT NOT NULL REFERENCES projects(id),
	score       REAL NOT NULL,
	explanation TEXT NOT NULL DEFAULT '',
	excluded    INTEGER NOT NULL DEFAULT 0,
	matched_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_matches_matched_at ON matches(matched_at);
CREATE INDEX IF NOT EXISTS idx_matches_score ON matches(score);
`

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if path == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	if err := prepare(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("database opened", zap.String("path", path))

	return New(db, logger), nil
}

// New wraps a database that already carries the schema.
func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// OpenMemory opens an in-memory store closed at the end of the test.
func OpenMemory(t testing.TB) *Store {
	t.Helper()
	s, err := Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("store.OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func prepare(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout),
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// IsBusy reports whether err comes from a locked database and is worth retrying.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// IsConstraint reports whether err is a constraint violation, e.g. a match
// pointing at an unknown project. Retrying cannot fix it.
func IsConstraint(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "constraint failed") ||
		strings.Contains(msg, "SQLITE_CONSTRAINT")
}

func persistence(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

func formatTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(timeLayout), Valid: true}
}

func parseTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	return time.ParseInLocation(timeLayout, s.String, time.UTC)
}
