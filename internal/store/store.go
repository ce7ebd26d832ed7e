// Package store provides durable, single-writer relational storage for the
// oracle: document metadata, the FTS5 keyword index, telemetry logs, traces,
// decisions and forum threads, all in one SQLite file.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Store owns the SQLite database. One Store per process; the HTTP instance
// lock prevents cross-process writers.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (or creates) the database at path and applies migrations.
// A corrupt database is fatal: the error propagates to the caller.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	logger.Info("store opened", zap.String("path", path))
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for read-only aggregation queries in tests.
func (s *Store) DB() *sql.DB { return s.db }

// migrate applies the bootstrap DDL and idempotent follow-up migrations.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(bootstrapDDL); err != nil {
		return fmt.Errorf("bootstrap DDL: %w", err)
	}
	for i, stmt := range migrations {
		if _, err := s.db.Exec(stmt); err != nil {
			// The project-column migration fails with "duplicate column"
			// once applied; that is the idempotence signal, not a fault.
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

// Time columns are stored as RFC3339 UTC text.

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

// nullIfEmpty maps "" to SQL NULL so "no project" stays distinguishable
// from an empty slug.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
