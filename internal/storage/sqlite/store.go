// Package sqlite provides the SQLite-backed stores and number counter.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Lllllllleong/balanceconfirmflow/internal/storage/sqlite/migrations"
	"github.com/Lllllllleong/balanceconfirmflow/internal/storage/sqlitemigrate"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const registrationCounter = "registration"

// Store persists partners, templates, registrations, requests and the email
// log in a single SQLite database.
type Store struct {
	sqlDB     *sql.DB
	counterMu sync.Mutex
}

// Open opens the database at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Reserve claims count consecutive registration numbers. The counter starts
// after the highest registered number the first time it is used.
func (s *Store) Reserve(ctx context.Context, count int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if count <= 0 {
		return 0, fmt.Errorf("reserve count must be positive, got %d", count)
	}
	s.counterMu.Lock()
	defer s.counterMu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin reserve: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO number_counters (name, next_value)
		 SELECT ?, COALESCE(MAX(number), 0) + 1 FROM registrations`,
		registrationCounter,
	); err != nil {
		return 0, fmt.Errorf("seed counter: %w", err)
	}

	var first int64
	if err := tx.QueryRowContext(ctx,
		`UPDATE number_counters SET next_value = next_value + ? WHERE name = ? RETURNING next_value - ?`,
		count, registrationCounter, count,
	).Scan(&first); err != nil {
		return 0, fmt.Errorf("advance counter: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit reserve: %w", err)
	}
	return first, nil
}

func toMillis(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UTC().UnixMilli(), Valid: true}
}

func fromMillis(v sql.NullInt64) time.Time {
	if !v.Valid {
		return time.Time{}
	}
	return time.UnixMilli(v.Int64).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
