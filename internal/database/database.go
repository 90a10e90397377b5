package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"grillbook/internal/domain"
	"grillbook/internal/timeutil"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
)

const (
	// timeLayout is fixed-width so stored instants compare lexically.
	timeLayout  = "2006-01-02T15:04:05.000Z07:00"
	pingTimeout = 3 * time.Second
)

// DB is the SQLite reservation store.
type DB struct {
	*sql.DB
	path   string
	logger *zerolog.Logger
	loc    *time.Location
	clock  timeutil.Clock
}

type Option func(*DB)

// WithLocation converts times read from the store into loc.
func WithLocation(loc *time.Location) Option {
	return func(db *DB) {
		if loc != nil {
			db.loc = loc
		}
	}
}

// WithClock sets the clock used to stamp created_at.
func WithClock(clock timeutil.Clock) Option {
	return func(db *DB) {
		if clock != nil {
			db.clock = clock
		}
	}
}

func NewDB(path string, logger *zerolog.Logger, opts ...Option) (*DB, error) {
	if !isMemory(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path+"?_txlock=immediate&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Single connection: writers are serialized and :memory: stays one database.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db := &DB{DB: conn, path: path, logger: logger, loc: time.Local, clock: timeutil.SystemClock{}}
	for _, opt := range opts {
		opt(db)
	}

	if err := db.createTables(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	db.logger.Info().Str("path", path).Msg("Database initialized")
	return db, nil
}

func (db *DB) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reservations (
            id TEXT PRIMARY KEY,
            name TEXT NOT NULL,
            apartment_number TEXT NOT NULL,
            title TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            start_time TEXT NOT NULL,
            end_time TEXT NOT NULL,
            created_at TEXT NOT NULL,
            cancellation_code TEXT NOT NULL,
            user_id TEXT
        )`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_start_time ON reservations(start_time)`,
		`CREATE INDEX IF NOT EXISTS idx_reservations_apartment ON reservations(apartment_number)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

// Path returns the file the store was opened on.
func (db *DB) Path() string {
	return db.path
}

// Ping checks the store is reachable.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return nil
}

func isMemory(path string) bool {
	return path == ":memory:" || strings.HasPrefix(path, "file::memory:")
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func (db *DB) parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t.In(db.loc), nil
}
