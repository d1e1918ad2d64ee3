// Package store persists schedules, per-schedule preferences, the schedule
// library and small app-wide settings in a single SQLite database.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"confsched/internal/apperr"
)

// Options tunes the database.
type Options struct {
	// MaxBytes caps the database size; writes beyond it fail with
	// StorageQuotaExceeded. Zero means unlimited.
	MaxBytes int64
}

const pageSize = 4096

const schema = `
CREATE TABLE IF NOT EXISTS schedules (
	key        TEXT PRIMARY KEY,
	record     TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS preferences (
	key        TEXT PRIMARY KEY,
	prefs      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS library_entries (
	key              TEXT PRIMARY KEY,
	endpoint_url     TEXT NOT NULL DEFAULT '',
	source_label     TEXT NOT NULL DEFAULT '',
	conference_title TEXT NOT NULL DEFAULT '',
	time_zone_name   TEXT NOT NULL DEFAULT '',
	added_at         INTEGER NOT NULL,
	last_accessed_at INTEGER NOT NULL,
	last_fetched_at  INTEGER,
	session_count    INTEGER
);
CREATE INDEX IF NOT EXISTS library_entries_last_accessed ON library_entries (last_accessed_at DESC);
CREATE TABLE IF NOT EXISTS app_state (
	name  TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// Names of the global pointers kept in app_state.
const (
	stateActiveKey     = "active_key"
	stateLastActiveKey = "last_active_key"
	stateViewParams    = "view_params"
	statePermission    = "notification_permission"
)

// DB is an open store database.
type DB struct {
	sql   *sql.DB
	locks keyedMutex
}

// Open opens (or creates) the database at path, enables WAL and applies the
// schema.
func Open(path string, opts Options) (*DB, error) {
	const op = "open store"

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, apperr.E(apperr.KindStorageFailure, op, "create data dir", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	if opts.MaxBytes > 0 {
		pages := opts.MaxBytes / pageSize
		if pages < 16 {
			pages = 16
		}
		dsn += fmt.Sprintf("&_pragma=page_size(%d)&_pragma=max_page_count(%d)", pageSize, pages)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperr.E(apperr.KindStorageFailure, op, "", err)
	}
	// One writer keeps read-modify-write sequences simple.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, apperr.E(apperr.KindStorageFailure, op, "", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, mapErr(op, err)
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	return d.sql.Close()
}

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error {
	return mapErr("ping store", d.sql.PingContext(ctx))
}

// Revision returns SQLite's data_version. It changes whenever another
// connection, usually another confsched process, commits; writes made
// through this DB leave it alone. The value is per connection, which is
// why the store keeps a single one.
func (d *DB) Revision(ctx context.Context) (int64, error) {
	var v int64
	if err := d.sql.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v); err != nil {
		return 0, mapErr("read data version", err)
	}
	return v, nil
}

// withTx runs fn in a transaction, rolling back on error.
func (d *DB) withTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return mapErr(op, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return mapErr(op, err)
	}
	return mapErr(op, tx.Commit())
}

// mapErr converts driver errors into app error kinds. Errors that already
// carry a kind pass through.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.E(apperr.KindNotFound, op, "not found", err)
	}
	if isFull(err) {
		return apperr.E(apperr.KindStorageQuotaExceeded, op, "storage is full", err)
	}
	return apperr.E(apperr.KindStorageFailure, op, "", err)
}

func isFull(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	// Code may be an extended result code; the primary code is the low byte.
	return se.Code()&0xff == sqlite3.SQLITE_FULL
}

// keyedMutex serializes work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*sync.Mutex{}
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
