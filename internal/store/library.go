package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"confsched/internal/apperr"
	"confsched/internal/model"
)

// Library is the registry of every schedule the user has opened. Entries
// outlive the schedule data they describe.
type Library struct {
	db  *DB
	now func() time.Time
}

func NewLibrary(db *DB) *Library {
	return &Library{db: db, now: time.Now}
}

// Upsert adds an entry for meta.Key or refreshes its metadata. AddedAt is
// set once; LastAccessedAt is touched on every call.
func (l *Library) Upsert(ctx context.Context, meta model.LibraryMeta) error {
	now := l.now().UnixNano()
	var fetched any
	if !meta.LastFetchedAt.IsZero() {
		fetched = meta.LastFetchedAt.UnixNano()
	}
	_, err := l.db.sql.ExecContext(ctx, `
		INSERT INTO library_entries
			(key, endpoint_url, source_label, conference_title, time_zone_name,
			 added_at, last_accessed_at, last_fetched_at, session_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			endpoint_url     = excluded.endpoint_url,
			source_label     = excluded.source_label,
			conference_title = excluded.conference_title,
			time_zone_name   = excluded.time_zone_name,
			last_accessed_at = excluded.last_accessed_at,
			last_fetched_at  = COALESCE(excluded.last_fetched_at, library_entries.last_fetched_at),
			session_count    = excluded.session_count`,
		string(meta.Key), meta.EndpointURL, meta.SourceLabel, meta.ConferenceTitle, meta.TimeZoneName,
		now, now, fetched, meta.SessionCount)
	return mapErr("upsert library entry", err)
}

// Remove deletes the entry and clears the last-active pointer if it named
// key.
func (l *Library) Remove(ctx context.Context, key model.ScheduleKey) error {
	return l.db.withTx(ctx, "remove library entry", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM library_entries WHERE key = ?`, string(key)); err != nil {
			return err
		}
		return deleteStateIf(ctx, tx, stateLastActiveKey, string(key))
	})
}

// List returns every entry, most recently accessed first.
func (l *Library) List(ctx context.Context) ([]model.LibraryEntry, error) {
	rows, err := l.db.sql.QueryContext(ctx, `
		SELECT key, endpoint_url, source_label, conference_title, time_zone_name,
		       added_at, last_accessed_at, last_fetched_at, session_count
		FROM library_entries
		ORDER BY last_accessed_at DESC, key ASC`)
	if err != nil {
		return nil, mapErr("list library", err)
	}
	defer rows.Close()

	entries := []model.LibraryEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, mapErr("list library", err)
		}
		entries = append(entries, e)
	}
	return entries, mapErr("list library", rows.Err())
}

// Get returns the entry for key or a NotFound error.
func (l *Library) Get(ctx context.Context, key model.ScheduleKey) (model.LibraryEntry, error) {
	row := l.db.sql.QueryRowContext(ctx, `
		SELECT key, endpoint_url, source_label, conference_title, time_zone_name,
		       added_at, last_accessed_at, last_fetched_at, session_count
		FROM library_entries WHERE key = ?`, string(key))
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LibraryEntry{}, apperr.NotFound("get library entry", "library entry "+string(key))
	}
	return e, mapErr("get library entry", err)
}

// SetLastActive records key as the last opened schedule and touches its
// access time.
func (l *Library) SetLastActive(ctx context.Context, key model.ScheduleKey) error {
	now := l.now().UnixNano()
	return l.db.withTx(ctx, "set last active", func(tx *sql.Tx) error {
		if err := setState(ctx, tx, stateLastActiveKey, string(key)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE library_entries SET last_accessed_at = ? WHERE key = ?`, now, string(key))
		return err
	})
}

// ClearLastActive forgets the last opened schedule. Entries are kept.
func (l *Library) ClearLastActive(ctx context.Context) error {
	return mapErr("clear last active", deleteState(ctx, l.db.sql, stateLastActiveKey))
}

// LastActive returns the last-active key, if one is set.
func (l *Library) LastActive(ctx context.Context) (model.ScheduleKey, bool, error) {
	v, ok, err := getState(ctx, l.db.sql, stateLastActiveKey)
	if err != nil {
		return "", false, mapErr("load last active", err)
	}
	return model.ScheduleKey(v), ok && v != "", nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (model.LibraryEntry, error) {
	var (
		e               model.LibraryEntry
		key             string
		added, accessed int64
		fetched, count  sql.NullInt64
	)
	if err := s.Scan(&key, &e.EndpointURL, &e.SourceLabel, &e.ConferenceTitle, &e.TimeZoneName,
		&added, &accessed, &fetched, &count); err != nil {
		return model.LibraryEntry{}, err
	}
	e.Key = model.ScheduleKey(key)
	e.AddedAt = time.Unix(0, added).UTC()
	e.LastAccessedAt = time.Unix(0, accessed).UTC()
	if fetched.Valid {
		t := time.Unix(0, fetched.Int64).UTC()
		e.LastFetchedAt = &t
	}
	if count.Valid {
		n := int(count.Int64)
		e.SessionCount = &n
	}
	return e, nil
}
