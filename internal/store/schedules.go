package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"confsched/internal/apperr"
	appLog "confsched/internal/log"
	"confsched/internal/model"
)

// LibraryRecorder receives library updates whenever a schedule is saved.
type LibraryRecorder interface {
	Upsert(ctx context.Context, meta model.LibraryMeta) error
	SetLastActive(ctx context.Context, key model.ScheduleKey) error
}

// Schedules stores one ScheduleRecord per key and tracks the active key.
type Schedules struct {
	db      *DB
	library LibraryRecorder
}

// NewSchedules returns a schedule store. library may be nil.
func NewSchedules(db *DB, library LibraryRecorder) *Schedules {
	return &Schedules{db: db, library: library}
}

// Save replaces the record stored under rec.Key and makes it active. The
// library is updated afterwards; a library failure is logged and does not
// fail the save.
func (s *Schedules) Save(ctx context.Context, rec model.ScheduleRecord) error {
	const op = "save schedule"

	if rec.Key == "" {
		rec.Key = model.KeyFor(rec.EndpointURL, rec.SourceLabel)
	}
	if rec.Sessions == nil {
		rec.Sessions = []model.Session{}
	}
	blob, err := encodeJSON(rec)
	if err != nil {
		return apperr.E(apperr.KindStorageFailure, op, "encode record", err)
	}

	err = s.db.withTx(ctx, op, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schedules (key, record, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
			string(rec.Key), blob, time.Now().UnixNano()); err != nil {
			return err
		}
		return setState(ctx, tx, stateActiveKey, string(rec.Key))
	})
	if err != nil {
		return err
	}

	appLog.Info("schedule saved", "key", rec.Key.String(), "sessions", len(rec.Sessions))

	if s.library == nil {
		return nil
	}
	if err := s.library.Upsert(ctx, model.MetaFromRecord(rec)); err != nil {
		appLog.Error("library upsert failed", err, "key", rec.Key.String())
		return nil
	}
	if err := s.library.SetLastActive(ctx, rec.Key); err != nil {
		appLog.Error("library last-active update failed", err, "key", rec.Key.String())
	}
	return nil
}

// Load returns the record for key or a NotFound error.
func (s *Schedules) Load(ctx context.Context, key model.ScheduleKey) (model.ScheduleRecord, error) {
	const op = "load schedule"

	var blob string
	err := s.db.sql.QueryRowContext(ctx, `SELECT record FROM schedules WHERE key = ?`, string(key)).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ScheduleRecord{}, apperr.NotFound(op, "schedule "+string(key))
	}
	if err != nil {
		return model.ScheduleRecord{}, mapErr(op, err)
	}

	var rec model.ScheduleRecord
	if err := json.Unmarshal([]byte(blob), &rec); err != nil {
		return model.ScheduleRecord{}, apperr.E(apperr.KindStorageFailure, op, "decode record", err)
	}
	if rec.Key == "" {
		rec.Key = key
	}
	return rec, nil
}

// LoadActive returns the active record, NotFound when none is active.
func (s *Schedules) LoadActive(ctx context.Context) (model.ScheduleRecord, error) {
	key, ok, err := s.ActiveKey(ctx)
	if err != nil {
		return model.ScheduleRecord{}, err
	}
	if !ok {
		return model.ScheduleRecord{}, apperr.NotFound("load active schedule", "active schedule")
	}
	return s.Load(ctx, key)
}

// Delete removes the record for key and clears the active pointer if it
// named key. Preferences and library entries are left alone.
func (s *Schedules) Delete(ctx context.Context, key model.ScheduleKey) error {
	return s.db.withTx(ctx, "delete schedule", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM schedules WHERE key = ?`, string(key)); err != nil {
			return err
		}
		return deleteStateIf(ctx, tx, stateActiveKey, string(key))
	})
}

func (s *Schedules) SetActive(ctx context.Context, key model.ScheduleKey) error {
	return mapErr("set active schedule", setState(ctx, s.db.sql, stateActiveKey, string(key)))
}

func (s *Schedules) ClearActive(ctx context.Context) error {
	return mapErr("clear active schedule", deleteState(ctx, s.db.sql, stateActiveKey))
}

// ActiveKey returns the active key, if any.
func (s *Schedules) ActiveKey(ctx context.Context) (model.ScheduleKey, bool, error) {
	v, ok, err := getState(ctx, s.db.sql, stateActiveKey)
	if err != nil {
		return "", false, mapErr("load active key", err)
	}
	return model.ScheduleKey(v), ok && v != "", nil
}

// Keys lists every stored schedule key in lexical order.
func (s *Schedules) Keys(ctx context.Context) ([]model.ScheduleKey, error) {
	rows, err := s.db.sql.QueryContext(ctx, `SELECT key FROM schedules ORDER BY key`)
	if err != nil {
		return nil, mapErr("list schedules", err)
	}
	defer rows.Close()

	var keys []model.ScheduleKey
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, mapErr("list schedules", err)
		}
		keys = append(keys, model.ScheduleKey(k))
	}
	return keys, mapErr("list schedules", rows.Err())
}
