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

// Preferences stores favorites and reminder settings per schedule key. Rows
// here are never touched by schedule saves or deletes.
type Preferences struct {
	db *DB
}

func NewPreferences(db *DB) *Preferences {
	return &Preferences{db: db}
}

// Load returns the stored preferences for key, or defaults when nothing (or
// nothing readable) is stored.
func (p *Preferences) Load(ctx context.Context, key model.ScheduleKey) (model.UserPreferences, error) {
	prefs, _, err := loadPrefs(ctx, p.db.sql, key)
	return prefs, err
}

// Save replaces the preferences for key.
func (p *Preferences) Save(ctx context.Context, key model.ScheduleKey, prefs model.UserPreferences) error {
	unlock := p.db.locks.lock(string(key))
	defer unlock()
	return mapErr("save preferences", storePrefs(ctx, p.db.sql, key, prefs))
}

// UpdateLiked replaces the liked ids and keeps the reminder settings.
func (p *Preferences) UpdateLiked(ctx context.Context, key model.ScheduleKey, ids []string) (model.UserPreferences, error) {
	return p.update(ctx, "update liked sessions", key, func(prefs *model.UserPreferences) {
		prefs.LikedSessionIDs = append([]string(nil), ids...)
	})
}

// AddLiked adds ids to the liked set.
func (p *Preferences) AddLiked(ctx context.Context, key model.ScheduleKey, ids []string) (model.UserPreferences, error) {
	return p.update(ctx, "add liked sessions", key, func(prefs *model.UserPreferences) {
		prefs.LikedSessionIDs = append(prefs.LikedSessionIDs, ids...)
	})
}

// UpdateReminderSettings replaces the reminder settings and keeps the liked
// ids.
func (p *Preferences) UpdateReminderSettings(ctx context.Context, key model.ScheduleKey, rs model.ReminderSettings) (model.UserPreferences, error) {
	return p.update(ctx, "update reminder settings", key, func(prefs *model.UserPreferences) {
		prefs.Reminders = rs
	})
}

// SetLiked adds id to the liked set or removes it. Unlike ToggleLiked the
// outcome does not depend on the stored state, so concurrent writers agree.
func (p *Preferences) SetLiked(ctx context.Context, key model.ScheduleKey, id string, liked bool) (model.UserPreferences, error) {
	return p.update(ctx, "set liked session", key, func(prefs *model.UserPreferences) {
		if liked {
			prefs.LikedSessionIDs = append(prefs.LikedSessionIDs, id)
			return
		}
		prefs.LikedSessionIDs = without(prefs.LikedSessionIDs, id)
	})
}

// ToggleLiked flips the favorite state of id and reports the new state.
func (p *Preferences) ToggleLiked(ctx context.Context, key model.ScheduleKey, id string) (bool, model.UserPreferences, error) {
	var liked bool
	prefs, err := p.update(ctx, "toggle liked session", key, func(prefs *model.UserPreferences) {
		liked = !prefs.IsLiked(id)
		if liked {
			prefs.LikedSessionIDs = append(prefs.LikedSessionIDs, id)
			return
		}
		prefs.LikedSessionIDs = without(prefs.LikedSessionIDs, id)
	})
	return liked, prefs, err
}

func without(ids []string, id string) []string {
	kept := ids[:0]
	for _, v := range ids {
		if v != id {
			kept = append(kept, v)
		}
	}
	return kept
}

// Delete removes the preferences for key. Deleting absent preferences is
// not an error.
func (p *Preferences) Delete(ctx context.Context, key model.ScheduleKey) error {
	unlock := p.db.locks.lock(string(key))
	defer unlock()
	_, err := p.db.sql.ExecContext(ctx, `DELETE FROM preferences WHERE key = ?`, string(key))
	return mapErr("delete preferences", err)
}

// update runs a read-modify-write for key under the per-key lock and inside
// one transaction.
func (p *Preferences) update(ctx context.Context, op string, key model.ScheduleKey, fn func(*model.UserPreferences)) (model.UserPreferences, error) {
	unlock := p.db.locks.lock(string(key))
	defer unlock()

	var out model.UserPreferences
	err := p.db.withTx(ctx, op, func(tx *sql.Tx) error {
		prefs, _, err := loadPrefs(ctx, tx, key)
		if err != nil {
			return err
		}
		fn(&prefs)
		out = prefs.Canonical()
		return storePrefs(ctx, tx, key, out)
	})
	if err != nil {
		return model.UserPreferences{}, err
	}
	return out, nil
}

func loadPrefs(ctx context.Context, q querier, key model.ScheduleKey) (model.UserPreferences, bool, error) {
	var blob string
	err := q.QueryRowContext(ctx, `SELECT prefs FROM preferences WHERE key = ?`, string(key)).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultPreferences(), false, nil
	}
	if err != nil {
		return model.DefaultPreferences(), false, mapErr("load preferences", err)
	}

	prefs := model.DefaultPreferences()
	if err := json.Unmarshal([]byte(blob), &prefs); err != nil {
		appLog.Error("stored preferences unreadable; using defaults", err, "key", key.String())
		return model.DefaultPreferences(), false, nil
	}
	if prefs.LikedSessionIDs == nil {
		prefs.LikedSessionIDs = []string{}
	}
	prefs.Reminders = prefs.Reminders.Normalize()
	return prefs, true, nil
}

func storePrefs(ctx context.Context, q querier, key model.ScheduleKey, prefs model.UserPreferences) error {
	blob, err := encodeJSON(prefs.Canonical())
	if err != nil {
		return apperr.E(apperr.KindStorageFailure, "save preferences", "encode", err)
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO preferences (key, prefs, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET prefs = excluded.prefs, updated_at = excluded.updated_at`,
		string(key), blob, time.Now().UnixNano())
	return err
}
