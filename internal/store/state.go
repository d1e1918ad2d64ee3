package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"confsched/internal/apperr"
	appLog "confsched/internal/log"
	"confsched/internal/model"
)

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getState(ctx context.Context, q querier, name string) (string, bool, error) {
	var v string
	err := q.QueryRowContext(ctx, `SELECT value FROM app_state WHERE name = ?`, name).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func setState(ctx context.Context, q querier, name, value string) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO app_state (name, value) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET value = excluded.value`, name, value)
	return err
}

func deleteState(ctx context.Context, q querier, name string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM app_state WHERE name = ?`, name)
	return err
}

// deleteStateIf removes name only when it currently holds value.
func deleteStateIf(ctx context.Context, q querier, name, value string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM app_state WHERE name = ? AND value = ?`, name, value)
	return err
}

// Permission is the persisted notification permission.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// AppState holds app-wide settings that are not tied to a schedule.
type AppState struct {
	db *DB
}

func NewAppState(db *DB) *AppState {
	return &AppState{db: db}
}

// ViewParams returns the stored display settings. Missing or malformed
// values decode to defaults.
func (a *AppState) ViewParams(ctx context.Context) (model.ViewParams, error) {
	raw, ok, err := getState(ctx, a.db.sql, stateViewParams)
	if err != nil {
		return model.DefaultViewParams(), mapErr("load view params", err)
	}
	if !ok {
		return model.DefaultViewParams(), nil
	}
	return model.DecodeViewParams([]byte(raw)), nil
}

func (a *AppState) SaveViewParams(ctx context.Context, p model.ViewParams) error {
	data, err := p.Encode()
	if err != nil {
		return apperr.E(apperr.KindStorageFailure, "save view params", "encode", err)
	}
	return mapErr("save view params", setState(ctx, a.db.sql, stateViewParams, string(data)))
}

// Permission returns the stored notification permission, PermissionDefault
// when none was recorded.
func (a *AppState) Permission(ctx context.Context) (Permission, error) {
	raw, ok, err := getState(ctx, a.db.sql, statePermission)
	if err != nil {
		return PermissionDefault, mapErr("load permission", err)
	}
	if !ok {
		return PermissionDefault, nil
	}
	switch p := Permission(raw); p {
	case PermissionGranted, PermissionDenied:
		return p, nil
	default:
		return PermissionDefault, nil
	}
}

func (a *AppState) SetPermission(ctx context.Context, p Permission) error {
	appLog.Debug("notification permission stored", "permission", string(p))
	return mapErr("save permission", setState(ctx, a.db.sql, statePermission, string(p)))
}

// encodeJSON is a helper for blob columns.
func encodeJSON(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
