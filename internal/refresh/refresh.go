// Package refresh re-fetches the active schedule, on demand and on a timer.
package refresh

import (
	"context"
	"errors"
	"sync"
	"time"

	"confsched/internal/apperr"
	appLog "confsched/internal/log"
	"confsched/internal/metrics"
	"confsched/internal/model"
	"confsched/internal/schedule"
)

type Reason string

const (
	Manual Reason = "manual"
	Auto   Reason = "auto"
)

func (r Reason) label() string {
	if r == Auto {
		return "Auto refresh"
	}
	return "Refresh"
}

var (
	// ErrInProgress is returned when a refresh is already running.
	ErrInProgress = errors.New("refresh already in progress")
	// ErrNotRefreshable is returned when the active schedule has no URL.
	ErrNotRefreshable = errors.New("no endpoint URL available")
)

const notRefreshableMsg = "No endpoint URL available"

// State is a snapshot of the refresher.
type State struct {
	Busy          bool      `json:"busy"`
	LastError     string    `json:"lastError,omitempty"`
	LastAttemptAt time.Time `json:"lastAttemptAt,omitempty"`
}

// Source provides the schedule to refresh and performs the re-fetch.
type Source interface {
	Current(ctx context.Context) (schedule.Loaded, error)
	Refetch(ctx context.Context, rec model.ScheduleRecord) (model.ScheduleRecord, error)
}

type Option func(*Refresher)

// WithOnRefreshed registers a hook run after every successful refresh.
func WithOnRefreshed(fn func(context.Context, model.ScheduleRecord)) Option {
	return func(r *Refresher) { r.onRefreshed = fn }
}

func WithClock(now func() time.Time) Option {
	return func(r *Refresher) { r.now = now }
}

// Refresher runs at most one refresh at a time.
type Refresher struct {
	src         Source
	onRefreshed func(context.Context, model.ScheduleRecord)
	now         func() time.Time

	mu    sync.Mutex
	state State
}

func New(src Source, opts ...Option) *Refresher {
	r := &Refresher{src: src, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Refresh re-fetches the active schedule and stores it under the same key.
// A failed refresh leaves the stored schedule untouched and records a
// reason-tagged message in State.
func (r *Refresher) Refresh(ctx context.Context, reason Reason) (model.ScheduleRecord, error) {
	r.mu.Lock()
	if r.state.Busy {
		r.mu.Unlock()
		return model.ScheduleRecord{}, ErrInProgress
	}
	r.state.Busy = true
	r.mu.Unlock()

	cur, err := r.src.Current(ctx)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		r.finish(reason, err)
		return model.ScheduleRecord{}, err
	}
	if err != nil || !cur.Record.Refreshable() {
		r.mu.Lock()
		r.state.Busy = false
		r.state.LastError = notRefreshableMsg
		r.mu.Unlock()
		return model.ScheduleRecord{}, ErrNotRefreshable
	}

	r.mu.Lock()
	r.state.LastAttemptAt = r.now()
	r.mu.Unlock()

	appLog.Info("schedule refresh start", "reason", string(reason), "key", cur.Record.Key.String())
	fresh, err := r.src.Refetch(ctx, cur.Record)
	r.finish(reason, err)
	if err != nil {
		return model.ScheduleRecord{}, err
	}

	appLog.Info("schedule refresh done", "reason", string(reason), "sessions", len(fresh.Sessions))
	if r.onRefreshed != nil {
		r.onRefreshed(ctx, fresh)
	}
	return fresh, nil
}

func (r *Refresher) finish(reason Reason, err error) {
	metrics.Refreshes.WithLabelValues(string(reason), metrics.Result(err)).Inc()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.state.Busy = false
	r.state.LastAttemptAt = r.now()
	if err != nil {
		r.state.LastError = reason.label() + " failed: " + err.Error()
		appLog.Error("schedule refresh failed", err, "reason", string(reason))
		return
	}
	r.state.LastError = ""
}

func (r *Refresher) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// ClearError dismisses the last error message.
func (r *Refresher) ClearError() {
	r.mu.Lock()
	r.state.LastError = ""
	r.mu.Unlock()
}
