package reminder

import (
	"context"
	"sync"
	"time"

	appLog "confsched/internal/log"
	"confsched/internal/metrics"
	"confsched/internal/model"
	"confsched/internal/notify"
	"confsched/internal/store"
)

// PermissionStore persists the notification permission.
type PermissionStore interface {
	Permission(ctx context.Context) (store.Permission, error)
	SetPermission(ctx context.Context, p store.Permission) error
}

// SettingsStore persists reminder settings per schedule.
type SettingsStore interface {
	UpdateReminderSettings(ctx context.Context, key model.ScheduleKey, rs model.ReminderSettings) (model.UserPreferences, error)
}

// Input is everything reminders are planned from.
type Input struct {
	Key      model.ScheduleKey
	Liked    []model.Session
	Settings model.ReminderSettings
	// Location is the zone for the time shown in notification bodies.
	Location *time.Location
}

// Status describes the armed state after the last change.
type Status struct {
	Permission    store.Permission `json:"permission"`
	Enabled       bool             `json:"enabled"`
	OffsetMinutes int              `json:"offsetMinutes"`
	Armed         int              `json:"armed"`
	Skipped       int              `json:"skipped"`
	Text          string           `json:"text,omitempty"`
}

const (
	textEnabled    = "Notifications enabled. Reminders fire while confsched is running."
	textNotEnabled = "Notifications are not enabled."
)

type Config struct {
	Notifier    notify.Notifier
	Permissions PermissionStore
	Settings    SettingsStore
	Background  BackgroundConfig
	Now         func() time.Time
}

// Engine keeps both delivery paths in line with the favorites and settings
// of the current schedule.
type Engine struct {
	notifier notify.Notifier
	perms    PermissionStore
	settings SettingsStore
	fg       *Foreground
	bg       *Background
	now      func() time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	last   Input
	status Status
}

func NewEngine(cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	if cfg.Background.Now == nil {
		cfg.Background.Now = now
	}
	// The paths share nothing but the notifier, which stands in for the
	// host's notification center and shows a tag delivered by both once.
	fg := NewForeground(cfg.Notifier)
	fg.now = now

	return &Engine{
		notifier: cfg.Notifier,
		perms:    cfg.Permissions,
		settings: cfg.Settings,
		fg:       fg,
		bg:       NewBackground(cfg.Notifier, cfg.Background),
		now:      now,
	}
}

// Start runs the background poller until Close.
func (e *Engine) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	go func() {
		defer close(e.done)
		e.bg.Run(ctx)
	}()
}

// Reconcile cancels everything armed and re-arms from in. Nothing is armed
// without granted permission, with reminders disabled, or with no
// favorites.
func (e *Engine) Reconcile(ctx context.Context, in Input) Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reconcileLocked(ctx, in)
}

func (e *Engine) reconcileLocked(ctx context.Context, in Input) Status {
	in.Settings = in.Settings.Normalize()
	e.last = in

	e.fg.Cancel()
	st := Status{
		Permission:    e.permission(ctx),
		Enabled:       in.Settings.Enabled,
		OffsetMinutes: in.Settings.OffsetMinutes,
	}

	if st.Permission != store.PermissionGranted || !in.Settings.Enabled || len(in.Liked) == 0 {
		e.post(nil)
		metrics.RemindersArmed.Set(0)
		e.status = st
		return st
	}

	armed, skipped := Plan(in.Liked, in.Settings, e.now(), in.Location)
	e.fg.Arm(armed)
	e.post(armed)

	st.Armed = len(armed)
	st.Skipped = skipped
	st.Text = StatusText(st.Armed, skipped)
	metrics.RemindersArmed.Set(float64(st.Armed))
	metrics.RemindersSkipped.Add(float64(skipped))
	appLog.Info("reminders armed", "key", in.Key.String(), "armed", st.Armed, "skipped", skipped)

	e.status = st
	return st
}

func (e *Engine) post(armed []Reminder) {
	data, err := EncodeMessage(armed)
	if err != nil {
		appLog.Error("encode reminder message", err)
		return
	}
	e.bg.Post(data)
}

func (e *Engine) permission(ctx context.Context) store.Permission {
	p, err := e.perms.Permission(ctx)
	if err != nil {
		appLog.Error("load notification permission", err)
		return store.PermissionDefault
	}
	return p
}

// RequestPermission probes the notifier. When notifications work the
// permission is recorded as granted and reminders are re-armed. Otherwise it
// is recorded as denied and reminders are switched off for the current
// schedule.
func (e *Engine) RequestPermission(ctx context.Context) (Status, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if probeErr := e.notifier.Probe(ctx); probeErr != nil {
		appLog.Error("notifications unavailable", probeErr)
		if err := e.perms.SetPermission(ctx, store.PermissionDenied); err != nil {
			return e.status, err
		}
		in := e.last
		in.Settings.Enabled = false
		if in.Key != "" && e.settings != nil {
			if _, err := e.settings.UpdateReminderSettings(ctx, in.Key, in.Settings); err != nil {
				return e.status, err
			}
		}
		st := e.reconcileLocked(ctx, in)
		st.Text = textNotEnabled
		e.status = st
		return st, nil
	}

	if err := e.perms.SetPermission(ctx, store.PermissionGranted); err != nil {
		return e.status, err
	}
	st := e.reconcileLocked(ctx, e.last)
	if st.Text == "" {
		st.Text = textEnabled
	} else {
		st.Text = "Notifications enabled. " + st.Text
	}
	e.status = st
	return st, nil
}

func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Close cancels all timers and stops the poller.
func (e *Engine) Close() {
	e.fg.Cancel()
	metrics.RemindersArmed.Set(0)
	if e.cancel != nil {
		e.cancel()
		<-e.done
	}
}
