package web

import (
	"context"
	"time"

	"confsched/internal/apperr"
	appLog "confsched/internal/log"
	"confsched/internal/model"
	"confsched/internal/reminder"
	"confsched/internal/schedule"
)

// SyncReminders re-arms reminders for the current schedule. Without a
// current schedule everything armed is cancelled.
func (s *Server) SyncReminders(ctx context.Context) reminder.Status {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	cur, view, ok := s.current(ctx)
	return s.reconcile(ctx, cur, view, ok)
}

// Sync re-arms reminders and points auto-refresh at the current schedule.
func (s *Server) Sync(ctx context.Context) reminder.Status {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	cur, view, ok := s.current(ctx)
	if s.deps.Scheduler != nil {
		url := ""
		if ok {
			url = cur.Record.EndpointURL
		}
		s.configureAuto(url, view.AutoReloadMinutes)
	}
	return s.reconcile(ctx, cur, view, ok)
}

func (s *Server) current(ctx context.Context) (schedule.Loaded, model.ViewParams, bool) {
	view, err := s.deps.State.ViewParams(ctx)
	if err != nil {
		appLog.Error("load view params", err)
		view = model.DefaultViewParams()
	}
	cur, err := s.deps.Manager.Current(ctx)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			appLog.Error("load current schedule", err)
		}
		return schedule.Loaded{}, view, false
	}
	return cur, view, true
}

func (s *Server) reconcile(ctx context.Context, cur schedule.Loaded, view model.ViewParams, ok bool) reminder.Status {
	if !ok {
		return s.deps.Reminders.Reconcile(ctx, reminder.Input{})
	}
	return s.deps.Reminders.Reconcile(ctx, reminder.Input{
		Key:      cur.Record.Key,
		Liked:    schedule.LikedSessions(cur.Record, cur.Preferences),
		Settings: cur.Preferences.Reminders,
		Location: view.DisplayLocation(cur.Record.Meta()),
	})
}

// configureAuto reschedules only when the source or interval changed, so
// unrelated changes do not restart the timer.
func (s *Server) configureAuto(url string, minutes *int) {
	if s.autoConfigured && url == s.autoURL && sameInterval(minutes, s.autoMinutes) {
		return
	}
	s.autoConfigured, s.autoURL = true, url
	s.autoMinutes = nil
	if minutes != nil {
		m := *minutes
		s.autoMinutes = &m
	}
	s.deps.Scheduler.Configure(url, minutes)
}

// sameInterval compares intervals where nil means off.
func sameInterval(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Watch re-syncs after another process, such as a "confsched like" run
// against the same data directory, changed the database. It checks every
// interval until ctx is done.
func (s *Server) Watch(ctx context.Context, every time.Duration) {
	if s.deps.Changes == nil {
		return
	}
	last, err := s.deps.Changes.Revision(ctx)
	if err != nil {
		appLog.Error("read database revision", err)
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			last = s.syncIfChanged(ctx, last)
		}
	}
}

func (s *Server) syncIfChanged(ctx context.Context, last int64) int64 {
	rev, err := s.deps.Changes.Revision(ctx)
	if err != nil {
		appLog.Error("read database revision", err)
		return last
	}
	if rev == last {
		return last
	}
	st := s.Sync(ctx)
	appLog.Info("database changed elsewhere; reminders re-synced", "armed", st.Armed)
	return rev
}
