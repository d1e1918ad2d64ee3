package reminder

import (
	"context"
	"sync"
	"time"

	appLog "confsched/internal/log"
	"confsched/internal/metrics"
	"confsched/internal/notify"
)

// notifyTimeout bounds a single notification call.
const notifyTimeout = 10 * time.Second

// Foreground arms one timer per reminder.
type Foreground struct {
	notifier notify.Notifier
	now      func() time.Time

	mu     sync.Mutex
	timers []*time.Timer
	// gen invalidates callbacks of timers that were cancelled while already
	// firing.
	gen uint64
}

func NewForeground(n notify.Notifier) *Foreground {
	return &Foreground{notifier: n, now: time.Now}
}

// Arm cancels every pending timer, then arms one per reminder.
func (f *Foreground) Arm(reminders []Reminder) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelLocked()
	gen := f.gen
	now := f.now()
	for _, r := range reminders {
		r := r
		delay := r.FireAt.Sub(now)
		if delay < 0 {
			delay = 0
		}
		f.timers = append(f.timers, time.AfterFunc(delay, func() { f.fire(gen, r) }))
	}
}

// Cancel stops every pending timer.
func (f *Foreground) Cancel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelLocked()
}

// Pending is the number of timers armed by the last Arm, fired or not.
func (f *Foreground) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

func (f *Foreground) cancelLocked() {
	for _, t := range f.timers {
		t.Stop()
	}
	f.timers = nil
	f.gen++
}

func (f *Foreground) fire(gen uint64, r Reminder) {
	f.mu.Lock()
	stale := gen != f.gen
	f.mu.Unlock()
	if stale {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	err := f.notifier.Notify(ctx, notify.Notification{Tag: r.Tag(), Title: r.Title, Body: r.Body, FireAt: r.FireAt})
	if err != nil {
		appLog.Error("reminder notification failed", err, "path", "foreground", "session", r.SessionID)
		return
	}
	metrics.RemindersFired.WithLabelValues("foreground").Inc()
	appLog.Info("reminder fired", "path", "foreground", "session", r.SessionID)
}
