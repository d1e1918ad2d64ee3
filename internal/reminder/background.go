package reminder

import (
	"context"
	"time"

	appLog "confsched/internal/log"
	"confsched/internal/metrics"
	"confsched/internal/notify"
)

// Defaults for the background poller.
const (
	DefaultPollInterval = 30 * time.Second
	DefaultGraceWindow  = 2 * time.Minute
	DefaultRetention    = time.Hour
)

// BackgroundConfig tunes the poller. Zero fields take the defaults.
type BackgroundConfig struct {
	PollInterval time.Duration
	GraceWindow  time.Duration
	Retention    time.Duration
	Now          func() time.Time
}

// Background is the polling delivery path. It owns its arm-list and learns
// about changes only through encoded messages passed to Post.
type Background struct {
	notifier notify.Notifier
	cfg      BackgroundConfig
	inbox    chan []byte
}

type pending struct {
	Reminder
	fired bool
}

func NewBackground(n notify.Notifier, cfg BackgroundConfig) *Background {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.GraceWindow <= 0 {
		cfg.GraceWindow = DefaultGraceWindow
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Background{notifier: n, cfg: cfg, inbox: make(chan []byte, 1)}
}

// Post hands an encoded arm-list to the poller without blocking. An unread
// older message is discarded in favor of data.
func (b *Background) Post(data []byte) {
	for {
		select {
		case b.inbox <- data:
			return
		default:
		}
		select {
		case <-b.inbox:
		default:
		}
	}
}

// Run polls until ctx is done. Each message replaces the arm-list, is
// checked at once, and restarts the poll cadence.
func (b *Background) Run(ctx context.Context) {
	var (
		list   []pending
		ticker *time.Ticker
		tick   <-chan time.Time
	)
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case data := <-b.inbox:
			msg, err := DecodeMessage(data)
			if err != nil {
				appLog.Error("reminder message dropped", err)
				continue
			}
			list = make([]pending, 0, len(msg.Reminders))
			for _, r := range msg.Reminders {
				list = append(list, pending{Reminder: r})
			}
			appLog.Debug("background reminders received", "count", len(list))

			if ticker != nil {
				ticker.Stop()
			}
			ticker = time.NewTicker(b.cfg.PollInterval)
			tick = ticker.C
			list = b.check(ctx, list, b.cfg.Now())

		case <-tick:
			list = b.check(ctx, list, b.cfg.Now())
		}
	}
}

// check fires every unfired reminder whose fire time passed less than the
// grace window ago, then drops entries older than the retention period. A
// reminder counts as fired only when the notifier succeeded.
func (b *Background) check(ctx context.Context, list []pending, now time.Time) []pending {
	for i := range list {
		p := &list[i]
		if p.fired {
			continue
		}
		diff := p.FireAt.Sub(now)
		if diff > 0 || diff <= -b.cfg.GraceWindow {
			continue
		}

		nctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		err := b.notifier.Notify(nctx, notify.Notification{Tag: p.Tag(), Title: p.Title, Body: p.Body, FireAt: p.FireAt})
		cancel()
		if err != nil {
			appLog.Error("reminder notification failed", err, "path", "background", "session", p.SessionID)
			continue
		}
		p.fired = true
		metrics.RemindersFired.WithLabelValues("background").Inc()
		appLog.Info("reminder fired", "path", "background", "session", p.SessionID)
	}

	kept := list[:0]
	for _, p := range list {
		if now.Sub(p.FireAt) < b.cfg.Retention {
			kept = append(kept, p)
		}
	}
	return kept
}
