// Package notify delivers reminder notifications to the desktop or the log.
package notify

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"confsched/internal/apperr"
	appLog "confsched/internal/log"
)

// Notification is one user-visible alert. Tag identifies the alert: showing
// a second notification with the same tag replaces the first.
type Notification struct {
	Tag    string
	Title  string
	Body   string
	FireAt time.Time
}

// Notifier shows notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	// Probe reports whether notifications can be shown at all. A nil error
	// means permission is granted.
	Probe(ctx context.Context) error
}

// Backend names accepted by New.
const (
	BackendDBus = "dbus"
	BackendLog  = "log"
)

// DedupeWindow is how long New's notifiers remember a delivered tag.
const DedupeWindow = time.Hour

// New returns the notifier for backend. Like a desktop notification
// center, it shows a given (tag, fire time) once however many callers
// deliver it.
func New(backend string) (Notifier, error) {
	var n Notifier
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendDBus:
		n = NewDBus("confsched")
	case BackendLog:
		n = Log{}
	default:
		return nil, apperr.E(apperr.KindUnsupported, "notifier", "unknown backend "+backend, nil)
	}
	return NewDedupe(n, DedupeWindow), nil
}

// Log writes notifications to the application log. Useful on hosts without
// a notification daemon.
type Log struct{}

func (Log) Notify(_ context.Context, n Notification) error {
	appLog.Info("reminder", "tag", n.Tag, "title", n.Title, "body", n.Body, "fire_at", n.FireAt.UTC().Format(time.RFC3339))
	return nil
}

func (Log) Probe(context.Context) error { return nil }

// Dedupe suppresses repeated deliveries of the same (tag, fire time) within
// a window.
type Dedupe struct {
	next   Notifier
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewDedupe(next Notifier, window time.Duration) *Dedupe {
	return &Dedupe{next: next, window: window, now: time.Now, seen: map[string]time.Time{}}
}

// Notify forwards n unless it was delivered recently. A suppressed
// duplicate reports success.
func (d *Dedupe) Notify(ctx context.Context, n Notification) error {
	key := n.Tag + "|" + n.FireAt.UTC().Format(time.RFC3339Nano)

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, at := range d.seen {
		if now.Sub(at) > d.window {
			delete(d.seen, k)
		}
	}
	if _, dup := d.seen[key]; dup {
		appLog.Debug("duplicate notification suppressed", "tag", n.Tag)
		return nil
	}

	if err := d.next.Notify(ctx, n); err != nil {
		return err
	}
	d.seen[key] = now
	return nil
}

func (d *Dedupe) Probe(ctx context.Context) error {
	return d.next.Probe(ctx)
}

// Close closes the wrapped notifier when it holds resources.
func (d *Dedupe) Close() error {
	if c, ok := d.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
