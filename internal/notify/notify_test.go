package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confsched/internal/apperr"
)

type recorder struct {
	got []Notification
	err error
}

func (r *recorder) Notify(_ context.Context, n Notification) error {
	if r.err != nil {
		return r.err
	}
	r.got = append(r.got, n)
	return nil
}

func (r *recorder) Probe(context.Context) error { return r.err }

func TestDedupeSuppressesSameTagAndFireTime(t *testing.T) {
	rec := &recorder{}
	d := NewDedupe(rec, time.Hour)
	now := time.Date(2025, 12, 27, 10, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	n := Notification{Tag: "session-reminder-a", Title: "Starting now: A", FireAt: now}
	require.NoError(t, d.Notify(context.Background(), n))
	require.NoError(t, d.Notify(context.Background(), n))
	assert.Len(t, rec.got, 1)

	// A new fire time for the same tag is a new reminder.
	n.FireAt = now.Add(10 * time.Minute)
	require.NoError(t, d.Notify(context.Background(), n))
	assert.Len(t, rec.got, 2)

	// Outside the window the record is forgotten.
	now = now.Add(2 * time.Hour)
	require.NoError(t, d.Notify(context.Background(), n))
	assert.Len(t, rec.got, 3)
}

func TestDedupeDoesNotRecordFailures(t *testing.T) {
	rec := &recorder{err: errors.New("no daemon")}
	d := NewDedupe(rec, time.Hour)
	n := Notification{Tag: "session-reminder-a", FireAt: time.Now()}

	assert.Error(t, d.Notify(context.Background(), n))
	rec.err = nil
	assert.NoError(t, d.Notify(context.Background(), n))
	assert.Len(t, rec.got, 1)
	assert.NoError(t, d.Probe(context.Background()))
}

func TestNewBackends(t *testing.T) {
	n, err := New("log")
	require.NoError(t, err)
	require.IsType(t, &Dedupe{}, n)
	assert.IsType(t, Log{}, n.(*Dedupe).next)
	assert.NoError(t, n.Probe(context.Background()))
	assert.NoError(t, n.Notify(context.Background(), Notification{Tag: "t", Title: "x"}))
	assert.NoError(t, n.(*Dedupe).Close())

	n, err = New("")
	require.NoError(t, err)
	require.IsType(t, &Dedupe{}, n)
	assert.IsType(t, &DBus{}, n.(*Dedupe).next)

	_, err = New("carrier-pigeon")
	assert.Equal(t, apperr.KindUnsupported, apperr.KindOf(err))
}
