package reminder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confsched/internal/model"
)

var now = time.Date(2025, 12, 27, 9, 0, 0, 0, time.UTC)

func session(id string, in time.Duration, room string) model.Session {
	return model.Session{ID: id, Title: "Talk " + id, Start: now.Add(in), Room: room}
}

func TestPlanSkipBoundary(t *testing.T) {
	liked := []model.Session{
		session("far", 24*time.Hour+time.Minute, ""),
		session("near", 23*time.Hour+59*time.Minute, ""),
	}
	armed, skipped := Plan(liked, model.ReminderSettings{Enabled: true, OffsetMinutes: 0}, now, time.UTC)

	assert.Equal(t, 1, skipped)
	require.Len(t, armed, 1)
	assert.Equal(t, "near", armed[0].SessionID)
	assert.True(t, armed[0].FireAt.Equal(liked[1].Start))
}

func TestPlanSkipsStartedAndFormatsText(t *testing.T) {
	cet := time.FixedZone("CET", 3600)
	liked := []model.Session{
		session("past", -time.Minute, "Saal 1"),
		session("soon", 5*time.Minute, "Saal 1"),
		session("later", 2*time.Hour, "Saal 2"),
		session("noroom", 3*time.Hour, ""),
	}
	armed, skipped := Plan(liked, model.ReminderSettings{Enabled: true, OffsetMinutes: 10}, now, cet)

	// "soon" fires 5 minutes in the past once the offset is applied.
	assert.Equal(t, 2, skipped)
	require.Len(t, armed, 2)

	assert.Equal(t, "Starts in 10 minutes: Talk later", armed[0].Title)
	assert.Equal(t, "12:00 • Saal 2", armed[0].Body)
	assert.True(t, armed[0].FireAt.Equal(now.Add(110*time.Minute)))
	assert.Equal(t, "session-reminder-later", armed[0].Tag())

	assert.Equal(t, "13:00", armed[1].Body)
}

func TestPlanAtStartTitle(t *testing.T) {
	armed, _ := Plan([]model.Session{session("x", time.Hour, "")}, model.ReminderSettings{Enabled: true, OffsetMinutes: 0}, now, time.UTC)
	require.Len(t, armed, 1)
	assert.Equal(t, "Starting now: Talk x", armed[0].Title)
}

func TestPlanDisabled(t *testing.T) {
	armed, skipped := Plan([]model.Session{session("x", time.Hour, "")}, model.ReminderSettings{Enabled: false}, now, time.UTC)
	assert.Empty(t, armed)
	assert.Zero(t, skipped)
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "Scheduled 2 reminder(s).", StatusText(2, 0))
	assert.Equal(t, "Scheduled 0 reminder(s). (3 skipped: already started or >24h away.)", StatusText(0, 3))
}

func TestMessageContract(t *testing.T) {
	data, err := EncodeMessage([]Reminder{{SessionID: "a", Title: "Starting now: A", Body: "10:00", FireAt: now}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"SCHEDULE_REMINDERS","reminders":[
		{"sessionId":"a","title":"Starting now: A","body":"10:00","fireAt":"2025-12-27T09:00:00Z"}]}`, string(data))

	msg, err := DecodeMessage(data)
	require.NoError(t, err)
	require.Len(t, msg.Reminders, 1)
	assert.True(t, msg.Reminders[0].FireAt.Equal(now))

	empty, err := EncodeMessage(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"SCHEDULE_REMINDERS","reminders":[]}`, string(empty))

	_, err = DecodeMessage([]byte(`{"type":"PING"}`))
	assert.Error(t, err)
	_, err = DecodeMessage([]byte(`nope`))
	assert.Error(t, err)
}
