package model

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(n int) *int { return &n }

func TestScheduleKeyIsDeterministic(t *testing.T) {
	assert.Equal(t, ScheduleKey("url:https://x.test/s.json"), KeyFromURL("https://x.test/s.json"))
	assert.Equal(t, KeyFromURL("https://x.test/s.json"), KeyFor("https://x.test/s.json", "ignored.json"))
	assert.Equal(t, ScheduleKey("file:fahrplan.json"), KeyFor("", "fahrplan.json"))
	assert.Equal(t, ScheduleKey("file:imported-schedule"), KeyFromFile(""))

	kind, v := KeyFromURL("https://x.test/s.json").Source()
	assert.Equal(t, "url", kind)
	assert.Equal(t, "https://x.test/s.json", v)
}

func TestSessionEndDefaultsToThirtyMinutes(t *testing.T) {
	start := time.Date(2025, 12, 27, 11, 0, 0, 0, time.UTC)
	s := Session{Start: start}
	assert.Equal(t, start.Add(30*time.Minute), s.End())

	s.DurationMinutes = intPtr(45)
	assert.Equal(t, start.Add(45*time.Minute), s.End())

	assert.True(t, s.IsCurrent(start.Add(10*time.Minute)))
	assert.True(t, s.HasEnded(start.Add(45*time.Minute)))
	assert.True(t, s.IsUpcoming(start.Add(-time.Second)))
}

func TestPreferencesCanonical(t *testing.T) {
	p := UserPreferences{
		LikedSessionIDs: []string{"b", "a", "b", ""},
		Reminders:       ReminderSettings{Enabled: true, OffsetMinutes: 7},
	}
	c := p.Canonical()
	assert.Equal(t, []string{"a", "b"}, c.LikedSessionIDs)
	assert.Equal(t, 10, c.Reminders.OffsetMinutes)
	assert.True(t, c.IsLiked("a"))
	assert.False(t, c.IsLiked("z"))
}

func TestDefaultPreferencesEnableReminders(t *testing.T) {
	p := DefaultPreferences()
	assert.Empty(t, p.LikedSessionIDs)
	assert.True(t, p.Reminders.Enabled)
	assert.Equal(t, 10, p.Reminders.OffsetMinutes)
}

func TestDecodeViewParams(t *testing.T) {
	def := DecodeViewParams(nil)
	assert.Equal(t, DefaultViewParams(), def)

	v := DecodeViewParams([]byte(`{"viewMode":"card","showDuration":true,"timezoneMode":"device","autoReloadMinutes":null}`))
	assert.Equal(t, ViewCard, v.ViewMode)
	assert.True(t, v.ShowDuration)
	assert.True(t, v.ShowTimeRange)
	assert.Equal(t, TimeZoneDevice, v.TimeZoneMode)
	assert.Nil(t, v.AutoReloadMinutes)

	v = DecodeViewParams([]byte(`{"viewMode":"weird","autoReloadMinutes":"abc"}`))
	assert.Equal(t, ViewTable, v.ViewMode)
	assert.Equal(t, 10, *v.AutoReloadMinutes)

	assert.Equal(t, DefaultViewParams(), DecodeViewParams([]byte("not json")))

	for _, blob := range []string{`{"autoReloadMinutes":0.5}`, `{"autoReloadMinutes":0}`, `{"autoReloadMinutes":-3}`} {
		v = DecodeViewParams([]byte(blob))
		require.NotNil(t, v.AutoReloadMinutes, blob)
		assert.Equal(t, DefaultAutoReloadMinutes, *v.AutoReloadMinutes, blob)
	}
	v = DecodeViewParams([]byte(`{"autoReloadMinutes":1.5}`))
	assert.Equal(t, 1, *v.AutoReloadMinutes)
}

func TestConferenceMetaLocation(t *testing.T) {
	utc := time.UTC
	assert.Equal(t, utc, ConferenceMeta{}.Location(utc))
	assert.Equal(t, utc, ConferenceMeta{TimeZoneName: "Not/AZone"}.Location(utc))
	assert.Equal(t, "Europe/Berlin", ConferenceMeta{TimeZoneName: "Europe/Berlin"}.Location(utc).String())
}

func TestDisplayLocation(t *testing.T) {
	meta := ConferenceMeta{TimeZoneName: "Europe/Berlin"}
	v := DefaultViewParams()
	assert.Equal(t, "Europe/Berlin", v.DisplayLocation(meta).String())

	v.TimeZoneMode = TimeZoneDevice
	assert.Equal(t, time.Local, v.DisplayLocation(meta))
}
