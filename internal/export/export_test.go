package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confsched/internal/model"
)

func intp(n int) *int { return &n }

var (
	exportedAt = time.Date(2025, 12, 20, 8, 0, 0, 0, time.UTC)
	berlin     = time.FixedZone("CET", 3600)
	sample     = []model.Session{
		{
			ID:              "101",
			Title:           `Hacking, "safely"; a primer`,
			Start:           time.Date(2025, 12, 27, 14, 0, 0, 0, berlin),
			DayKey:          "2025-12-27",
			Room:            "Saal 1",
			Track:           "Security",
			DurationMinutes: intp(40),
			Speakers:        []string{"Ada", "Grace"},
			Abstract:        "Line one\nline two",
		},
		{
			ID:     "202",
			Title:  "Lightning talks",
			Start:  time.Date(2025, 12, 28, 10, 30, 0, 0, time.UTC),
			DayKey: "2025-12-28",
		},
	}
)

func TestICSFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ICS(&buf, sample, ICSOptions{CalendarName: "My Choices - 39C3", UIDSalt: "salt", Now: exportedAt}))
	out := buf.String()

	assert.True(t, strings.HasSuffix(out, "END:VCALENDAR\r\n"))
	assert.NotContains(t, strings.ReplaceAll(out, "\r\n", ""), "\n")

	lines := strings.Split(strings.TrimSuffix(out, "\r\n"), "\r\n")
	assert.Equal(t, []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//confsched//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"X-WR-CALNAME:My Choices - 39C3",
		"BEGIN:VEVENT",
		"UID:salt-101@confsched",
		"DTSTAMP:20251220T080000Z",
		"DTSTART:20251227T130000Z",
		"DTEND:20251227T134000Z",
		`SUMMARY:Hacking\, "safely"\; a primer`,
		"LOCATION:Saal 1",
		`DESCRIPTION:Speakers: Ada\, Grace\n\nLine one\nline two`,
		"END:VEVENT",
	}, lines[:15])

	// No duration: the event lasts the default 30 minutes and has no
	// location or description.
	assert.Equal(t, []string{
		"BEGIN:VEVENT",
		"UID:salt-202@confsched",
		"DTSTAMP:20251220T080000Z",
		"DTSTART:20251228T103000Z",
		"DTEND:20251228T110000Z",
		"SUMMARY:Lightning talks",
		"END:VEVENT",
		"END:VCALENDAR",
	}, lines[15:])
}

func TestICSFoldsLongLines(t *testing.T) {
	long := model.Session{ID: "x", Title: strings.Repeat("é", 150), Start: exportedAt}
	var buf bytes.Buffer
	require.NoError(t, ICS(&buf, []model.Session{long}, ICSOptions{UIDSalt: "s", Now: exportedAt}))

	var summary []string
	lines := strings.Split(buf.String(), "\r\n")
	for i, l := range lines {
		if strings.HasPrefix(l, "SUMMARY:") {
			summary = lines[i : i+3]
		}
	}
	require.Len(t, summary, 3)
	assert.Len(t, []rune(summary[0]), 72)
	assert.True(t, strings.HasPrefix(summary[1], " "))
	assert.Len(t, []rune(summary[1]), 73)
	assert.Equal(t, " "+strings.Repeat("é", 158-144), summary[2])
}

func TestUIDSalt(t *testing.T) {
	assert.Equal(t, "https%3A%2F%2Fexample.or",
		UIDSalt(model.ScheduleRecord{EndpointURL: "https://example.org/schedule.json", SourceLabel: "ignored"}))
	assert.Equal(t, "fahrplan.json", UIDSalt(model.ScheduleRecord{SourceLabel: "fahrplan.json"}))
	assert.Equal(t, "offline", UIDSalt(model.ScheduleRecord{}))
}

func TestCalendarName(t *testing.T) {
	assert.Equal(t, "My Choices - 39C3", CalendarName(model.ScheduleRecord{ConferenceTitle: "39C3"}))
	assert.Equal(t, "My Choices - Schedule", CalendarName(model.ScheduleRecord{}))
}

func TestRestoreFavoritesRoundTrip(t *testing.T) {
	salt := UIDSalt(model.ScheduleRecord{EndpointURL: "https://example.org/schedule.json"})
	var buf bytes.Buffer
	require.NoError(t, ICS(&buf, sample, ICSOptions{CalendarName: "c", UIDSalt: salt, Now: exportedAt}))

	ids, err := RestoreFavorites(&buf, salt)
	require.NoError(t, err)
	assert.Equal(t, []string{"101", "202"}, ids)
}

func TestRestoreFavoritesIgnoresOtherSources(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, ICS(&buf, sample, ICSOptions{UIDSalt: "offline", Now: exportedAt}))

	ids, err := RestoreFavorites(&buf, "fahrplan.json")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestJSONExport(t *testing.T) {
	rec := model.ScheduleRecord{
		EndpointURL:     "https://example.org/schedule.json",
		ConferenceTitle: "39C3",
		FetchedAt:       time.Date(2025, 12, 20, 7, 0, 0, 0, time.UTC),
	}
	var buf bytes.Buffer
	require.NoError(t, JSON(&buf, sample[1:], MetaFor(rec, exportedAt)))

	assert.JSONEq(t, `{
	  "meta": {
	    "exportedAt": "2025-12-20T08:00:00.000Z",
	    "sourceUrl": "https://example.org/schedule.json",
	    "sourceLabel": null,
	    "conferenceTitle": "39C3",
	    "scheduleTimeZoneName": null,
	    "fetchedAt": "2025-12-20T07:00:00.000Z"
	  },
	  "sessions": [{
	    "id": "202",
	    "title": "Lightning talks",
	    "dayKey": "2025-12-28",
	    "start": "2025-12-28T10:30:00.000Z",
	    "durationMinutes": null,
	    "room": null,
	    "track": null,
	    "type": null,
	    "language": null,
	    "speakers": [],
	    "abstract": null,
	    "description": null
	  }]
	}`, buf.String())

	meta, sessions, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, "39C3", *meta.ConferenceTitle)
	require.Len(t, sessions, 1)
	assert.Equal(t, "202", sessions[0].ID)
	assert.True(t, sessions[0].Start.Equal(sample[1].Start))
	assert.Nil(t, sessions[0].DurationMinutes)
}

func TestReadJSONRejectsBadInput(t *testing.T) {
	_, _, err := ReadJSON(strings.NewReader(`[`))
	assert.Error(t, err)
	_, _, err = ReadJSON(strings.NewReader(`{"meta":{},"sessions":[{"id":"1","start":"yesterday"}]}`))
	assert.Error(t, err)
}

func TestCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CSV(&buf, sample))

	assert.Equal(t,
		"id,title,start,end,durationMinutes,day,room,track,type,language,speakers\n"+
			`"101","Hacking, ""safely""; a primer","2025-12-27T13:00:00.000Z","2025-12-27T13:40:00.000Z","40","2025-12-27","Saal 1","Security","","","Ada; Grace"`+"\n"+
			`"202","Lightning talks","2025-12-28T10:30:00.000Z","","","2025-12-28","","","","",""`,
		buf.String())
}

func TestCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, CSV(&buf, nil))
	assert.Equal(t, "id,title,start,end,durationMinutes,day,room,track,type,language,speakers", buf.String())
}
