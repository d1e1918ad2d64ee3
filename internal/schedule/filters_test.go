package schedule

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"confsched/internal/model"
)

func mins(n int) *int { return &n }

var base = time.Date(2025, 12, 27, 10, 0, 0, 0, time.UTC)

var sessions = []model.Session{
	{ID: "1", Title: "Opening", DayKey: "2025-12-27", Room: "Saal 1", Track: "Ethics", Language: "en", Start: base, DurationMinutes: mins(30)},
	{ID: "2", Title: "Rust in space", DayKey: "2025-12-27", Room: "Saal 2", Track: "Hardware", Language: "de", Start: base.Add(time.Hour), Speakers: []string{"Grace Hopper"}},
	{ID: "3", Title: "Closing", DayKey: "2025-12-28", Room: " Saal 1 ", Track: "", Type: "lecture", Start: base.Add(24 * time.Hour), Abstract: "Goodbye and thanks"},
}

func ids(ss []model.Session) []string {
	var out []string
	for _, s := range ss {
		out = append(out, s.ID)
	}
	return out
}

func TestFilter(t *testing.T) {
	tests := []struct {
		name  string
		f     model.Filters
		liked map[string]struct{}
		want  []string
	}{
		{"no filters", model.Filters{}, nil, []string{"1", "2", "3"}},
		{"explicit ALL", model.Filters{Track: model.FilterAll, Day: model.FilterAll}, nil, []string{"1", "2", "3"}},
		{"day", model.Filters{Day: "2025-12-28"}, nil, []string{"3"}},
		{"track and language", model.Filters{Track: "Hardware", Language: "de"}, nil, []string{"2"}},
		{"query hits speaker", model.Filters{Query: "  HOPPER "}, nil, []string{"2"}},
		{"query hits abstract", model.Filters{Query: "thanks"}, nil, []string{"3"}},
		{"liked only", model.Filters{LikedOnly: true}, map[string]struct{}{"3": {}, "9": {}}, []string{"3"}},
		{"nothing", model.Filters{Room: "Saal 9"}, nil, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ids(Filter(sessions, tt.f, tt.liked)))
		})
	}
}

func TestFilterTruncatesLongQuery(t *testing.T) {
	q := "opening" + strings.Repeat("x", 2*MaxQueryLength)
	assert.Empty(t, Filter(sessions, model.Filters{Query: q}, nil))

	q = strings.Repeat(" ", 10) + "open"
	assert.Equal(t, []string{"1"}, ids(Filter(sessions, model.Filters{Query: q}, nil)))
}

func TestBuildFacets(t *testing.T) {
	f := BuildFacets(sessions)
	assert.Equal(t, []string{"Ethics", "Hardware"}, f.Tracks)
	assert.Equal(t, []string{"2025-12-27", "2025-12-28"}, f.Days)
	assert.Equal(t, []string{"Saal 1", "Saal 2"}, f.Rooms)
	assert.Equal(t, []string{"lecture"}, f.Types)
	assert.Equal(t, []string{"de", "en"}, f.Languages)

	empty := BuildFacets(nil)
	assert.Empty(t, empty.Tracks)
}

func TestConferenceState(t *testing.T) {
	assert.True(t, ConferenceOver(nil, base))
	assert.False(t, ConferenceRunning(nil, base))

	// Closing has no duration, so it ends 30 minutes after it starts.
	end := base.Add(24*time.Hour + 30*time.Minute)
	assert.True(t, ConferenceRunning(sessions, end.Add(-time.Second)))
	assert.True(t, ConferenceOver(sessions, end))

	assert.Equal(t, 0, CountPast(sessions, base))
	assert.Equal(t, 1, CountPast(sessions, base.Add(30*time.Minute)))
	assert.Equal(t, 3, CountPast(sessions, end))
}

func TestFormatAge(t *testing.T) {
	now := base
	assert.Equal(t, "unknown", FormatAge(time.Time{}, now))
	assert.Equal(t, "just now", FormatAge(now.Add(time.Minute), now))
	assert.Equal(t, "5s ago", FormatAge(now.Add(-5*time.Second), now))
	assert.Equal(t, "3m ago", FormatAge(now.Add(-3*time.Minute), now))
	assert.Equal(t, "2h ago", FormatAge(now.Add(-2*time.Hour), now))
	assert.Equal(t, "4d ago", FormatAge(now.Add(-100*time.Hour), now))
}
