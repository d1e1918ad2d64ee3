package schedule

import (
	"sort"
	"strings"

	"confsched/internal/model"
)

// MaxQueryLength bounds the free-text search query.
const MaxQueryLength = 500

// Filter returns the sessions matching f, keeping their order. liked is
// consulted only when f.LikedOnly is set.
func Filter(sessions []model.Session, f model.Filters, liked map[string]struct{}) []model.Session {
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if len(q) > MaxQueryLength {
		q = q[:MaxQueryLength]
	}

	out := make([]model.Session, 0, len(sessions))
	for _, s := range sessions {
		if !matches(f.Track, s.Track) ||
			!matches(f.Day, s.DayKey) ||
			!matches(f.Room, s.Room) ||
			!matches(f.Type, s.Type) ||
			!matches(f.Language, s.Language) {
			continue
		}
		if f.LikedOnly {
			if _, ok := liked[s.ID]; !ok {
				continue
			}
		}
		if q != "" && !strings.Contains(haystack(s), q) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func matches(want, got string) bool {
	return want == "" || want == model.FilterAll || want == got
}

func haystack(s model.Session) string {
	parts := []string{s.Title, s.Room, s.Track, s.Type, s.Language, s.Abstract, s.Description}
	parts = append(parts, s.Speakers...)
	kept := parts[:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.ToLower(strings.Join(kept, " "))
}

// Facets are the distinct filter values present in a schedule.
type Facets struct {
	Tracks    []string `json:"tracks"`
	Days      []string `json:"days"`
	Rooms     []string `json:"rooms"`
	Types     []string `json:"types"`
	Languages []string `json:"languages"`
}

// BuildFacets collects the unique, trimmed, sorted values of each filterable
// field.
func BuildFacets(sessions []model.Session) Facets {
	var tracks, days, rooms, types, langs []string
	for _, s := range sessions {
		tracks = append(tracks, s.Track)
		days = append(days, s.DayKey)
		rooms = append(rooms, s.Room)
		types = append(types, s.Type)
		langs = append(langs, s.Language)
	}
	return Facets{
		Tracks:    uniqSorted(tracks),
		Days:      uniqSorted(days),
		Rooms:     uniqSorted(rooms),
		Types:     uniqSorted(types),
		Languages: uniqSorted(langs),
	}
}

func uniqSorted(values []string) []string {
	set := map[string]struct{}{}
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			set[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
