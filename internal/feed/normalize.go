package feed

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"confsched/internal/apperr"
	"confsched/internal/model"
)

// Options controls normalization.
type Options struct {
	// Location is the device zone used when an event only carries a local
	// time-of-day. If nil, time.Local is used.
	Location *time.Location
}

// Result is the normalized feed.
type Result struct {
	Sessions []model.Session
	Meta     model.ConferenceMeta
	// Dropped counts events that could not become sessions (no title or no
	// resolvable start).
	Dropped int
}

// Parse decodes, validates and normalizes a feed. A structurally valid feed
// with no usable sessions fails with EmptySchedule.
func Parse(data []byte, opts Options) (Result, error) {
	doc, err := Decode(data)
	if err != nil {
		return Result{}, err
	}
	if err := Validate(doc); err != nil {
		return Result{}, err
	}
	res := Normalize(doc, opts)
	if len(res.Sessions) == 0 {
		return res, apperr.E(apperr.KindEmptySchedule, "parse feed",
			"schedule loaded, but no sessions were found (unexpected format or empty schedule)", nil)
	}
	return res, nil
}

// Normalize converts a decoded feed into sessions sorted by start. Sessions
// with equal starts keep feed order, rooms included. It never fails:
// anything it cannot interpret is skipped.
func Normalize(doc Document, opts Options) Result {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}

	var res Result
	root, _ := doc.tree.(map[string]any)
	sched, _ := root["schedule"].(map[string]any)
	conf, _ := sched["conference"].(map[string]any)

	res.Meta.Title, _ = conf["title"].(string)
	res.Meta.TimeZoneName, _ = conf["time_zone_name"].(string)

	days, _ := conf["days"].([]any)
	for i, rawDay := range days {
		day, ok := rawDay.(map[string]any)
		if !ok {
			continue
		}
		dayDate, _ := day["date"].(string)
		rooms, _ := day["rooms"].(map[string]any)

		for _, roomName := range doc.keys("/schedule/conference/days/" + strconv.Itoa(i) + "/rooms") {
			events, _ := rooms[roomName].([]any)
			for _, rawEv := range events {
				ev, ok := rawEv.(map[string]any)
				if !ok {
					res.Dropped++
					continue
				}
				s, ok := normalizeEvent(ev, dayDate, roomName, loc)
				if !ok {
					res.Dropped++
					continue
				}
				res.Sessions = append(res.Sessions, s)
			}
		}
	}

	sort.SliceStable(res.Sessions, func(i, j int) bool {
		return res.Sessions[i].Start.Before(res.Sessions[j].Start)
	})
	return res
}

func normalizeEvent(ev map[string]any, dayDate, roomName string, loc *time.Location) (model.Session, bool) {
	title, ok := ev["title"].(string)
	if !ok {
		return model.Session{}, false
	}

	start, ok := resolveStart(ev, dayDate, loc)
	if !ok {
		return model.Session{}, false
	}

	room := roomName
	if room == "" {
		room = str(ev, "room")
	}

	dayKey := dayDate
	if dayKey == "" {
		dayKey = start.In(loc).Format("2006-01-02")
	}

	fallback := title + "|" + start.UTC().Format("2006-01-02T15:04:05.000Z") + "|" + roomName

	return model.Session{
		ID:              makeID(ev, fallback),
		Title:           title,
		Start:           start,
		DayKey:          dayKey,
		Room:            room,
		Track:           str(ev, "track"),
		Type:            str(ev, "type"),
		Language:        str(ev, "language"),
		DurationMinutes: ParseDuration(str(ev, "duration")),
		Abstract:        str(ev, "abstract"),
		Description:     str(ev, "description"),
		Speakers:        speakers(ev["persons"]),
	}, true
}

var absoluteLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z07:00",
}

var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
}

// resolveStart picks the explicit timestamp when the event has a non-blank
// one, else combines the day date with the local time-of-day in loc. The
// fallback is approximate whenever loc differs from the conference zone.
func resolveStart(ev map[string]any, dayDate string, loc *time.Location) (time.Time, bool) {
	if iso, ok := ev["date"].(string); ok && strings.TrimSpace(iso) != "" {
		t, ok := parseTimestamp(strings.TrimSpace(iso), loc)
		return t, ok && inRange(t)
	}

	startOfDay, ok := ev["start"].(string)
	if !ok || dayDate == "" {
		return time.Time{}, false
	}
	clock := strings.TrimSpace(startOfDay)
	for _, layout := range []string{"2006-01-02T15:04", "2006-01-02T15:04:05"} {
		if t, err := time.ParseInLocation(layout, dayDate+"T"+clock, loc); err == nil {
			return t, inRange(t)
		}
	}
	return time.Time{}, false
}

func parseTimestamp(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range absoluteLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func inRange(t time.Time) bool {
	y := t.UTC().Year()
	return y >= 1 && y <= 9999
}

var hhmm = regexp.MustCompile(`^(\d+):(\d{2})$`)

// ParseDuration accepts "HH:MM", a bare integer of minutes, or nothing.
// Malformed input yields nil rather than an error.
func ParseDuration(s string) *int {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if m := hhmm.FindStringSubmatch(s); m != nil {
		hh, err1 := strconv.Atoi(m[1])
		mm, err2 := strconv.Atoi(m[2])
		if err1 == nil && err2 == nil {
			total := hh*60 + mm
			return &total
		}
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return &n
	}
	return nil
}

func makeID(ev map[string]any, fallback string) string {
	if guid, ok := ev["guid"].(string); ok && strings.TrimSpace(guid) != "" {
		return strings.TrimSpace(guid)
	}
	switch id := ev["id"].(type) {
	case string:
		if strings.TrimSpace(id) != "" {
			return strings.TrimSpace(id)
		}
	case json.Number:
		if f, err := id.Float64(); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			return id.String()
		}
	case float64:
		if !math.IsInf(id, 0) && !math.IsNaN(id) {
			return strconv.FormatFloat(id, 'f', -1, 64)
		}
	}
	return fallback
}

func speakers(raw any) []string {
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, p := range list {
		switch v := p.(type) {
		case string:
			if v != "" {
				out = append(out, v)
			}
		case map[string]any:
			if name, ok := v["public_name"].(string); ok && name != "" {
				out = append(out, name)
			} else if name, ok := v["name"].(string); ok && name != "" {
				out = append(out, name)
			}
		}
	}
	return out
}

func str(ev map[string]any, key string) string {
	s, _ := ev[key].(string)
	return s
}
