package model

import (
	"sort"
	"strings"
	"time"
)

// DefaultSessionMinutes is assumed when a session has no usable duration.
const DefaultSessionMinutes = 30

// Session is one normalized schedule event.
type Session struct {
	ID    string    `json:"id"`
	Title string    `json:"title"`
	Start time.Time `json:"start"`

	// DayKey is the feed-declared day date (YYYY-MM-DD) when available,
	// else the local calendar date of Start. Grouping only.
	DayKey string `json:"dayKey"`

	Room            string   `json:"room,omitempty"`
	Track           string   `json:"track,omitempty"`
	Type            string   `json:"type,omitempty"`
	Language        string   `json:"language,omitempty"`
	DurationMinutes *int     `json:"durationMinutes,omitempty"`
	Abstract        string   `json:"abstract,omitempty"`
	Description     string   `json:"description,omitempty"`
	Speakers        []string `json:"speakers,omitempty"`
}

// End returns Start plus the duration, defaulting to DefaultSessionMinutes.
func (s Session) End() time.Time {
	mins := DefaultSessionMinutes
	if s.DurationMinutes != nil {
		mins = *s.DurationMinutes
	}
	return s.Start.Add(time.Duration(mins) * time.Minute)
}

func (s Session) HasEnded(now time.Time) bool {
	return !s.End().After(now)
}

func (s Session) IsCurrent(now time.Time) bool {
	return !now.Before(s.Start) && now.Before(s.End())
}

func (s Session) IsUpcoming(now time.Time) bool {
	return s.Start.After(now)
}

// ConferenceMeta is the conference-level metadata of a feed.
type ConferenceMeta struct {
	Title string `json:"title,omitempty"`
	// TimeZoneName is the IANA zone used in "schedule timezone" display mode.
	// Empty means the device zone.
	TimeZoneName string `json:"timeZoneName,omitempty"`
}

// Location resolves TimeZoneName, falling back to fallback when the name is
// empty or unknown.
func (m ConferenceMeta) Location(fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.Local
	}
	if m.TimeZoneName == "" {
		return fallback
	}
	loc, err := time.LoadLocation(m.TimeZoneName)
	if err != nil {
		return fallback
	}
	return loc
}

// ScheduleKey identifies a schedule by its source.
type ScheduleKey string

const (
	urlKeyPrefix  = "url:"
	fileKeyPrefix = "file:"

	defaultImportLabel = "imported-schedule"
)

func KeyFromURL(u string) ScheduleKey {
	return ScheduleKey(urlKeyPrefix + u)
}

func KeyFromFile(label string) ScheduleKey {
	if label == "" {
		label = defaultImportLabel
	}
	return ScheduleKey(fileKeyPrefix + label)
}

// KeyFor derives the key for a record source: the endpoint URL wins.
func KeyFor(endpointURL, sourceLabel string) ScheduleKey {
	if endpointURL != "" {
		return KeyFromURL(endpointURL)
	}
	return KeyFromFile(sourceLabel)
}

// Source splits the key into its kind ("url" or "file") and value.
func (k ScheduleKey) Source() (kind, value string) {
	s := string(k)
	switch {
	case strings.HasPrefix(s, urlKeyPrefix):
		return "url", strings.TrimPrefix(s, urlKeyPrefix)
	case strings.HasPrefix(s, fileKeyPrefix):
		return "file", strings.TrimPrefix(s, fileKeyPrefix)
	default:
		return "", s
	}
}

func (k ScheduleKey) String() string { return string(k) }

// ScheduleRecord is the persisted schedule for one key.
type ScheduleRecord struct {
	Key             ScheduleKey `json:"key"`
	EndpointURL     string      `json:"endpointUrl,omitempty"`
	SourceLabel     string      `json:"sourceLabel,omitempty"`
	ConferenceTitle string      `json:"conferenceTitle,omitempty"`
	TimeZoneName    string      `json:"timeZoneName,omitempty"`
	FetchedAt       time.Time   `json:"fetchedAt"`
	Sessions        []Session   `json:"sessions"`
}

// Refreshable reports whether the record can be re-fetched from a URL.
func (r ScheduleRecord) Refreshable() bool {
	return r.EndpointURL != ""
}

func (r ScheduleRecord) Meta() ConferenceMeta {
	return ConferenceMeta{Title: r.ConferenceTitle, TimeZoneName: r.TimeZoneName}
}

// SessionByID returns the session with the given id.
func (r ScheduleRecord) SessionByID(id string) (Session, bool) {
	for _, s := range r.Sessions {
		if s.ID == id {
			return s, true
		}
	}
	return Session{}, false
}

// Reminder offsets accepted by ReminderSettings.
const (
	OffsetAtStart    = 0
	OffsetTenMinutes = 10
)

type ReminderSettings struct {
	Enabled       bool `json:"enabled"`
	OffsetMinutes int  `json:"offsetMinutes"`
}

// ValidOffset reports whether m is one of the supported reminder offsets.
func ValidOffset(m int) bool {
	return m == OffsetAtStart || m == OffsetTenMinutes
}

// Normalize coerces OffsetMinutes onto the supported set {0, 10}.
func (s ReminderSettings) Normalize() ReminderSettings {
	if s.OffsetMinutes != OffsetAtStart {
		s.OffsetMinutes = OffsetTenMinutes
	}
	return s
}

// UserPreferences are per-schedule favorites and reminder settings, stored
// apart from schedule data.
type UserPreferences struct {
	LikedSessionIDs []string         `json:"likedSessionIds"`
	Reminders       ReminderSettings `json:"reminderSettings"`
}

// DefaultPreferences enables reminders so they work as soon as something is
// favorited and notifications are permitted.
func DefaultPreferences() UserPreferences {
	return UserPreferences{
		LikedSessionIDs: []string{},
		Reminders: ReminderSettings{
			Enabled:       true,
			OffsetMinutes: OffsetTenMinutes,
		},
	}
}

// LikedSet returns the liked ids as a set.
func (p UserPreferences) LikedSet() map[string]struct{} {
	set := make(map[string]struct{}, len(p.LikedSessionIDs))
	for _, id := range p.LikedSessionIDs {
		set[id] = struct{}{}
	}
	return set
}

// IsLiked reports whether id is a favorite.
func (p UserPreferences) IsLiked(id string) bool {
	for _, v := range p.LikedSessionIDs {
		if v == id {
			return true
		}
	}
	return false
}

// Canonical de-duplicates and sorts the liked ids and normalizes settings so
// equal preferences always serialize identically.
func (p UserPreferences) Canonical() UserPreferences {
	set := p.LikedSet()
	ids := make([]string, 0, len(set))
	for id := range set {
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return UserPreferences{LikedSessionIDs: ids, Reminders: p.Reminders.Normalize()}
}

// LibraryEntry is the cross-schedule registry record for one key.
type LibraryEntry struct {
	Key             ScheduleKey `json:"key"`
	EndpointURL     string      `json:"endpointUrl,omitempty"`
	SourceLabel     string      `json:"sourceLabel,omitempty"`
	ConferenceTitle string      `json:"conferenceTitle,omitempty"`
	TimeZoneName    string      `json:"timeZoneName,omitempty"`
	AddedAt         time.Time   `json:"addedAt"`
	LastAccessedAt  time.Time   `json:"lastAccessedAt"`
	LastFetchedAt   *time.Time  `json:"lastFetchedAt,omitempty"`
	SessionCount    *int        `json:"sessionCount,omitempty"`
}

// LibraryMeta is the part of a LibraryEntry supplied on every schedule save.
type LibraryMeta struct {
	Key             ScheduleKey
	EndpointURL     string
	SourceLabel     string
	ConferenceTitle string
	TimeZoneName    string
	LastFetchedAt   time.Time
	SessionCount    int
}

// MetaFromRecord builds the library metadata for rec.
func MetaFromRecord(rec ScheduleRecord) LibraryMeta {
	return LibraryMeta{
		Key:             rec.Key,
		EndpointURL:     rec.EndpointURL,
		SourceLabel:     rec.SourceLabel,
		ConferenceTitle: rec.ConferenceTitle,
		TimeZoneName:    rec.TimeZoneName,
		LastFetchedAt:   rec.FetchedAt,
		SessionCount:    len(rec.Sessions),
	}
}
