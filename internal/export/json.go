package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"confsched/internal/apperr"
	"confsched/internal/model"
)

// isoMillis matches the millisecond ISO-8601 form used in exports.
const isoMillis = "2006-01-02T15:04:05.000Z"

// Meta describes the schedule an export was taken from.
type Meta struct {
	ExportedAt           string  `json:"exportedAt"`
	SourceURL            *string `json:"sourceUrl"`
	SourceLabel          *string `json:"sourceLabel"`
	ConferenceTitle      *string `json:"conferenceTitle"`
	ScheduleTimeZoneName *string `json:"scheduleTimeZoneName"`
	FetchedAt            *string `json:"fetchedAt"`
}

// MetaFor builds the export metadata for rec.
func MetaFor(rec model.ScheduleRecord, now time.Time) Meta {
	m := Meta{
		ExportedAt:           iso(now),
		SourceURL:            optional(rec.EndpointURL),
		SourceLabel:          optional(rec.SourceLabel),
		ConferenceTitle:      optional(rec.ConferenceTitle),
		ScheduleTimeZoneName: optional(rec.TimeZoneName),
	}
	if !rec.FetchedAt.IsZero() {
		m.FetchedAt = optional(iso(rec.FetchedAt))
	}
	return m
}

type jsonSession struct {
	ID              string   `json:"id"`
	Title           string   `json:"title"`
	DayKey          string   `json:"dayKey"`
	Start           string   `json:"start"`
	DurationMinutes *int     `json:"durationMinutes"`
	Room            *string  `json:"room"`
	Track           *string  `json:"track"`
	Type            *string  `json:"type"`
	Language        *string  `json:"language"`
	Speakers        []string `json:"speakers"`
	Abstract        *string  `json:"abstract"`
	Description     *string  `json:"description"`
}

type jsonExport struct {
	Meta     Meta          `json:"meta"`
	Sessions []jsonSession `json:"sessions"`
}

// JSON writes {meta, sessions} indented by two spaces. Absent optional
// fields are written as null and speakers as an empty list.
func JSON(w io.Writer, sessions []model.Session, meta Meta) error {
	out := jsonExport{Meta: meta, Sessions: make([]jsonSession, 0, len(sessions))}
	for _, s := range sessions {
		speakers := s.Speakers
		if speakers == nil {
			speakers = []string{}
		}
		out.Sessions = append(out.Sessions, jsonSession{
			ID:              s.ID,
			Title:           s.Title,
			DayKey:          s.DayKey,
			Start:           iso(s.Start),
			DurationMinutes: s.DurationMinutes,
			Room:            optional(s.Room),
			Track:           optional(s.Track),
			Type:            optional(s.Type),
			Language:        optional(s.Language),
			Speakers:        speakers,
			Abstract:        optional(s.Abstract),
			Description:     optional(s.Description),
		})
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// ReadJSON parses a JSON export back into sessions.
func ReadJSON(r io.Reader) (Meta, []model.Session, error) {
	const op = "read json export"

	var in jsonExport
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return Meta{}, nil, apperr.E(apperr.KindSchemaValidation, op, "not a JSON export", err)
	}

	sessions := make([]model.Session, 0, len(in.Sessions))
	for i, js := range in.Sessions {
		start, err := time.Parse(time.RFC3339Nano, js.Start)
		if err != nil {
			return Meta{}, nil, apperr.E(apperr.KindSchemaValidation, op, fmt.Sprintf("sessions[%d].start is not an ISO-8601 instant", i), err)
		}
		s := model.Session{
			ID:              js.ID,
			Title:           js.Title,
			DayKey:          js.DayKey,
			Start:           start,
			DurationMinutes: js.DurationMinutes,
			Room:            deref(js.Room),
			Track:           deref(js.Track),
			Type:            deref(js.Type),
			Language:        deref(js.Language),
			Abstract:        deref(js.Abstract),
			Description:     deref(js.Description),
		}
		if len(js.Speakers) > 0 {
			s.Speakers = js.Speakers
		}
		sessions = append(sessions, s)
	}
	return in.Meta, sessions, nil
}

func iso(t time.Time) string {
	return t.UTC().Format(isoMillis)
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
