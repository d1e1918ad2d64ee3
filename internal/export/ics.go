// Package export renders favorited sessions as iCalendar, JSON and CSV, and
// reads favorites back out of an earlier iCalendar export.
package export

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"confsched/internal/apperr"
	"confsched/internal/model"
)

const (
	DefaultProdID = "-//confsched//EN"

	uidDomain  = "@confsched"
	foldWidth  = 72
	saltLength = 24
	icsStamp   = "20060102T150405Z"
)

type ICSOptions struct {
	CalendarName string
	// UIDSalt namespaces event UIDs per schedule source. See UIDSalt.
	UIDSalt string
	ProdID  string
	Now     time.Time
}

// UIDSalt derives the UID namespace of a record: the first characters of the
// escaped endpoint URL, else the source label, else "offline".
func UIDSalt(rec model.ScheduleRecord) string {
	if rec.EndpointURL != "" {
		s := url.QueryEscape(rec.EndpointURL)
		if len(s) > saltLength {
			s = s[:saltLength]
		}
		return s
	}
	if rec.SourceLabel != "" {
		return rec.SourceLabel
	}
	return "offline"
}

// CalendarName is the X-WR-CALNAME used for a record's export.
func CalendarName(rec model.ScheduleRecord) string {
	title := rec.ConferenceTitle
	if title == "" {
		title = "Schedule"
	}
	return "My Choices - " + title
}

// UID is the event UID of session id under salt.
func UID(salt, id string) string {
	return salt + "-" + id + uidDomain
}

// ICS writes sessions as a VCALENDAR. Lines end in CRLF, times are UTC, and
// lines longer than 72 characters are folded.
func ICS(w io.Writer, sessions []model.Session, opts ICSOptions) error {
	if opts.ProdID == "" {
		opts.ProdID = DefaultProdID
	}
	if opts.UIDSalt == "" {
		opts.UIDSalt = "schedule"
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	stamp := opts.Now.UTC().Format(icsStamp)

	bw := bufio.NewWriter(w)
	line := func(s string) {
		bw.WriteString(fold(s))
		bw.WriteString("\r\n")
	}

	line("BEGIN:VCALENDAR")
	line("VERSION:2.0")
	line("PRODID:" + opts.ProdID)
	line("CALSCALE:GREGORIAN")
	line("METHOD:PUBLISH")
	line("X-WR-CALNAME:" + escapeText(opts.CalendarName))

	for _, s := range sessions {
		line("BEGIN:VEVENT")
		line("UID:" + escapeText(UID(opts.UIDSalt, s.ID)))
		line("DTSTAMP:" + stamp)
		line("DTSTART:" + s.Start.UTC().Format(icsStamp))
		line("DTEND:" + s.End().UTC().Format(icsStamp))
		line("SUMMARY:" + escapeText(s.Title))
		if s.Room != "" {
			line("LOCATION:" + escapeText(s.Room))
		}
		if d := description(s); d != "" {
			line("DESCRIPTION:" + escapeText(d))
		}
		line("END:VEVENT")
	}
	line("END:VCALENDAR")

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write ics: %w", err)
	}
	return nil
}

func description(s model.Session) string {
	var parts []string
	if len(s.Speakers) > 0 {
		parts = append(parts, "Speakers: "+strings.Join(s.Speakers, ", "))
	}
	if s.Abstract != "" {
		parts = append(parts, s.Abstract)
	}
	if s.Description != "" {
		parts = append(parts, s.Description)
	}
	return strings.Join(parts, "\n\n")
}

var (
	textEscaper   = strings.NewReplacer(`\`, `\\`, "\n", `\n`, ";", `\;`, ",", `\,`)
	textUnescaper = strings.NewReplacer(`\\`, `\`, `\n`, "\n", `\N`, "\n", `\;`, ";", `\,`, ",")
)

func escapeText(s string) string {
	return textEscaper.Replace(s)
}

// fold splits s into chunks of foldWidth runes joined by CRLF and a space.
func fold(s string) string {
	r := []rune(s)
	if len(r) <= foldWidth {
		return s
	}
	var b strings.Builder
	for i := 0; i < len(r); i += foldWidth {
		if i > 0 {
			b.WriteString("\r\n ")
		}
		end := min(i+foldWidth, len(r))
		b.WriteString(string(r[i:end]))
	}
	return b.String()
}

// RestoreFavorites reads an ICS export and returns the session ids of events
// whose UID belongs to salt, in file order without duplicates.
func RestoreFavorites(r io.Reader, salt string) ([]string, error) {
	const op = "restore favorites"

	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, apperr.E(apperr.KindSchemaValidation, op, "not an iCalendar file", err)
	}

	prefix := salt + "-"
	seen := make(map[string]struct{})
	ids := []string{}
	for _, ev := range cal.Events() {
		p := ev.GetProperty(ical.ComponentPropertyUniqueId)
		if p == nil {
			continue
		}
		uid := p.Value
		if strings.Contains(uid, `\`) {
			uid = textUnescaper.Replace(uid)
		}
		if !strings.HasPrefix(uid, prefix) || !strings.HasSuffix(uid, uidDomain) {
			continue
		}
		id := strings.TrimSuffix(strings.TrimPrefix(uid, prefix), uidDomain)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids, nil
}
