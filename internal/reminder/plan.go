// Package reminder arms notifications for favorited sessions through two
// independent delivery paths: in-process timers and a polling loop that
// receives arm-lists as messages.
package reminder

import (
	"fmt"
	"time"

	"confsched/internal/model"
)

const (
	// Horizon is how far ahead a reminder may be armed.
	Horizon = 24 * time.Hour

	tagPrefix = "session-reminder-"
)

// Reminder is one armed notification.
type Reminder struct {
	SessionID string    `json:"sessionId"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	FireAt    time.Time `json:"fireAt"`
}

// Tag is the notification tag shared by both delivery paths.
func (r Reminder) Tag() string {
	return Tag(r.SessionID)
}

func Tag(sessionID string) string {
	return tagPrefix + sessionID
}

// FireTime is the session start minus the reminder offset.
func FireTime(s model.Session, offsetMinutes int) time.Time {
	return s.Start.Add(-time.Duration(offsetMinutes) * time.Minute)
}

// Plan computes the reminders to arm for liked. A session whose fire time
// has passed, or lies more than Horizon ahead, is skipped and counted.
// Disabled settings plan nothing. loc is the zone for the time in the body.
func Plan(liked []model.Session, settings model.ReminderSettings, now time.Time, loc *time.Location) ([]Reminder, int) {
	if !settings.Enabled {
		return nil, 0
	}
	if loc == nil {
		loc = time.Local
	}
	settings = settings.Normalize()

	var (
		armed   []Reminder
		skipped int
	)
	for _, s := range liked {
		fireAt := FireTime(s, settings.OffsetMinutes)
		delay := fireAt.Sub(now)
		if delay <= 0 || delay > Horizon {
			skipped++
			continue
		}
		armed = append(armed, Reminder{
			SessionID: s.ID,
			Title:     title(s, settings.OffsetMinutes),
			Body:      body(s, loc),
			FireAt:    fireAt.UTC(),
		})
	}
	return armed, skipped
}

func title(s model.Session, offset int) string {
	if offset == model.OffsetAtStart {
		return "Starting now: " + s.Title
	}
	return fmt.Sprintf("Starts in %d minutes: %s", offset, s.Title)
}

func body(s model.Session, loc *time.Location) string {
	b := s.Start.In(loc).Format("15:04")
	if s.Room != "" {
		b += " • " + s.Room
	}
	return b
}

// StatusText summarizes a planning result for the user.
func StatusText(armed, skipped int) string {
	text := fmt.Sprintf("Scheduled %d reminder(s).", armed)
	if skipped > 0 {
		text += fmt.Sprintf(" (%d skipped: already started or >24h away.)", skipped)
	}
	return text
}
