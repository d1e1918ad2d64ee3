package schedule

import (
	"fmt"
	"time"

	"confsched/internal/model"
)

// ConferenceRunning reports whether at least one session has not ended.
func ConferenceRunning(sessions []model.Session, now time.Time) bool {
	for _, s := range sessions {
		if !s.HasEnded(now) {
			return true
		}
	}
	return false
}

// ConferenceOver reports whether every session has ended. An empty schedule
// counts as over.
func ConferenceOver(sessions []model.Session, now time.Time) bool {
	return !ConferenceRunning(sessions, now)
}

func CountPast(sessions []model.Session, now time.Time) int {
	n := 0
	for _, s := range sessions {
		if s.HasEnded(now) {
			n++
		}
	}
	return n
}

// FormatAge renders how long ago t was, e.g. "5m ago". The zero time is
// "unknown".
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := now.Sub(t)
	if d < 0 {
		return "just now"
	}
	sec := int(d / time.Second)
	switch {
	case sec < 60:
		return fmt.Sprintf("%ds ago", sec)
	case sec < 3600:
		return fmt.Sprintf("%dm ago", sec/60)
	case sec < 86400:
		return fmt.Sprintf("%dh ago", sec/3600)
	default:
		return fmt.Sprintf("%dd ago", sec/86400)
	}
}
