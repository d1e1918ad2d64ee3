// Package schedule coordinates loading, importing, switching and removing
// schedules, and the favorites kept for them.
package schedule

import (
	"context"
	"sort"
	"strings"
	"time"

	"confsched/internal/apperr"
	"confsched/internal/feed"
	appLog "confsched/internal/log"
	"confsched/internal/metrics"
	"confsched/internal/model"
	"confsched/internal/store"
)

// Fetcher downloads a feed body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (feed.FetchResult, error)
}

// Deps are the collaborators of a Manager.
type Deps struct {
	Fetcher     Fetcher
	Schedules   *store.Schedules
	Preferences *store.Preferences
	Library     *store.Library
	// Location is the device zone for feeds that only carry local times.
	Location *time.Location
	Now      func() time.Time
}

type Manager struct {
	fetcher   Fetcher
	schedules *store.Schedules
	prefs     *store.Preferences
	library   *store.Library
	loc       *time.Location
	now       func() time.Time
}

func NewManager(d Deps) *Manager {
	m := &Manager{
		fetcher:   d.Fetcher,
		schedules: d.Schedules,
		prefs:     d.Preferences,
		library:   d.Library,
		loc:       d.Location,
		now:       d.Now,
	}
	if m.loc == nil {
		m.loc = time.Local
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Loaded is a schedule with the preferences stored for its key.
type Loaded struct {
	Record      model.ScheduleRecord  `json:"schedule"`
	Preferences model.UserPreferences `json:"preferences"`
}

// LoadFromURL fetches and normalizes the feed at url and stores it as the
// active schedule. On failure nothing stored is changed.
func (m *Manager) LoadFromURL(ctx context.Context, url string) (Loaded, error) {
	url = strings.TrimSpace(url)
	rec, err := m.fetchRecord(ctx, url)
	if err == nil {
		rec.Key = model.KeyFromURL(url)
		err = m.schedules.Save(ctx, rec)
	}
	metrics.ScheduleLoads.WithLabelValues("url", metrics.Result(err)).Inc()
	if err != nil {
		return Loaded{}, err
	}
	return m.withPrefs(ctx, rec)
}

// ImportFile normalizes an uploaded feed and stores it under a file key
// derived from label.
func (m *Manager) ImportFile(ctx context.Context, label string, data []byte) (Loaded, error) {
	label = strings.TrimSpace(label)
	res, err := feed.Parse(data, feed.Options{Location: m.loc})
	var rec model.ScheduleRecord
	if err == nil {
		rec = m.record(res, "", label)
		err = m.schedules.Save(ctx, rec)
	}
	metrics.ScheduleLoads.WithLabelValues("file", metrics.Result(err)).Inc()
	if err != nil {
		return Loaded{}, err
	}
	appLog.Info("schedule imported", "label", label, "sessions", len(rec.Sessions), "dropped", res.Dropped)
	return m.withPrefs(ctx, rec)
}

// Refetch downloads rec's endpoint again and replaces the stored sessions
// under the same key. The source label is kept.
func (m *Manager) Refetch(ctx context.Context, rec model.ScheduleRecord) (model.ScheduleRecord, error) {
	if !rec.Refreshable() {
		return model.ScheduleRecord{}, apperr.E(apperr.KindUnsupported, "refetch schedule", "schedule has no endpoint URL", nil)
	}
	fresh, err := m.fetchRecord(ctx, rec.EndpointURL)
	if err != nil {
		return model.ScheduleRecord{}, err
	}
	fresh.Key = rec.Key
	fresh.SourceLabel = rec.SourceLabel
	if err := m.schedules.Save(ctx, fresh); err != nil {
		return model.ScheduleRecord{}, err
	}
	return fresh, nil
}

func (m *Manager) fetchRecord(ctx context.Context, url string) (model.ScheduleRecord, error) {
	res, err := m.fetcher.Fetch(ctx, url)
	if err != nil {
		return model.ScheduleRecord{}, err
	}
	parsed, err := feed.Parse(res.Body, feed.Options{Location: m.loc})
	if err != nil {
		return model.ScheduleRecord{}, err
	}
	if parsed.Dropped > 0 {
		appLog.Info("feed events skipped", "url", feed.RedactURL(url), "dropped", parsed.Dropped)
	}
	return m.record(parsed, url, ""), nil
}

func (m *Manager) record(res feed.Result, url, label string) model.ScheduleRecord {
	return model.ScheduleRecord{
		Key:             model.KeyFor(url, label),
		EndpointURL:     url,
		SourceLabel:     label,
		ConferenceTitle: res.Meta.Title,
		TimeZoneName:    res.Meta.TimeZoneName,
		FetchedAt:       m.now().UTC(),
		Sessions:        res.Sessions,
	}
}

// OpenFromLibrary makes a previously stored schedule active again. A library
// entry whose data was deleted yields NotFound.
func (m *Manager) OpenFromLibrary(ctx context.Context, key model.ScheduleKey) (Loaded, error) {
	const op = "open schedule"

	rec, err := m.schedules.Load(ctx, key)
	if err == nil && len(rec.Sessions) == 0 {
		err = apperr.NotFound(op, "schedule data for "+key.String())
	}
	metrics.ScheduleLoads.WithLabelValues("library", metrics.Result(err)).Inc()
	if err != nil {
		return Loaded{}, err
	}

	if err := m.schedules.SetActive(ctx, key); err != nil {
		return Loaded{}, err
	}
	if err := m.library.SetLastActive(ctx, key); err != nil {
		appLog.Error("library last-active update failed", err, "key", key.String())
	}
	return m.withPrefs(ctx, rec)
}

// Current returns the active schedule, falling back to the library's last
// active one.
func (m *Manager) Current(ctx context.Context) (Loaded, error) {
	rec, err := m.schedules.LoadActive(ctx)
	if err != nil && !apperr.Is(err, apperr.KindNotFound) {
		return Loaded{}, err
	}
	if err == nil && len(rec.Sessions) > 0 {
		return m.withPrefs(ctx, rec)
	}

	key, ok, err := m.library.LastActive(ctx)
	if err != nil {
		return Loaded{}, err
	}
	if ok {
		rec, err := m.schedules.Load(ctx, key)
		if err == nil && len(rec.Sessions) > 0 {
			appLog.Debug("no active schedule; using last active from library", "key", key.String())
			return m.withPrefs(ctx, rec)
		}
		if err != nil && !apperr.Is(err, apperr.KindNotFound) {
			return Loaded{}, err
		}
	}
	return Loaded{}, apperr.NotFound("current schedule", "schedule")
}

// Clear forgets the current schedule without deleting anything.
func (m *Manager) Clear(ctx context.Context) error {
	if err := m.schedules.ClearActive(ctx); err != nil {
		return err
	}
	return m.library.ClearLastActive(ctx)
}

// DeleteOptions selects what Delete removes besides the schedule data.
type DeleteOptions struct {
	Preferences bool
	Library     bool
}

// Delete removes the stored schedule for key. Favorites and the library
// entry go only when requested.
func (m *Manager) Delete(ctx context.Context, key model.ScheduleKey, opts DeleteOptions) error {
	if err := m.schedules.Delete(ctx, key); err != nil {
		return err
	}
	if opts.Preferences {
		if err := m.prefs.Delete(ctx, key); err != nil {
			return err
		}
	}
	if opts.Library {
		if err := m.library.Remove(ctx, key); err != nil {
			return err
		}
	}
	appLog.Info("schedule deleted", "key", key.String(), "preferences", opts.Preferences, "library", opts.Library)
	return nil
}

// ToggleLike flips the favorite state of a session and returns the new
// preferences.
func (m *Manager) ToggleLike(ctx context.Context, key model.ScheduleKey, id string) (bool, model.UserPreferences, error) {
	if strings.TrimSpace(id) == "" {
		return false, model.UserPreferences{}, apperr.E(apperr.KindNotFound, "toggle like", "session id is empty", nil)
	}
	return m.prefs.ToggleLiked(ctx, key, id)
}

// SetLike marks a session as favorite or not. Setting the state it already
// has is a no-op.
func (m *Manager) SetLike(ctx context.Context, key model.ScheduleKey, id string, liked bool) (model.UserPreferences, error) {
	if strings.TrimSpace(id) == "" {
		return model.UserPreferences{}, apperr.E(apperr.KindNotFound, "set like", "session id is empty", nil)
	}
	return m.prefs.SetLiked(ctx, key, id, liked)
}

// SetReminderSettings stores the reminder settings for key.
func (m *Manager) SetReminderSettings(ctx context.Context, key model.ScheduleKey, rs model.ReminderSettings) (model.UserPreferences, error) {
	return m.prefs.UpdateReminderSettings(ctx, key, rs)
}

// RestoreLiked marks the ids that exist in rec as favorites and returns how
// many were new.
func (m *Manager) RestoreLiked(ctx context.Context, rec model.ScheduleRecord, ids []string) (int, model.UserPreferences, error) {
	before, err := m.prefs.Load(ctx, rec.Key)
	if err != nil {
		return 0, model.UserPreferences{}, err
	}
	known := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := rec.SessionByID(id); ok {
			known = append(known, id)
		}
	}
	prefs, err := m.prefs.AddLiked(ctx, rec.Key, known)
	if err != nil {
		return 0, model.UserPreferences{}, err
	}
	return len(prefs.LikedSessionIDs) - len(before.Canonical().LikedSessionIDs), prefs, nil
}

// LikedSessions returns the favorited sessions of rec in start order. Ids
// with no matching session are ignored.
func LikedSessions(rec model.ScheduleRecord, prefs model.UserPreferences) []model.Session {
	set := prefs.LikedSet()
	var out []model.Session
	for _, s := range rec.Sessions {
		if _, ok := set[s.ID]; ok {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Liked loads the schedule for key and returns its favorited sessions.
func (m *Manager) Liked(ctx context.Context, key model.ScheduleKey) ([]model.Session, error) {
	rec, err := m.schedules.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	prefs, err := m.prefs.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	return LikedSessions(rec, prefs), nil
}

// Library lists every known schedule, most recently used first.
func (m *Manager) Library(ctx context.Context) ([]model.LibraryEntry, error) {
	return m.library.List(ctx)
}

// Preferences returns the stored preferences for key.
func (m *Manager) Preferences(ctx context.Context, key model.ScheduleKey) (model.UserPreferences, error) {
	return m.prefs.Load(ctx, key)
}

func (m *Manager) withPrefs(ctx context.Context, rec model.ScheduleRecord) (Loaded, error) {
	prefs, err := m.prefs.Load(ctx, rec.Key)
	if err != nil {
		return Loaded{}, err
	}
	return Loaded{Record: rec, Preferences: prefs}, nil
}
