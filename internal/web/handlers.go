package web

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"confsched/internal/apperr"
	"confsched/internal/export"
	"confsched/internal/model"
	"confsched/internal/refresh"
	"confsched/internal/reminder"
	"confsched/internal/schedule"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.DB != nil {
		if err := s.deps.DB.Ping(r.Context()); err != nil {
			writeAppError(w, r, err)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type scheduleResponse struct {
	schedule.Loaded
	View            model.ViewParams `json:"view"`
	DisplayTimeZone string           `json:"displayTimeZone"`
	Age             string           `json:"age"`
	Running         bool             `json:"running"`
	Over            bool             `json:"over"`
	PastCount       int              `json:"pastCount"`
	Refresh         refresh.State    `json:"refresh"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cur, err := s.deps.Manager.Current(ctx)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	view, err := s.deps.State.ViewParams(ctx)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	now := s.deps.Now()
	sessions := cur.Record.Sessions
	writeJSON(w, http.StatusOK, scheduleResponse{
		Loaded:          cur,
		View:            view,
		DisplayTimeZone: view.DisplayLocation(cur.Record.Meta()).String(),
		Age:             schedule.FormatAge(cur.Record.FetchedAt, now),
		Running:         schedule.ConferenceRunning(sessions, now),
		Over:            schedule.ConferenceOver(sessions, now),
		PastCount:       schedule.CountPast(sessions, now),
		Refresh:         s.deps.Refresher.State(),
	})
}

// handleClear forgets the current schedule without deleting it.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Manager.Clear(r.Context()); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.Sync(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type sessionView struct {
	model.Session
	Liked bool `json:"liked"`
}

type sessionsResponse struct {
	Sessions []sessionView `json:"sessions"`
	Total    int           `json:"total"`
}

func filtersFromQuery(r *http.Request) model.Filters {
	q := r.URL.Query()
	liked := q.Get("liked")
	return model.Filters{
		Track:     q.Get("track"),
		Day:       q.Get("day"),
		Room:      q.Get("room"),
		Type:      q.Get("type"),
		Language:  q.Get("language"),
		Query:     q.Get("q"),
		LikedOnly: liked == "1" || strings.EqualFold(liked, "true"),
	}
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	cur, err := s.deps.Manager.Current(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	liked := cur.Preferences.LikedSet()
	matched := schedule.Filter(cur.Record.Sessions, filtersFromQuery(r), liked)

	out := make([]sessionView, 0, len(matched))
	for _, sess := range matched {
		_, ok := liked[sess.ID]
		out = append(out, sessionView{Session: sess, Liked: ok})
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: out, Total: len(cur.Record.Sessions)})
}

func (s *Server) handleFacets(w http.ResponseWriter, r *http.Request) {
	cur, err := s.deps.Manager.Current(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule.BuildFacets(cur.Record.Sessions))
}

type likeResponse struct {
	Liked       bool                  `json:"liked"`
	Preferences model.UserPreferences `json:"preferences"`
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := mux.Vars(r)["id"]

	cur, err := s.deps.Manager.Current(ctx)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if _, ok := cur.Record.SessionByID(id); !ok {
		writeAppError(w, r, apperr.NotFound("like session", "session "+id))
		return
	}
	liked, prefs, err := s.deps.Manager.ToggleLike(ctx, cur.Record.Key, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.SyncReminders(ctx)
	writeJSON(w, http.StatusOK, likeResponse{Liked: liked, Preferences: prefs})
}

func (s *Server) handleLibrary(w http.ResponseWriter, r *http.Request) {
	entries, err := s.deps.Manager.Library(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type openRequest struct {
	Key model.ScheduleKey `json:"key"`
}

func (s *Server) handleLibraryOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	loaded, err := s.deps.Manager.OpenFromLibrary(r.Context(), req.Key)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.Sync(r.Context())
	writeJSON(w, http.StatusOK, loaded)
}

// handleLibraryDelete removes a schedule and its library entry. Favorites
// are removed only with preferences=1.
func (s *Server) handleLibraryDelete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	key := model.ScheduleKey(q.Get("key"))
	if key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	opts := schedule.DeleteOptions{
		Preferences: q.Get("preferences") == "1",
		Library:     true,
	}
	if err := s.deps.Manager.Delete(r.Context(), key, opts); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.Sync(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type loadRequest struct {
	URL string `json:"url"`
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req loadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	loaded, err := s.deps.Manager.LoadFromURL(r.Context(), req.URL)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.Sync(r.Context())
	writeJSON(w, http.StatusOK, loaded)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	data, ok := readUpload(w, r)
	if !ok {
		return
	}
	loaded, err := s.deps.Manager.ImportFile(r.Context(), r.URL.Query().Get("label"), data)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.Sync(r.Context())
	writeJSON(w, http.StatusOK, loaded)
}

type refreshResponse struct {
	Schedule model.ScheduleRecord `json:"schedule"`
	Refresh  refresh.State        `json:"refresh"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	rec, err := s.deps.Refresher.Refresh(r.Context(), refresh.Manual)
	switch {
	case errors.Is(err, refresh.ErrInProgress):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, refresh.ErrNotRefreshable):
		writeError(w, http.StatusConflict, s.deps.Refresher.State().LastError)
		return
	case err != nil:
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refreshResponse{Schedule: rec, Refresh: s.deps.Refresher.State()})
}

func (s *Server) handleDismissError(w http.ResponseWriter, _ *http.Request) {
	s.deps.Refresher.ClearError()
	w.WriteHeader(http.StatusNoContent)
}

type remindersResponse struct {
	Status   reminder.Status        `json:"status"`
	Settings model.ReminderSettings `json:"settings"`
}

func (s *Server) handleReminders(w http.ResponseWriter, r *http.Request) {
	settings := model.DefaultPreferences().Reminders
	if cur, err := s.deps.Manager.Current(r.Context()); err == nil {
		settings = cur.Preferences.Reminders
	} else if !apperr.Is(err, apperr.KindNotFound) {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, remindersResponse{Status: s.deps.Reminders.Status(), Settings: settings})
}

func (s *Server) handleReminderSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cur, err := s.deps.Manager.Current(ctx)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	// Fields missing from the body keep their stored values.
	req := cur.Preferences.Reminders
	if !decodeBody(w, r, &req) {
		return
	}
	if !model.ValidOffset(req.OffsetMinutes) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("offsetMinutes must be %d or %d", model.OffsetAtStart, model.OffsetTenMinutes))
		return
	}
	prefs, err := s.deps.Manager.SetReminderSettings(ctx, cur.Record.Key, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	st := s.SyncReminders(ctx)
	writeJSON(w, http.StatusOK, remindersResponse{Status: st, Settings: prefs.Reminders})
}

func (s *Server) handlePermission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	// Make sure the engine knows the current schedule before probing, so a
	// denial switches reminders off for it.
	s.SyncReminders(ctx)
	st, err := s.deps.Reminders.RequestPermission(ctx)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.State.ViewParams(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleViewUpdate accepts a partial or sloppy blob; unknown values fall
// back to their defaults.
func (s *Server) handleViewUpdate(w http.ResponseWriter, r *http.Request) {
	data, ok := readUpload(w, r)
	if !ok {
		return
	}
	view := model.DecodeViewParams(data)
	if err := s.deps.State.SaveViewParams(r.Context(), view); err != nil {
		writeAppError(w, r, err)
		return
	}
	s.Sync(r.Context())
	writeJSON(w, http.StatusOK, view)
}

var exportTypes = map[string]string{
	"ics":  "text/calendar; charset=utf-8",
	"json": "application/json; charset=utf-8",
	"csv":  "text/csv; charset=utf-8",
}

// handleExport renders the favorites of the current schedule.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := mux.Vars(r)["format"]
	contentType, ok := exportTypes[format]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown export format "+format)
		return
	}
	cur, err := s.deps.Manager.Current(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	rec := cur.Record
	liked := schedule.LikedSessions(rec, cur.Preferences)
	now := s.deps.Now()

	var buf bytes.Buffer
	switch format {
	case "ics":
		err = export.ICS(&buf, liked, export.ICSOptions{
			CalendarName: export.CalendarName(rec),
			UIDSalt:      export.UIDSalt(rec),
			Now:          now,
		})
	case "json":
		err = export.JSON(&buf, liked, export.MetaFor(rec, now))
	case "csv":
		err = export.CSV(&buf, liked)
	}
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="my-choices.`+format+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type restoreResponse struct {
	Added       int                   `json:"added"`
	Preferences model.UserPreferences `json:"preferences"`
}

// handleRestore re-applies favorites from an ICS export of the current
// schedule.
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cur, err := s.deps.Manager.Current(ctx)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	data, ok := readUpload(w, r)
	if !ok {
		return
	}
	ids, err := export.RestoreFavorites(bytes.NewReader(data), export.UIDSalt(cur.Record))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	added, prefs, err := s.deps.Manager.RestoreLiked(ctx, cur.Record, ids)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	s.SyncReminders(ctx)
	writeJSON(w, http.StatusOK, restoreResponse{Added: added, Preferences: prefs})
}

func readUpload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large or unreadable")
		return nil, false
	}
	return data, true
}
