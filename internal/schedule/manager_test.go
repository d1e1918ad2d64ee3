package schedule

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confsched/internal/apperr"
	"confsched/internal/feed"
	"confsched/internal/model"
	"confsched/internal/store"
)

const sampleFeed = `{"schedule":{"conference":{"title":"39C3","time_zone_name":"Europe/Berlin","days":[
	{"index":0,"date":"2025-12-27","rooms":{"Saal 1":[
		{"guid":"a","title":"Opening","date":"2025-12-27T10:30:00+01:00","duration":"00:30"},
		{"guid":"b","title":"Keynote","date":"2025-12-27T11:00:00+01:00","duration":"01:00"}
	]}}
]}}}`

type fakeFetcher struct {
	bodies map[string]string
	err    error
	calls  int
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (feed.FetchResult, error) {
	f.calls++
	if f.err != nil {
		return feed.FetchResult{}, f.err
	}
	body, ok := f.bodies[url]
	if !ok {
		return feed.FetchResult{}, apperr.E(apperr.KindNetworkFailure, "fetch", "HTTP 404 fetching schedule", nil)
	}
	return feed.FetchResult{URL: url, Body: []byte(body)}, nil
}

type fixture struct {
	manager *Manager
	fetcher *fakeFetcher
	library *store.Library
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "confsched.db"), store.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	lib := store.NewLibrary(db)
	f := &fakeFetcher{bodies: map[string]string{"https://example.org/a.json": sampleFeed}}
	m := NewManager(Deps{
		Fetcher:     f,
		Schedules:   store.NewSchedules(db, lib),
		Preferences: store.NewPreferences(db),
		Library:     lib,
		Location:    time.UTC,
		Now:         func() time.Time { return time.Date(2025, 12, 20, 8, 0, 0, 0, time.UTC) },
	})
	return fixture{manager: m, fetcher: f, library: lib}
}

func TestLoadFromURLStoresActiveSchedule(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	loaded, err := fx.manager.LoadFromURL(ctx, " https://example.org/a.json ")
	require.NoError(t, err)
	assert.Equal(t, model.KeyFromURL("https://example.org/a.json"), loaded.Record.Key)
	assert.Equal(t, "39C3", loaded.Record.ConferenceTitle)
	assert.Len(t, loaded.Record.Sessions, 2)
	assert.Equal(t, model.DefaultPreferences(), loaded.Preferences)

	current, err := fx.manager.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, loaded.Record.Key, current.Record.Key)
}

func TestFailedLoadKeepsExistingSchedule(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	_, err := fx.manager.LoadFromURL(ctx, "https://example.org/a.json")
	require.NoError(t, err)

	_, err = fx.manager.LoadFromURL(ctx, "https://example.org/missing.json")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNetworkFailure))

	fx.fetcher.bodies["https://example.org/bad.json"] = `{"schedule":{"conference":{"days":"nope"}}}`
	_, err = fx.manager.LoadFromURL(ctx, "https://example.org/bad.json")
	assert.Equal(t, apperr.KindSchemaValidation, apperr.KindOf(err))

	current, err := fx.manager.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.KeyFromURL("https://example.org/a.json"), current.Record.Key)
}

func TestImportFileUsesFileKey(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)

	loaded, err := fx.manager.ImportFile(ctx, "talks.json", []byte(sampleFeed))
	require.NoError(t, err)
	assert.Equal(t, model.KeyFromFile("talks.json"), loaded.Record.Key)
	assert.False(t, loaded.Record.Refreshable())

	loaded, err = fx.manager.ImportFile(ctx, "", []byte(sampleFeed))
	require.NoError(t, err)
	assert.Equal(t, model.ScheduleKey("file:imported-schedule"), loaded.Record.Key)

	_, err = fx.manager.ImportFile(ctx, "empty.json", []byte(`{"schedule":{"conference":{"days":[]}}}`))
	assert.Equal(t, apperr.KindEmptySchedule, apperr.KindOf(err))
}

func TestFavoriteRestoredAfterDeleteAndReload(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	loaded, err := fx.manager.LoadFromURL(ctx, "https://example.org/a.json")
	require.NoError(t, err)
	key := loaded.Record.Key

	liked, _, err := fx.manager.ToggleLike(ctx, key, "b")
	require.NoError(t, err)
	assert.True(t, liked)

	require.NoError(t, fx.manager.Delete(ctx, key, DeleteOptions{}))
	_, err = fx.manager.OpenFromLibrary(ctx, key)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	reloaded, err := fx.manager.LoadFromURL(ctx, "https://example.org/a.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, reloaded.Preferences.LikedSessionIDs)

	sessions, err := fx.manager.Liked(ctx, key)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Keynote", sessions[0].Title)
}

func TestDeleteWithPreferencesAndLibrary(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	loaded, err := fx.manager.LoadFromURL(ctx, "https://example.org/a.json")
	require.NoError(t, err)
	key := loaded.Record.Key
	_, _, err = fx.manager.ToggleLike(ctx, key, "a")
	require.NoError(t, err)

	require.NoError(t, fx.manager.Delete(ctx, key, DeleteOptions{Preferences: true, Library: true}))

	prefs, err := fx.manager.Preferences(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, prefs.LikedSessionIDs)
	entries, err := fx.manager.Library(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = fx.manager.Current(ctx)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestCurrentFallsBackToLastActive(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	_, err := fx.manager.ImportFile(ctx, "talks.json", []byte(sampleFeed))
	require.NoError(t, err)

	// Drop only the active pointer; the library still remembers the key.
	require.NoError(t, fx.manager.schedules.ClearActive(ctx))
	current, err := fx.manager.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.KeyFromFile("talks.json"), current.Record.Key)

	require.NoError(t, fx.manager.Clear(ctx))
	_, err = fx.manager.Current(ctx)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	opened, err := fx.manager.OpenFromLibrary(ctx, model.KeyFromFile("talks.json"))
	require.NoError(t, err)
	assert.Len(t, opened.Record.Sessions, 2)
	last, ok, err := fx.library.LastActive(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, opened.Record.Key, last)
}

func TestRefetchKeepsKey(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	loaded, err := fx.manager.LoadFromURL(ctx, "https://example.org/a.json")
	require.NoError(t, err)

	fresh, err := fx.manager.Refetch(ctx, loaded.Record)
	require.NoError(t, err)
	assert.Equal(t, loaded.Record.Key, fresh.Key)
	assert.Equal(t, 2, fx.fetcher.calls)

	file, err := fx.manager.ImportFile(ctx, "talks.json", []byte(sampleFeed))
	require.NoError(t, err)
	_, err = fx.manager.Refetch(ctx, file.Record)
	assert.Equal(t, apperr.KindUnsupported, apperr.KindOf(err))
}

func TestRestoreLikedSkipsUnknownIDs(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	loaded, err := fx.manager.LoadFromURL(ctx, "https://example.org/a.json")
	require.NoError(t, err)
	key := loaded.Record.Key

	_, _, err = fx.manager.ToggleLike(ctx, key, "a")
	require.NoError(t, err)

	added, prefs, err := fx.manager.RestoreLiked(ctx, loaded.Record, []string{"a", "b", "gone"})
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, []string{"a", "b"}, prefs.LikedSessionIDs)

	prefs, err = fx.manager.SetReminderSettings(ctx, key, model.ReminderSettings{Enabled: false, OffsetMinutes: 0})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, prefs.LikedSessionIDs)
	assert.False(t, prefs.Reminders.Enabled)
}

func TestSetLikeDoesNotFlip(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	loaded, err := fx.manager.LoadFromURL(ctx, "https://example.org/a.json")
	require.NoError(t, err)
	key := loaded.Record.Key

	for i := 0; i < 2; i++ {
		prefs, err := fx.manager.SetLike(ctx, key, "a", true)
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, prefs.LikedSessionIDs)
	}
	prefs, err := fx.manager.SetLike(ctx, key, "a", false)
	require.NoError(t, err)
	assert.Empty(t, prefs.LikedSessionIDs)

	_, err = fx.manager.SetLike(ctx, key, " ", true)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}
