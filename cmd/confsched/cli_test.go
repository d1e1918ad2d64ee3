package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const feedJSON = `{"schedule":{"conference":{"title":"39C3","time_zone_name":"Europe/Berlin","days":[
	{"index":0,"date":"2025-12-27","rooms":{"Saal 1":[
		{"guid":"a","title":"Opening","date":"2025-12-27T10:30:00+01:00","duration":"00:30","track":"Ceremony"},
		{"guid":"b","title":"Keynote on crypto","date":"2025-12-27T11:00:00+01:00","duration":"01:00","track":"Security"}
	]}}
]}}}`

func executeCLI(t *testing.T, home string, args ...string) (string, string, error) {
	t.Helper()

	root := newRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(append([]string{
		"--config", filepath.Join(home, "config.yaml"),
		"--data-dir", filepath.Join(home, "data"),
		"--log-level", "error",
	}, args...))

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func newFeedServer(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/feed.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(feedJSON))
	}))
	t.Cleanup(srv.Close)
	return srv.URL + "/feed.json"
}

func TestVersion(t *testing.T) {
	stdout, _, err := executeCLI(t, t.TempDir(), "version")
	require.NoError(t, err)
	assert.Equal(t, "confsched "+version+"\n", stdout)
}

func TestLoadListAndLike(t *testing.T) {
	home := t.TempDir()
	url := newFeedServer(t)

	stdout, _, err := executeCLI(t, home, "load", url)
	require.NoError(t, err)
	assert.Contains(t, stdout, "Loaded 39C3: 2 sessions, 0 favorites")

	stdout, _, err = executeCLI(t, home, "like", "b")
	require.NoError(t, err)
	assert.Equal(t, "Liked b: Keynote on crypto\n", stdout)

	stdout, _, err = executeCLI(t, home, "sessions", "--liked")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Keynote on crypto")
	assert.NotContains(t, stdout, "Opening")
	assert.Contains(t, stdout, "1 of 2 sessions")

	stdout, _, err = executeCLI(t, home, "sessions", "-q", "opening")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Sat 27 Dec 10:30-11:00  Opening  @ Saal 1")

	stdout, _, err = executeCLI(t, home, "library", "list")
	require.NoError(t, err)
	assert.Contains(t, stdout, "url:"+url)
	assert.Contains(t, stdout, "*")

	_, _, err = executeCLI(t, home, "like", "nope")
	assert.Error(t, err)

	stdout, _, err = executeCLI(t, home, "unlike", "b")
	require.NoError(t, err)
	assert.Equal(t, "Unliked b: Keynote on crypto\n", stdout)
}

func TestLoadRejectsBadFeed(t *testing.T) {
	home := t.TempDir()
	file := filepath.Join(home, "bad.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"schedule":{}}`), 0o644))

	_, _, err := executeCLI(t, home, "import", file)
	require.Error(t, err)
}

func TestImportIsNotRefreshable(t *testing.T) {
	home := t.TempDir()
	file := filepath.Join(home, "39c3.json")
	require.NoError(t, os.WriteFile(file, []byte(feedJSON), 0o644))

	stdout, _, err := executeCLI(t, home, "import", file, "--label", "offline copy")
	require.NoError(t, err)
	assert.Contains(t, stdout, "(file:offline copy)")

	_, _, err = executeCLI(t, home, "refresh")
	require.Error(t, err)
}

func TestRefreshKeepsFavorites(t *testing.T) {
	home := t.TempDir()
	url := newFeedServer(t)

	_, _, err := executeCLI(t, home, "load", url)
	require.NoError(t, err)
	_, _, err = executeCLI(t, home, "like", "a")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "refresh")
	require.NoError(t, err)
	assert.Equal(t, "Refreshed url:"+url+": 2 sessions\n", stdout)

	stdout, _, err = executeCLI(t, home, "sessions", "--liked")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Opening")
}

func TestExportAndRestore(t *testing.T) {
	home := t.TempDir()
	url := newFeedServer(t)

	_, _, err := executeCLI(t, home, "load", url)
	require.NoError(t, err)
	_, _, err = executeCLI(t, home, "like", "a")
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "export", "csv")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "id,title,start,"))
	assert.Contains(t, stdout, `"a","Opening","2025-12-27T09:30:00.000Z"`)

	stdout, _, err = executeCLI(t, home, "export", "json")
	require.NoError(t, err)
	assert.Contains(t, stdout, `"conferenceTitle": "39C3"`)

	icsPath := filepath.Join(home, "my-choices.ics")
	_, stderr, err := executeCLI(t, home, "export", "ics", "-o", icsPath)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Exported 1 favorites")
	data, err := os.ReadFile(icsPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SUMMARY:Opening\r\n")

	_, _, err = executeCLI(t, home, "unlike", "a")
	require.NoError(t, err)
	stdout, _, err = executeCLI(t, home, "restore", icsPath)
	require.NoError(t, err)
	assert.Equal(t, "Restored 1 favorites (1 total)\n", stdout)

	_, _, err = executeCLI(t, home, "export", "pdf")
	assert.Error(t, err)
}

func TestReminderCommands(t *testing.T) {
	t.Setenv("CONFSCHED_NOTIFICATIONS_BACKEND", "log")
	home := t.TempDir()
	url := newFeedServer(t)

	_, _, err := executeCLI(t, home, "load", url)
	require.NoError(t, err)

	stdout, _, err := executeCLI(t, home, "reminders", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Permission: default")
	assert.Contains(t, stdout, "Enabled: true")
	assert.Contains(t, stdout, "Offset: 10 minutes")

	stdout, _, err = executeCLI(t, home, "reminders", "set", "--offset", "0")
	require.NoError(t, err)
	assert.Equal(t, "Reminders enabled=true offset=0\n", stdout)

	_, _, err = executeCLI(t, home, "reminders", "set", "--offset", "5")
	assert.Error(t, err)

	stdout, _, err = executeCLI(t, home, "reminders", "enable-notifications")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Notifications enabled.")

	stdout, _, err = executeCLI(t, home, "reminders", "status")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Permission: granted")
	assert.Contains(t, stdout, "Offset: 0 minutes")
}

func TestViewSetAndShow(t *testing.T) {
	home := t.TempDir()

	stdout, _, err := executeCLI(t, home, "view", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Mode: table")
	assert.Contains(t, stdout, "Auto refresh: every 10 minutes")

	stdout, _, err = executeCLI(t, home, "view", "set", "--mode", "card", "--auto-refresh", "0", "--duration")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Mode: card")
	assert.Contains(t, stdout, "Show duration: true")
	assert.Contains(t, stdout, "Auto refresh: off")

	stdout, _, err = executeCLI(t, home, "view", "show")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Mode: card")
	assert.Contains(t, stdout, "Time zone: schedule")

	_, _, err = executeCLI(t, home, "view", "set", "--timezone", "mars")
	assert.Error(t, err)
}

func TestCommandsNeedASchedule(t *testing.T) {
	home := t.TempDir()
	for _, args := range [][]string{{"sessions"}, {"export", "ics"}, {"refresh"}} {
		_, _, err := executeCLI(t, home, args...)
		assert.Error(t, err, args)
	}
}
