package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confsched/internal/apperr"
)

func newTestFetcher(t *testing.T, retries int) *Fetcher {
	t.Helper()
	return NewFetcher(t.TempDir(), 5*time.Second,
		WithRetries(retries),
		WithBackOff(func() backoff.BackOff { return &backoff.ZeroBackOff{} }),
	)
}

func TestFetchUsesETagCache(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte(`{"schedule":{}}`))
	}))
	defer srv.Close()

	f := newTestFetcher(t, 0)

	first, err := f.Fetch(context.Background(), srv.URL+"/schedule.json")
	require.NoError(t, err)
	assert.False(t, first.FromCache)
	assert.Equal(t, `{"schedule":{}}`, string(first.Body))

	second, err := f.Fetch(context.Background(), srv.URL+"/schedule.json")
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))

	cached, ok := f.Cached(srv.URL + "/schedule.json")
	assert.True(t, ok)
	assert.Equal(t, first.Body, cached)
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	res, err := newTestFetcher(t, 2).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(res.Body))
	assert.EqualValues(t, 3, atomic.LoadInt32(&hits))
}

func TestFetchGivesUpAfterRetries(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, 1).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNetworkFailure, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "HTTP 503")
	assert.EqualValues(t, 2, atomic.LoadInt32(&hits))
}

func TestFetchAccessBlockedIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := newTestFetcher(t, 3).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, apperr.KindAccessBlocked, apperr.KindOf(err))
	assert.True(t, apperr.Is(err, apperr.KindNetworkFailure))
	assert.NotEmpty(t, apperr.Guidance(err))
	assert.EqualValues(t, 1, atomic.LoadInt32(&hits))
}

func TestFetchNotFoundIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestFetcher(t, 3).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, apperr.KindNetworkFailure, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestFetchRejectsBadURL(t *testing.T) {
	f := newTestFetcher(t, 0)
	for _, u := range []string{"", "ftp://example.org/x.json", "not a url"} {
		_, err := f.Fetch(context.Background(), u)
		assert.Equal(t, apperr.KindNetworkFailure, apperr.KindOf(err), u)
	}
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://example.com/...(redacted)", RedactURL("https://example.com/private/schedule.json?token=abc"))
	assert.Equal(t, "feed://...(redacted)", RedactURL("schedule.json"))
}
