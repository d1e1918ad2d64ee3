package feed

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"confsched/internal/apperr"
	appLog "confsched/internal/log"
)

// maxFeedBytes bounds a single feed download.
const maxFeedBytes = 64 << 20

// FetchResult contains the outcome of fetching a schedule feed.
type FetchResult struct {
	URL       string
	Body      []byte // JSON payload (either freshly fetched or from cache)
	FromCache bool   // true if we reused cached body due to 304
}

// cacheEntry holds HTTP cache metadata for a single feed URL.
type cacheEntry struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fetcher downloads schedule feeds with HTTP caching (ETag /
// Last-Modified), a disk-backed body cache, and retry of transient failures.
type Fetcher struct {
	client   *http.Client
	cacheDir string
	retries  int
	// newBackOff is swapped in tests to avoid real sleeps.
	newBackOff func() backoff.BackOff
}

// FetcherOption customizes a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) FetcherOption {
	return func(f *Fetcher) { f.client = c }
}

// WithRetries sets how many extra attempts a transient failure gets.
func WithRetries(n int) FetcherOption {
	return func(f *Fetcher) {
		if n >= 0 {
			f.retries = n
		}
	}
}

// WithBackOff sets the retry delay policy.
func WithBackOff(fn func() backoff.BackOff) FetcherOption {
	return func(f *Fetcher) { f.newBackOff = fn }
}

// NewFetcher creates a new feed Fetcher.
//
// cacheDir is the base directory where per-URL cache subdirectories and
// metadata will be stored. Example: "~/.local/share/confsched/feed-cache".
func NewFetcher(cacheDir string, timeout time.Duration, opts ...FetcherOption) *Fetcher {
	if cacheDir == "" {
		// Caller should set this explicitly; we fallback to a relative dir
		// so that development runs work without a data dir.
		cacheDir = "./var/feed-cache"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	f := &Fetcher{
		client:   &http.Client{Timeout: timeout},
		cacheDir: cacheDir,
		retries:  2,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch downloads the feed at rawURL, honoring ETag and Last-Modified.
// Transient failures are retried; access refusals are reported as
// AccessBlocked so callers can suggest a file import instead.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (FetchResult, error) {
	const op = "fetch schedule"

	if strings.TrimSpace(rawURL) == "" {
		return FetchResult{}, apperr.E(apperr.KindNetworkFailure, op, "source URL is empty", nil)
	}
	if u, err := url.Parse(rawURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return FetchResult{}, apperr.E(apperr.KindNetworkFailure, op, "invalid URL", err)
	}

	var result FetchResult
	attempt := func() error {
		res, err := f.fetchOnce(ctx, rawURL)
		if err != nil {
			if !isTransient(err) {
				return backoff.Permanent(err)
			}
			appLog.Error("feed fetch attempt failed", err, "url", RedactURL(rawURL))
			return err
		}
		result = res
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(f.newBackOff(), uint64(f.retries)), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		var pe *backoff.PermanentError
		if errors.As(err, &pe) {
			err = pe.Err
		}
		return FetchResult{}, err
	}
	return result, nil
}

// transientError marks failures worth retrying.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (FetchResult, error) {
	const op = "fetch schedule"

	cachePath, err := f.cachePathForURL(rawURL)
	if err != nil {
		return FetchResult{}, err
	}

	meta, _ := f.loadCacheMeta(cachePath)
	cachedBody, _ := f.loadCacheBody(cachePath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return FetchResult{}, apperr.E(apperr.KindNetworkFailure, op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")

	// Conditional headers only make sense when we still have the body.
	if len(cachedBody) > 0 {
		if meta.ETag != "" {
			req.Header.Set("If-None-Match", meta.ETag)
		}
		if meta.LastModified != "" {
			req.Header.Set("If-Modified-Since", meta.LastModified)
		}
	}

	appLog.Info("feed fetch start", "url", RedactURL(rawURL))

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return FetchResult{}, apperr.E(apperr.KindNetworkFailure, op, "request cancelled", ctx.Err())
		}
		if isTLSRefusal(err) {
			return FetchResult{}, apperr.E(apperr.KindAccessBlocked, op, "TLS verification failed", err)
		}
		return FetchResult{}, &transientError{apperr.E(apperr.KindNetworkFailure, op, "request failed", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxFeedBytes))
		if readErr != nil {
			return FetchResult{}, &transientError{apperr.E(apperr.KindNetworkFailure, op, "read body", readErr)}
		}

		newMeta := cacheEntry{
			URL:          rawURL,
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		}
		if err := f.saveCache(cachePath, newMeta, body); err != nil {
			// Log but still return the freshly fetched body.
			appLog.Error("feed cache save failed", err, "url", RedactURL(rawURL))
		}

		appLog.Info("feed fetch success", "url", RedactURL(rawURL), "status", resp.StatusCode, "bytes", len(body))
		return FetchResult{URL: rawURL, Body: body}, nil

	case resp.StatusCode == http.StatusNotModified:
		if len(cachedBody) == 0 {
			return FetchResult{}, apperr.E(apperr.KindNetworkFailure, op, "received 304 Not Modified but no cached body available", nil)
		}
		appLog.Info("feed fetch not modified; using cache", "url", RedactURL(rawURL))
		return FetchResult{URL: rawURL, Body: cachedBody, FromCache: true}, nil

	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusUnavailableForLegalReasons:
		return FetchResult{}, apperr.E(apperr.KindAccessBlocked, op, fmt.Sprintf("HTTP %d fetching schedule", resp.StatusCode), nil)

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return FetchResult{}, &transientError{apperr.E(apperr.KindNetworkFailure, op, fmt.Sprintf("HTTP %d fetching schedule", resp.StatusCode), nil)}

	default:
		return FetchResult{}, apperr.E(apperr.KindNetworkFailure, op, fmt.Sprintf("HTTP %d fetching schedule", resp.StatusCode), nil)
	}
}

// Cached returns the last body stored for rawURL, if any.
func (f *Fetcher) Cached(rawURL string) ([]byte, bool) {
	cachePath, err := f.cachePathForURL(rawURL)
	if err != nil {
		return nil, false
	}
	body, err := f.loadCacheBody(cachePath)
	if err != nil || len(body) == 0 {
		return nil, false
	}
	return body, true
}

func isTLSRefusal(err error) bool {
	var unknownAuth x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var certErr *tls.CertificateVerificationError
	return errors.As(err, &unknownAuth) || errors.As(err, &hostErr) || errors.As(err, &certErr)
}

func (f *Fetcher) cachePathForURL(u string) (string, error) {
	if u == "" {
		return "", errors.New("empty url")
	}
	sum := sha256.Sum256([]byte(u))
	// Use first 16 hex chars as directory name.
	dir := hex.EncodeToString(sum[:8])
	return filepath.Join(f.cacheDir, dir), nil
}

func (f *Fetcher) loadCacheMeta(cachePath string) (cacheEntry, error) {
	var meta cacheEntry
	data, err := os.ReadFile(filepath.Join(cachePath, "meta.json"))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return cacheEntry{}, err
	}
	return meta, nil
}

func (f *Fetcher) loadCacheBody(cachePath string) ([]byte, error) {
	return os.ReadFile(filepath.Join(cachePath, "body.json"))
}

func (f *Fetcher) saveCache(cachePath string, meta cacheEntry, body []byte) error {
	if err := os.MkdirAll(cachePath, 0o700); err != nil {
		return err
	}

	// Write body first so meta never points at missing body.
	if err := os.WriteFile(filepath.Join(cachePath, "body.json"), body, 0o600); err != nil {
		return err
	}

	meta.UpdatedAt = time.Now().UTC()
	data, err := json.MarshalIndent(&meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(cachePath, "meta.json"), data, 0o600)
}

// RedactURL hides paths and query strings (which may carry tokens) for
// logging purposes.
//
//	https://example.com/path/to/schedule.json?token=abcd
//	-> https://example.com/...(redacted)
func RedactURL(u string) string {
	const redactedSuffix = "/...(redacted)"

	parsed, err := url.Parse(u)
	if err != nil || parsed.Host == "" {
		return "feed://...(redacted)"
	}
	return parsed.Scheme + "://" + parsed.Host + redactedSuffix
}
