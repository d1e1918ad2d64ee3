// Package web serves the JSON API over the schedule, favorites, reminders
// and exports.
package web

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"confsched/internal/config"
	appLog "confsched/internal/log"
	"confsched/internal/refresh"
	"confsched/internal/reminder"
	"confsched/internal/schedule"
	"confsched/internal/store"
)

// maxUploadBytes bounds imported feed and calendar bodies.
const maxUploadBytes = 32 << 20

// Pinger reports whether storage is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Revisioner reports a counter that moves when another process commits to
// the database.
type Revisioner interface {
	Revision(ctx context.Context) (int64, error)
}

// Deps are the services behind the API. Scheduler may be nil when
// auto-refresh is switched off in the configuration. Changes may be nil, in
// which case Watch returns at once.
type Deps struct {
	Manager   *schedule.Manager
	Refresher *refresh.Refresher
	Scheduler *refresh.Scheduler
	Reminders *reminder.Engine
	State     *store.AppState
	DB        Pinger
	Changes   Revisioner
	Now       func() time.Time
}

// Server provides the HTTP API.
type Server struct {
	cfg    *config.Config
	deps   Deps
	router *mux.Router

	// syncMu orders reminder and auto-refresh reconfiguration after changes.
	syncMu         sync.Mutex
	autoConfigured bool
	autoURL        string
	autoMinutes    *int
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{cfg: cfg, deps: deps, router: mux.NewRouter()}
	s.registerRoutes()
	return s
}

// Handler returns the router wrapped in the request middleware.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		h = s.basicAuthMiddleware(h)
	}
	return requestMiddleware(h)
}

func (s *Server) registerRoutes() {
	r := s.router
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/schedule", s.handleSchedule).Methods(http.MethodGet)
	api.HandleFunc("/schedule", s.handleClear).Methods(http.MethodDelete)
	api.HandleFunc("/sessions", s.handleSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/like", s.handleLike).Methods(http.MethodPost)
	api.HandleFunc("/facets", s.handleFacets).Methods(http.MethodGet)

	api.HandleFunc("/library", s.handleLibrary).Methods(http.MethodGet)
	api.HandleFunc("/library", s.handleLibraryDelete).Methods(http.MethodDelete)
	api.HandleFunc("/library/open", s.handleLibraryOpen).Methods(http.MethodPost)

	api.HandleFunc("/load", s.handleLoad).Methods(http.MethodPost)
	api.HandleFunc("/import", s.handleImport).Methods(http.MethodPost)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/refresh/error", s.handleDismissError).Methods(http.MethodDelete)

	api.HandleFunc("/reminders", s.handleReminders).Methods(http.MethodGet)
	api.HandleFunc("/reminders", s.handleReminderSettings).Methods(http.MethodPut)
	api.HandleFunc("/reminders/permission", s.handlePermission).Methods(http.MethodPost)

	api.HandleFunc("/view", s.handleView).Methods(http.MethodGet)
	api.HandleFunc("/view", s.handleViewUpdate).Methods(http.MethodPut)

	api.HandleFunc("/export/{format}", s.handleExport).Methods(http.MethodGet)
	api.HandleFunc("/favorites/restore", s.handleRestore).Methods(http.MethodPost)

	api.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "no such endpoint")
	})
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="confsched", charset="UTF-8"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}
