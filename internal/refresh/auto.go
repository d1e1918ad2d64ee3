package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	appLog "confsched/internal/log"
	"confsched/internal/model"
)

// autoTimeout bounds a single timer-driven refresh.
const autoTimeout = 2 * time.Minute

// Scheduler triggers automatic refreshes at a fixed interval. Reconfiguring
// replaces the previous timer.
type Scheduler struct {
	refresher *Refresher
	ctx       context.Context
	cancel    context.CancelFunc

	mu       sync.Mutex
	cron     *cron.Cron
	entry    cron.EntryID
	active   bool
	interval time.Duration
	started  bool
	// unit scales the configured minutes.
	unit time.Duration
}

func NewScheduler(r *Refresher) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	logger := cronLogger{}
	return &Scheduler{
		refresher: r,
		ctx:       ctx,
		cancel:    cancel,
		cron:      cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger))),
		unit:      time.Minute,
	}
}

// Configure sets the refresh source and interval. Auto-refresh is off when
// url is empty or minutes is nil; intervals below one minute are raised to
// one minute. It returns the effective interval.
func (s *Scheduler) Configure(url string, minutes *int) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active {
		s.cron.Remove(s.entry)
		s.active = false
		s.interval = 0
	}
	if url == "" || minutes == nil {
		appLog.Debug("auto refresh off")
		return 0, false
	}

	m := *minutes
	if m < model.MinAutoReloadMinutes {
		m = model.MinAutoReloadMinutes
	}
	every := time.Duration(m) * s.unit

	s.entry = s.cron.Schedule(cron.Every(every), cron.FuncJob(s.run))
	s.active = true
	s.interval = every
	if !s.started {
		s.cron.Start()
		s.started = true
	}
	appLog.Info("auto refresh on", "interval", every.String())
	return every, true
}

// Interval reports the current interval, if auto-refresh is on.
func (s *Scheduler) Interval() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval, s.active
}

func (s *Scheduler) run() {
	ctx, cancel := context.WithTimeout(s.ctx, autoTimeout)
	defer cancel()
	// Errors are recorded in the refresher state.
	_, _ = s.refresher.Refresh(ctx, Auto)
}

// Stop removes the timer and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.active {
		s.cron.Remove(s.entry)
		s.active = false
		s.interval = 0
	}
	s.mu.Unlock()

	s.cancel()
	<-s.cron.Stop().Done()
}

// cronLogger routes cron's own logging through the app logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
