package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appLog "confsched/internal/log"
	"confsched/internal/model"
	"confsched/internal/notify"
	"confsched/internal/refresh"
	"confsched/internal/reminder"
	"confsched/internal/web"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with auto-refresh and reminders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				if listen != "" {
					a.cfg.Listen = listen
				}
				return serve(cmd.Context(), a)
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	return cmd
}

func serve(parent context.Context, a *app) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	appLog.Info("effective config",
		"listen", a.cfg.Listen,
		"data_dir", a.cfg.DataDir,
		"notifications", a.cfg.Notifications.Backend,
		"auto_refresh", a.cfg.Refresh.IntervalMinutes != nil,
		"max_bytes", a.cfg.Storage.MaxBytes,
	)

	notifier, err := notify.New(a.cfg.Notifications.Backend)
	if err != nil {
		return err
	}
	if c, ok := notifier.(io.Closer); ok {
		defer c.Close()
	}

	engine := reminder.NewEngine(reminder.Config{
		Notifier:    notifier,
		Permissions: a.state,
		Settings:    a.prefs,
		Background: reminder.BackgroundConfig{
			PollInterval: a.cfg.Reminders.PollInterval,
			GraceWindow:  a.cfg.Reminders.GraceWindow,
			Retention:    a.cfg.Reminders.Retention,
		},
	})
	engine.Start(ctx)
	defer engine.Close()

	var srv *web.Server
	refresher := refresh.New(a.manager, refresh.WithOnRefreshed(func(ctx context.Context, _ model.ScheduleRecord) {
		srv.SyncReminders(ctx)
	}))

	// A nil interval in the config switches auto-refresh off entirely; the
	// stored view settings pick the interval otherwise.
	var scheduler *refresh.Scheduler
	if a.cfg.Refresh.IntervalMinutes != nil {
		scheduler = refresh.NewScheduler(refresher)
		defer scheduler.Stop()
	}

	srv = web.NewServer(a.cfg, web.Deps{
		Manager:   a.manager,
		Refresher: refresher,
		Scheduler: scheduler,
		Reminders: engine,
		State:     a.state,
		DB:        a.db,
		Changes:   a.db,
	})
	st := srv.Sync(ctx)
	appLog.Info("reminders restored", "permission", string(st.Permission), "armed", st.Armed)

	// CLI commands run as separate processes and only write the database.
	go srv.Watch(ctx, a.cfg.Reminders.PollInterval)

	err = srv.Run(ctx)
	appLog.Info("confsched exiting")
	return err
}
