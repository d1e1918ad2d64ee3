package main

import (
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"confsched/internal/config"
	"confsched/internal/feed"
	appLog "confsched/internal/log"
	"confsched/internal/schedule"
	"confsched/internal/store"
)

const version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath string
	dataDir    string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "confsched",
		Short:         "Browse a conference schedule, keep favorites and get reminded",
		Long:          "confsched loads a conference schedule feed, keeps favorites per schedule, exports them as iCalendar, JSON or CSV, and reminds you before favorited sessions start.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", config.DefaultPath(), "Path to config file")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Data directory (overrides config if set)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, error (overrides config if set)")

	root.AddCommand(
		newVersionCmd(),
		newServeCmd(opts),
		newLoadCmd(opts),
		newImportCmd(opts),
		newLibraryCmd(opts),
		newSessionsCmd(opts),
		newLikeCmd(opts, true),
		newLikeCmd(opts, false),
		newRefreshCmd(opts),
		newRemindersCmd(opts),
		newExportCmd(opts),
		newRestoreCmd(opts),
		newViewCmd(opts),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "confsched", version)
		},
	}
}

// app is the wired set of services shared by the commands.
type app struct {
	cfg     *config.Config
	db      *store.DB
	state   *store.AppState
	prefs   *store.Preferences
	library *store.Library
	manager *schedule.Manager
	now     func() time.Time
}

func openApp(opts *rootOptions) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	appLog.SetLevel(appLog.ParseLevel(cfg.LogLevel))

	db, err := store.Open(cfg.DatabasePath(), store.Options{MaxBytes: cfg.Storage.MaxBytes})
	if err != nil {
		return nil, err
	}

	library := store.NewLibrary(db)
	prefs := store.NewPreferences(db)
	fetcher := feed.NewFetcher(cfg.FeedCacheDir(), cfg.Refresh.Timeout, feed.WithRetries(cfg.Refresh.Retries))

	return &app{
		cfg:     cfg,
		db:      db,
		state:   store.NewAppState(db),
		prefs:   prefs,
		library: library,
		manager: schedule.NewManager(schedule.Deps{
			Fetcher:     fetcher,
			Schedules:   store.NewSchedules(db, library),
			Preferences: prefs,
			Library:     library,
		}),
		now: time.Now,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// withApp opens the app for the duration of fn.
func withApp(opts *rootOptions, fn func(*app) error) error {
	a, err := openApp(opts)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLog.Error("close database", err)
		}
	}()
	return fn(a)
}
