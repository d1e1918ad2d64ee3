package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"confsched/internal/apperr"
	"confsched/internal/model"
	"confsched/internal/notify"
	"confsched/internal/reminder"
	"confsched/internal/schedule"
)

func newRemindersCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reminders",
		Short: "Inspect and change reminder settings",
	}
	cmd.AddCommand(
		newRemindersStatusCmd(opts),
		newRemindersSetCmd(opts),
		newRemindersEnableCmd(opts),
	)
	return cmd
}

// reminderInput collects what reminders are planned from for the current
// schedule.
func reminderInput(cmd *cobra.Command, a *app) (reminder.Input, error) {
	ctx := cmd.Context()
	cur, err := a.manager.Current(ctx)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return reminder.Input{Location: time.Local}, nil
		}
		return reminder.Input{}, err
	}
	view, err := a.state.ViewParams(ctx)
	if err != nil {
		return reminder.Input{}, err
	}
	return reminder.Input{
		Key:      cur.Record.Key,
		Liked:    schedule.LikedSessions(cur.Record, cur.Preferences),
		Settings: cur.Preferences.Reminders,
		Location: view.DisplayLocation(cur.Record.Meta()),
	}, nil
}

func newRemindersStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show permission, settings and what would be armed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				in, err := reminderInput(cmd, a)
				if err != nil {
					return err
				}
				perm, err := a.state.Permission(cmd.Context())
				if err != nil {
					return err
				}
				if in.Key == "" {
					in.Settings = model.DefaultPreferences().Reminders
				}

				out := cmd.OutOrStdout()
				_, _ = fmt.Fprintf(out, "Permission: %s\n", perm)
				_, _ = fmt.Fprintf(out, "Enabled: %t\n", in.Settings.Enabled)
				_, _ = fmt.Fprintf(out, "Offset: %d minutes\n", in.Settings.Normalize().OffsetMinutes)

				armed, skipped := reminder.Plan(in.Liked, in.Settings, a.now(), in.Location)
				if in.Settings.Enabled && len(in.Liked) > 0 {
					_, _ = fmt.Fprintln(out, reminder.StatusText(len(armed), skipped))
				}
				for _, r := range armed {
					_, _ = fmt.Fprintf(out, "  %s  %s  %s\n", r.FireAt.In(in.Location).Format("Mon 15:04"), r.Title, r.Body)
				}
				return nil
			})
		},
	}
}

func newRemindersSetCmd(opts *rootOptions) *cobra.Command {
	var (
		enabled bool
		offset  int
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change reminder settings for the current schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				ctx := cmd.Context()
				cur, err := a.manager.Current(ctx)
				if err != nil {
					return err
				}
				rs := cur.Preferences.Reminders
				if cmd.Flags().Changed("enabled") {
					rs.Enabled = enabled
				}
				if cmd.Flags().Changed("offset") {
					if !model.ValidOffset(offset) {
						return fmt.Errorf("offset must be %d or %d", model.OffsetAtStart, model.OffsetTenMinutes)
					}
					rs.OffsetMinutes = offset
				}
				prefs, err := a.manager.SetReminderSettings(ctx, cur.Record.Key, rs)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Reminders enabled=%t offset=%d\n",
					prefs.Reminders.Enabled, prefs.Reminders.OffsetMinutes)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&enabled, "enabled", true, "Turn reminders on or off")
	cmd.Flags().IntVar(&offset, "offset", model.OffsetTenMinutes, "Minutes before start: 0 or 10")
	return cmd
}

func newRemindersEnableCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "enable-notifications",
		Short: "Check that notifications can be shown and record the permission",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				ctx := cmd.Context()
				notifier, err := notify.New(a.cfg.Notifications.Backend)
				if err != nil {
					return err
				}
				if c, ok := notifier.(io.Closer); ok {
					defer c.Close()
				}

				in, err := reminderInput(cmd, a)
				if err != nil {
					return err
				}
				engine := reminder.NewEngine(reminder.Config{
					Notifier:    notifier,
					Permissions: a.state,
					Settings:    a.prefs,
				})
				defer engine.Close()

				engine.Reconcile(ctx, in)
				st, err := engine.RequestPermission(ctx)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), st.Text)
				return nil
			})
		},
	}
}
