package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"confsched/internal/model"
)

func newViewCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view",
		Short: "Show or change display settings",
	}
	cmd.AddCommand(newViewShowCmd(opts), newViewSetCmd(opts))
	return cmd
}

func printView(cmd *cobra.Command, v model.ViewParams) {
	auto := "off"
	if v.AutoReloadMinutes != nil {
		auto = fmt.Sprintf("every %d minutes", *v.AutoReloadMinutes)
	}
	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Mode: %s\n", v.ViewMode)
	_, _ = fmt.Fprintf(out, "Time zone: %s\n", v.TimeZoneMode)
	_, _ = fmt.Fprintf(out, "Show time range: %t\n", v.ShowTimeRange)
	_, _ = fmt.Fprintf(out, "Show duration: %t\n", v.ShowDuration)
	_, _ = fmt.Fprintf(out, "Auto refresh: %s\n", auto)
}

func newViewShowCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show display settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				v, err := a.state.ViewParams(cmd.Context())
				if err != nil {
					return err
				}
				printView(cmd, v)
				return nil
			})
		},
	}
}

func newViewSetCmd(opts *rootOptions) *cobra.Command {
	var (
		mode, tz           string
		timeRange, showDur bool
		autoMinutes        int
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change display settings; only the given flags change",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			return withApp(opts, func(a *app) error {
				v, err := a.state.ViewParams(cmd.Context())
				if err != nil {
					return err
				}
				if flags.Changed("mode") {
					switch model.ViewMode(mode) {
					case model.ViewCard, model.ViewTable:
						v.ViewMode = model.ViewMode(mode)
					default:
						return fmt.Errorf("mode must be %q or %q", model.ViewCard, model.ViewTable)
					}
				}
				if flags.Changed("timezone") {
					switch model.TimeZoneMode(tz) {
					case model.TimeZoneDevice, model.TimeZoneSchedule:
						v.TimeZoneMode = model.TimeZoneMode(tz)
					default:
						return fmt.Errorf("timezone must be %q or %q", model.TimeZoneDevice, model.TimeZoneSchedule)
					}
				}
				if flags.Changed("time-range") {
					v.ShowTimeRange = timeRange
				}
				if flags.Changed("duration") {
					v.ShowDuration = showDur
				}
				if flags.Changed("auto-refresh") {
					if autoMinutes <= 0 {
						v.AutoReloadMinutes = nil
					} else {
						m := max(autoMinutes, model.MinAutoReloadMinutes)
						v.AutoReloadMinutes = &m
					}
				}
				if err := a.state.SaveViewParams(cmd.Context(), v); err != nil {
					return err
				}
				printView(cmd, v)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "", "card or table")
	cmd.Flags().StringVar(&tz, "timezone", "", "device or schedule")
	cmd.Flags().BoolVar(&timeRange, "time-range", true, "Show start and end time")
	cmd.Flags().BoolVar(&showDur, "duration", false, "Show duration")
	cmd.Flags().IntVar(&autoMinutes, "auto-refresh", model.DefaultAutoReloadMinutes, "Auto refresh interval in minutes, 0 for off")
	return cmd
}
