package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"confsched/internal/export"
	"confsched/internal/schedule"
)

func newExportCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:       "export ics|json|csv",
		Short:     "Export the favorites of the current schedule",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"ics", "json", "csv"},
		RunE: func(cmd *cobra.Command, args []string) error {
			format := args[0]
			return withApp(opts, func(a *app) error {
				cur, err := a.manager.Current(cmd.Context())
				if err != nil {
					return err
				}
				rec := cur.Record
				liked := schedule.LikedSessions(rec, cur.Preferences)

				var w io.Writer = cmd.OutOrStdout()
				if output != "" {
					f, err := os.Create(output)
					if err != nil {
						return err
					}
					defer f.Close()
					w = f
				}

				now := a.now()
				switch format {
				case "ics":
					err = export.ICS(w, liked, export.ICSOptions{
						CalendarName: export.CalendarName(rec),
						UIDSalt:      export.UIDSalt(rec),
						Now:          now,
					})
				case "json":
					err = export.JSON(w, liked, export.MetaFor(rec, now))
				case "csv":
					err = export.CSV(w, liked)
				}
				if err != nil {
					return err
				}
				if output != "" {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d favorites to %s\n", len(liked), output)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write to a file instead of stdout")
	return cmd
}

func newRestoreCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restore FILE",
		Short: "Restore favorites from an iCalendar export of the current schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			return withApp(opts, func(a *app) error {
				ctx := cmd.Context()
				cur, err := a.manager.Current(ctx)
				if err != nil {
					return err
				}
				ids, err := export.RestoreFavorites(f, export.UIDSalt(cur.Record))
				if err != nil {
					return err
				}
				added, prefs, err := a.manager.RestoreLiked(ctx, cur.Record, ids)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Restored %d favorites (%d total)\n", added, len(prefs.LikedSessionIDs))
				return nil
			})
		},
	}
}
