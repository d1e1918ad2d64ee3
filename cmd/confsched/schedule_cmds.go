package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"confsched/internal/apperr"
	"confsched/internal/model"
	"confsched/internal/refresh"
	"confsched/internal/schedule"
)

// printLoaded writes a one-line summary of a loaded schedule.
func printLoaded(w io.Writer, l schedule.Loaded) {
	title := l.Record.ConferenceTitle
	if title == "" {
		title = "Schedule"
	}
	_, _ = fmt.Fprintf(w, "Loaded %s: %d sessions, %d favorites (%s)\n",
		title, len(l.Record.Sessions), len(l.Preferences.LikedSessionIDs), l.Record.Key)
}

// describeErr appends remediation guidance when the error kind has one.
func describeErr(err error) error {
	if g := apperr.Guidance(err); g != "" {
		return fmt.Errorf("%w\n%s", err, g)
	}
	return err
}

func newLoadCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "load URL",
		Short: "Fetch a schedule feed and make it the current schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				loaded, err := a.manager.LoadFromURL(cmd.Context(), args[0])
				if err != nil {
					return describeErr(err)
				}
				printLoaded(cmd.OutOrStdout(), loaded)
				return nil
			})
		},
	}
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	var label string
	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a schedule feed from a local JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			if label == "" {
				label = filepath.Base(args[0])
			}
			return withApp(opts, func(a *app) error {
				loaded, err := a.manager.ImportFile(cmd.Context(), label, data)
				if err != nil {
					return describeErr(err)
				}
				printLoaded(cmd.OutOrStdout(), loaded)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&label, "label", "", "Source label (defaults to the file name)")
	return cmd
}

func newLibraryCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "library",
		Short: "Manage previously loaded schedules",
	}
	cmd.AddCommand(
		newLibraryListCmd(opts),
		newLibraryOpenCmd(opts),
		newLibraryRemoveCmd(opts),
	)
	return cmd
}

func newLibraryListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known schedules, most recently used first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				entries, err := a.manager.Library(cmd.Context())
				if err != nil {
					return err
				}
				if len(entries) == 0 {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No schedules yet.")
					return nil
				}
				current, _ := a.manager.Current(cmd.Context())

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "\tKEY\tTITLE\tSESSIONS\tLAST USED")
				for _, e := range entries {
					mark := ""
					if e.Key == current.Record.Key {
						mark = "*"
					}
					count := "-"
					if e.SessionCount != nil {
						count = fmt.Sprint(*e.SessionCount)
					}
					_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, e.Key, e.ConferenceTitle, count,
						schedule.FormatAge(e.LastAccessedAt, a.now()))
				}
				return tw.Flush()
			})
		},
	}
}

func newLibraryOpenCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "open KEY",
		Short: "Make a stored schedule current",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(opts, func(a *app) error {
				loaded, err := a.manager.OpenFromLibrary(cmd.Context(), model.ScheduleKey(args[0]))
				if err != nil {
					return err
				}
				printLoaded(cmd.OutOrStdout(), loaded)
				return nil
			})
		},
	}
}

func newLibraryRemoveCmd(opts *rootOptions) *cobra.Command {
	var withPrefs bool
	cmd := &cobra.Command{
		Use:   "remove KEY",
		Short: "Delete a stored schedule and its library entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := model.ScheduleKey(args[0])
			return withApp(opts, func(a *app) error {
				err := a.manager.Delete(cmd.Context(), key, schedule.DeleteOptions{Preferences: withPrefs, Library: true})
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", key)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&withPrefs, "preferences", false, "Also delete favorites and reminder settings")
	return cmd
}

func newSessionsCmd(opts *rootOptions) *cobra.Command {
	var (
		f      model.Filters
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List sessions of the current schedule",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				cur, err := a.manager.Current(cmd.Context())
				if err != nil {
					return err
				}
				liked := cur.Preferences.LikedSet()
				matched := schedule.Filter(cur.Record.Sessions, f, liked)

				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(matched)
				}

				view, err := a.state.ViewParams(cmd.Context())
				if err != nil {
					return err
				}
				loc := view.DisplayLocation(cur.Record.Meta())
				now := a.now()
				for _, s := range matched {
					_, _ = fmt.Fprintln(out, sessionLine(s, loc, view, liked, now))
				}
				_, _ = fmt.Fprintf(out, "%d of %d sessions\n", len(matched), len(cur.Record.Sessions))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Track, "track", "", "Only this track")
	cmd.Flags().StringVar(&f.Day, "day", "", "Only this day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.Room, "room", "", "Only this room")
	cmd.Flags().StringVar(&f.Type, "type", "", "Only this session type")
	cmd.Flags().StringVar(&f.Language, "language", "", "Only this language")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "Free-text search")
	cmd.Flags().BoolVar(&f.LikedOnly, "liked", false, "Only favorites")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON")
	return cmd
}

func sessionLine(s model.Session, loc *time.Location, view model.ViewParams, liked map[string]struct{}, now time.Time) string {
	start := s.Start.In(loc)
	when := start.Format("Mon 02 Jan 15:04")
	if view.ShowTimeRange {
		when += "-" + s.End().In(loc).Format("15:04")
	}
	if view.ShowDuration && s.DurationMinutes != nil {
		when += fmt.Sprintf(" (%dm)", *s.DurationMinutes)
	}
	mark := " "
	if _, ok := liked[s.ID]; ok {
		mark = "*"
	}
	state := ""
	switch {
	case s.IsCurrent(now):
		state = " [now]"
	case s.HasEnded(now):
		state = " [past]"
	}
	line := fmt.Sprintf("%s %-8s %s  %s", mark, s.ID, when, s.Title)
	if s.Room != "" {
		line += "  @ " + s.Room
	}
	return line + state
}

// newLikeCmd builds "like" (liked=true) or "unlike".
func newLikeCmd(opts *rootOptions, liked bool) *cobra.Command {
	use, short := "like ID", "Add a session to the favorites"
	if !liked {
		use, short = "unlike ID", "Remove a session from the favorites"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			return withApp(opts, func(a *app) error {
				ctx := cmd.Context()
				cur, err := a.manager.Current(ctx)
				if err != nil {
					return err
				}
				s, ok := cur.Record.SessionByID(id)
				if !ok {
					return apperr.NotFound("like session", "session "+id)
				}
				if _, err := a.manager.SetLike(ctx, cur.Record.Key, id, liked); err != nil {
					return err
				}
				verb := "Liked"
				if !liked {
					verb = "Unliked"
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", verb, id, s.Title)
				return nil
			})
		},
	}
}

func newRefreshCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch the current schedule again, keeping favorites",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(opts, func(a *app) error {
				r := refresh.New(a.manager)
				rec, err := r.Refresh(cmd.Context(), refresh.Manual)
				if errors.Is(err, refresh.ErrNotRefreshable) {
					return errors.New(r.State().LastError)
				}
				if err != nil {
					return describeErr(err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %s: %d sessions\n", rec.Key, len(rec.Sessions))
				return nil
			})
		},
	}
}
