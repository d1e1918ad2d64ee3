package export

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"confsched/internal/model"
)

var csvHeader = []string{"id", "title", "start", "end", "durationMinutes", "day", "room", "track", "type", "language", "speakers"}

// CSV writes one row per session. Every data field is quoted, rows are
// separated by a bare newline and the last row has no terminator. The end
// column is empty when the feed gave no duration.
func CSV(w io.Writer, sessions []model.Session) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(strings.Join(csvHeader, ","))

	for _, s := range sessions {
		end, dur := "", ""
		if s.DurationMinutes != nil {
			end = iso(s.End())
			dur = strconv.Itoa(*s.DurationMinutes)
		}
		cols := []string{
			s.ID,
			s.Title,
			iso(s.Start),
			end,
			dur,
			s.DayKey,
			s.Room,
			s.Track,
			s.Type,
			s.Language,
			strings.Join(s.Speakers, "; "),
		}
		bw.WriteByte('\n')
		for i, c := range cols {
			if i > 0 {
				bw.WriteByte(',')
			}
			bw.WriteString(quote(c))
		}
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
