package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lazypower/fungimap/internal/apiclient"
	"github.com/lazypower/fungimap/internal/replay"
)

var trackCmd = &cobra.Command{
	Use:   "track <type>",
	Short: "Send one interaction to a running server",
	Long: "Posts an action to a running fungimap server. Type is one of click, hover, " +
		"page_visit, search, perspective_change, scroll, time_spent.",
	Args: cobra.ExactArgs(1),
	RunE: runTrack,
}

var (
	trackServer       string
	trackSlug         string
	trackQuery        string
	trackPerspectives string
	trackDurationMs   int64
	trackPct          float64
	trackResults      int
)

func init() {
	f := trackCmd.Flags()
	f.StringVar(&trackServer, "server", "", "server URL (default $FUNGIMAP_URL or http://127.0.0.1:37778)")
	f.StringVar(&trackSlug, "slug", "", "entity slug")
	f.StringVar(&trackQuery, "query", "", "search query")
	f.StringVar(&trackPerspectives, "perspectives", "", "comma-separated perspective ids")
	f.Int64Var(&trackDurationMs, "duration", 0, "duration in milliseconds")
	f.Float64Var(&trackPct, "pct", 0, "scroll depth percentage")
	f.IntVar(&trackResults, "results", 0, "search result count")
}

func runTrack(cmd *cobra.Command, args []string) error {
	ev := replay.Event{
		Type:        args[0],
		Slug:        trackSlug,
		Query:       trackQuery,
		DurationMs:  trackDurationMs,
		Pct:         trackPct,
		ResultCount: trackResults,
	}
	if trackPerspectives != "" {
		for _, p := range strings.Split(trackPerspectives, ",") {
			if p = strings.TrimSpace(p); p != "" {
				ev.Perspectives = append(ev.Perspectives, p)
			}
		}
	}

	c := apiclient.New(trackServer)
	res, err := c.Track(context.Background(), ev)
	if err != nil {
		bad.Fprintf(cmd.ErrOrStderr(), "track failed: %v\n", err)
		return err
	}

	w := cmd.OutOrStdout()
	if res.Recorded {
		good.Fprintf(w, "recorded %s", ev.ActionType())
	} else {
		warn.Fprintf(w, "ignored %s", ev.ActionType())
	}
	subtle.Fprintf(w, "  (%d actions this session)\n", res.Total)
	return nil
}
