package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/lazypower/fungimap/internal/apiclient"
	"github.com/lazypower/fungimap/internal/relevance"
	"github.com/lazypower/fungimap/internal/session"
	"github.com/lazypower/fungimap/internal/view"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Show relevance scores for the saved session",
	Long:  "Restores the saved session from the database and prints the per-factor relevance of the entities it would display.",
	RunE:  runScore,
}

var (
	scoreTop    int
	scoreRemote bool
	scoreServer string
)

func init() {
	scoreCmd.Flags().IntVarP(&scoreTop, "top", "n", 0, "number of entities to rank (default from config)")
	scoreCmd.Flags().BoolVar(&scoreRemote, "remote", false, "ask a running server instead of the database")
	scoreCmd.Flags().StringVar(&scoreServer, "server", "", "server URL for --remote")
}

func runScore(cmd *cobra.Command, args []string) error {
	if scoreRemote {
		return runRemoteScore(cmd)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if scoreTop > 0 {
		cfg.Layout.TopN = scoreTop
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, _, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a := newApp(ctx, cfg, catalog, db, false, logger, nil)
	defer a.view.Close()

	w := cmd.OutOrStdout()
	printSessionLine(w, a.store)
	printUpdate(w, a.view.Current())
	printBreakdowns(w, a.view.Breakdowns(true))
	return nil
}

func runRemoteScore(cmd *cobra.Command) error {
	c := apiclient.New(scoreServer)
	ctx := context.Background()
	if !c.Healthy(ctx) {
		return fmt.Errorf("no fungimap server at %s", c.URL())
	}
	rows, err := c.Relevance(ctx, true)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	brand.Fprintf(w, "server %s\n", c.URL())
	printBreakdowns(w, rows)
	return nil
}

func printSessionLine(w io.Writer, st *session.Store) {
	brand.Fprintf(w, "session %s", st.SessionID())
	subtle.Fprintf(w, "  %d actions\n", st.TotalActions())
	if perspectives := relevance.RankPerspectives(st.PerspectiveUsage(), 3); len(perspectives) > 0 {
		subtle.Fprint(w, "  perspectives:")
		for _, p := range perspectives {
			info.Fprintf(w, " %s", p.ID)
			subtle.Fprintf(w, "(%.2f)", p.Weight)
		}
		fmt.Fprintln(w)
	}
}

func printUpdate(w io.Writer, u view.Update) {
	if u.Mode == view.ModeSearch {
		subtle.Fprintf(w, "  showing search results for %q\n", u.Query)
	} else {
		subtle.Fprintf(w, "  showing %d entities by relevance\n", len(u.Items))
	}
}

func printBreakdowns(w io.Writer, rows []relevance.Breakdown) {
	if len(rows) == 0 {
		warn.Fprintln(w, "  no entities to score")
		return
	}
	fmt.Fprintf(w, "\n  %-24s %6s %6s %6s %6s %6s %6s %6s %6s\n",
		"ENTITY", "SCORE", "CLICK", "HOVER", "VIEW", "TIME", "SCROLL", "SEARCH", "PERSP")
	for _, b := range rows {
		fmt.Fprintf(w, "  %-24s ", truncate(b.Slug, 24))
		scoreColor(b.Score).Fprintf(w, "%6.3f", b.Score)
		fmt.Fprintf(w, " %6.2f %6.2f %6.2f %6.2f %6.2f %6.2f %6.2f\n",
			b.Clicks, b.Hovers, b.Views, b.TimeSpent, b.ScrollDepth, b.SearchMatch, b.PerspectiveMatch)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
