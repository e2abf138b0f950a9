package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/lazypower/fungimap/internal/apiclient"
	"github.com/lazypower/fungimap/internal/store"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show recorded browsing sessions",
	RunE:  runSession,
}

var (
	sessionLimit  int
	sessionLive   bool
	sessionServer string
	sessionClear  bool
)

func init() {
	sessionCmd.Flags().IntVarP(&sessionLimit, "limit", "n", 10, "number of sessions to list")
	sessionCmd.Flags().BoolVar(&sessionLive, "live", false, "show the live session of a running server")
	sessionCmd.Flags().StringVar(&sessionServer, "server", "", "server URL for --live")
	sessionCmd.Flags().BoolVar(&sessionClear, "clear", false, "discard the saved session document")
}

func runSession(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	w := cmd.OutOrStdout()

	if sessionLive {
		c := apiclient.New(sessionServer)
		stats, err := c.Session(ctx)
		if err != nil {
			return err
		}
		brand.Fprintf(w, "live session at %s\n", c.URL())
		for _, k := range []string{"session_id", "total_actions", "logged_actions"} {
			if v, ok := stats[k]; ok {
				fmt.Fprintf(w, "  %-16s %v\n", k, v)
			}
		}
		if display, ok := stats["display"].(map[string]any); ok {
			fmt.Fprintf(w, "  %-16s %v\n", "mode", display["mode"])
			if q, _ := display["query"].(string); q != "" {
				fmt.Fprintf(w, "  %-16s %q\n", "query", q)
			}
		}
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, dbPath, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if sessionClear {
		if err := store.NewPersistence(db, store.DefaultSlot).ClearSession(ctx); err != nil {
			return err
		}
		good.Fprintln(w, "saved session cleared")
		return nil
	}

	sessions, err := db.GetRecentSessions(ctx, sessionLimit)
	if err != nil {
		return err
	}
	brand.Fprintf(w, "sessions")
	subtle.Fprintf(w, "  %s\n", dbPath)
	if len(sessions) == 0 {
		warn.Fprintln(w, "  no sessions recorded")
		return nil
	}
	for _, s := range sessions {
		started := time.UnixMilli(s.StartedAt).Format("2006-01-02 15:04")
		fmt.Fprintf(w, "  %-28s %s ", truncate(s.SessionID, 28), started)
		if s.Status == "active" {
			good.Fprintf(w, "%-9s", s.Status)
		} else {
			subtle.Fprintf(w, "%-9s", s.Status)
		}
		fmt.Fprintf(w, " %4d actions\n", s.ActionCount)
	}

	top, err := db.TopSlugs(ctx, 5)
	if err != nil {
		return err
	}
	if len(top) > 0 {
		fmt.Fprintln(w)
		brand.Fprintln(w, "most touched")
		for _, sc := range top {
			info.Fprintf(w, "  %-28s", truncate(sc.Slug, 28))
			fmt.Fprintf(w, " %d\n", sc.Count)
		}
	}
	return nil
}
