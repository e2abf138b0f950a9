package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lazypower/fungimap/internal/relevance"
	"github.com/lazypower/fungimap/internal/replay"
	"github.com/lazypower/fungimap/internal/session"
	"github.com/lazypower/fungimap/internal/view"
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run the bubble layout headless and report how it settles",
	Long: "Builds a fresh in-memory session, optionally seeds it from a JSONL event log, " +
		"then runs the physics loop and prints system energy and final node positions.",
	RunE: runSimulate,
}

var (
	simTicks  int
	simEvery  int
	simEvents string
	simJSON   bool
	simQuery  string
)

func init() {
	simulateCmd.Flags().IntVar(&simTicks, "ticks", 600, "number of physics ticks")
	simulateCmd.Flags().IntVar(&simEvery, "every", 100, "report energy every N ticks")
	simulateCmd.Flags().StringVar(&simEvents, "events", "", "JSONL event log to replay before simulating")
	simulateCmd.Flags().StringVar(&simQuery, "search", "", "lay out results for this query instead of relevance")
	simulateCmd.Flags().BoolVar(&simJSON, "json", false, "print the final frame as JSON")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	if simTicks < 1 {
		return fmt.Errorf("--ticks must be positive")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	st := session.New(session.Options{
		MaxActions:  cfg.Session.MaxActions,
		MaxSearches: cfg.Session.MaxSearches,
		MinHoverMs:  int64(cfg.Session.MinHoverMs),
	}, session.NewMemoryPersistence(), logger, nil)
	st.Load(context.Background())

	scorer := relevance.NewScorer(relevance.OptionsFromConfig(cfg.Relevance), st, logger, nil)
	v := view.New(catalog, st, scorer, nil, view.OptionsFromConfig(cfg), logger, nil)
	defer v.Close()

	w := cmd.OutOrStdout()
	if simEvents != "" {
		events, err := replay.ParseFile(simEvents)
		if err != nil {
			return err
		}
		sum := replay.Apply(st, events)
		subtle.Fprintf(w, "replayed %d events (%d recorded, %d ignored)\n", sum.Read, sum.Recorded, sum.Ignored)
	}

	ctx := context.Background()
	if simQuery != "" {
		if _, err := v.Search(ctx, simQuery); err != nil {
			return fmt.Errorf("search: %w", err)
		}
	} else {
		v.Refresh(ctx, true)
	}

	every := max(1, simEvery)
	for done := 0; done < simTicks; {
		step := min(every, simTicks-done)
		v.TickN(step)
		done += step
		if !simJSON {
			fmt.Fprintf(w, "tick %5d  energy %10.4f\n", done, v.Energy())
		}
	}

	frame := v.Frame()
	if simJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(frame)
	}

	fmt.Fprintln(w)
	for _, n := range frame.Nodes {
		label := truncate(n.ID, 24)
		if n.Anchor {
			brand.Fprintf(w, "  %-24s", label)
		} else {
			scoreColor(n.Relevance).Fprintf(w, "  %-24s", label)
		}
		subtle.Fprintf(w, " (%7.1f, %7.1f) size %5.1f\n", n.X, n.Y, n.Size)
	}
	subtle.Fprintf(w, "  %d active connections\n", len(frame.Connections))
	return nil
}
