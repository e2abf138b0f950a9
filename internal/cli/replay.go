package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/lazypower/fungimap/internal/replay"
)

var replayCmd = &cobra.Command{
	Use:   "replay <events.jsonl>",
	Short: "Replay a JSONL interaction log into the saved session",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	events, err := replay.ParseFile(args[0])
	if err != nil {
		return err
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
	a := newApp(ctx, cfg, catalog, db, true, logger, nil)
	sum := replay.Apply(a.store, events)
	a.view.Refresh(ctx, true)

	w := cmd.OutOrStdout()
	brand.Fprintf(w, "replayed %s\n", args[0])
	fmt.Fprintf(w, "  read %d, ", sum.Read)
	good.Fprintf(w, "recorded %d", sum.Recorded)
	fmt.Fprint(w, ", ")
	if sum.Ignored > 0 {
		warn.Fprintf(w, "ignored %d\n", sum.Ignored)
	} else {
		fmt.Fprintf(w, "ignored 0\n")
	}

	types := make([]string, 0, len(sum.ByType))
	for t := range sum.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		subtle.Fprintf(w, "  %-18s %d\n", t, sum.ByType[t])
	}
	fmt.Fprintln(w)

	printSessionLine(w, a.store)
	printBreakdowns(w, a.view.Breakdowns(false))

	if err := a.close(ctx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
