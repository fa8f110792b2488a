package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"listingbot/internal/journal"

	"github.com/spf13/cobra"
)

func journalCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show recent publications and outcome totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			if _, err := os.Stat(cfg.Journal.DBPath); err != nil {
				return fmt.Errorf("no journal at %s (enable journal.enabled and run the bot first)", cfg.Journal.DBPath)
			}
			store, err := journal.Open(cfg.Journal.DBPath, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := context.Background()
			entries, err := store.Recent(ctx, limit)
			if err != nil {
				return fmt.Errorf("read journal: %w", err)
			}
			stats, err := store.Stats(ctx)
			if err != nil {
				return fmt.Errorf("read journal stats: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tUNIT\tGROUP\tMESSAGES\tOUTCOME\tCAPTION\tERROR")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					e.CreatedAt.Local().Format(time.DateTime),
					shortID(e.UnitID),
					orDash(e.GroupKey),
					joinInts(e.MessageIDs),
					e.Outcome,
					e.CaptionLen,
					orDash(e.Error),
				)
			}
			w.Flush()

			fmt.Printf("\nenriched: %d  verbatim: %d  failed: %d\n",
				stats[journal.OutcomeEnriched], stats[journal.OutcomeVerbatim], stats[journal.OutcomeFailed])
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ",")
}
