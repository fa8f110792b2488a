package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"unicode/utf8"

	"listingbot/internal/enrich"
	"listingbot/internal/metrics"

	"github.com/spf13/cobra"
)

func previewCmd() *cobra.Command {
	var withMedia bool
	cmd := &cobra.Command{
		Use:   "preview [file]",
		Short: "Run extraction and generation on a listing text and print the caption",
		Long: `Reads a listing from a file, or from stdin when no file (or "-") is given,
and prints the extracted record and the caption the bot would publish.
Nothing is sent to Telegram.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			text, err := readSource(args)
			if err != nil {
				return fmt.Errorf("read listing: %w", err)
			}
			text = strings.TrimSpace(text)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := metrics.NewPipeline()
			extractor, generator, _, err := enrichers(cfg, m)
			if err != nil {
				return err
			}

			record, err := extractor.Extract(ctx, text)
			if err != nil {
				return fmt.Errorf("extract: %w", err)
			}
			fmt.Printf("type:     %s\nprice:    %s\nlocation: %s\nphone:    %s\n\n",
				record.Type, record.Price, record.Location, record.Phone)

			limit := cfg.Limits.TextMessage
			if withMedia {
				limit = cfg.Limits.MediaCaption
			}
			caption, err := generator.Generate(ctx, enrich.Request{
				Text:      text,
				MaxLength: limit - cfg.Limits.SafetyMargin,
				Type:      record.Type,
				Location:  record.Location,
				Price:     record.Price,
			})
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}
			if caption == "" {
				fmt.Println("(no caption: the post would be republished verbatim)")
				return nil
			}
			if cfg.Enrichment.HardClip {
				caption = enrich.Clip(caption, limit, generator.Contact(), generator.ContactMarker())
			}
			fmt.Println(caption)
			fmt.Printf("\n%d/%d characters, %d model calls\n",
				utf8.RuneCountInString(caption), limit, m.EnrichmentCalls.Value())
			return nil
		},
	}
	cmd.Flags().BoolVar(&withMedia, "media", true, "use the media caption limit instead of the text message limit")
	return cmd
}
