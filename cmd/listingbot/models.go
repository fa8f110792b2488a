package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"listingbot/internal/provider"

	"github.com/spf13/cobra"
)

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the Gemini models the configured API key can use for generateContent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadConfig()
			if err != nil {
				return err
			}
			defer closeLog()

			pc, ok := cfg.Providers["gemini"]
			if !ok || pc.APIKey == "" {
				return fmt.Errorf("no Gemini API key configured (set GEMINI_API_KEY or providers.gemini.apiKey)")
			}
			g := provider.NewGemini(provider.GeminiConfig{
				APIKey:  pc.APIKey,
				APIBase: pc.APIBase,
				Client:  provider.SharedHTTPClient(cfg.Enrichment.CallTimeout()),
				Logger:  logger,
			})

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			models, err := g.ListModels(ctx)
			if err != nil {
				return fmt.Errorf("list models: %w", err)
			}
			if len(models) == 0 {
				fmt.Println("No models support generateContent for this key.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "MODEL\tDISPLAY NAME")
			for _, m := range models {
				marker := ""
				if m.Name == pc.DefaultModel {
					marker = " (default)"
				}
				fmt.Fprintf(w, "%s%s\t%s\n", m.Name, marker, orDash(m.DisplayName))
			}
			return w.Flush()
		},
	}
}
