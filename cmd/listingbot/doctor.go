package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"listingbot/internal/config"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the listingbot setup",
		Long: `Verifies that the configuration, Telegram settings, model providers,
journal database and metrics port are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("listingbot doctor v%s\n\n", version)

			passed, warned, failed := 0, 0, 0

			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s, using defaults and environment", cfgPath))
				warned++
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			cfg, err := config.Load(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				fmt.Printf("\n%d passed, %d warnings, 1 failed\n", passed, warned)
				return fmt.Errorf("config invalid")
			}
			printPass("Config validation", "valid")
			passed++

			for _, w := range config.Warnings(cfg) {
				printWarn("Config", w)
				warned++
			}

			if err := config.RequireTransport(cfg); err != nil {
				printFail("Telegram", err.Error())
				failed++
			} else {
				printPass("Telegram", fmt.Sprintf("%d -> %d", cfg.Telegram.SourceChatID, cfg.Telegram.TargetChatID))
				passed++
			}

			chain := cfg.General.FailoverChain
			if len(chain) == 0 {
				chain = []string{cfg.General.DefaultProvider}
			}
			for _, name := range chain {
				p := cfg.Providers[name]
				switch {
				case !p.Enabled:
					printFail("Provider: "+name, "disabled")
					failed++
				case p.APIKey == "" && name != "ollama":
					printWarn("Provider: "+name, "enabled but no API key configured")
					warned++
				default:
					printPass("Provider: "+name, p.DefaultModel)
					passed++
				}
			}

			if cfg.Journal.Enabled {
				if err := checkDatabase(cfg.Journal.DBPath); err != nil {
					printFail("Journal", err.Error())
					failed++
				} else {
					printPass("Journal", cfg.Journal.DBPath)
					passed++
				}
			}

			if cfg.Metrics.Enabled {
				if err := checkListen(cfg.Metrics.Listen); err != nil {
					printWarn("Metrics listen", fmt.Sprintf("%s may be in use: %v", cfg.Metrics.Listen, err))
					warned++
				} else {
					printPass("Metrics listen", cfg.Metrics.Listen+cfg.Metrics.Endpoint)
					passed++
				}
			}

			fmt.Printf("\nResults: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func checkDatabase(dbPath string) error {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("cannot create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("cannot open: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("cannot ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS _doctor_test (id INTEGER PRIMARY KEY)"); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	db.ExecContext(ctx, "DROP TABLE IF EXISTS _doctor_test")
	return nil
}

func checkListen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
