package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"listingbot/internal/album"
	"listingbot/internal/bus"
	"listingbot/internal/cache"
	"listingbot/internal/channel"
	"listingbot/internal/config"
	"listingbot/internal/enrich"
	"listingbot/internal/journal"
	"listingbot/internal/metrics"
	"listingbot/internal/pipeline"
	"listingbot/internal/provider"
	"listingbot/internal/retry"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "listingbot",
		Short: "listingbot: AI-enriched Telegram channel reposter",
		Long: "listingbot watches a source Telegram channel, rewrites property listings with a language model " +
			"and republishes them to a target channel, falling back to a verbatim copy when enrichment fails.",
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json or config.yaml (default: ~/.listingbot/config.json)")

	root.AddCommand(runCmd())
	root.AddCommand(previewCmd())
	root.AddCommand(configCmd())
	root.AddCommand(journalCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(modelsCmd())
	root.AddCommand(versionCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config and replaces the bootstrap logger with one built
// from general.logLevel and general.logFile. The returned closer releases the
// log file.
func loadConfig() (*config.Config, func(), error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	closer, err := setupLogger(cfg.General)
	if err != nil {
		return nil, nil, err
	}
	for _, w := range config.Warnings(cfg) {
		logger.Warn(w)
	}
	return cfg, closer, nil
}

func setupLogger(g config.GeneralConfig) (func(), error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(g.LogLevel)); err != nil {
		level = slog.LevelInfo
	}

	var (
		out    io.Writer = os.Stderr
		closer           = func() {}
	)
	if g.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(g.LogFile), 0o755); err != nil {
			return nil, fmt.Errorf("cannot create log directory: %w", err)
		}
		f, err := os.OpenFile(g.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("cannot open log file: %w", err)
		}
		out = io.MultiWriter(os.Stderr, f)
		closer = func() { f.Close() }
	}

	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	return closer, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("listingbot", version)
		},
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
		Long:  "Show the effective configuration: file values, defaults and environment overrides.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. enrichment.retryAttempts)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values, secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}
			if err := config.Save(path, config.Defaults()); err != nil {
				return err
			}
			logger.Info("config written", "path", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

// enrichers builds the model chain and both enrichment stages.
func enrichers(cfg *config.Config, m *metrics.Pipeline) (*enrich.Extractor, *enrich.Generator, *cache.Cache, error) {
	model, err := provider.NewFactory(cfg, nil, logger).Build()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("model provider: %w", err)
	}
	logger.Info("model provider ready", "provider", model.Name())

	e := cfg.Enrichment
	policy := retry.Policy{Attempts: e.RetryAttempts, Delay: e.RetryDelay()}
	store := cache.New(logger)

	extractor := enrich.NewExtractor(enrich.ExtractorConfig{
		Model:       model,
		Cache:       store,
		CacheTTL:    e.CacheTTL(),
		Retry:       policy,
		Temperature: e.ExtractTemperature,
		Metrics:     m,
		Logger:      logger,
	})
	generator := enrich.NewGenerator(enrich.GeneratorConfig{
		Model:            model,
		Retry:            policy,
		Temperature:      e.GenerateTemperature,
		Contact:          e.Contact,
		ContactMarker:    e.ContactMarker,
		ForbiddenPhrases: e.ForbiddenPhrases,
		Greetings:        e.Greetings,
		Metrics:          m,
		Logger:           logger,
	})
	return extractor, generator, store, nil
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start republishing (Telegram polling + enrichment pipeline)",
		Long:  "Polls the source channel and republishes every post to the target channel. Press Ctrl+C to stop.",
		RunE:  runBot,
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()
	if err := config.RequireTransport(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.NewPipeline()
	extractor, generator, store, err := enrichers(cfg, m)
	if err != nil {
		return err
	}

	var jr pipeline.Journal
	if cfg.Journal.Enabled {
		js, err := journal.Open(cfg.Journal.DBPath, logger)
		if err != nil {
			return fmt.Errorf("journal: %w", err)
		}
		defer js.Close()
		jr = js
	}

	tg := channel.NewTelegram(channel.TelegramConfig{
		Token:        cfg.Telegram.Token,
		SourceChatID: cfg.Telegram.SourceChatID,
		ParseMode:    cfg.Telegram.ParseMode,
		PollTimeout:  cfg.Telegram.PollTimeoutSeconds,
		Logger:       logger,
	})
	if err := tg.Connect(); err != nil {
		return err
	}

	pipe := pipeline.New(pipeline.Config{
		Extractor:         extractor,
		Generator:         generator,
		Publisher:         tg,
		Journal:           jr,
		TargetChatID:      cfg.Telegram.TargetChatID,
		MediaCaptionLimit: cfg.Limits.MediaCaption,
		TextLimit:         cfg.Limits.TextMessage,
		SafetyMargin:      cfg.Limits.SafetyMargin,
		Pacing:            cfg.Limits.Pacing(),
		HardClip:          cfg.Enrichment.HardClip,
		Contact:           generator.Contact(),
		ContactMarker:     generator.ContactMarker(),
		EscapeHTML:        strings.EqualFold(cfg.Telegram.ParseMode, "HTML"),
		Metrics:           m,
		Logger:            logger,
	})
	runner := pipeline.NewRunner(pipeline.RunnerConfig{
		Aggregator: album.New(album.Config{
			Window:  cfg.Album.Debounce(),
			Logger:  logger,
			Pending: m.PendingGroups,
		}),
		Pipeline:      pipe,
		Metrics:       m,
		StatsInterval: cfg.Metrics.LogInterval(),
		Logger:        logger,
	})

	inbound := bus.New(cfg.Bus.BufferSize, logger)

	if cfg.Metrics.Enabled {
		srv := metrics.NewServer(m, metrics.ServerConfig{
			Listen:   cfg.Metrics.Listen,
			Endpoint: cfg.Metrics.Endpoint,
			Version:  version,
			Logger:   logger,
		})
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("metrics server error", "err", err)
			}
		}()
	}

	if ttl := cfg.Enrichment.CacheTTL(); ttl > 0 {
		go purgeCache(ctx, store, ttl)
	}

	runnerDone := make(chan struct{})
	go func() {
		defer close(runnerDone)
		runner.Run(ctx, inbound.Subscribe())
	}()

	logger.Info("listingbot started. Press Ctrl+C to stop.",
		"version", version,
		"source", cfg.Telegram.SourceChatID,
		"target", cfg.Telegram.TargetChatID,
	)

	var pollErr error
	if err := tg.Start(ctx, inbound); err != nil {
		pollErr = fmt.Errorf("telegram: %w", err)
		stop()
	}

	logger.Info("shutting down...")
	inbound.Close()

	const shutdownTimeout = 10 * time.Second
	select {
	case <-runnerDone:
		logger.Info("shutdown complete", "dropped_items", inbound.Dropped())
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timed out, forcing exit")
		return fmt.Errorf("shutdown timed out")
	}
	return pollErr
}

func purgeCache(ctx context.Context, c *cache.Cache, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := c.Purge(); n > 0 {
				logger.Debug("expired cache entries purged", "count", n, "remaining", c.Len())
			}
		}
	}
}

// readSource returns the text of a file, or stdin for "-" or no argument.
func readSource(args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(os.Stdin)
		return string(data), err
	}
	data, err := os.ReadFile(args[0])
	return string(data), err
}
