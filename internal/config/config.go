package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for listingbot.
type Config struct {
	General    GeneralConfig             `json:"general" yaml:"general"`
	Telegram   TelegramConfig            `json:"telegram" yaml:"telegram"`
	Providers  map[string]ProviderConfig `json:"providers" yaml:"providers"`
	Enrichment EnrichmentConfig          `json:"enrichment" yaml:"enrichment"`
	Album      AlbumConfig               `json:"album" yaml:"album"`
	Limits     LimitsConfig              `json:"limits" yaml:"limits"`
	Metrics    MetricsConfig             `json:"metrics" yaml:"metrics"`
	Journal    JournalConfig             `json:"journal" yaml:"journal"`
	Bus        BusConfig                 `json:"bus" yaml:"bus"`
}

type GeneralConfig struct {
	LogLevel        string   `json:"logLevel" yaml:"logLevel"`
	LogFile         string   `json:"logFile,omitempty" yaml:"logFile,omitempty"`
	DefaultProvider string   `json:"defaultProvider" yaml:"defaultProvider"`
	FailoverChain   []string `json:"failoverChain,omitempty" yaml:"failoverChain,omitempty"` // provider failover order
}

type TelegramConfig struct {
	Token              string `json:"token" yaml:"token"`
	SourceChatID       int64  `json:"sourceChatId" yaml:"sourceChatId"`
	TargetChatID       int64  `json:"targetChatId" yaml:"targetChatId"`
	ParseMode          string `json:"parseMode" yaml:"parseMode"` // "HTML" | "" (plain)
	PollTimeoutSeconds int    `json:"pollTimeoutSeconds" yaml:"pollTimeoutSeconds"`
}

type ProviderConfig struct {
	Enabled      bool   `json:"enabled" yaml:"enabled"`
	APIBase      string `json:"apiBase,omitempty" yaml:"apiBase,omitempty"`
	APIKey       string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	DefaultModel string `json:"defaultModel,omitempty" yaml:"defaultModel,omitempty"`
}

// EnrichmentConfig tunes the extract-then-generate stages.
type EnrichmentConfig struct {
	RetryAttempts       int      `json:"retryAttempts" yaml:"retryAttempts"`
	RetryDelayMillis    int      `json:"retryDelayMillis" yaml:"retryDelayMillis"`
	CallTimeoutSeconds  int      `json:"callTimeoutSeconds" yaml:"callTimeoutSeconds"`
	CacheTTLSeconds     int      `json:"cacheTtlSeconds" yaml:"cacheTtlSeconds"` // 0 = entries never expire
	ExtractTemperature  float64  `json:"extractTemperature" yaml:"extractTemperature"`
	GenerateTemperature float64  `json:"generateTemperature" yaml:"generateTemperature"`
	Contact             string   `json:"contact" yaml:"contact"`                                             // line every caption must carry
	ContactMarker       string   `json:"contactMarker,omitempty" yaml:"contactMarker,omitempty"`             // substring proving the contact is present (default: digits of contact)
	ForbiddenPhrases    []string `json:"forbiddenPhrases,omitempty" yaml:"forbiddenPhrases,omitempty"`       // sentences containing these are dropped
	Greetings           []string `json:"greetings,omitempty" yaml:"greetings,omitempty"`                     // leading sentence stripped when it starts with one
	RateLimitBurst      int      `json:"rateLimitBurst" yaml:"rateLimitBurst"`
	RateLimitPerMinute  float64  `json:"rateLimitPerMinute" yaml:"rateLimitPerMinute"`
	HardClip            bool     `json:"hardClip" yaml:"hardClip"` // clip captions to the transport maximum

	// Consecutive failures that open a failover member's breaker, 0 = off.
	BreakerFailures     int `json:"breakerFailures" yaml:"breakerFailures"`
	BreakerCooldownSecs int `json:"breakerCooldownSeconds" yaml:"breakerCooldownSeconds"`
}

type AlbumConfig struct {
	DebounceMillis int `json:"debounceMillis" yaml:"debounceMillis"`
}

// LimitsConfig holds the target transport payload limits.
type LimitsConfig struct {
	MediaCaption int `json:"mediaCaption" yaml:"mediaCaption"`
	TextMessage  int `json:"textMessage" yaml:"textMessage"`
	SafetyMargin int `json:"safetyMargin" yaml:"safetyMargin"`
	PacingMillis int `json:"pacingMillis" yaml:"pacingMillis"`
}

// MetricsConfig configures the Prometheus endpoint and the periodic stats log.
type MetricsConfig struct {
	Enabled            bool   `json:"enabled" yaml:"enabled"`
	Listen             string `json:"listen" yaml:"listen"`
	Endpoint           string `json:"endpoint" yaml:"endpoint"`
	LogIntervalSeconds int    `json:"logIntervalSeconds" yaml:"logIntervalSeconds"` // 0 = disabled
}

// JournalConfig configures the SQLite publication journal.
type JournalConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	DBPath  string `json:"dbPath" yaml:"dbPath"`
}

type BusConfig struct {
	BufferSize int `json:"bufferSize" yaml:"bufferSize"`
}

// DefaultConfigDir returns the default config directory (~/.listingbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".listingbot"
	}
	return filepath.Join(home, ".listingbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the config file at path (JSON, or YAML for .yaml/.yml), applies
// environment overrides and validates the result. A missing file yields the
// defaults plus environment.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	cfg := Defaults()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// defaults + environment
	case err != nil:
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	default:
		// Substitute environment variables: ${VAR} and ${VAR:-default}
		data = []byte(ExpandEnvVars(string(data)))
		if err := unmarshal(path, data, cfg); err != nil {
			return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
		}
	}

	ApplyEnv(cfg)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Journal.DBPath = ExpandPath(cfg.Journal.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

func unmarshal(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// ApplyEnv overrides config values with the well-known environment variables
// used by .env deployments.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("SOURCE_CHANNEL_ID"); v != "" {
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.Telegram.SourceChatID = id
		}
	}
	if v := os.Getenv("TARGET_CHANNEL_ID"); v != "" {
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.Telegram.TargetChatID = id
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.General.LogLevel = strings.ToLower(v)
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		pc := cfg.Providers["gemini"]
		pc.APIKey = v
		cfg.Providers["gemini"] = pc
	}
	if v := os.Getenv("GEMINI_MODEL"); v != "" {
		pc := cfg.Providers["gemini"]
		pc.DefaultModel = v
		cfg.Providers["gemini"] = pc
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Telegram.Token != "" && !strings.Contains(cfg.Telegram.Token, ":") {
		errs = append(errs, "telegram.token has an invalid format")
	}
	switch cfg.Telegram.ParseMode {
	case "", "HTML":
	default:
		errs = append(errs, "telegram.parseMode must be HTML or empty")
	}

	if cfg.Enrichment.RetryAttempts < 1 || cfg.Enrichment.RetryAttempts > 10 {
		errs = append(errs, "enrichment.retryAttempts must be between 1 and 10")
	}
	if cfg.Enrichment.RetryDelayMillis < 0 {
		errs = append(errs, "enrichment.retryDelayMillis must be >= 0")
	}
	if cfg.Enrichment.CallTimeoutSeconds < 1 {
		errs = append(errs, "enrichment.callTimeoutSeconds must be >= 1")
	}
	if cfg.Enrichment.CacheTTLSeconds < 0 {
		errs = append(errs, "enrichment.cacheTtlSeconds must be >= 0")
	}
	if cfg.Enrichment.BreakerFailures < 0 || cfg.Enrichment.BreakerCooldownSecs < 0 {
		errs = append(errs, "enrichment.breakerFailures and enrichment.breakerCooldownSeconds must be >= 0")
	}
	if strings.TrimSpace(cfg.Enrichment.Contact) == "" {
		errs = append(errs, "enrichment.contact is required")
	}

	if cfg.Album.DebounceMillis < 1 {
		errs = append(errs, "album.debounceMillis must be >= 1")
	}

	if cfg.Limits.MediaCaption < 1 || cfg.Limits.TextMessage < 1 {
		errs = append(errs, "limits.mediaCaption and limits.textMessage must be >= 1")
	}
	if cfg.Limits.SafetyMargin < 0 || cfg.Limits.SafetyMargin >= cfg.Limits.MediaCaption {
		errs = append(errs, "limits.safetyMargin must be >= 0 and below limits.mediaCaption")
	}
	if cfg.Limits.PacingMillis < 0 {
		errs = append(errs, "limits.pacingMillis must be >= 0")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}
	if cfg.Journal.Enabled && cfg.Journal.DBPath == "" {
		errs = append(errs, "journal.dbPath is required when the journal is enabled")
	}

	if _, ok := cfg.Providers[cfg.General.DefaultProvider]; !ok {
		errs = append(errs, fmt.Sprintf("general.defaultProvider references unknown provider: %s", cfg.General.DefaultProvider))
	}
	// Validate failover chain references exist in providers.
	for _, provName := range cfg.General.FailoverChain {
		if _, ok := cfg.Providers[provName]; !ok {
			errs = append(errs, fmt.Sprintf("general.failoverChain references unknown provider: %s", provName))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Warnings returns non-fatal remarks about the config, such as a positive
// channel id (Telegram channel ids are normally negative, -100...).
func Warnings(cfg *Config) []string {
	var out []string
	if cfg.Telegram.SourceChatID > 0 {
		out = append(out, fmt.Sprintf("telegram.sourceChatId %d is positive; channel ids usually start with -100", cfg.Telegram.SourceChatID))
	}
	if cfg.Telegram.TargetChatID > 0 {
		out = append(out, fmt.Sprintf("telegram.targetChatId %d is positive; channel ids usually start with -100", cfg.Telegram.TargetChatID))
	}
	return out
}

// RequireTransport checks the settings needed to talk to Telegram. Commands
// that do not run the bot (preview, config) skip it.
func RequireTransport(cfg *Config) error {
	var errs []string
	if cfg.Telegram.Token == "" {
		errs = append(errs, "telegram.token (BOT_TOKEN) is required")
	}
	if cfg.Telegram.SourceChatID == 0 {
		errs = append(errs, "telegram.sourceChatId (SOURCE_CHANNEL_ID) is required")
	}
	if cfg.Telegram.TargetChatID == 0 {
		errs = append(errs, "telegram.targetChatId (TARGET_CHANNEL_ID) is required")
	}
	if cfg.Telegram.SourceChatID != 0 && cfg.Telegram.SourceChatID == cfg.Telegram.TargetChatID {
		errs = append(errs, "telegram.sourceChatId and telegram.targetChatId must differ")
	}
	if len(errs) > 0 {
		return fmt.Errorf("transport config errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
