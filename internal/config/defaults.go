package config

import "time"

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel:        "info",
			DefaultProvider: "gemini",
		},
		Telegram: TelegramConfig{
			ParseMode:          "HTML",
			PollTimeoutSeconds: 30,
		},
		Providers: map[string]ProviderConfig{
			"gemini": {
				Enabled:      true,
				APIBase:      "https://generativelanguage.googleapis.com/v1beta",
				DefaultModel: "gemini-2.5-flash",
			},
			"openai": {
				Enabled:      false,
				APIBase:      "https://api.openai.com/v1",
				DefaultModel: "gpt-4o-mini",
			},
			"claude": {
				Enabled:      false,
				APIBase:      "https://api.anthropic.com/v1",
				DefaultModel: "claude-3-5-haiku-20241022",
			},
			"ollama": {
				Enabled:      false,
				APIBase:      "http://localhost:11434",
				DefaultModel: "llama3.1:8b",
			},
		},
		Enrichment: EnrichmentConfig{
			RetryAttempts:       3,
			RetryDelayMillis:    2000,
			CallTimeoutSeconds:  60,
			CacheTTLSeconds:     3600,
			ExtractTemperature:  0.1,
			GenerateTemperature: 0.9,
			Contact:             "+447700900000 (Telegram)",
			ForbiddenPhrases:    DefaultForbiddenPhrases(),
			Greetings:           DefaultGreetings(),
			RateLimitBurst:      10,
			RateLimitPerMinute:  60,
			HardClip:            true,
			BreakerFailures:     5,
			BreakerCooldownSecs: 60,
		},
		Album: AlbumConfig{
			DebounceMillis: 1500,
		},
		Limits: LimitsConfig{
			MediaCaption: 1024,
			TextMessage:  4096,
			SafetyMargin: 50,
			PacingMillis: 1000,
		},
		Metrics: MetricsConfig{
			Enabled:            false,
			Listen:             "127.0.0.1:9464",
			Endpoint:           "/metrics",
			LogIntervalSeconds: 600,
		},
		Journal: JournalConfig{
			Enabled: false,
			DBPath:  "~/.listingbot/journal.db",
		},
		Bus: BusConfig{
			BufferSize: 100,
		},
	}
}

// DefaultForbiddenPhrases lists realtor boilerplate and availability-date
// tokens. Any generated sentence containing one is dropped.
func DefaultForbiddenPhrases() []string {
	return []string{
		"Other properties also available",
		"Info on Facebook",
		"Communication possible",
		"including entire accommodations",
		"which can be selected",
		"Tik-Tok",
		"Instagram",
		"in English, Ukrainian, Russian, Polish",
		"for details and booking",
		"happy to discuss details",
		"Available from",
		"To let from",
		"until",
		"to",
		"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December",
		"2024", "2025", "2026", "2027",
	}
}

func DefaultGreetings() []string {
	return []string{"Hello everyone", "Hello", "Hi", "Good day"}
}

func (e EnrichmentConfig) RetryDelay() time.Duration {
	return time.Duration(e.RetryDelayMillis) * time.Millisecond
}

func (e EnrichmentConfig) CallTimeout() time.Duration {
	return time.Duration(e.CallTimeoutSeconds) * time.Second
}

func (e EnrichmentConfig) CacheTTL() time.Duration {
	return time.Duration(e.CacheTTLSeconds) * time.Second
}

func (e EnrichmentConfig) BreakerCooldown() time.Duration {
	return time.Duration(e.BreakerCooldownSecs) * time.Second
}

func (a AlbumConfig) Debounce() time.Duration {
	return time.Duration(a.DebounceMillis) * time.Millisecond
}

func (l LimitsConfig) Pacing() time.Duration {
	return time.Duration(l.PacingMillis) * time.Millisecond
}

func (m MetricsConfig) LogInterval() time.Duration {
	return time.Duration(m.LogIntervalSeconds) * time.Second
}
