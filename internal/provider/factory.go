package provider

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"listingbot/internal/config"
	"listingbot/internal/domain"
)

// Constructor builds a completer from a provider config entry.
type Constructor func(pc config.ProviderConfig, client *http.Client, logger *slog.Logger) domain.Completer

// Factory creates and caches completers from config.
type Factory struct {
	cfg          *config.Config
	client       *http.Client
	logger       *slog.Logger
	constructors map[string]Constructor
	cache        map[string]domain.Completer
	mu           sync.RWMutex
}

// NewFactory creates a factory with the built-in constructors registered. All
// completers share client.
func NewFactory(cfg *config.Config, client *http.Client, logger *slog.Logger) *Factory {
	if client == nil {
		client = SharedHTTPClient(cfg.Enrichment.CallTimeout())
	}
	f := &Factory{
		cfg:          cfg,
		client:       client,
		logger:       logger,
		constructors: make(map[string]Constructor),
		cache:        make(map[string]domain.Completer),
	}
	f.registerDefaults()
	return f
}

// RegisterConstructor adds or replaces a constructor by provider name.
func (f *Factory) RegisterConstructor(name string, ctor Constructor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.constructors[name] = ctor
}

func (f *Factory) registerDefaults() {
	f.constructors["gemini"] = func(pc config.ProviderConfig, client *http.Client, logger *slog.Logger) domain.Completer {
		return NewGemini(GeminiConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.DefaultModel, Client: client, Logger: logger})
	}
	f.constructors["openai"] = func(pc config.ProviderConfig, client *http.Client, logger *slog.Logger) domain.Completer {
		return NewOpenAI(OpenAIConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.DefaultModel, Client: client, Logger: logger})
	}
	f.constructors["claude"] = func(pc config.ProviderConfig, client *http.Client, logger *slog.Logger) domain.Completer {
		return NewClaude(ClaudeConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.DefaultModel, Client: client, Logger: logger})
	}
	f.constructors["ollama"] = func(pc config.ProviderConfig, client *http.Client, logger *slog.Logger) domain.Completer {
		return NewOllama(OllamaConfig{APIBase: pc.APIBase, DefaultModel: pc.DefaultModel, Client: client, Logger: logger})
	}
}

// Get returns the completer with the given name, or the default provider if
// name is empty. Instances are cached and reused.
func (f *Factory) Get(name string) (domain.Completer, error) {
	if name == "" {
		name = f.cfg.General.DefaultProvider
	}

	f.mu.RLock()
	if c, ok := f.cache[name]; ok {
		f.mu.RUnlock()
		return c, nil
	}
	f.mu.RUnlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.cache[name]; ok {
		return c, nil
	}

	pc, ok := f.cfg.Providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", name)
	}
	if !pc.Enabled {
		return nil, fmt.Errorf("provider %s is disabled", name)
	}

	var c domain.Completer
	if ctor, found := f.constructors[name]; found {
		c = ctor(pc, f.client, f.logger)
	} else if pc.APIBase != "" {
		// Unknown names are treated as OpenAI-compatible endpoints.
		c = NewOpenAI(OpenAIConfig{APIKey: pc.APIKey, APIBase: pc.APIBase, Model: pc.DefaultModel, Client: f.client, Logger: f.logger})
	} else {
		return nil, fmt.Errorf("provider %s: no constructor registered and no API base configured", name)
	}

	f.cache[name] = c
	return c, nil
}

// Build returns the completer the pipeline should use: the failover chain
// when one is configured, otherwise the default provider, behind the
// configured rate limiter. Chain members get a circuit breaker unless
// enrichment.breakerFailures is 0.
func (f *Factory) Build() (domain.Completer, error) {
	var c domain.Completer
	if chain := f.cfg.General.FailoverChain; len(chain) > 0 {
		members := make([]domain.Completer, 0, len(chain))
		for _, name := range chain {
			m, err := f.Get(name)
			if err != nil {
				f.logger.Warn("skipping provider in failover chain", "provider", name, "err", err)
				continue
			}
			if e := f.cfg.Enrichment; e.BreakerFailures > 0 {
				m = NewBreaker(m, BreakerConfig{
					Failures: uint32(e.BreakerFailures),
					Cooldown: e.BreakerCooldown(),
					Logger:   f.logger,
				})
			}
			members = append(members, m)
		}
		if len(members) == 0 {
			return nil, fmt.Errorf("failover chain %v has no usable provider", chain)
		}
		c = NewFailover(members, f.logger)
	} else {
		def, err := f.Get("")
		if err != nil {
			return nil, err
		}
		c = def
	}

	e := f.cfg.Enrichment
	return NewRateLimited(c, NewRateLimiter(e.RateLimitBurst, e.RateLimitPerMinute)), nil
}
