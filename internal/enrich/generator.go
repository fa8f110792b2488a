package enrich

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"unicode/utf8"

	"listingbot/internal/domain"
	"listingbot/internal/metrics"
	"listingbot/internal/retry"
)

// Request carries the source text, the caption budget and the extracted
// facts into a generation call.
type Request struct {
	Text      string
	MaxLength int
	Type      string
	Location  string
	Price     string
}

type GeneratorConfig struct {
	Model            domain.Completer
	Retry            retry.Policy
	Temperature      float64
	Contact          string
	ContactMarker    string // defaults to the digits of Contact
	ForbiddenPhrases []string
	Greetings        []string
	Metrics          *metrics.Pipeline
	Logger           *slog.Logger
	Rand             func(n int) int // defaults to rand.Intn
}

// Generator writes listing descriptions and cleans them up afterwards.
type Generator struct {
	model       domain.Completer
	policy      retry.Policy
	temperature float64
	contact     string
	post        *postProcessor
	pick        func(n int) int
	metrics     *metrics.Pipeline
	logger      *slog.Logger
}

func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Rand == nil {
		cfg.Rand = rand.Intn
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewPipeline()
	}
	return &Generator{
		model:       cfg.Model,
		policy:      cfg.Retry,
		temperature: cfg.Temperature,
		contact:     cfg.Contact,
		post:        newPostProcessor(cfg.ForbiddenPhrases, cfg.Greetings, cfg.Contact, cfg.ContactMarker, cfg.Rand),
		pick:        cfg.Rand,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
	}
}

// Generate returns a rewritten description. A non-positive MaxLength or blank
// text yields "" without calling the model. An error is returned only when
// every model attempt failed. Output is not cached: repeated calls are
// expected to vary.
func (g *Generator) Generate(ctx context.Context, req Request) (string, error) {
	if req.MaxLength <= 0 || strings.TrimSpace(req.Text) == "" {
		return "", nil
	}

	style := Styles[g.pick(len(Styles))]
	creq := domain.CompletionRequest{
		Prompt:      generationPrompt(req, style, g.contact),
		Mode:        domain.ModeText,
		Temperature: g.temperature,
	}
	raw, err := retry.Do(ctx, g.policy, g.logger, "generate", func(ctx context.Context) (string, error) {
		return observeCall(ctx, g.model, g.metrics, creq)
	})
	if err != nil {
		return "", err
	}

	if strings.TrimSpace(raw) == "" {
		g.logger.Warn("model returned an empty description", "style", style)
		return "", nil
	}

	desc := g.post.apply(raw)
	g.logger.Info("description generated",
		"style", style, "length", utf8.RuneCountInString(desc), "budget", req.MaxLength)
	return desc, nil
}

// Contact returns the contact line the generator injects.
func (g *Generator) Contact() string { return g.contact }

// ContactMarker returns the substring that proves the contact is present.
func (g *Generator) ContactMarker() string { return g.post.marker }
