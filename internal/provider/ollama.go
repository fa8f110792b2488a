package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"listingbot/internal/domain"
)

const (
	ollamaDefaultBase  = "http://localhost:11434"
	ollamaDefaultModel = "llama3.1:8b"
)

// Ollama implements domain.Completer for a local or hosted Ollama server.
type Ollama struct {
	apiBase      string
	defaultModel string
	client       *http.Client
	logger       *slog.Logger
}

type OllamaConfig struct {
	APIBase      string
	DefaultModel string
	Client       *http.Client
	Logger       *slog.Logger
}

func NewOllama(cfg OllamaConfig) *Ollama {
	if cfg.APIBase == "" {
		cfg.APIBase = ollamaDefaultBase
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = ollamaDefaultModel
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultCallTimeout)
	}
	return &Ollama{
		apiBase:      strings.TrimRight(cfg.APIBase, "/"),
		defaultModel: cfg.DefaultModel,
		client:       cfg.Client,
		logger:       cfg.Logger,
	}
}

func (o *Ollama) Name() string { return "ollama" }

// ollamaRequest matches the /api/generate request body.
type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response   string `json:"response"`
	Done       bool   `json:"done"`
	DoneReason string `json:"done_reason"`
}

func (o *Ollama) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = o.defaultModel
	}

	body := ollamaRequest{
		Model:   model,
		Prompt:  req.Prompt,
		Stream:  false,
		Options: map[string]any{"temperature": req.Temperature},
	}
	if req.Mode == domain.ModeJSON {
		body.Format = "json"
	}

	var resp ollamaResponse
	if err := postJSON(ctx, o.client, "ollama", o.apiBase+"/api/generate", nil, body, &resp); err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Response)
	if text == "" {
		return "", fmt.Errorf("ollama (done reason %s): %w", resp.DoneReason, ErrEmptyResponse)
	}
	o.logger.Debug("ollama completion", "model", model, "chars", len(text))
	return text, nil
}
