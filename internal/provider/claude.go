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
	claudeDefaultBase  = "https://api.anthropic.com/v1"
	claudeAPIVersion   = "2023-06-01"
	claudeDefaultModel = "claude-3-5-haiku-20241022"
	claudeMaxTokens    = 2048
)

// Claude implements domain.Completer for the Anthropic Messages API. The API
// has no JSON response switch, so JSON mode only adds an instruction to the
// system prompt.
type Claude struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type ClaudeConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewClaude(cfg ClaudeConfig) *Claude {
	if cfg.APIBase == "" {
		cfg.APIBase = claudeDefaultBase
	}
	if cfg.Model == "" {
		cfg.Model = claudeDefaultModel
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultCallTimeout)
	}
	return &Claude{
		apiKey:  cfg.APIKey,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		model:   cfg.Model,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (c *Claude) Name() string { return "claude" }

type claudeMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeRequest struct {
	Model       string      `json:"model"`
	MaxTokens   int         `json:"max_tokens"`
	System      string      `json:"system,omitempty"`
	Messages    []claudeMsg `json:"messages"`
	Temperature *float64    `json:"temperature,omitempty"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func (c *Claude) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	// The Messages API accepts temperatures in [0, 1].
	temp := min(req.Temperature, 1.0)
	body := claudeRequest{
		Model:       model,
		MaxTokens:   claudeMaxTokens,
		Messages:    []claudeMsg{{Role: "user", Content: req.Prompt}},
		Temperature: &temp,
	}
	if req.Mode == domain.ModeJSON {
		body.System = "Respond with a single JSON object and nothing else."
	}

	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": claudeAPIVersion,
	}
	var resp claudeResponse
	if err := postJSON(ctx, c.client, "claude", c.apiBase+"/messages", headers, body, &resp); err != nil {
		return "", err
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", fmt.Errorf("claude (stop reason %s): %w", resp.StopReason, ErrEmptyResponse)
	}
	c.logger.Debug("claude completion", "model", model, "chars", len(text))
	return text, nil
}
