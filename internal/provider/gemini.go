package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"listingbot/internal/domain"
)

const (
	geminiDefaultBase  = "https://generativelanguage.googleapis.com/v1beta"
	geminiDefaultModel = "gemini-2.5-flash"
)

// Gemini implements domain.Completer over the Generative Language REST API.
type Gemini struct {
	apiKey  string
	apiBase string
	model   string
	client  *http.Client
	logger  *slog.Logger
}

type GeminiConfig struct {
	APIKey  string
	APIBase string
	Model   string
	Client  *http.Client
	Logger  *slog.Logger
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.APIBase == "" {
		cfg.APIBase = geminiDefaultBase
	}
	if cfg.Model == "" {
		cfg.Model = geminiDefaultModel
	}
	if cfg.Client == nil {
		cfg.Client = SharedHTTPClient(defaultCallTimeout)
	}
	return &Gemini{
		apiKey:  cfg.APIKey,
		apiBase: strings.TrimRight(cfg.APIBase, "/"),
		model:   cfg.Model,
		client:  cfg.Client,
		logger:  cfg.Logger,
	}
}

func (g *Gemini) Name() string { return "gemini" }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (g *Gemini) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.Prompt}}}},
	}
	temp := req.Temperature
	body.GenerationConfig.Temperature = &temp
	if req.Mode == domain.ModeJSON {
		body.GenerationConfig.ResponseMimeType = "application/json"
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", g.apiBase, model)
	var resp geminiResponse
	if err := postJSON(ctx, g.client, "gemini", endpoint, map[string]string{"x-goog-api-key": g.apiKey}, body, &resp); err != nil {
		return "", err
	}

	if reason := resp.PromptFeedback.BlockReason; reason != "" {
		return "", fmt.Errorf("gemini blocked the prompt: %s", reason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini: no candidates: %w", ErrEmptyResponse)
	}

	var out strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		out.WriteString(p.Text)
	}
	text := strings.TrimSpace(out.String())
	if text == "" {
		return "", fmt.Errorf("gemini (finish reason %s): %w", resp.Candidates[0].FinishReason, ErrEmptyResponse)
	}
	g.logger.Debug("gemini completion", "model", model, "chars", len(text))
	return text, nil
}

type geminiModelList struct {
	Models []struct {
		Name                       string   `json:"name"`
		DisplayName                string   `json:"displayName"`
		SupportedGenerationMethods []string `json:"supportedGenerationMethods"`
	} `json:"models"`
	NextPageToken string `json:"nextPageToken"`
}

// GeminiModel is a model the API key can call with generateContent.
type GeminiModel struct {
	Name        string
	DisplayName string
}

// ListModels pages through the models endpoint and keeps the ones that
// support generateContent.
func (g *Gemini) ListModels(ctx context.Context) ([]GeminiModel, error) {
	var models []GeminiModel
	pageToken := ""
	for {
		endpoint := g.apiBase + "/models?pageSize=100"
		if pageToken != "" {
			endpoint += "&pageToken=" + url.QueryEscape(pageToken)
		}
		var page geminiModelList
		if err := getJSON(ctx, g.client, "gemini", endpoint, map[string]string{"x-goog-api-key": g.apiKey}, &page); err != nil {
			return nil, err
		}
		for _, m := range page.Models {
			if slices.Contains(m.SupportedGenerationMethods, "generateContent") {
				models = append(models, GeminiModel{Name: strings.TrimPrefix(m.Name, "models/"), DisplayName: m.DisplayName})
			}
		}
		if page.NextPageToken == "" {
			return models, nil
		}
		pageToken = page.NextPageToken
	}
}
