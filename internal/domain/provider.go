package domain

import "context"

// ResponseMode hints the model which output format is expected.
type ResponseMode string

const (
	ModeText ResponseMode = "text"
	ModeJSON ResponseMode = "json"
)

// CompletionRequest is a single prompt sent to a text-completion model.
type CompletionRequest struct {
	Prompt      string
	Mode        ResponseMode
	Temperature float64
	Model       string // optional: override the provider default
}

// Completer is the interface all model providers implement. The pipeline
// treats it as a black box: prompt in, text out, or a generic error.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	Name() string
}
