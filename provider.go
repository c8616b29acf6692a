package llmux

import "context"

// Provider is a strategy pattern interface for LLM providers.
//
// Stream fails before returning a Stream when the upstream call cannot be
// made or responds with a non-2xx status (see HTTPError).
type Provider interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// ModelLister is implemented by providers that can enumerate the models an
// endpoint serves.
type ModelLister interface {
	ListModels(ctx context.Context) ([]Model, error)
}

// Request carries model selection and generation parameters.
// The provider uses its own defaults when fields are zero/nil.
type Request struct {
	Model        string // model ID, provider-specific; empty = provider default
	SystemPrompt string
	Messages     []Message
	Tools        []Tool
	MaxTokens    int      // 0 = provider default
	Temperature  *float64 // nil = provider default

	// ThinkingBudget requests extended reasoning with the given token
	// budget. 0 = disabled / provider default.
	ThinkingBudget int
}
