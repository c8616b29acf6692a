// Package router is the provider-neutral entry point: it resolves an
// "<endpoint>/<model>" reference to a configured provider, applies the
// model's override and composes the post-processing pipeline.
package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/fwojciec/llmux"
	"github.com/fwojciec/llmux/config"
	"github.com/fwojciec/llmux/pipeline"
	"github.com/fwojciec/llmux/xmltool"
	"github.com/rs/zerolog"
)

// Thinking budgets for the configured thinking levels.
const (
	budgetLow    = 4096
	budgetMedium = 16384
	budgetHigh   = 32768
)

// Interface compliance check.
var _ llmux.Provider = (*Client)(nil)

// Client routes requests to the provider of the endpoint named in the model
// reference.
type Client struct {
	cfg       *config.Config
	providers map[string]llmux.Provider
	logger    zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for request routing decisions.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a Client serving the endpoints in providers, keyed by endpoint
// name, with overrides resolved from cfg.
func New(cfg *config.Config, providers map[string]llmux.Provider, opts ...Option) *Client {
	c := &Client{cfg: cfg, providers: providers, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Stream sends req to the provider of its endpoint and returns the composed
// event stream.
//
// The model's override is resolved once. Its thinking level and temperature
// fill in request fields the caller left unset. With prompt-based tool
// calling the tool declarations move into the system prompt, earlier tool
// traffic is rewritten as text and calls are extracted from the reply.
func (c *Client) Stream(ctx context.Context, req llmux.Request) (llmux.Stream, error) {
	endpoint, model, err := splitModel(req.Model)
	if err != nil {
		return nil, err
	}
	p, ok := c.providers[endpoint]
	if !ok {
		return nil, fmt.Errorf("router: %q: %w", endpoint, llmux.ErrUnknownEndpoint)
	}

	override := c.cfg.Override(req.Model)
	opts := pipeline.FromOverride(override, req.Tools)

	req.Model = model
	if req.ThinkingBudget == 0 && override.ThinkingLevel != nil {
		req.ThinkingBudget = thinkingBudget(*override.ThinkingLevel)
	}
	if req.Temperature == nil {
		req.Temperature = override.Temperature
	}
	promptTools := llmux.Enabled(override.UsePromptBasedToolCalling) && len(req.Tools) > 0
	if promptTools {
		req.SystemPrompt = joinPrompt(req.SystemPrompt, xmltool.Instructions(req.Tools))
		req.Messages = xmltool.InlineHistory(req.Messages)
		req.Tools = nil
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("router: %w", err)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("model", model).
		Int("thinking_budget", req.ThinkingBudget).
		Bool("prompt_tools", promptTools).
		Bool("thinking_tags", opts.ParseThinkingTags).
		Bool("suppress_reasoning", opts.SuppressReasoning).
		Msg("router: streaming")

	s, err := p.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return pipeline.Compose(s, opts), nil
}

func splitModel(ref string) (endpoint, model string, err error) {
	endpoint, model, ok := strings.Cut(ref, "/")
	if !ok || endpoint == "" || model == "" {
		return "", "", fmt.Errorf("router: model %q must have the form endpoint/model: %w", ref, llmux.ErrUnknownModel)
	}
	return endpoint, model, nil
}

func thinkingBudget(level string) int {
	switch level {
	case "low":
		return budgetLow
	case "medium":
		return budgetMedium
	case "high":
		return budgetHigh
	default:
		return 0
	}
}

func joinPrompt(system, instructions string) string {
	if system == "" {
		return instructions
	}
	return system + "\n\n" + instructions
}
