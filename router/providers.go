package router

import (
	"fmt"

	"github.com/fwojciec/llmux"
	"github.com/fwojciec/llmux/anthropic"
	"github.com/fwojciec/llmux/config"
	"github.com/fwojciec/llmux/gemini"
	"github.com/fwojciec/llmux/openai"
	"github.com/rs/zerolog"
)

// Endpoint is what every client package provides.
type Endpoint interface {
	llmux.Provider
	llmux.ModelLister
}

// NewEndpoint constructs the client for one configured endpoint.
func NewEndpoint(e config.Endpoint, logger zerolog.Logger) (Endpoint, error) {
	logger = logger.With().Str("endpoint", e.Name).Logger()
	switch e.Kind {
	case config.KindAnthropic:
		opts := []anthropic.Option{anthropic.WithLogger(logger)}
		if e.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(e.BaseURL))
		}
		return anthropic.New(e.APIKey, opts...), nil
	case config.KindGemini:
		opts := []gemini.Option{gemini.WithLogger(logger)}
		if e.BaseURL != "" {
			opts = append(opts, gemini.WithBaseURL(e.BaseURL))
		}
		return gemini.New(e.APIKey, opts...), nil
	case config.KindOpenAI:
		opts := []openai.Option{openai.WithLogger(logger)}
		if e.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(e.BaseURL))
		}
		return openai.New(e.APIKey, opts...), nil
	default:
		return nil, fmt.Errorf("router: endpoint %q: unknown kind %q: %w", e.Name, e.Kind, llmux.ErrValidation)
	}
}

// NewEndpoints constructs a client for every endpoint in cfg, keyed by name.
func NewEndpoints(cfg *config.Config, logger zerolog.Logger) (map[string]Endpoint, error) {
	out := make(map[string]Endpoint, len(cfg.Endpoints))
	for _, e := range cfg.Endpoints {
		ep, err := NewEndpoint(e, logger)
		if err != nil {
			return nil, err
		}
		out[e.Name] = ep
	}
	return out, nil
}

// Providers returns eps as a provider map for New.
func Providers(eps map[string]Endpoint) map[string]llmux.Provider {
	out := make(map[string]llmux.Provider, len(eps))
	for name, ep := range eps {
		out[name] = ep
	}
	return out
}

// Listers returns eps as a lister map for discovery.Discover.
func Listers(eps map[string]Endpoint) map[string]llmux.ModelLister {
	out := make(map[string]llmux.ModelLister, len(eps))
	for name, ep := range eps {
		out[name] = ep
	}
	return out
}
