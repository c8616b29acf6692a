package main

import (
	"fmt"

	"github.com/fwojciec/llmux/config"
	"github.com/rs/zerolog"
)

// loadConfig reads the config file when one is named and otherwise derives
// one endpoint per API key present in the environment.
func loadConfig(env envConfig) (*config.Config, error) {
	if env.ConfigPath != "" {
		return config.Load(env.ConfigPath)
	}
	return detectEndpoints(env)
}

// detectEndpoints builds a configuration from API keys alone. Each endpoint
// is named after its kind, so models are addressed as "anthropic/<model>".
func detectEndpoints(env envConfig) (*config.Config, error) {
	cfg := config.Defaults()
	if env.AnthropicAPIKey != "" {
		cfg.Endpoints = append(cfg.Endpoints, config.Endpoint{
			Name:   config.KindAnthropic,
			Kind:   config.KindAnthropic,
			APIKey: env.AnthropicAPIKey,
		})
	}
	if env.GeminiAPIKey != "" {
		cfg.Endpoints = append(cfg.Endpoints, config.Endpoint{
			Name:   config.KindGemini,
			Kind:   config.KindGemini,
			APIKey: env.GeminiAPIKey,
		})
	}
	// A base URL alone is enough for local OpenAI-compatible servers.
	if env.OpenAIAPIKey != "" || env.OpenAIBaseURL != "" {
		cfg.Endpoints = append(cfg.Endpoints, config.Endpoint{
			Name:    config.KindOpenAI,
			Kind:    config.KindOpenAI,
			APIKey:  env.OpenAIAPIKey,
			BaseURL: env.OpenAIBaseURL,
		})
	}
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints: set LLMUX_CONFIG, or ANTHROPIC_API_KEY, GEMINI_API_KEY or OPENAI_API_KEY")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func logConfig(logger zerolog.Logger, cfg *config.Config) {
	for _, e := range cfg.Endpoints {
		logger.Debug().
			Str("endpoint", e.Name).
			Str("kind", e.Kind).
			Str("base_url", e.BaseURL).
			Bool("api_key", e.APIKey != "").
			Msg("configured endpoint")
	}
}
