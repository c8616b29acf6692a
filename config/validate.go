package config

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fwojciec/llmux"
)

var thinkingLevels = map[string]bool{"off": true, "low": true, "medium": true, "high": true}

// Validate checks the configuration for errors. Every returned error wraps
// llmux.ErrValidation.
func (c *Config) Validate() error {
	seen := make(map[string]bool)
	for i, e := range c.Endpoints {
		switch {
		case e.Name == "":
			return fmt.Errorf("endpoints[%d]: name is required: %w", i, llmux.ErrValidation)
		case strings.Contains(e.Name, "/"):
			return fmt.Errorf("endpoints[%d]: name %q must not contain '/': %w", i, e.Name, llmux.ErrValidation)
		case seen[e.Name]:
			return fmt.Errorf("endpoints[%d]: duplicate name %q: %w", i, e.Name, llmux.ErrValidation)
		}
		seen[e.Name] = true

		switch e.Kind {
		case KindAnthropic, KindGemini, KindOpenAI:
		default:
			return fmt.Errorf("endpoints[%d]: kind must be one of %q, %q, %q, got %q: %w",
				i, KindAnthropic, KindGemini, KindOpenAI, e.Kind, llmux.ErrValidation)
		}
		if e.SkipDiscovery && len(e.Models) == 0 {
			return fmt.Errorf("endpoints[%d]: skipDiscovery requires models: %w", i, llmux.ErrValidation)
		}
	}

	for i, r := range c.Capabilities {
		if err := validatePattern(r.Pattern); err != nil {
			return fmt.Errorf("capabilities[%d]: %w", i, err)
		}
		if r.ContextWindow < 0 || r.MaxOutputTokens < 0 {
			return fmt.Errorf("capabilities[%d]: token limits must be non-negative: %w", i, llmux.ErrValidation)
		}
	}

	for i, r := range c.Overrides {
		if err := validatePattern(r.Pattern); err != nil {
			return fmt.Errorf("overrides[%d]: %w", i, err)
		}
		if r.ThinkingLevel != nil && !thinkingLevels[*r.ThinkingLevel] {
			return fmt.Errorf("overrides[%d]: thinkingLevel must be off, low, medium or high, got %q: %w",
				i, *r.ThinkingLevel, llmux.ErrValidation)
		}
		if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
			return fmt.Errorf("overrides[%d]: temperature must be in [0, 2], got %g: %w",
				i, *r.Temperature, llmux.ErrValidation)
		}
	}
	return nil
}

func validatePattern(pattern string) error {
	if pattern == "" {
		return fmt.Errorf("pattern is required: %w", llmux.ErrValidation)
	}
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("invalid pattern %q: %w", pattern, llmux.ErrValidation)
	}
	return nil
}
