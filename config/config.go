// Package config loads the endpoint, capability and per-model override
// configuration used by discovery, the router and the CLI.
//
// Configuration is layered:
//  1. Built-in defaults
//  2. YAML config file
//  3. API keys resolved from the environment (apiKeyEnv)
//  4. Validation
//
// Model patterns are doublestar globs matched against "<endpoint>/<model>".
// A single * does not cross a slash, so "**" matches every model.
package config

import (
	"github.com/bmatcuk/doublestar/v4"
	"github.com/fwojciec/llmux"
)

// Endpoint kinds.
const (
	KindAnthropic = "anthropic"
	KindGemini    = "gemini"
	KindOpenAI    = "openai"
)

// Config holds all configuration.
type Config struct {
	Endpoints    []Endpoint       `yaml:"endpoints"`
	Capabilities []CapabilityRule `yaml:"capabilities"`
	Overrides    []OverrideRule   `yaml:"overrides"`
}

// Endpoint is one configured upstream API.
type Endpoint struct {
	Name      string `yaml:"name"`      // referenced as the "<name>/" prefix of model IDs
	Kind      string `yaml:"kind"`      // anthropic, gemini or openai
	BaseURL   string `yaml:"baseURL"`   // optional, kind default when empty
	APIKey    string `yaml:"apiKey"`    // optional
	APIKeyEnv string `yaml:"apiKeyEnv"` // env var read when apiKey is empty
	// Models are served in addition to whatever the endpoint lists itself.
	Models []string `yaml:"models"`
	// SkipDiscovery serves only Models without calling the list endpoint.
	SkipDiscovery bool `yaml:"skipDiscovery"`
}

// CapabilityRule attaches capabilities to every model matching Pattern.
type CapabilityRule struct {
	Pattern            string `yaml:"pattern"`
	llmux.Capabilities `yaml:",inline"`
}

// OverrideRule applies a ModelOverride to every model matching Pattern.
type OverrideRule struct {
	Pattern             string `yaml:"pattern"`
	llmux.ModelOverride `yaml:",inline"`
}

// Defaults returns the built-in configuration: no endpoints and no rules.
func Defaults() Config {
	return Config{}
}

// Endpoint returns the endpoint with the given name.
func (c *Config) Endpoint(name string) (Endpoint, bool) {
	for _, e := range c.Endpoints {
		if e.Name == name {
			return e, true
		}
	}
	return Endpoint{}, false
}

// Override resolves the override for modelID. Every matching rule applies
// in declaration order, so later rules win field by field.
func (c *Config) Override(modelID string) llmux.ModelOverride {
	var o llmux.ModelOverride
	for _, r := range c.Overrides {
		if match(r.Pattern, modelID) {
			o = o.Merge(r.ModelOverride)
		}
	}
	return o
}

// CapabilitiesFor returns the capabilities of the first rule matching modelID.
func (c *Config) CapabilitiesFor(modelID string) (llmux.Capabilities, bool) {
	for _, r := range c.Capabilities {
		if match(r.Pattern, modelID) {
			return r.Capabilities, true
		}
	}
	return llmux.Capabilities{}, false
}

// Patterns are checked by Validate, so a match error only means no match.
func match(pattern, modelID string) bool {
	ok, err := doublestar.Match(pattern, modelID)
	return err == nil && ok
}
