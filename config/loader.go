package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file at path and returns the validated configuration.
// API keys named by apiKeyEnv are read from the process environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg, err := Parse(data, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Defaults, resolves API keys through getenv
// and validates the result.
func Parse(data []byte, getenv func(string) string) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}
	resolveAPIKeys(&cfg, getenv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolveAPIKeys fills empty API keys from their apiKeyEnv variable. An
// explicit apiKey always wins.
func resolveAPIKeys(cfg *Config, getenv func(string) string) {
	for i := range cfg.Endpoints {
		e := &cfg.Endpoints[i]
		if e.APIKey == "" && e.APIKeyEnv != "" {
			e.APIKey = getenv(e.APIKeyEnv)
		}
	}
}
