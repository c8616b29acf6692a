// Package discovery lists the models served by every configured endpoint.
package discovery

import (
	"context"
	"fmt"

	"github.com/fwojciec/llmux"
	"github.com/fwojciec/llmux/config"
	"golang.org/x/sync/errgroup"
)

// Discover lists the models of every endpoint in cfg concurrently. Listers
// are looked up by endpoint name; endpoints with no lister, or with
// skipDiscovery set, contribute only their configured models.
//
// Models are returned in endpoint order, listed models first, with IDs of
// the form "<endpoint>/<model>". Configured capabilities are laid over what
// the provider reported. The first listing error cancels the rest and is
// returned naming its endpoint.
func Discover(ctx context.Context, cfg *config.Config, listers map[string]llmux.ModelLister) ([]llmux.Model, error) {
	listed := make([][]llmux.Model, len(cfg.Endpoints))

	g, ctx := errgroup.WithContext(ctx)
	for i, e := range cfg.Endpoints {
		lister := listers[e.Name]
		if lister == nil || e.SkipDiscovery {
			continue
		}
		g.Go(func() error {
			models, err := lister.ListModels(ctx)
			if err != nil {
				return fmt.Errorf("discovery: endpoint %q: %w", e.Name, err)
			}
			listed[i] = models
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []llmux.Model
	for i, e := range cfg.Endpoints {
		seen := make(map[string]bool)
		for _, m := range listed[i] {
			if m.Name == "" || seen[m.Name] {
				continue
			}
			seen[m.Name] = true
			out = append(out, enrich(cfg, e.Name, m))
		}
		for _, name := range e.Models {
			if seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, enrich(cfg, e.Name, llmux.Model{Name: name}))
		}
	}
	return out, nil
}

func enrich(cfg *config.Config, endpoint string, m llmux.Model) llmux.Model {
	m.Endpoint = endpoint
	m.ID = endpoint + "/" + m.Name
	if caps, ok := cfg.CapabilitiesFor(m.ID); ok {
		m.Capabilities = overlay(m.Capabilities, caps)
	}
	return m
}

// overlay applies the non-zero fields of cfg on top of reported.
func overlay(reported, cfg llmux.Capabilities) llmux.Capabilities {
	out := reported
	out.Reasoning = out.Reasoning || cfg.Reasoning
	out.ToolCalling = out.ToolCalling || cfg.ToolCalling
	out.Vision = out.Vision || cfg.Vision
	if cfg.ContextWindow > 0 {
		out.ContextWindow = cfg.ContextWindow
	}
	if cfg.MaxOutputTokens > 0 {
		out.MaxOutputTokens = cfg.MaxOutputTokens
	}
	return out
}
