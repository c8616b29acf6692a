// Package mock provides test doubles for llmux interfaces using function fields.
package mock

import (
	"context"

	"github.com/fwojciec/llmux"
)

// Interface compliance checks.
var (
	_ llmux.Provider    = (*Provider)(nil)
	_ llmux.ModelLister = (*Provider)(nil)
)

// Provider is a test double for llmux.Provider and llmux.ModelLister.
// Set StreamFn before calling Stream and ListModelsFn before calling
// ListModels.
type Provider struct {
	StreamFn     func(ctx context.Context, req llmux.Request) (llmux.Stream, error)
	ListModelsFn func(ctx context.Context) ([]llmux.Model, error)
}

// Stream delegates to StreamFn.
func (p *Provider) Stream(ctx context.Context, req llmux.Request) (llmux.Stream, error) {
	return p.StreamFn(ctx, req)
}

// ListModels delegates to ListModelsFn.
func (p *Provider) ListModels(ctx context.Context) ([]llmux.Model, error) {
	return p.ListModelsFn(ctx)
}
