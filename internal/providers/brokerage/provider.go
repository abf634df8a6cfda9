// Package brokerage is a minimal reference Provider for traditional
// brokerage-style holdings (equities, options). Like the solana
// package, it has no network dependency of its own: it delegates to an
// injected Fetcher so hosts can plug in a real brokerage API client.
package brokerage

import (
	"context"
	"sync"

	aggregator "github.com/nyxfolio/portfolio-aggregator"
)

// Fetcher supplies holdings for one brokerage account identifier.
type Fetcher func(ctx context.Context, accountID string) ([]*aggregator.Asset, error)

// Provider implements aggregator.Provider over brokerage accounts.
type Provider struct {
	fetch Fetcher

	mu        sync.Mutex
	connected bool
}

// New builds a Provider. A nil fetch always returns an empty holding
// list, useful as a safe default in cmd/demo.
func New(fetch Fetcher) *Provider {
	if fetch == nil {
		fetch = func(ctx context.Context, accountID string) ([]*aggregator.Asset, error) {
			return nil, nil
		}
	}
	return &Provider{fetch: fetch}
}

func (p *Provider) Source() string { return "brokerage" }

func (p *Provider) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

func (p *Provider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = false
	return nil
}

func (p *Provider) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *Provider) FetchAssets(ctx context.Context, accountIDs []string) ([]*aggregator.Asset, error) {
	var out []*aggregator.Asset
	for _, id := range accountIDs {
		assets, err := p.fetch(ctx, id)
		if err != nil {
			return nil, aggregator.NewProviderFailure("brokerage", err)
		}
		out = append(out, assets...)
	}
	return out, nil
}
