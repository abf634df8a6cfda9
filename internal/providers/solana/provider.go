// Package solana is a minimal reference Provider: it returns an
// injectable, canned asset list rather than calling a live RPC node.
// It exists so the Aggregation Service's chain-routing logic has a
// real non-EVM implementation to exercise in tests and in cmd/demo.
package solana

import (
	"context"
	"math/big"
	"sync"
	"time"

	aggregator "github.com/nyxfolio/portfolio-aggregator"
)

// Fetcher supplies the assets held at one Solana address. Tests and the
// demo host inject a fake; production hosts would inject an RPC-backed
// implementation.
type Fetcher func(ctx context.Context, address string) ([]*aggregator.Asset, error)

// Provider implements aggregator.Provider for Solana addresses.
type Provider struct {
	fetch func(ctx context.Context, address string) ([]*aggregator.Asset, error)

	mu        sync.Mutex
	connected bool
}

// New builds a Provider. fetch may be nil to fall back to DefaultFetcher.
func New(fetch Fetcher) *Provider {
	if fetch == nil {
		fetch = DefaultFetcher
	}
	return &Provider{fetch: fetch}
}

// DefaultFetcher returns one SOL balance placeholder asset, useful for
// demos that have no live RPC endpoint configured.
func DefaultFetcher(ctx context.Context, address string) ([]*aggregator.Asset, error) {
	balance, err := aggregator.NewBalance(big.NewRat(1, 1), 9)
	if err != nil {
		return nil, err
	}
	asset, err := aggregator.NewAsset(aggregator.AssetParams{
		ID:      "solana:" + address,
		Symbol:  "SOL",
		Type:    aggregator.AssetTypeCrypto,
		Chain:   "solana",
		Balance: balance,
		Metadata: aggregator.Metadata{
			Provider:   "solana",
			FetchedAt:  time.Now(),
			SourceType: aggregator.SourceTypeOnChain,
		},
	})
	if err != nil {
		return nil, err
	}
	return []*aggregator.Asset{asset}, nil
}

func (p *Provider) Source() string { return "solana" }

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

func (p *Provider) FetchAssets(ctx context.Context, addresses []string) ([]*aggregator.Asset, error) {
	var out []*aggregator.Asset
	for _, addr := range addresses {
		assets, err := p.fetch(ctx, addr)
		if err != nil {
			return nil, aggregator.NewProviderFailure("solana", err)
		}
		out = append(out, assets...)
	}
	return out, nil
}
