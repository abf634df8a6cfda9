// Package aggregation implements the Aggregation Service: it fans out to
// every registered provider relevant to the requested addresses, merges
// results into a Portfolio, enriches prices, and persists the outcome.
// It is an independent call path from the Sync Orchestrator: it never
// routes through it.
package aggregation

import (
	"context"
	"fmt"
	"sync"
	"time"

	aggregator "github.com/nyxfolio/portfolio-aggregator"
	"github.com/nyxfolio/portfolio-aggregator/internal/eventbus"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// AddressSource optionally supplies the tracked addresses for a chain,
// used by RefreshPortfolio to reconstruct fetch parameters for an
// already-aggregated portfolio. When nil, RefreshPortfolio falls back to
// using each distinct chain name already present on the portfolio as its
// own single-element address list.
type AddressSource interface {
	GetAddresses(ctx context.Context, chain string) ([]aggregator.AddressEntry, error)
}

// Params are the inputs to AggregatePortfolio.
type Params struct {
	Addresses    map[string][]string // chain -> addresses
	Sources      []string            // provider ids to use; empty means all registered
	UserID       string
	ForceRefresh bool
}

// Service is the Aggregation Service.
type Service struct {
	mu        sync.Mutex
	providers map[string]aggregator.Provider
	repo      aggregator.PortfolioRepository
	valuator  aggregator.Valuator
	addresses AddressSource
	bus       *eventbus.Bus
	log       logrus.FieldLogger
	cacheTTL  time.Duration
}

// New builds a Service. valuator may be nil: price enrichment is then
// skipped. No AddressSource is set; see SetAddressSource.
func New(repo aggregator.PortfolioRepository, valuator aggregator.Valuator, bus *eventbus.Bus, log logrus.FieldLogger, cacheTTL time.Duration) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		providers: make(map[string]aggregator.Provider),
		repo:      repo,
		valuator:  valuator,
		bus:       bus,
		log:       log,
		cacheTTL:  cacheTTL,
	}
}

// RegisterProvider makes p available to AggregatePortfolio/RefreshPortfolio.
func (s *Service) RegisterProvider(p aggregator.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.Source()] = p
}

// SetAddressSource wires an optional tracked-address lookup used by
// RefreshPortfolio.
func (s *Service) SetAddressSource(src AddressSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addresses = src
}

// On subscribes h to events of type t on the service's bus, returning an
// unsubscribe function.
func (s *Service) On(t aggregator.EventType, h eventbus.Handler) func() {
	return s.bus.Subscribe(t, h)
}

// Off is a convenience wrapper that invokes the unsubscribe function
// returned by On.
func (s *Service) Off(unsubscribe func()) {
	if unsubscribe != nil {
		unsubscribe()
	}
}

func portfolioID(userID string) string {
	if userID != "" {
		return "portfolio_" + userID
	}
	return fmt.Sprintf("portfolio_%d", time.Now().UnixNano())
}

// relevantAddresses routes the address map down to what a given provider
// source cares about.
func relevantAddresses(source string, addresses map[string][]string) []string {
	switch source {
	case "evm":
		chains := []string{"ethereum", "polygon", "arbitrum", "optimism", "binance"}
		seen := make(map[string]struct{})
		var out []string
		for _, c := range chains {
			for _, a := range addresses[c] {
				if _, ok := seen[a]; ok {
					continue
				}
				seen[a] = struct{}{}
				out = append(out, a)
			}
		}
		return out
	case "solana":
		return dedupe(addresses["solana"])
	case "brokerage":
		return []string{"default"}
	default:
		return nil
	}
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	var out []string
	for _, v := range in {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// AggregatePortfolio fetches from every relevant provider in parallel,
// tolerating individual provider failures, reconciles the result,
// enriches prices, and persists it.
func (s *Service) AggregatePortfolio(ctx context.Context, params Params) (*aggregator.Portfolio, error) {
	id := portfolioID(params.UserID)

	if !params.ForceRefresh && s.repo != nil {
		if existing, err := s.repo.FindByID(ctx, id); err == nil && existing != nil {
			if time.Since(existing.LastUpdated()) < s.cacheTTL {
				return existing, nil
			}
		}
	}

	s.bus.Publish(ctx, aggregator.NewEvent(aggregator.EventPortfolioAggregationStarted, id, aggregator.PortfolioAggregationStartedPayload{
		PortfolioID: id, Sources: params.Sources, Addresses: params.Addresses,
	}))

	start := time.Now()
	portfolio := aggregator.NewPortfolio(id, params.UserID)

	targets := params.Sources
	s.mu.Lock()
	if len(targets) == 0 {
		for src := range s.providers {
			targets = append(targets, src)
		}
	}
	providers := make(map[string]aggregator.Provider, len(targets))
	for _, src := range targets {
		if p, ok := s.providers[src]; ok {
			providers[src] = p
		}
	}
	s.mu.Unlock()

	var grp errgroup.Group // sibling failures never cancel the others
	for src, provider := range providers {
		src, provider := src, provider
		addrs := relevantAddresses(src, params.Addresses)
		if len(addrs) == 0 {
			continue
		}
		grp.Go(func() error {
			if err := s.fetchAndMerge(ctx, portfolio, provider, addrs); err != nil {
				s.log.WithError(err).WithField("provider", src).Warn("provider fetch failed")
				s.bus.Publish(ctx, aggregator.NewEvent(aggregator.EventIntegrationSourceFailed, id, aggregator.IntegrationEventPayload{
					Source: src, Err: err.Error(),
				}))
			}
			return nil
		})
	}
	_ = grp.Wait()

	s.bus.Publish(ctx, aggregator.NewEvent(aggregator.EventPortfolioReconciliationStarted, id, aggregator.PortfolioReconciliationPayload{
		PortfolioID: id, AssetCount: len(portfolio.Assets()),
	}))
	if err := portfolio.Reconcile(); err != nil {
		s.bus.Publish(ctx, aggregator.NewEvent(aggregator.EventPortfolioAggregationFailed, id, aggregator.PortfolioAggregationFailedPayload{PortfolioID: id, Err: err.Error()}))
		return nil, fmt.Errorf("aggregation: reconcile: %w: %w", err, aggregator.ErrAggregationFatal)
	}
	s.bus.Publish(ctx, aggregator.NewEvent(aggregator.EventPortfolioReconciliationComplete, id, aggregator.PortfolioReconciliationPayload{
		PortfolioID: id, AssetCount: len(portfolio.Assets()),
	}))

	s.enrichPrices(ctx, portfolio)

	if s.repo != nil {
		if err := s.repo.Save(ctx, portfolio); err != nil {
			s.bus.Publish(ctx, aggregator.NewEvent(aggregator.EventPortfolioAggregationFailed, id, aggregator.PortfolioAggregationFailedPayload{PortfolioID: id, Err: err.Error()}))
			return nil, fmt.Errorf("aggregation: save: %w: %w", err, aggregator.ErrAggregationFatal)
		}
	}

	s.bus.Publish(ctx, aggregator.NewEvent(aggregator.EventPortfolioAggregationCompleted, id, aggregator.PortfolioAggregationCompletedPayload{
		PortfolioID: id,
		AssetCount:  len(portfolio.Assets()),
		TotalValue:  portfolio.GetTotalValue("USD"),
		Duration:    time.Since(start),
	}))
	return portfolio, nil
}

func (s *Service) fetchAndMerge(ctx context.Context, portfolio *aggregator.Portfolio, provider aggregator.Provider, addrs []string) error {
	if !provider.IsConnected() {
		if err := provider.Connect(ctx); err != nil {
			return aggregator.NewProviderFailure(provider.Source(), err)
		}
		s.bus.Publish(ctx, aggregator.NewEvent(aggregator.EventIntegrationSourceConnected, portfolio.ID(), aggregator.IntegrationEventPayload{Source: provider.Source()}))
	}
	assets, err := provider.FetchAssets(ctx, addrs)
	if err != nil {
		return aggregator.NewProviderFailure(provider.Source(), err)
	}
	s.bus.Publish(ctx, aggregator.NewEvent(aggregator.EventIntegrationDataFetched, portfolio.ID(), aggregator.IntegrationEventPayload{Source: provider.Source()}))
	for _, a := range assets {
		before := len(portfolio.Assets())
		if err := portfolio.AddAsset(a); err != nil {
			return err
		}
		if len(portfolio.Assets()) == before {
			s.bus.Publish(ctx, aggregator.NewEvent(aggregator.EventAssetMerged, portfolio.ID(), aggregator.AssetMergedPayload{
				PortfolioID: portfolio.ID(), AssetID: a.ID, MergedFrom: a.Metadata.MergedFrom,
			}))
		} else {
			s.bus.Publish(ctx, aggregator.NewEvent(aggregator.EventAssetAddedToPortfolio, portfolio.ID(), aggregator.AssetAddedPayload{
				PortfolioID: portfolio.ID(), AssetID: a.ID,
			}))
		}
	}
	portfolio.AddSource(provider.Source())
	return nil
}

// enrichPrices fills in current prices for every distinct symbol held,
// logging but not failing on valuator errors.
func (s *Service) enrichPrices(ctx context.Context, portfolio *aggregator.Portfolio) {
	if s.valuator == nil {
		return
	}
	assets := portfolio.Assets()
	symbolSet := make(map[string]struct{}, len(assets))
	var symbols []string
	for _, a := range assets {
		if _, ok := symbolSet[a.Symbol]; ok {
			continue
		}
		symbolSet[a.Symbol] = struct{}{}
		symbols = append(symbols, a.Symbol)
	}
	if len(symbols) == 0 {
		return
	}

	prices, err := s.valuator.GetBatchPrices(ctx, symbols, "USD")
	if err != nil {
		s.log.WithError(err).Warn("price enrichment failed")
		return
	}
	for _, a := range assets {
		price, ok := prices[a.Symbol]
		if !ok {
			continue
		}
		if err := a.UpdatePrice(price); err != nil {
			continue
		}
		s.bus.Publish(ctx, aggregator.NewEvent(aggregator.EventAssetPriceUpdated, portfolio.ID(), aggregator.AssetPriceUpdatedPayload{
			PortfolioID: portfolio.ID(), AssetID: a.ID, Price: price,
		}))
	}
	portfolio.Touch()
}

// GetPortfolio returns the persisted portfolio for id, or
// aggregator.ErrPortfolioNotFound if it doesn't exist.
func (s *Service) GetPortfolio(ctx context.Context, id string) (*aggregator.Portfolio, error) {
	if s.repo == nil {
		return nil, aggregator.ErrPortfolioNotFound
	}
	return s.repo.FindByID(ctx, id)
}

// RefreshPortfolio reconstructs an address map from the portfolio's
// currently-held chains and re-runs AggregatePortfolio with ForceRefresh.
func (s *Service) RefreshPortfolio(ctx context.Context, id string) (*aggregator.Portfolio, error) {
	existing, err := s.GetPortfolio(ctx, id)
	if err != nil {
		return nil, err
	}

	chains := make(map[string]struct{})
	for _, a := range existing.Assets() {
		if a.Chain != "" {
			chains[a.Chain] = struct{}{}
		}
	}

	addresses := make(map[string][]string, len(chains))
	for chain := range chains {
		if s.addresses != nil {
			entries, err := s.addresses.GetAddresses(ctx, chain)
			if err == nil && len(entries) > 0 {
				for _, e := range entries {
					addresses[chain] = append(addresses[chain], e.Address)
				}
				continue
			}
		}
		addresses[chain] = []string{chain}
	}

	return s.AggregatePortfolio(ctx, Params{
		Addresses:    addresses,
		UserID:       existing.UserID(),
		ForceRefresh: true,
	})
}
