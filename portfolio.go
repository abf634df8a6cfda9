package aggregator

import (
	"math/big"
	"sort"
	"sync"
	"time"
)

// Portfolio is the aggregate root over a user's holdings. It is the only
// type that may mutate Assets; callers never reach into an Asset held by a
// Portfolio and change it without going through a Portfolio method, except
// for price enrichment which intentionally mutates in place (see
// internal/aggregation).
type Portfolio struct {
	mu          sync.Mutex
	id          string
	userID      string
	assets      map[string]*Asset
	sources     map[string]struct{}
	lastUpdated time.Time
}

// NewPortfolio creates an empty Portfolio for id/userID.
func NewPortfolio(id, userID string) *Portfolio {
	return &Portfolio{
		id:          id,
		userID:      userID,
		assets:      make(map[string]*Asset),
		sources:     make(map[string]struct{}),
		lastUpdated: time.Now(),
	}
}

func (p *Portfolio) ID() string     { return p.id }
func (p *Portfolio) UserID() string { return p.userID }

func (p *Portfolio) LastUpdated() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastUpdated
}

func (p *Portfolio) touch() { p.lastUpdated = time.Now() }

// AddAsset inserts a into the portfolio, merging it into any existing
// same-asset record per the reconciliation rule (I1: at most one live asset
// per asset-key).
func (p *Portfolio) AddAsset(a *Asset) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, existing := range p.assets {
		if SameAsset(existing, a) {
			merged, err := Merge(existing, a)
			if err != nil {
				return err
			}
			delete(p.assets, id)
			p.assets[merged.ID] = merged
			p.touch()
			return nil
		}
	}
	p.assets[a.ID] = a
	p.touch()
	return nil
}

// RemoveAsset deletes the asset with the given id. It reports whether an
// asset was actually removed.
func (p *Portfolio) RemoveAsset(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.assets[id]; !ok {
		return false
	}
	delete(p.assets, id)
	p.touch()
	return true
}

// AddSource records src as having contributed to this portfolio.
func (p *Portfolio) AddSource(src string) {
	if src == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources[src] = struct{}{}
	p.touch()
}

// Sources returns the sorted list of contributing source ids.
func (p *Portfolio) Sources() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sources))
	for s := range p.sources {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// MergePortfolio folds every asset and source of other into p.
func (p *Portfolio) MergePortfolio(other *Portfolio) error {
	if other == nil {
		return nil
	}
	for _, a := range other.Assets() {
		if err := p.AddAsset(a); err != nil {
			return err
		}
	}
	for _, s := range other.Sources() {
		p.AddSource(s)
	}
	return nil
}

// Reconcile re-groups the current assets by asset-key, merging any
// collisions. It is idempotent: reconciling an already-reconciled
// portfolio leaves its assets unchanged (last-updated is still bumped).
func (p *Portfolio) Reconcile() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	current := make([]*Asset, 0, len(p.assets))
	for _, a := range p.assets {
		current = append(current, a)
	}
	merged, err := Reconcile(current)
	if err != nil {
		return err
	}
	newAssets := make(map[string]*Asset, len(merged))
	for _, a := range merged {
		newAssets[a.ID] = a
	}
	p.assets = newAssets
	p.touch()
	return nil
}

// Assets returns the live asset pointers held by the portfolio. Callers
// that mutate a returned Asset bypass the portfolio's own bookkeeping
// (see Touch).
func (p *Portfolio) Assets() []*Asset {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Asset, 0, len(p.assets))
	for _, a := range p.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetAssetsByChain filters the held assets by chain tag.
func (p *Portfolio) GetAssetsByChain(chain string) []*Asset {
	var out []*Asset
	for _, a := range p.Assets() {
		if a.Chain == chain {
			out = append(out, a)
		}
	}
	return out
}

// GetAssetsByType filters the held assets by AssetType.
func (p *Portfolio) GetAssetsByType(t AssetType) []*Asset {
	var out []*Asset
	for _, a := range p.Assets() {
		if a.Type == t {
			out = append(out, a)
		}
	}
	return out
}

// GetTotalValue sums the value of every asset priced in currency. Assets
// with no price, or priced in a different currency, are skipped rather
// than erroring.
func (p *Portfolio) GetTotalValue(currency string) Money {
	total := new(big.Rat)
	for _, a := range p.Assets() {
		if a.Price == nil || a.Price.Currency != currency {
			continue
		}
		v, ok := a.Value()
		if !ok {
			continue
		}
		total.Add(total, v.Amount())
	}
	m, _ := NewMoney(total, currency)
	return m
}

// IsEmpty reports whether the portfolio holds no assets.
func (p *Portfolio) IsEmpty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.assets) == 0
}

// Clear drops every asset and source.
func (p *Portfolio) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.assets = make(map[string]*Asset)
	p.sources = make(map[string]struct{})
	p.touch()
}

// Touch bumps last-updated, for callers that mutate an Asset returned by
// Assets() directly (e.g. price enrichment) instead of through AddAsset.
func (p *Portfolio) Touch() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touch()
}

// AssetSnapshot is the persisted/JSON shape of an Asset. Unlike Asset
// itself it carries no derived value field: value is always recomputed
// from balance * price on read.
type AssetSnapshot struct {
	ID              string    `json:"id"`
	Symbol          string    `json:"symbol"`
	Name            string    `json:"name,omitempty"`
	Type            AssetType `json:"type"`
	Chain           string    `json:"chain,omitempty"`
	ContractAddress string    `json:"contractAddress,omitempty"`
	ImageURL        string    `json:"imageUrl,omitempty"`
	Balance         Balance   `json:"balance"`
	Price           *Price    `json:"price,omitempty"`
	Metadata        Metadata  `json:"metadata"`
}

// MoneySnapshot is the persisted/JSON shape of a Money value.
type MoneySnapshot struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

// PortfolioSnapshot is the persisted/JSON shape of a Portfolio.
type PortfolioSnapshot struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId,omitempty"`
	Assets      []AssetSnapshot `json:"assets"`
	TotalValue  MoneySnapshot   `json:"totalValue"`
	Sources     []string        `json:"sources"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

// snapshotCurrency is the currency used to compute a snapshot's totalValue
// when the caller doesn't otherwise care which one. Real deployments with
// a multi-currency valuator should read totals per-currency directly via
// GetTotalValue instead of relying on this default.
const snapshotCurrency = "USD"

// Snapshot renders the portfolio into its persisted/JSON shape.
func (p *Portfolio) Snapshot() PortfolioSnapshot {
	assets := p.Assets()
	snaps := make([]AssetSnapshot, 0, len(assets))
	for _, a := range assets {
		snaps = append(snaps, AssetSnapshot{
			ID:              a.ID,
			Symbol:          a.Symbol,
			Name:            a.Name,
			Type:            a.Type,
			Chain:           a.Chain,
			ContractAddress: a.ContractAddress,
			ImageURL:        a.ImageURL,
			Balance:         a.Balance,
			Price:           a.Price,
			Metadata:        a.Metadata,
		})
	}
	total := p.GetTotalValue(snapshotCurrency)
	return PortfolioSnapshot{
		ID:     p.id,
		UserID: p.userID,
		Assets: snaps,
		TotalValue: MoneySnapshot{
			Value:    total.FloatString(8),
			Currency: snapshotCurrency,
		},
		Sources:     p.Sources(),
		LastUpdated: p.LastUpdated(),
	}
}

// FromSnapshot reconstructs a Portfolio from its persisted shape.
func FromSnapshot(s PortfolioSnapshot) *Portfolio {
	p := NewPortfolio(s.ID, s.UserID)
	for _, as := range s.Assets {
		p.assets[as.ID] = &Asset{
			ID:              as.ID,
			Symbol:          as.Symbol,
			Name:            as.Name,
			Type:            as.Type,
			Chain:           as.Chain,
			ContractAddress: as.ContractAddress,
			ImageURL:        as.ImageURL,
			Balance:         as.Balance,
			Price:           as.Price,
			Metadata:        as.Metadata,
		}
	}
	for _, src := range s.Sources {
		p.sources[src] = struct{}{}
	}
	p.lastUpdated = s.LastUpdated
	return p
}
