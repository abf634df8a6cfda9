package aggregator

import (
	"context"
	"math/big"
	"time"
)

// Provider is the boundary to an external data source (an on-chain RPC
// endpoint, a centralized exchange, a brokerage API). Adapters translate
// raw responses into domain Assets; the core never parses provider wire
// formats itself.
type Provider interface {
	// Source returns the provider's stable identifier, e.g. "evm", "solana".
	Source() string
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	FetchAssets(ctx context.Context, addresses []string) ([]*Asset, error)
}

// UpdateSubscriber is an optional Provider capability for push-based
// balance/price updates. Adapters that can't support it simply don't
// implement it; callers type-assert for it.
type UpdateSubscriber interface {
	SubscribeToUpdates(ctx context.Context, addresses []string, onUpdate func(*Asset)) (unsubscribe func(), err error)
}

// Transaction is a minimal on-chain or brokerage transfer record, exposed
// by providers that support transaction history.
type Transaction struct {
	Hash      string
	From      string
	To        string
	Amount    *big.Rat
	Symbol    string
	Timestamp time.Time
}

// TransactionFetcher is an optional Provider capability for transaction
// history retrieval.
type TransactionFetcher interface {
	FetchTransactions(ctx context.Context, addresses []string) ([]Transaction, error)
}

// PortfolioRepository persists and retrieves Portfolio aggregates.
// FindByID and FindByUserID return ErrPortfolioNotFound when no record
// exists; they never return a nil portfolio with a nil error.
type PortfolioRepository interface {
	Save(ctx context.Context, p *Portfolio) error
	FindByID(ctx context.Context, id string) (*Portfolio, error)
	FindByUserID(ctx context.Context, userID string) (*Portfolio, error)
	Delete(ctx context.Context, id string) error
	Exists(ctx context.Context, id string) (bool, error)
}

// Valuator prices assets and converts between currencies. Concrete prices
// are host-supplied and non-normative to the core's invariants.
type Valuator interface {
	GetPrice(ctx context.Context, symbol, currency string) (Price, error)
	GetBatchPrices(ctx context.Context, symbols []string, currency string) (map[string]Price, error)
	ConvertValue(ctx context.Context, amount *big.Rat, from, to string) (*big.Rat, error)
	InvalidateCache(symbols []string) error
}

// AddressSource is AddressRegistry enum for how an address entry arrived.
type AddressSource string

const (
	AddressSourceManual     AddressSource = "manual"
	AddressSourceWallet     AddressSource = "wallet"
	AddressSourceDiscovered AddressSource = "discovered"
)

// AddressEntry is a single tracked address under the Address Registry.
type AddressEntry struct {
	Chain   string
	Address string
	Label   string
	Tags    []string
	Source  AddressSource
	AddedAt time.Time
}

// AddressRepository persists AddressEntry records for the Address Registry.
type AddressRepository interface {
	Save(ctx context.Context, entry AddressEntry) error
	Remove(ctx context.Context, chain, address string) error
	Update(ctx context.Context, entry AddressEntry) error
	FindByChain(ctx context.Context, chain string) ([]AddressEntry, error)
	FindByLabel(ctx context.Context, label string) ([]AddressEntry, error)
	FindAll(ctx context.Context) ([]AddressEntry, error)
	Clear(ctx context.Context) error
}
