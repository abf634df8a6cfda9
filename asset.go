package aggregator

import (
	"math/big"
	"strings"
	"time"
)

// AssetType classifies what an Asset represents.
type AssetType string

const (
	AssetTypeCrypto AssetType = "crypto"
	AssetTypeToken  AssetType = "token"
	AssetTypeNFT    AssetType = "nft"
	AssetTypeStock  AssetType = "stock"
	AssetTypeOption AssetType = "option"
	AssetTypeDeFi   AssetType = "defi"
)

// SourceType ranks the provenance of an asset record for merge precedence.
// Lower rank wins ties: on-chain < dex < cex < manual < unknown.
type SourceType string

const (
	SourceTypeOnChain SourceType = "onchain"
	SourceTypeDEX     SourceType = "dex"
	SourceTypeCEX     SourceType = "cex"
	SourceTypeManual  SourceType = "manual"
)

func (s SourceType) precedenceRank() int {
	switch s {
	case SourceTypeOnChain:
		return 1
	case SourceTypeDEX:
		return 2
	case SourceTypeCEX:
		return 3
	case SourceTypeManual:
		return 4
	default:
		return 5
	}
}

// Balance is a non-negative token quantity at a fixed decimal precision.
type Balance struct {
	Amount    *big.Rat
	Decimals  int
	Formatted string
}

// NewBalance validates amount and decimals and produces the cached display form.
func NewBalance(amount *big.Rat, decimals int) (Balance, error) {
	if amount == nil {
		return Balance{}, NewInvalidInput("balance.amount", "must not be nil")
	}
	if amount.Sign() < 0 {
		return Balance{}, NewInvalidInput("balance.amount", "must be non-negative")
	}
	if decimals < 0 {
		return Balance{}, NewInvalidInput("balance.decimals", "must be non-negative")
	}
	a := new(big.Rat).Set(amount)
	return Balance{Amount: a, Decimals: decimals, Formatted: a.FloatString(decimals)}, nil
}

// Add sums two balances, keeping the receiver's decimal precision.
func (b Balance) Add(other Balance) Balance {
	sum := new(big.Rat).Add(b.Amount, other.Amount)
	out, _ := NewBalance(sum, b.Decimals)
	return out
}

// Price is a point-in-time valuation of one unit of an asset in a currency.
type Price struct {
	Value     *big.Rat
	Currency  string
	Timestamp time.Time
	Source    string
}

// Metadata is the provenance envelope carried by every Asset. Extra holds
// host-specific fields that don't warrant a first-class field here.
type Metadata struct {
	Provider   string
	FetchedAt  time.Time
	SourceType SourceType
	MergedFrom []string
	Extra      map[string]string
}

// Asset is an entity: holdings of one fungible or non-fungible instrument,
// identified by its own ID but compared for merge purposes via AssetKey.
type Asset struct {
	ID              string
	Symbol          string
	Name            string
	Type            AssetType
	Chain           string
	ContractAddress string
	ImageURL        string
	Balance         Balance
	Price           *Price
	Metadata        Metadata
}

// AssetParams is the constructor input for NewAsset.
type AssetParams struct {
	ID              string
	Symbol          string
	Name            string
	Type            AssetType
	Chain           string
	ContractAddress string
	ImageURL        string
	Balance         Balance
	Price           *Price
	Metadata        Metadata
}

// NewAsset validates and normalizes params into an Asset. Symbol is
// normalized to uppercase; it must be non-empty after trimming.
func NewAsset(p AssetParams) (*Asset, error) {
	symbol := strings.ToUpper(strings.TrimSpace(p.Symbol))
	if symbol == "" {
		return nil, NewInvalidInput("symbol", "must not be empty")
	}
	if p.ID == "" {
		return nil, NewInvalidInput("id", "must not be empty")
	}
	if p.Balance.Amount == nil {
		return nil, NewInvalidInput("balance", "must be set")
	}
	return &Asset{
		ID:              p.ID,
		Symbol:          symbol,
		Name:            p.Name,
		Type:            p.Type,
		Chain:           p.Chain,
		ContractAddress: p.ContractAddress,
		ImageURL:        p.ImageURL,
		Balance:         p.Balance,
		Price:           p.Price,
		Metadata:        p.Metadata,
	}, nil
}

// Value returns balance * price, or false if no price is attached.
func (a *Asset) Value() (Money, bool) {
	if a.Price == nil {
		return Money{}, false
	}
	amount := new(big.Rat).Mul(a.Balance.Amount, a.Price.Value)
	m, err := NewMoney(amount, a.Price.Currency)
	if err != nil {
		return Money{}, false
	}
	return m, true
}

// UpdatePrice replaces the asset's price point.
func (a *Asset) UpdatePrice(p Price) error {
	if p.Value == nil || p.Currency == "" {
		return NewInvalidInput("price", "must carry a value and currency")
	}
	a.Price = &p
	return nil
}

// UpdateBalance replaces the asset's balance.
func (a *Asset) UpdateBalance(b Balance) error {
	if b.Amount == nil || b.Amount.Sign() < 0 {
		return NewInvalidInput("balance", "must be non-negative")
	}
	a.Balance = b
	return nil
}

// Key derives the asset-key used for same-asset grouping during
// reconciliation: chain, normalized symbol, and contract address (or
// "native" when none is set).
func (a *Asset) Key() string {
	chain := a.Chain
	if chain == "" {
		chain = "unknown"
	}
	contract := "native"
	if a.ContractAddress != "" {
		contract = strings.ToLower(a.ContractAddress)
	}
	return chain + ":" + a.Symbol + ":" + contract
}
