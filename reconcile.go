package aggregator

import (
	"fmt"
	"math/big"
	"strings"
)

// SameAsset reports whether a and b refer to the same underlying holding:
// same chain, and either matching contract addresses (case-insensitive) or,
// when neither carries a contract address, matching symbols. An asset with
// a contract address never matches one without.
func SameAsset(a, b *Asset) bool {
	if a.Chain != b.Chain {
		return false
	}
	aHas := a.ContractAddress != ""
	bHas := b.ContractAddress != ""
	switch {
	case aHas && bHas:
		return strings.EqualFold(a.ContractAddress, b.ContractAddress)
	case !aHas && !bHas:
		return strings.EqualFold(a.Symbol, b.Symbol)
	default:
		return false
	}
}

// Merge combines two same-asset records into one, per the deterministic
// merge rule: the source with the lower provenance rank wins field
// precedence (on-chain < dex < cex < manual < unknown); ties favor a.
// Balances always sum; the newer-fetched price wins; merged-from is
// append-only.
func Merge(a, b *Asset) (*Asset, error) {
	if !SameAsset(a, b) {
		return nil, fmt.Errorf("merge %s and %s: %w", a.ID, b.ID, ErrDifferentAssetsMerged)
	}

	preferred, other := a, b
	if b.Metadata.SourceType.precedenceRank() < a.Metadata.SourceType.precedenceRank() {
		preferred, other = b, a
	}

	mergedAmount := new(big.Rat).Add(a.Balance.Amount, b.Balance.Amount)
	balance, err := NewBalance(mergedAmount, preferred.Balance.Decimals)
	if err != nil {
		return nil, err
	}

	merged := &Asset{
		ID:              preferred.ID,
		Symbol:          preferred.Symbol,
		Type:            preferred.Type,
		Chain:           preferred.Chain,
		Name:            firstNonEmpty(preferred.Name, other.Name),
		ContractAddress: firstNonEmpty(preferred.ContractAddress, other.ContractAddress),
		ImageURL:        firstNonEmpty(preferred.ImageURL, other.ImageURL),
		Balance:         balance,
		Price:           pickRecentPrice(a, b),
		Metadata:        mergeMetadata(preferred, other),
	}
	return merged, nil
}

func pickRecentPrice(a, b *Asset) *Price {
	switch {
	case a.Price == nil && b.Price == nil:
		return nil
	case a.Price != nil && b.Price == nil:
		return a.Price
	case a.Price == nil && b.Price != nil:
		return b.Price
	default:
		if b.Metadata.FetchedAt.After(a.Metadata.FetchedAt) {
			return b.Price
		}
		return a.Price
	}
}

func mergeMetadata(preferred, other *Asset) Metadata {
	m := preferred.Metadata
	mergedFrom := make([]string, 0, len(preferred.Metadata.MergedFrom)+len(other.Metadata.MergedFrom)+1)
	mergedFrom = append(mergedFrom, preferred.Metadata.MergedFrom...)
	mergedFrom = append(mergedFrom, other.Metadata.MergedFrom...)
	if other.Metadata.Provider != "" {
		mergedFrom = append(mergedFrom, other.Metadata.Provider)
	}
	m.MergedFrom = mergedFrom
	return m
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Reconcile groups assets by asset-key and merges each group down to a
// single record, preserving first-seen order. It never drops an asset
// silently: the result length is always <= len(assets).
func Reconcile(assets []*Asset) ([]*Asset, error) {
	groups := make(map[string]*Asset, len(assets))
	order := make([]string, 0, len(assets))
	for _, a := range assets {
		key := a.Key()
		existing, ok := groups[key]
		if !ok {
			groups[key] = a
			order = append(order, key)
			continue
		}
		merged, err := Merge(existing, a)
		if err != nil {
			return nil, err
		}
		groups[key] = merged
	}
	result := make([]*Asset, 0, len(order))
	for _, k := range order {
		result = append(result, groups[k])
	}
	return result, nil
}
