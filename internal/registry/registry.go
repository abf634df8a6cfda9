// Package registry implements the Address Registry: the canonical,
// validated store of addresses tracked per chain, backed by an injected
// aggregator.AddressRepository.
package registry

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	aggregator "github.com/nyxfolio/portfolio-aggregator"
	"github.com/nyxfolio/portfolio-aggregator/internal/eventbus"
)

// evmChains is the set of chains whose address format is validated via
// go-ethereum's hex-address rules.
var evmChains = map[string]struct{}{
	"ethereum": {},
	"polygon":  {},
	"arbitrum": {},
	"optimism": {},
	"binance":  {},
}

var (
	solanaAddressRe  = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
	bitcoinAddressRe = regexp.MustCompile(`^(1[1-9A-HJ-NP-Za-km-z]{25,34}|3[1-9A-HJ-NP-Za-km-z]{25,34}|bc1[0-9a-z]{25,59})$`)
)

// Registry validates, stores, and looks up tracked addresses.
type Registry struct {
	repo aggregator.AddressRepository
	bus  *eventbus.Bus
}

// New builds a Registry over repo. bus may be nil.
func New(repo aggregator.AddressRepository, bus *eventbus.Bus) *Registry {
	return &Registry{repo: repo, bus: bus}
}

// ValidateAddress normalizes and validates address for chain, returning
// the normalized form. EVM chains are validated and lower-cased via
// go-ethereum; Solana and Bitcoin are validated via regex and preserved
// as-is; unrecognized chains accept any non-empty address under 100
// characters.
func ValidateAddress(chain, address string) (string, error) {
	if address == "" {
		return "", aggregator.NewInvalidInput("address", "must not be empty")
	}

	switch {
	case isEVMChain(chain):
		if !common.IsHexAddress(address) {
			return "", aggregator.NewInvalidInput("address", "not a valid EVM address for chain "+chain)
		}
		return strings.ToLower(common.HexToAddress(address).Hex()), nil
	case chain == "solana":
		if !solanaAddressRe.MatchString(address) {
			return "", aggregator.NewInvalidInput("address", "not a valid Solana address")
		}
		return address, nil
	case chain == "bitcoin":
		if !bitcoinAddressRe.MatchString(address) {
			return "", aggregator.NewInvalidInput("address", "not a valid Bitcoin address")
		}
		return address, nil
	default:
		if len(address) >= 100 {
			return "", aggregator.NewInvalidInput("address", "exceeds maximum length for an unrecognized chain")
		}
		return address, nil
	}
}

func isEVMChain(chain string) bool {
	_, ok := evmChains[chain]
	return ok
}

// AddressMeta carries the optional label/tags/source supplied with a new
// address entry.
type AddressMeta struct {
	Label  string
	Tags   []string
	Source aggregator.AddressSource
}

// AddAddress validates and stores a new tracked address.
func (r *Registry) AddAddress(ctx context.Context, chain, address string, meta AddressMeta) (aggregator.AddressEntry, error) {
	normalized, err := ValidateAddress(chain, address)
	if err != nil {
		return aggregator.AddressEntry{}, err
	}
	source := meta.Source
	if source == "" {
		source = aggregator.AddressSourceManual
	}
	entry := aggregator.AddressEntry{
		Chain:   chain,
		Address: normalized,
		Label:   meta.Label,
		Tags:    meta.Tags,
		Source:  source,
		AddedAt: time.Now(),
	}
	if err := r.repo.Save(ctx, entry); err != nil {
		return aggregator.AddressEntry{}, fmt.Errorf("registry: save address: %w", err)
	}
	r.bus.Publish(ctx, aggregator.NewEvent(aggregator.EventAddressAdded, normalized, aggregator.AddressEventPayload{
		Chain: chain, Address: normalized, Label: entry.Label,
	}))
	return entry, nil
}

// RemoveAddress deletes a tracked address.
func (r *Registry) RemoveAddress(ctx context.Context, chain, address string) error {
	if err := r.repo.Remove(ctx, chain, address); err != nil {
		return fmt.Errorf("registry: remove address: %w", err)
	}
	r.bus.Publish(ctx, aggregator.NewEvent(aggregator.EventAddressRemoved, address, aggregator.AddressEventPayload{
		Chain: chain, Address: address,
	}))
	return nil
}

// UpdateMetadata replaces the label/tags on an existing tracked address.
func (r *Registry) UpdateMetadata(ctx context.Context, chain, address string, meta AddressMeta) error {
	entry := aggregator.AddressEntry{
		Chain:   chain,
		Address: address,
		Label:   meta.Label,
		Tags:    meta.Tags,
	}
	if err := r.repo.Update(ctx, entry); err != nil {
		return fmt.Errorf("registry: update metadata: %w", err)
	}
	r.bus.Publish(ctx, aggregator.NewEvent(aggregator.EventAddressMetadataUpdated, address, aggregator.AddressEventPayload{
		Chain: chain, Address: address, Label: meta.Label,
	}))
	return nil
}

// GetAddresses returns every tracked address for chain, or every tracked
// address across all chains when chain is empty.
func (r *Registry) GetAddresses(ctx context.Context, chain string) ([]aggregator.AddressEntry, error) {
	if chain == "" {
		return r.repo.FindAll(ctx)
	}
	return r.repo.FindByChain(ctx, chain)
}

// GetByLabel returns every tracked address carrying label.
func (r *Registry) GetByLabel(ctx context.Context, label string) ([]aggregator.AddressEntry, error) {
	return r.repo.FindByLabel(ctx, label)
}

// WalletAccount is one account surfaced by a connected wallet during
// discovery.
type WalletAccount struct {
	ChainID int
	Address string
	Label   string
}

// WalletConnection is the capability a host-supplied wallet connector
// implements for DiscoverAddresses.
type WalletConnection interface {
	Accounts(ctx context.Context) ([]WalletAccount, error)
}

var chainIDToName = map[int]string{
	1:     "ethereum",
	137:   "polygon",
	42161: "arbitrum",
	10:    "optimism",
	56:    "binance",
}

// DiscoverAddresses pulls accounts from conn, validates and stores each,
// and tags them with AddressSourceDiscovered. A chain id missing from
// chainIDToName is used, in decimal, as the chain name itself. Accounts
// whose address fails validation are skipped.
func (r *Registry) DiscoverAddresses(ctx context.Context, conn WalletConnection) ([]aggregator.AddressEntry, error) {
	accounts, err := conn.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("registry: discover accounts: %w", err)
	}
	out := make([]aggregator.AddressEntry, 0, len(accounts))
	for _, acc := range accounts {
		chain, ok := chainIDToName[acc.ChainID]
		if !ok {
			chain = strconv.Itoa(acc.ChainID)
		}
		entry, err := r.AddAddress(ctx, chain, acc.Address, AddressMeta{Label: acc.Label, Source: aggregator.AddressSourceDiscovered})
		if err != nil {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}
