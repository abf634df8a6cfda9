package registry

import (
	"context"
	"sync"
	"testing"

	aggregator "github.com/nyxfolio/portfolio-aggregator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAddressRepo struct {
	mu      sync.Mutex
	entries map[string]aggregator.AddressEntry
}

func newFakeAddressRepo() *fakeAddressRepo {
	return &fakeAddressRepo{entries: make(map[string]aggregator.AddressEntry)}
}

func key(chain, address string) string { return chain + ":" + address }

func (f *fakeAddressRepo) Save(ctx context.Context, entry aggregator.AddressEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[key(entry.Chain, entry.Address)] = entry
	return nil
}

func (f *fakeAddressRepo) Remove(ctx context.Context, chain, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, key(chain, address))
	return nil
}

func (f *fakeAddressRepo) Update(ctx context.Context, entry aggregator.AddressEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.entries[key(entry.Chain, entry.Address)]
	if !ok {
		return aggregator.ErrPortfolioNotFound
	}
	existing.Label = entry.Label
	existing.Tags = entry.Tags
	f.entries[key(entry.Chain, entry.Address)] = existing
	return nil
}

func (f *fakeAddressRepo) FindByChain(ctx context.Context, chain string) ([]aggregator.AddressEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []aggregator.AddressEntry
	for _, e := range f.entries {
		if e.Chain == chain {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAddressRepo) FindByLabel(ctx context.Context, label string) ([]aggregator.AddressEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []aggregator.AddressEntry
	for _, e := range f.entries {
		if e.Label == label {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAddressRepo) FindAll(ctx context.Context) ([]aggregator.AddressEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]aggregator.AddressEntry, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeAddressRepo) Clear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = make(map[string]aggregator.AddressEntry)
	return nil
}

func TestValidateAddressEVM(t *testing.T) {
	normalized, err := ValidateAddress("ethereum", "0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa")
	require.NoError(t, err)
	assert.Equal(t, "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", normalized)

	_, err = ValidateAddress("ethereum", "not-an-address")
	assert.Error(t, err)
}

func TestValidateAddressSolana(t *testing.T) {
	_, err := ValidateAddress("solana", "5o1Nk")
	assert.Error(t, err, "too short")

	addr := "DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy"
	normalized, err := ValidateAddress("solana", addr)
	require.NoError(t, err)
	assert.Equal(t, addr, normalized)
}

func TestValidateAddressBitcoin(t *testing.T) {
	for _, addr := range []string{
		"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",          // P2PKH
		"3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy",          // P2SH
		"bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq",  // Bech32
	} {
		normalized, err := ValidateAddress("bitcoin", addr)
		require.NoError(t, err, addr)
		assert.Equal(t, addr, normalized, "bitcoin addresses survive round-trip unchanged")
	}

	_, err := ValidateAddress("bitcoin", "0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa")
	assert.Error(t, err)
}

func TestValidateAddressUnknownChain(t *testing.T) {
	normalized, err := ValidateAddress("some-new-chain", "account-123")
	require.NoError(t, err)
	assert.Equal(t, "account-123", normalized)
}

func TestAddAddressPersistsAndPublishes(t *testing.T) {
	repo := newFakeAddressRepo()
	reg := New(repo, nil)

	entry, err := reg.AddAddress(context.Background(), "ethereum", "0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa", AddressMeta{Label: "main wallet"})
	require.NoError(t, err)
	assert.Equal(t, "main wallet", entry.Label)
	assert.Equal(t, aggregator.AddressSourceManual, entry.Source)

	found, err := reg.GetAddresses(context.Background(), "ethereum")
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

func TestAddAddressRejectsInvalidFormat(t *testing.T) {
	reg := New(newFakeAddressRepo(), nil)
	_, err := reg.AddAddress(context.Background(), "ethereum", "bogus", AddressMeta{})
	assert.Error(t, err)
}

type fakeWallet struct {
	accounts []WalletAccount
}

func (w fakeWallet) Accounts(ctx context.Context) ([]WalletAccount, error) {
	return w.accounts, nil
}

func TestDiscoverAddressesMapsChainIDs(t *testing.T) {
	reg := New(newFakeAddressRepo(), nil)
	wallet := fakeWallet{accounts: []WalletAccount{
		{ChainID: 1, Address: "0xAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAaAa", Label: "eth"},
		{ChainID: 999999, Address: "whatever", Label: "unsupported"},
	}}

	discovered, err := reg.DiscoverAddresses(context.Background(), wallet)
	require.NoError(t, err)
	require.Len(t, discovered, 2)
	assert.Equal(t, aggregator.AddressSourceDiscovered, discovered[0].Source)
}
