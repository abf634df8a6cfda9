package aggregator

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPortfolioAddAssetMergesSameAsset(t *testing.T) {
	p := NewPortfolio("p1", "user-1")
	now := time.Now()
	require.NoError(t, p.AddAsset(asset(t, "a", "ETH", "ethereum", "", big.NewRat(1, 1), SourceTypeOnChain, now)))
	require.NoError(t, p.AddAsset(asset(t, "b", "ETH", "ethereum", "", big.NewRat(2, 1), SourceTypeCEX, now)))

	assets := p.Assets()
	require.Len(t, assets, 1)
	assert.Equal(t, "3.000000000000000000", assets[0].Balance.Formatted)
}

func TestPortfolioAddAssetDistinctKeysCoexist(t *testing.T) {
	p := NewPortfolio("p1", "user-1")
	now := time.Now()
	require.NoError(t, p.AddAsset(asset(t, "a", "ETH", "ethereum", "", big.NewRat(1, 1), SourceTypeOnChain, now)))
	require.NoError(t, p.AddAsset(asset(t, "b", "BTC", "bitcoin", "", big.NewRat(1, 1), SourceTypeOnChain, now)))
	assert.Len(t, p.Assets(), 2)
}

func TestPortfolioRemoveAsset(t *testing.T) {
	p := NewPortfolio("p1", "user-1")
	a := asset(t, "a", "ETH", "ethereum", "", big.NewRat(1, 1), SourceTypeOnChain, time.Now())
	require.NoError(t, p.AddAsset(a))
	assert.True(t, p.RemoveAsset("a"))
	assert.False(t, p.RemoveAsset("a"), "removing twice is a no-op")
	assert.True(t, p.IsEmpty())
}

func TestPortfolioGetTotalValueSkipsUnpriced(t *testing.T) {
	p := NewPortfolio("p1", "user-1")
	a := asset(t, "a", "ETH", "ethereum", "", big.NewRat(2, 1), SourceTypeOnChain, time.Now())
	require.NoError(t, a.UpdatePrice(Price{Value: big.NewRat(1000, 1), Currency: "USD"}))
	b := asset(t, "b", "BTC", "bitcoin", "", big.NewRat(1, 1), SourceTypeOnChain, time.Now())
	require.NoError(t, p.AddAsset(a))
	require.NoError(t, p.AddAsset(b))

	total := p.GetTotalValue("USD")
	assert.Equal(t, "2000", total.FloatString(0))
}

func TestPortfolioReconcileIsIdempotent(t *testing.T) {
	p := NewPortfolio("p1", "user-1")
	now := time.Now()
	a1 := asset(t, "a", "ETH", "ethereum", "", big.NewRat(1, 1), SourceTypeOnChain, now)
	a2 := asset(t, "b", "ETH", "ethereum", "", big.NewRat(1, 1), SourceTypeCEX, now)
	p.assets[a1.ID] = a1
	p.assets[a2.ID] = a2

	require.NoError(t, p.Reconcile())
	assert.Len(t, p.Assets(), 1)
	require.NoError(t, p.Reconcile())
	assert.Len(t, p.Assets(), 1)
}

func TestPortfolioMergePortfolio(t *testing.T) {
	p1 := NewPortfolio("p1", "user-1")
	p2 := NewPortfolio("p2", "user-1")
	require.NoError(t, p1.AddAsset(asset(t, "a", "ETH", "ethereum", "", big.NewRat(1, 1), SourceTypeOnChain, time.Now())))
	require.NoError(t, p2.AddAsset(asset(t, "b", "ETH", "ethereum", "", big.NewRat(1, 1), SourceTypeCEX, time.Now())))
	p2.AddSource("cex-provider")

	require.NoError(t, p1.MergePortfolio(p2))
	assert.Len(t, p1.Assets(), 1)
	assert.Contains(t, p1.Sources(), "cex-provider")
}

func TestPortfolioSnapshotRoundTrip(t *testing.T) {
	p := NewPortfolio("p1", "user-1")
	a := asset(t, "a", "ETH", "ethereum", "", big.NewRat(1, 1), SourceTypeOnChain, time.Now())
	require.NoError(t, a.UpdatePrice(Price{Value: big.NewRat(3000, 1), Currency: "USD"}))
	require.NoError(t, p.AddAsset(a))
	p.AddSource("evm")

	snap := p.Snapshot()
	assert.Equal(t, "p1", snap.ID)
	assert.Len(t, snap.Assets, 1)
	assert.Equal(t, "3000.00000000", snap.TotalValue.Value)

	restored := FromSnapshot(snap)
	assert.Equal(t, p.ID(), restored.ID())
	assert.Len(t, restored.Assets(), 1)
	assert.Equal(t, []string{"evm"}, restored.Sources())
}

func TestPortfolioClear(t *testing.T) {
	p := NewPortfolio("p1", "user-1")
	require.NoError(t, p.AddAsset(asset(t, "a", "ETH", "ethereum", "", big.NewRat(1, 1), SourceTypeOnChain, time.Now())))
	p.AddSource("evm")
	p.Clear()
	assert.True(t, p.IsEmpty())
	assert.Empty(t, p.Sources())
}
