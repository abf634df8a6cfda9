package brokerage

import (
	"context"
	"math/big"
	"testing"
	"time"

	aggregator "github.com/nyxfolio/portfolio-aggregator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilFetcherReturnsEmptyHoldings(t *testing.T) {
	p := New(nil)
	assets, err := p.FetchAssets(context.Background(), []string{"acct-1"})
	require.NoError(t, err)
	assert.Empty(t, assets)
}

func TestCustomFetcherReturnsHoldings(t *testing.T) {
	p := New(func(ctx context.Context, accountID string) ([]*aggregator.Asset, error) {
		bal, err := aggregator.NewBalance(big.NewRat(10, 1), 0)
		require.NoError(t, err)
		asset, err := aggregator.NewAsset(aggregator.AssetParams{
			ID:     accountID + ":AAPL",
			Symbol: "AAPL",
			Type:   aggregator.AssetTypeStock,
			Balance: bal,
			Metadata: aggregator.Metadata{
				Provider:   "brokerage",
				FetchedAt:  time.Now(),
				SourceType: aggregator.SourceTypeManual,
			},
		})
		require.NoError(t, err)
		return []*aggregator.Asset{asset}, nil
	})

	assets, err := p.FetchAssets(context.Background(), []string{"acct-1"})
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "AAPL", assets[0].Symbol)
}
