package evm

import (
	"context"
	"testing"

	aggregator "github.com/nyxfolio/portfolio-aggregator"
	"github.com/stretchr/testify/assert"
)

func TestSourceIsProviderID(t *testing.T) {
	p := New("ethereum", "https://example.invalid", "", nil)
	assert.Equal(t, "evm", p.Source(), "routing key is the provider family, not the chain")
}

func TestNotConnectedFetchFails(t *testing.T) {
	p := New("ethereum", "https://example.invalid", "", nil)
	assert.False(t, p.IsConnected())

	_, err := p.FetchAssets(context.Background(), []string{"0x0000000000000000000000000000000000000001"})
	assert.Error(t, err)
}

func TestSubscribeWithoutWebsocketURLFails(t *testing.T) {
	p := New("ethereum", "https://example.invalid", "", nil)
	_, err := p.SubscribeToUpdates(context.Background(), nil, func(*aggregator.Asset) {})
	assert.Error(t, err)
}

func TestNativeSymbolByChain(t *testing.T) {
	assert.Equal(t, "MATIC", nativeSymbol("polygon"))
	assert.Equal(t, "BNB", nativeSymbol("bsc"))
	assert.Equal(t, "AVAX", nativeSymbol("avalanche"))
	assert.Equal(t, "ETH", nativeSymbol("ethereum"))
}
