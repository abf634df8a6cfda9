// Package evm is the reference Provider adapter for EVM-compatible
// chains: native balances over go-ethereum's ethclient, plus an
// optional websocket-based push subscription.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gorilla/websocket"
	aggregator "github.com/nyxfolio/portfolio-aggregator"
	"github.com/sirupsen/logrus"
)

// source is the provider identifier the aggregation service and sync
// orchestrator route EVM-chain addresses to. The configured chain only
// affects which endpoint is dialed and how fetched assets are tagged.
const source = "evm"

// Provider fetches native balances from an EVM JSON-RPC endpoint.
type Provider struct {
	chain  string
	rpcURL string
	wsURL  string
	client *ethclient.Client
	log    logrus.FieldLogger

	mu        sync.Mutex
	connected bool
}

// New builds a Provider for chain, dialing rpcURL lazily on Connect.
// wsURL may be empty; SubscribeToUpdates then returns an error.
func New(chain, rpcURL, wsURL string, log logrus.FieldLogger) *Provider {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Provider{chain: chain, rpcURL: rpcURL, wsURL: wsURL, log: log}
}

func (p *Provider) Source() string { return source }

func (p *Provider) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connected {
		return nil
	}
	client, err := ethclient.DialContext(ctx, p.rpcURL)
	if err != nil {
		return aggregator.NewProviderFailure(source, fmt.Errorf("dial rpc: %w", err))
	}
	p.client = client
	p.connected = true
	return nil
}

func (p *Provider) Disconnect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		p.client.Close()
	}
	p.connected = false
	return nil
}

func (p *Provider) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// FetchAssets returns the native coin balance for each address.
func (p *Provider) FetchAssets(ctx context.Context, addresses []string) ([]*aggregator.Asset, error) {
	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil {
		return nil, aggregator.NewProviderFailure(source, fmt.Errorf("not connected"))
	}

	assets := make([]*aggregator.Asset, 0, len(addresses))
	for _, addr := range addresses {
		if !common.IsHexAddress(addr) {
			p.log.WithField("address", addr).Warn("evm provider: skipping malformed address")
			continue
		}
		account := common.HexToAddress(addr)
		wei, err := client.BalanceAt(ctx, account, nil)
		if err != nil {
			return nil, aggregator.NewProviderFailure(source, fmt.Errorf("balance of %s: %w", addr, err))
		}
		balance, err := aggregator.NewBalance(new(big.Rat).SetInt(wei), 18)
		if err != nil {
			return nil, aggregator.NewProviderFailure(source, fmt.Errorf("normalize balance: %w", err))
		}
		asset, err := aggregator.NewAsset(aggregator.AssetParams{
			ID:      p.chain + ":" + account.Hex(),
			Symbol:  nativeSymbol(p.chain),
			Type:    aggregator.AssetTypeCrypto,
			Chain:   p.chain,
			Balance: balance,
			Metadata: aggregator.Metadata{
				Provider:   "evm:" + p.chain,
				FetchedAt:  time.Now(),
				SourceType: aggregator.SourceTypeOnChain,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("evm provider: build asset: %w", err)
		}
		assets = append(assets, asset)
	}
	return assets, nil
}

func nativeSymbol(chain string) string {
	switch chain {
	case "polygon":
		return "MATIC"
	case "bsc":
		return "BNB"
	case "avalanche":
		return "AVAX"
	default:
		return "ETH"
	}
}

// SubscribeToUpdates opens a websocket connection to wsURL and invokes
// onUpdate whenever the node pushes a balance notification. This is a
// minimal reference implementation: it does not decode node-specific
// subscription payloads, it only demonstrates the wiring shape.
func (p *Provider) SubscribeToUpdates(ctx context.Context, addresses []string, onUpdate func(*aggregator.Asset)) (func(), error) {
	if p.wsURL == "" {
		return nil, aggregator.NewProviderFailure(source, fmt.Errorf("no websocket endpoint configured"))
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.wsURL, nil)
	if err != nil {
		return nil, aggregator.NewProviderFailure(source, fmt.Errorf("dial websocket: %w", err))
	}

	done := make(chan struct{})
	go func() {
		defer conn.Close()
		for {
			select {
			case <-done:
				return
			default:
			}
			var msg struct {
				Address string `json:"address"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				p.log.WithError(err).Debug("evm provider: websocket read ended")
				return
			}
			assets, err := p.FetchAssets(ctx, []string{msg.Address})
			if err != nil || len(assets) == 0 {
				continue
			}
			onUpdate(assets[0])
		}
	}()

	unsubscribe := func() { close(done) }
	return unsubscribe, nil
}
