package syncer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	aggregator "github.com/nyxfolio/portfolio-aggregator"
	"github.com/nyxfolio/portfolio-aggregator/internal/breaker"
	"github.com/nyxfolio/portfolio-aggregator/internal/eventbus"
	"github.com/nyxfolio/portfolio-aggregator/internal/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	source      string
	connected   atomic.Bool
	connectErr  error
	fetchErr    error
	fetchCalls  atomic.Int32
}

func (p *fakeProvider) Source() string { return p.source }
func (p *fakeProvider) Connect(ctx context.Context) error {
	if p.connectErr != nil {
		return p.connectErr
	}
	p.connected.Store(true)
	return nil
}
func (p *fakeProvider) Disconnect(ctx context.Context) error {
	p.connected.Store(false)
	return nil
}
func (p *fakeProvider) IsConnected() bool { return p.connected.Load() }
func (p *fakeProvider) FetchAssets(ctx context.Context, addresses []string) ([]*aggregator.Asset, error) {
	p.fetchCalls.Add(1)
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	return nil, nil
}

func registerFake(o *Orchestrator, p *fakeProvider) {
	o.RegisterProvider(p, breaker.Config{FailureThreshold: 2, RecoveryTimeout: time.Hour, HalfOpenRetries: 1},
		ratelimit.Config{RequestsPerMinute: 600, BurstLimit: 10}, ratelimit.StrategyTokenBucket, []string{"canary"})
}

func TestOrchestrateSyncToleratesSiblingFailure(t *testing.T) {
	o := NewOrchestrator(eventbus.New(nil), nil)
	good := &fakeProvider{source: "evm"}
	bad := &fakeProvider{source: "solana", fetchErr: errors.New("rpc down")}
	registerFake(o, good)
	registerFake(o, bad)

	result, err := o.OrchestrateSync(context.Background(), nil)
	require.NoError(t, err)
	assert.Contains(t, result.Succeeded, "evm")
	assert.Contains(t, result.Failed, "solana")
}

func TestOrchestrateSyncRejectsConcurrentRun(t *testing.T) {
	o := NewOrchestrator(eventbus.New(nil), nil)
	blocker := &fakeProvider{source: "slow"}
	o.RegisterProvider(blocker, breaker.DefaultConfig(), ratelimit.Config{RequestsPerMinute: 600}, ratelimit.StrategyTokenBucket, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	o.mu.Lock()
	o.inFlight = true
	o.mu.Unlock()

	_, err := o.OrchestrateSync(context.Background(), nil)
	assert.ErrorIs(t, err, aggregator.ErrSyncInProgress)

	o.mu.Lock()
	o.inFlight = false
	o.mu.Unlock()
	wg.Done()
}

func TestRunHealthCheckTripsBreakerAfterRepeatedFailure(t *testing.T) {
	o := NewOrchestrator(eventbus.New(nil), nil)
	bad := &fakeProvider{source: "flaky", fetchErr: errors.New("boom")}
	registerFake(o, bad)

	_, _ = o.OrchestrateSync(context.Background(), nil)
	_, _ = o.OrchestrateSync(context.Background(), nil)

	assert.Equal(t, breaker.Open, o.GetCircuitState("flaky"))
}

func TestRetryFailedProviderResetsBreaker(t *testing.T) {
	o := NewOrchestrator(eventbus.New(nil), nil)
	p := &fakeProvider{source: "recovering", fetchErr: errors.New("boom")}
	registerFake(o, p)

	_, _ = o.OrchestrateSync(context.Background(), nil)
	_, _ = o.OrchestrateSync(context.Background(), nil)
	require.Equal(t, breaker.Open, o.GetCircuitState("recovering"))

	p.fetchErr = nil
	err := o.RetryFailedProvider(context.Background(), "recovering")
	require.NoError(t, err)
	assert.Equal(t, breaker.Closed, o.GetCircuitState("recovering"))
}

func TestConfigureCircuitBreakerTightensThreshold(t *testing.T) {
	o := NewOrchestrator(eventbus.New(nil), nil)
	p := &fakeProvider{source: "evm", fetchErr: errors.New("boom")}
	registerFake(o, p) // FailureThreshold: 2

	o.ConfigureCircuitBreaker("evm", breaker.Config{FailureThreshold: 1, RecoveryTimeout: time.Hour, HalfOpenRetries: 1})

	_, _ = o.OrchestrateSync(context.Background(), nil)
	assert.Equal(t, breaker.Open, o.GetCircuitState("evm"), "single failure trips the tightened breaker")
}

func TestGetSyncMetricsAggregatesPerProvider(t *testing.T) {
	o := NewOrchestrator(eventbus.New(nil), nil)
	p := &fakeProvider{source: "evm"}
	registerFake(o, p)

	_, err := o.OrchestrateSync(context.Background(), nil)
	require.NoError(t, err)

	metrics := o.GetSyncMetrics()
	require.Contains(t, metrics.Providers, "evm")
	assert.Equal(t, 1, metrics.Providers["evm"].Attempts)
	assert.Equal(t, 1, metrics.Providers["evm"].Successes)
}
