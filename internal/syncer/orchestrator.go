// Package syncer implements the Sync Orchestrator: it owns one circuit
// breaker and one rate limiter per registered provider and runs periodic
// or on-demand health-check sync cycles, tolerating individual provider
// failures without cancelling their siblings.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	aggregator "github.com/nyxfolio/portfolio-aggregator"
	"github.com/nyxfolio/portfolio-aggregator/internal/breaker"
	"github.com/nyxfolio/portfolio-aggregator/internal/eventbus"
	"github.com/nyxfolio/portfolio-aggregator/internal/ratelimit"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ProviderMetrics tracks per-provider sync-cycle health.
type ProviderMetrics struct {
	Attempts        int
	Successes       int
	Failures        int
	AvgResponseTime time.Duration
	LastSuccess     time.Time
	LastFailure     time.Time
}

// Metrics is the full GetSyncMetrics() result.
type Metrics struct {
	Providers         map[string]ProviderMetrics
	AvgSyncDuration   time.Duration
	NextScheduledSync time.Time
}

// SyncResult is the outcome of one OrchestrateSync call.
type SyncResult struct {
	Succeeded []string
	Failed    []string
	Errors    map[string]error
	Duration  time.Duration
	Timestamp time.Time
}

type providerEntry struct {
	provider aggregator.Provider
	breaker  *breaker.Breaker
	limiter  ratelimit.Limiter
	canary   []string

	mu                sync.Mutex
	metrics           ProviderMetrics
	totalResponseTime time.Duration
}

// Orchestrator coordinates health-check syncs across registered providers.
type Orchestrator struct {
	mu            sync.Mutex
	providers     map[string]*providerEntry
	order         []string
	bus           *eventbus.Bus
	log           logrus.FieldLogger
	inFlight      bool
	syncDurations []time.Duration
	nextScheduled time.Time
}

// NewOrchestrator builds an Orchestrator with no providers registered.
func NewOrchestrator(bus *eventbus.Bus, log logrus.FieldLogger) *Orchestrator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{providers: make(map[string]*providerEntry), bus: bus, log: log}
}

// RegisterProvider adds p under breaker/rate-limit configuration, probing
// canary addresses during health checks.
func (o *Orchestrator) RegisterProvider(p aggregator.Provider, bCfg breaker.Config, rCfg ratelimit.Config, strategy ratelimit.Strategy, canary []string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id := p.Source()
	entry := &providerEntry{
		provider: p,
		breaker:  breaker.New(bCfg),
		limiter:  ratelimit.New(strategy, rCfg),
		canary:   canary,
	}
	entry.breaker.OnStateChange = func(from, to breaker.State) {
		eventType := aggregator.EventCircuitBreakerOpened
		switch to {
		case breaker.Closed:
			eventType = aggregator.EventCircuitBreakerClosed
		case breaker.HalfOpen:
			eventType = aggregator.EventCircuitBreakerHalfOpen
		}
		o.bus.Publish(context.Background(), aggregator.NewEvent(eventType, id, aggregator.CircuitBreakerEventPayload{
			Provider: id, State: to.String(),
		}))
	}

	if _, exists := o.providers[id]; !exists {
		o.order = append(o.order, id)
	}
	o.providers[id] = entry
}

// ConfigureRateLimit updates the rate limit configuration for provider.
func (o *Orchestrator) ConfigureRateLimit(provider string, cfg ratelimit.Config) {
	o.mu.Lock()
	entry, ok := o.providers[provider]
	o.mu.Unlock()
	if !ok {
		return
	}
	entry.limiter.UpdateConfig(cfg)
}

// ConfigureCircuitBreaker updates the breaker parameters for provider
// without resetting its current state.
func (o *Orchestrator) ConfigureCircuitBreaker(provider string, cfg breaker.Config) {
	o.mu.Lock()
	entry, ok := o.providers[provider]
	o.mu.Unlock()
	if !ok {
		return
	}
	entry.breaker.UpdateConfig(cfg)
}

// GetCircuitState reports the current breaker state for provider.
func (o *Orchestrator) GetCircuitState(provider string) breaker.State {
	o.mu.Lock()
	entry, ok := o.providers[provider]
	o.mu.Unlock()
	if !ok {
		return breaker.Closed
	}
	return entry.breaker.Stats().State
}

// OrchestrateSync runs one sync cycle against the named providers, or
// every registered provider when providers is empty. Only one cycle may
// run at a time; a concurrent call returns aggregator.ErrSyncInProgress.
func (o *Orchestrator) OrchestrateSync(ctx context.Context, providers []string) (*SyncResult, error) {
	return o.orchestrateSync(ctx, providers, false)
}

func (o *Orchestrator) orchestrateSync(ctx context.Context, providers []string, scheduled bool) (*SyncResult, error) {
	o.mu.Lock()
	if o.inFlight {
		o.mu.Unlock()
		return nil, fmt.Errorf("syncer: %w", aggregator.ErrSyncInProgress)
	}
	o.inFlight = true
	targets := providers
	if len(targets) == 0 {
		targets = append([]string(nil), o.order...)
	}
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
	}()

	start := time.Now()
	o.bus.Publish(ctx, aggregator.NewEvent(aggregator.EventSyncCycleStarted, "", aggregator.SyncCycleStartedPayload{Providers: targets, Scheduled: scheduled}))

	result := &SyncResult{Errors: make(map[string]error), Timestamp: start}
	var mu sync.Mutex
	var grp errgroup.Group // no WithContext: a sibling failure must never cancel the others

	for _, id := range targets {
		id := id
		o.mu.Lock()
		entry, ok := o.providers[id]
		o.mu.Unlock()
		if !ok {
			continue
		}
		grp.Go(func() error {
			err := o.runHealthCheck(ctx, entry)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed = append(result.Failed, id)
				result.Errors[id] = err
				o.bus.Publish(ctx, aggregator.NewEvent(aggregator.EventSyncSourceFailed, id, aggregator.IntegrationEventPayload{Source: id, Err: err.Error()}))
			} else {
				result.Succeeded = append(result.Succeeded, id)
			}
			return nil // never fail the group; failures are recorded, not propagated
		})
	}
	_ = grp.Wait()

	result.Duration = time.Since(start)
	o.mu.Lock()
	o.syncDurations = append(o.syncDurations, result.Duration)
	if len(o.syncDurations) > 50 {
		o.syncDurations = o.syncDurations[len(o.syncDurations)-50:]
	}
	o.mu.Unlock()

	errs := make(map[string]string, len(result.Errors))
	for id, err := range result.Errors {
		errs[id] = err.Error()
	}
	o.bus.Publish(ctx, aggregator.NewEvent(aggregator.EventSyncCycleCompleted, "", aggregator.SyncCycleCompletedPayload{
		Succeeded: result.Succeeded,
		Failed:    result.Failed,
		Errors:    errs,
		Duration:  result.Duration,
	}))
	return result, nil
}

// runHealthCheck runs one admission-checked, rate-limited, breaker-guarded
// probe of entry.
func (o *Orchestrator) runHealthCheck(ctx context.Context, entry *providerEntry) error {
	entry.mu.Lock()
	entry.metrics.Attempts++
	entry.mu.Unlock()

	start := time.Now()
	err := entry.breaker.Execute(ctx, func(ctx context.Context) error {
		if waitErr := entry.limiter.WaitForSlot(ctx); waitErr != nil {
			return waitErr
		}
		if !entry.provider.IsConnected() {
			if connErr := entry.provider.Connect(ctx); connErr != nil {
				return aggregator.NewProviderFailure(entry.provider.Source(), connErr)
			}
		}
		if _, fetchErr := entry.provider.FetchAssets(ctx, entry.canary); fetchErr != nil {
			return aggregator.NewProviderFailure(entry.provider.Source(), fetchErr)
		}
		return nil
	})
	elapsed := time.Since(start)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	entry.totalResponseTime += elapsed
	if err != nil {
		entry.metrics.Failures++
		entry.metrics.LastFailure = time.Now()
	} else {
		entry.metrics.Successes++
		entry.metrics.LastSuccess = time.Now()
	}
	if entry.metrics.Attempts > 0 {
		entry.metrics.AvgResponseTime = entry.totalResponseTime / time.Duration(entry.metrics.Attempts)
	}
	return err
}

// RetryFailedProvider resets provider's breaker and runs one immediate
// health check against it.
func (o *Orchestrator) RetryFailedProvider(ctx context.Context, provider string) error {
	o.mu.Lock()
	entry, ok := o.providers[provider]
	o.mu.Unlock()
	if !ok {
		return aggregator.NewInvalidInput("provider", "not registered: "+provider)
	}
	entry.breaker.Reset()
	return o.runHealthCheck(ctx, entry)
}

// ScheduleSyncCycle runs OrchestrateSync every interval until the
// returned cancel func is called.
func (o *Orchestrator) ScheduleSyncCycle(interval time.Duration) (cancel func()) {
	stop := make(chan struct{})
	ticker := time.NewTicker(interval)

	o.mu.Lock()
	o.nextScheduled = time.Now().Add(interval)
	o.mu.Unlock()

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				o.mu.Lock()
				o.nextScheduled = time.Now().Add(interval)
				o.mu.Unlock()
				if _, err := o.orchestrateSync(context.Background(), nil, true); err != nil {
					o.log.WithError(err).Warn("scheduled sync cycle skipped")
				}
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(stop) }) }
}

// GetSyncMetrics returns the current per-provider and global sync metrics.
func (o *Orchestrator) GetSyncMetrics() Metrics {
	o.mu.Lock()
	defer o.mu.Unlock()

	providers := make(map[string]ProviderMetrics, len(o.providers))
	for id, entry := range o.providers {
		entry.mu.Lock()
		providers[id] = entry.metrics
		entry.mu.Unlock()
	}

	var total time.Duration
	for _, d := range o.syncDurations {
		total += d
	}
	var avg time.Duration
	if len(o.syncDurations) > 0 {
		avg = total / time.Duration(len(o.syncDurations))
	}

	return Metrics{Providers: providers, AvgSyncDuration: avg, NextScheduledSync: o.nextScheduled}
}
