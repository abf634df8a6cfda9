package aggregator

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a kind of DomainEvent published on the Event Bus.
type EventType string

const (
	EventPortfolioAggregationStarted     EventType = "PortfolioAggregationStarted"
	EventPortfolioAggregationCompleted   EventType = "PortfolioAggregationCompleted"
	EventPortfolioAggregationFailed      EventType = "PortfolioAggregationFailed"
	EventPortfolioReconciliationStarted  EventType = "PortfolioReconciliationStarted"
	EventPortfolioReconciliationComplete EventType = "PortfolioReconciliationCompleted"
	EventAssetAddedToPortfolio           EventType = "AssetAddedToPortfolio"
	EventAssetMerged                     EventType = "AssetMerged"
	EventAssetPriceUpdated               EventType = "AssetPriceUpdated"
	EventIntegrationSourceConnected      EventType = "IntegrationSourceConnected"
	EventIntegrationSourceFailed         EventType = "IntegrationSourceFailed"
	EventIntegrationDataFetched          EventType = "IntegrationDataFetched"
	EventAddressAdded                    EventType = "AddressAdded"
	EventAddressRemoved                  EventType = "AddressRemoved"
	EventAddressMetadataUpdated          EventType = "AddressMetadataUpdated"
	EventSyncCycleStarted                EventType = "SyncCycleStarted"
	EventSyncCycleCompleted              EventType = "SyncCycleCompleted"
	EventSyncSourceFailed                EventType = "SyncSourceFailed"
	EventCircuitBreakerOpened            EventType = "CircuitBreakerOpened"
	EventCircuitBreakerClosed            EventType = "CircuitBreakerClosed"
	EventCircuitBreakerHalfOpen          EventType = "CircuitBreakerHalfOpen"
)

// DomainEvent is an immutable fact published on the Event Bus.
type DomainEvent struct {
	ID          string
	Type        EventType
	OccurredAt  time.Time
	AggregateID string
	Payload     interface{}
}

// NewEvent stamps a DomainEvent with a fresh ID and the current time.
func NewEvent(t EventType, aggregateID string, payload interface{}) DomainEvent {
	return DomainEvent{
		ID:          uuid.NewString(),
		Type:        t,
		OccurredAt:  time.Now(),
		AggregateID: aggregateID,
		Payload:     payload,
	}
}

// Payload shapes for the event types above. Hosts type-assert Payload
// against these when they need structured fields instead of just the type.

type PortfolioAggregationStartedPayload struct {
	PortfolioID string
	Sources     []string
	Addresses   map[string][]string
}

type PortfolioAggregationCompletedPayload struct {
	PortfolioID string
	AssetCount  int
	TotalValue  Money
	Duration    time.Duration
}

type PortfolioAggregationFailedPayload struct {
	PortfolioID string
	Err         string
}

type PortfolioReconciliationPayload struct {
	PortfolioID string
	AssetCount  int
}

type AssetAddedPayload struct {
	PortfolioID string
	AssetID     string
}

type AssetMergedPayload struct {
	PortfolioID string
	AssetID     string
	MergedFrom  []string
}

type AssetPriceUpdatedPayload struct {
	PortfolioID string
	AssetID     string
	Price       Price
}

type IntegrationEventPayload struct {
	Source string
	Err    string
}

type AddressEventPayload struct {
	Chain   string
	Address string
	Label   string
}

type SyncCycleStartedPayload struct {
	Providers []string
	Scheduled bool
}

type SyncCycleCompletedPayload struct {
	Succeeded []string
	Failed    []string
	Errors    map[string]string
	Duration  time.Duration
}

type CircuitBreakerEventPayload struct {
	Provider string
	State    string
}
