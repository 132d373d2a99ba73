// Package events implements the platform's pub/sub control plane: typed
// topics carrying JSON payloads, at-least-once delivery within a single
// process, with an optional Redis-backed Bus for cross-service delivery
// on a best-effort, idempotent-handler basis.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Topic names used across the platform's subsystems.
const (
	TopicFundingRate        = "market_data.funding_rate"
	TopicUnifiedSnapshot    = "market_data.unified_snapshot"
	TopicSpreadCache        = "cache.funding_spreads"
	TopicOpportunityDetected = "opportunity.detected"
	TopicOpportunityUpdated  = "opportunity.updated"
	TopicOpportunityExpired  = "opportunity.expired"
	TopicExecutionRequest    = "execution.request"
	TopicPositionOpened      = "position.opened"
	TopicPositionClosed      = "position.closed"
	TopicCapitalBalanceUpdate = "capital.balance_update"
	TopicRiskLimitsUpdated   = "config.risk_limits_updated"
	TopicBlacklistChanged    = "config.blacklist_changed"
	TopicAggregatorHealth    = "system.aggregator_health"
	TopicReconciliationAlert = "reconciliation.alert"
	TopicActivity            = "activity"
)

// Message is one published event: a topic, a monotonic version for
// idempotent handlers, and a JSON payload.
type Message struct {
	Topic     string
	Key       string
	Version   int64
	Payload   []byte
	Timestamp time.Time
}

// Handler processes a delivered Message. Handlers must be idempotent on
// (Key, Version) since delivery is at-least-once.
type Handler func(ctx context.Context, msg Message) error

// Bus is the minimal pub/sub surface every component depends on.
type Bus interface {
	Publish(ctx context.Context, topic, key string, payload any) error
	Subscribe(topic string, handler Handler)
	Close() error
}

// InMemoryBus fans out published messages synchronously to every
// subscriber of a topic, from whichever goroutine calls Publish. Each
// component owns its maps; the bus itself is the only shared structure
// and is protected by a single mutex guarding the subscriber lists.
type InMemoryBus struct {
	mu          sync.RWMutex
	subscribers map[string][]Handler
	versions    map[string]int64
}

// NewInMemoryBus constructs an in-process event bus.
func NewInMemoryBus() *InMemoryBus {
	return &InMemoryBus{
		subscribers: make(map[string][]Handler),
		versions:    make(map[string]int64),
	}
}

// Publish marshals payload to JSON and delivers it to every subscriber of
// topic. Handler errors are discarded without being logged; Publish
// itself returns only marshalling errors.
func (b *InMemoryBus) Publish(ctx context.Context, topic, key string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.versions[topic]++
	version := b.versions[topic]
	handlers := append([]Handler(nil), b.subscribers[topic]...)
	b.mu.Unlock()

	msg := Message{Topic: topic, Key: key, Version: version, Payload: data, Timestamp: time.Now()}
	for _, h := range handlers {
		_ = h(ctx, msg)
	}
	return nil
}

// Subscribe registers handler for topic. Subscriptions are append-only for
// the lifetime of the bus; components subscribe once during Start.
func (b *InMemoryBus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], handler)
}

// Close is a no-op for the in-memory bus; it exists to satisfy Bus.
func (b *InMemoryBus) Close() error { return nil }

// Decode is a helper for handlers to unmarshal a Message's payload.
func Decode[T any](msg Message) (T, error) {
	var v T
	err := json.Unmarshal(msg.Payload, &v)
	return v, err
}
