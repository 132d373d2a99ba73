// Package store defines the persistence boundary between the trading
// subsystems and Postgres: one narrow interface per aggregate so each
// component depends only on the operations it actually performs. The
// postgres subpackage provides the sqlx/lib-pq backed implementation.
package store

import (
	"context"

	"github.com/sawpanic/nexus/internal/domain"
)

// OpportunityStore persists Opportunity lifecycle state.
type OpportunityStore interface {
	Upsert(ctx context.Context, opp *domain.Opportunity) error
	Get(ctx context.Context, id string) (domain.Opportunity, error)
	UpdateStatus(ctx context.Context, id string, status domain.OpportunityStatus) error
	ListActive(ctx context.Context) ([]domain.Opportunity, error)
}

// PositionStore persists Position and Leg rows.
type PositionStore interface {
	Create(ctx context.Context, pos *domain.Position, legs []domain.Leg) error
	Get(ctx context.Context, id string) (domain.Position, []domain.Leg, error)
	UpdateStatus(ctx context.Context, id string, status domain.PositionStatus, reason domain.ExitReason) error
	ListOpen(ctx context.Context) ([]domain.Position, error)
	UpdateLegs(ctx context.Context, legs []domain.Leg) error
	RecordFundingPayment(ctx context.Context, p domain.FundingPayment) error
	AppendInteraction(ctx context.Context, entry domain.InteractionLogEntry) error
}

// ExchangeTruthStore persists the exchange-side mirrors used by
// reconciliation.
type ExchangeTruthStore interface {
	UpsertPosition(ctx context.Context, p domain.ExchangePosition) error
	UpsertOrder(ctx context.Context, o domain.ExchangeOrder) error
	ListPositions(ctx context.Context, exchange string) ([]domain.ExchangePosition, error)
	ListOrders(ctx context.Context, exchange string) ([]domain.ExchangeOrder, error)
}

// CapitalStore persists pool balances and allocations.
type CapitalStore interface {
	GetState(ctx context.Context) (domain.CapitalState, error)
	SaveState(ctx context.Context, s domain.CapitalState) error
	CreateAllocation(ctx context.Context, a domain.Allocation) error
	UpdateAllocation(ctx context.Context, a domain.Allocation) error
	ListActiveAllocations(ctx context.Context) ([]domain.Allocation, error)
}

// RiskStore persists the risk limits singleton and blacklist.
type RiskStore interface {
	GetLimits(ctx context.Context) (domain.RiskLimits, error)
	SaveLimits(ctx context.Context, l domain.RiskLimits) error
	BlacklistStore
}

// BlacklistStore is split out of RiskStore so the Detector can depend on
// it alone without pulling in the rest of the risk surface.
type BlacklistStore interface {
	ListSymbols(ctx context.Context) ([]string, error)
	Add(ctx context.Context, entry domain.BlacklistEntry) error
	Remove(ctx context.Context, symbol string) error
}

// ActivityStore persists the audit trail: activity events and execution
// logs, the append-only narrative the Non-goals frontend surfaces.
type ActivityStore interface {
	RecordActivity(ctx context.Context, kind, message string, meta map[string]string) error
	RecordExecutionLog(ctx context.Context, opportunityID string, step, outcome, detail string) error
}
