package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CapitalPoolType names one of the four capital pools.
type CapitalPoolType string

const (
	PoolReserve CapitalPoolType = "reserve"
	PoolActive  CapitalPoolType = "active"
	PoolPending CapitalPoolType = "pending"
	PoolTransit CapitalPoolType = "transit"
)

// AllocationStatus is the lifecycle state of an Allocation.
type AllocationStatus string

const (
	AllocReserved  AllocationStatus = "reserved"
	AllocDeployed  AllocationStatus = "deployed"
	AllocReleasing AllocationStatus = "releasing"
	AllocReleased  AllocationStatus = "released"
)

// CapitalPool is a segment of total capital, broken down per venue.
type CapitalPool struct {
	PoolType     CapitalPoolType            `json:"pool_type"`
	TotalValueUSD decimal.Decimal           `json:"total_value_usd"`
	Venues       map[string]decimal.Decimal `json:"venues"`
}

// Available returns the pool's balance for a venue, or its total when venue
// is empty.
func (p CapitalPool) Available(venue string) decimal.Decimal {
	if venue == "" {
		return p.TotalValueUSD
	}
	if v, ok := p.Venues[venue]; ok {
		return v
	}
	return decimal.Zero
}

// CapitalHealth classifies the reserve pool's adequacy.
type CapitalHealth string

const (
	CapitalHealthOK       CapitalHealth = "ok"
	CapitalHealthLow      CapitalHealth = "low"
	CapitalHealthCritical CapitalHealth = "critical"
)

// ReserveTargetPct is the minimum fraction of total capital the reserve
// pool must hold to be considered healthy.
const ReserveTargetPct = 0.10

// CapitalState is the allocator's full view of capital across all pools.
type CapitalState struct {
	Reserve      CapitalPool `json:"reserve"`
	Active       CapitalPool `json:"active"`
	Pending      CapitalPool `json:"pending"`
	Transit      CapitalPool `json:"transit"`
	TotalCapital decimal.Decimal `json:"total_capital_usd"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Sum adds the four pool totals, used to check mass conservation across
// the reserve/active/pending/transit pools.
func (c CapitalState) Sum() decimal.Decimal {
	return c.Reserve.TotalValueUSD.
		Add(c.Active.TotalValueUSD).
		Add(c.Pending.TotalValueUSD).
		Add(c.Transit.TotalValueUSD)
}

// ReserveHealth classifies the reserve pool relative to total capital.
func (c CapitalState) ReserveHealth() CapitalHealth {
	if c.TotalCapital.IsZero() {
		return CapitalHealthCritical
	}
	pct := c.Reserve.TotalValueUSD.Div(c.TotalCapital)
	target := decimal.NewFromFloat(ReserveTargetPct)
	switch {
	case pct.GreaterThanOrEqual(target):
		return CapitalHealthOK
	case pct.GreaterThanOrEqual(target.Mul(decimal.NewFromFloat(0.5))):
		return CapitalHealthLow
	default:
		return CapitalHealthCritical
	}
}

// Allocation is a reservation of capital against an Opportunity or Position.
type Allocation struct {
	ID                 string           `json:"id" db:"id"`
	OpportunityID      *string          `json:"opportunity_id,omitempty" db:"opportunity_id"`
	PositionID         *string          `json:"position_id,omitempty" db:"position_id"`
	Symbol             string           `json:"symbol" db:"symbol"`
	Venue              string           `json:"venue" db:"venue"`
	AmountUSD          decimal.Decimal  `json:"amount_usd" db:"amount_usd"`
	Status             AllocationStatus `json:"status" db:"status"`
	AllocatedAt        time.Time        `json:"allocated_at" db:"allocated_at"`
	DeployedAt         *time.Time       `json:"deployed_at,omitempty" db:"deployed_at"`
	ReleasedAt         *time.Time       `json:"released_at,omitempty" db:"released_at"`
	Expiry             *time.Time       `json:"expiry,omitempty" db:"expiry"`
	RealizedFundingPnL *decimal.Decimal `json:"realized_funding_pnl,omitempty" db:"realized_funding_pnl"`
	UnrealizedPnL      *decimal.Decimal `json:"unrealized_pnl,omitempty" db:"unrealized_pnl"`
}

// IsExpired reports whether a reserved allocation has passed its
// reservation-window expiry without being confirmed.
func (a Allocation) IsExpired(now time.Time) bool {
	if a.Status != AllocReserved || a.Expiry == nil {
		return false
	}
	return now.After(*a.Expiry)
}

// DefaultReservationTTL is five minutes: shorter than the detector's
// 30-minute opportunity TTL, but long enough for a reservation to outlive
// a single detection cycle.
const DefaultReservationTTL = 5 * time.Minute
