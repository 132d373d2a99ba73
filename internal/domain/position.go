package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionStatus is the lifecycle state of a Position.
type PositionStatus string

const (
	PosPending        PositionStatus = "pending"
	PosOpening        PositionStatus = "opening"
	PosActive         PositionStatus = "active"
	PosClosing        PositionStatus = "closing"
	PosClosed         PositionStatus = "closed"
	PosFailed         PositionStatus = "failed"
	PosEmergencyClose PositionStatus = "emergency_close"
	PosCancelled      PositionStatus = "cancelled"
)

// HealthStatus ranks how close a Position is to requiring intervention.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthAttention HealthStatus = "attention"
	HealthWarning   HealthStatus = "warning"
	HealthCritical  HealthStatus = "critical"
)

// ExitReason names why a Position was closed.
type ExitReason string

const (
	ExitCriticalHealth       ExitReason = "critical_health"
	ExitFundingBelowThreshold ExitReason = "funding_below_threshold"
	ExitStopLoss             ExitReason = "stop_loss"
	ExitTakeProfit           ExitReason = "take_profit"
	ExitMaxHoldTime          ExitReason = "max_hold_time"
	ExitManual               ExitReason = "manual"
	ExitAutoUnwind           ExitReason = "auto_unwind"
)

// Position is an active (or historical) delta-neutral two-leg trade.
type Position struct {
	ID                      string         `json:"id" db:"id"`
	OpportunityID           string         `json:"opportunity_id" db:"opportunity_id"`
	Symbol                  string         `json:"symbol" db:"symbol"`
	Status                  PositionStatus `json:"status" db:"status"`
	HealthStatus            HealthStatus   `json:"health_status" db:"health_status"`
	TotalCapitalDeployed    decimal.Decimal `json:"total_capital_deployed" db:"total_capital_deployed"`
	FundingReceived         decimal.Decimal `json:"funding_received" db:"funding_received"`
	FundingPaid             decimal.Decimal `json:"funding_paid" db:"funding_paid"`
	EntryCosts              decimal.Decimal `json:"entry_costs" db:"entry_costs"`
	ExitCosts               decimal.Decimal `json:"exit_costs" db:"exit_costs"`
	RealizedPnLFunding      decimal.Decimal `json:"realized_pnl_funding" db:"realized_pnl_funding"`
	RealizedPnLPrice        decimal.Decimal `json:"realized_pnl_price" db:"realized_pnl_price"`
	OpenedAt                time.Time      `json:"opened_at" db:"opened_at"`
	ClosedAt                *time.Time     `json:"closed_at,omitempty" db:"closed_at"`
	ExitReason              ExitReason     `json:"exit_reason,omitempty" db:"exit_reason"`
	FundingPeriodsCollected int            `json:"funding_periods_collected" db:"funding_periods_collected"`
	PositionType            string         `json:"position_type,omitempty" db:"position_type"` // "" for normal, "single_leg" for orphan remainder
}

// NetFundingPnL is funding received minus funding paid.
func (p Position) NetFundingPnL() decimal.Decimal {
	return p.FundingReceived.Sub(p.FundingPaid)
}

// ReturnPct is realized pnl (funding + price) as a percentage of deployed
// capital; used by the stop-loss / take-profit exit triggers.
func (p Position) ReturnPct() decimal.Decimal {
	if p.TotalCapitalDeployed.IsZero() {
		return decimal.Zero
	}
	total := p.RealizedPnLFunding.Add(p.RealizedPnLPrice)
	return total.Div(p.TotalCapitalDeployed).Mul(decimal.NewFromInt(100))
}

// HoursHeld returns the hours elapsed since OpenedAt as of `now`.
func (p Position) HoursHeld(now time.Time) float64 {
	return now.Sub(p.OpenedAt).Hours()
}

// AverageFundingPerPeriod divides net funding pnl by periods collected,
// guarding against division by zero.
func (p Position) AverageFundingPerPeriod() decimal.Decimal {
	if p.FundingPeriodsCollected <= 0 {
		return decimal.Zero
	}
	return p.NetFundingPnL().Div(decimal.NewFromInt(int64(p.FundingPeriodsCollected)))
}

// FundingPayment records a single funding settlement applied to a Leg.
type FundingPayment struct {
	ID            string          `json:"id" db:"id"`
	PositionID    string          `json:"position_id" db:"position_id"`
	LegID         string          `json:"leg_id" db:"leg_id"`
	Exchange      string          `json:"exchange" db:"exchange"`
	Symbol        string          `json:"symbol" db:"symbol"`
	FundingRate   decimal.Decimal `json:"funding_rate" db:"funding_rate"`
	PaymentAmount decimal.Decimal `json:"payment_amount" db:"payment_amount"` // signed: + received, - paid
	Timestamp     time.Time       `json:"timestamp" db:"timestamp"`
}

// InteractionLogEntry is an append-only narrative row for "why did it do
// that" views: one per health check, exit evaluation, funding event,
// rebalance, or exit trigger.
type InteractionLogEntry struct {
	ID         string            `json:"id" db:"id"`
	PositionID string            `json:"position_id" db:"position_id"`
	Timestamp  time.Time         `json:"timestamp" db:"timestamp"`
	Type       string            `json:"type" db:"type"`
	Worker     string            `json:"worker" db:"worker"`
	Decision   string            `json:"decision" db:"decision"`
	Narrative  string            `json:"narrative" db:"narrative"`
	Metrics    map[string]string `json:"metrics,omitempty" db:"-"`
}
