package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityStatus is the lifecycle state of an Opportunity.
type OpportunityStatus string

const (
	OppDetected  OpportunityStatus = "detected"
	OppValidated OpportunityStatus = "validated"
	OppScored    OpportunityStatus = "scored"
	OppAllocated OpportunityStatus = "allocated"
	OppExecuting OpportunityStatus = "executing"
	OppExecuted  OpportunityStatus = "executed"
	OppClosed    OpportunityStatus = "closed"
	OppExpired   OpportunityStatus = "expired"
	OppRejected  OpportunityStatus = "rejected"
)

// terminalOpportunityStatuses are statuses an Opportunity never leaves.
var terminalOpportunityStatuses = map[OpportunityStatus]bool{
	OppClosed:   true,
	OppExpired:  true,
	OppRejected: true,
}

// IsTerminal reports whether a status is a terminal lifecycle state.
func (s OpportunityStatus) IsTerminal() bool {
	return terminalOpportunityStatuses[s]
}

// allowedOpportunityTransitions enumerates the permitted predecessor set
// for each status, read by CanTransition. The execution engine checks it
// before executing; other status writes assign the status directly.
var allowedOpportunityTransitions = map[OpportunityStatus]map[OpportunityStatus]bool{
	OppValidated: {OppDetected: true},
	OppScored:    {OppDetected: true, OppValidated: true},
	OppAllocated: {OppScored: true, OppValidated: true, OppDetected: true},
	OppExecuting: {OppAllocated: true, OppScored: true, OppValidated: true, OppDetected: true},
	OppExecuted:  {OppExecuting: true},
	OppClosed:    {OppExecuted: true},
	OppExpired:   {OppDetected: true, OppValidated: true, OppScored: true, OppAllocated: true, OppExecuting: true},
	OppRejected:  {OppDetected: true, OppValidated: true, OppScored: true, OppAllocated: true, OppExecuting: true},
}

// CanTransition reports whether an Opportunity may move from `from` to `to`.
func CanTransition(from, to OpportunityStatus) bool {
	if from.IsTerminal() {
		return false
	}
	allowed, ok := allowedOpportunityTransitions[to]
	if !ok {
		return false
	}
	return allowed[from]
}

// UOSBreakdown is the four-part Unified Opportunity Score composition.
type UOSBreakdown struct {
	ReturnScore    float64 `json:"return_score" db:"return_score"`       // 0-30
	RiskScore      float64 `json:"risk_score" db:"risk_score"`           // 0-30
	ExecutionScore float64 `json:"execution_score" db:"execution_score"` // 0-25
	TimingScore    float64 `json:"timing_score" db:"timing_score"`       // 0-15
}

// Total sums the four components.
func (b UOSBreakdown) Total() float64 {
	return b.ReturnScore + b.RiskScore + b.ExecutionScore + b.TimingScore
}

// QualityLabel buckets the total UOS score into a human-readable tier.
func (b UOSBreakdown) QualityLabel() string {
	total := b.Total()
	switch {
	case total >= 80:
		return "exceptional"
	case total >= 60:
		return "strong"
	case total >= 40:
		return "moderate"
	case total >= 20:
		return "weak"
	default:
		return "poor"
	}
}

// Leg side used within an Opportunity to describe which venue takes which
// directional side before a Position exists.
type OpportunityLeg struct {
	Exchange string `json:"exchange"`
	Side     string `json:"side"` // "long" or "short"
}

// Opportunity is a candidate cross-exchange funding arbitrage trade.
type Opportunity struct {
	ID                  string            `json:"id" db:"id"`
	Symbol              string            `json:"symbol" db:"symbol"`
	LongExchange        string            `json:"long_exchange" db:"long_exchange"`
	ShortExchange       string            `json:"short_exchange" db:"short_exchange"`
	FundingSpread       decimal.Decimal   `json:"funding_spread" db:"funding_spread"`
	FundingSpreadPct    decimal.Decimal   `json:"funding_spread_pct" db:"funding_spread_pct"`
	EstimatedNetAPR     decimal.Decimal   `json:"estimated_net_apr" db:"estimated_net_apr"`
	UOSScore            float64           `json:"uos_score" db:"uos_score"`
	UOSBreakdown        UOSBreakdown      `json:"uos_breakdown"`
	RecommendedSizeUSD  decimal.Decimal   `json:"recommended_size_usd" db:"recommended_size_usd"`
	DetectedAt          time.Time         `json:"detected_at" db:"detected_at"`
	ExpiresAt           time.Time         `json:"expires_at" db:"expires_at"`
	Status              OpportunityStatus `json:"status" db:"status"`
	DataSource          FundingRateSource `json:"data_source" db:"data_source"`
	ExpireReason        string            `json:"expire_reason,omitempty" db:"expire_reason"`
}

// IdentityKey is the uniqueness key: (symbol, long_exchange, short_exchange).
// Detection is idempotent over this key among non-terminal opportunities.
func (o Opportunity) IdentityKey() string {
	return o.Symbol + "|" + o.LongExchange + "|" + o.ShortExchange
}

// IsExpired reports whether the opportunity's expiry has passed as of now.
func (o Opportunity) IsExpired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

// DefaultOpportunityTTL is the expiry window unless refreshed.
const DefaultOpportunityTTL = 30 * time.Minute

// RecommendedSize maps a UOS total and the configured max position size to
// a recommended notional.
func RecommendedSize(uosTotal float64, maxPositionUSD decimal.Decimal) decimal.Decimal {
	switch {
	case uosTotal >= 80:
		return maxPositionUSD
	case uosTotal >= 70:
		return maxPositionUSD.Mul(decimal.NewFromFloat(0.5))
	case uosTotal >= 60:
		return maxPositionUSD.Mul(decimal.NewFromFloat(0.2))
	default:
		return maxPositionUSD.Mul(decimal.NewFromFloat(0.1))
	}
}
