// Package position implements the Position Manager: periodic sync with
// exchange-side truth, reconciliation, health evaluation and exit
// evaluation for every open Position. Funding payments are not collected
// or recorded by this package. The exit
// precedence scheme here is adapted from a single-leg momentum exit
// evaluator's "first trigger wins, narrative TriggeredBy string" design,
// generalized to the funding-arbitrage trigger set.
package position

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/nexus/internal/domain"
)

// ExitConfig bounds the per-position exit evaluation thresholds, sourced
// from the active domain.RiskLimits row.
type ExitConfig struct {
	StopLossPct          decimal.Decimal
	TakeProfitPct        decimal.Decimal
	TargetFundingRateMin decimal.Decimal
	MaxHoldPeriods       int
}

func ExitConfigFromLimits(l domain.RiskLimits) ExitConfig {
	return ExitConfig{
		StopLossPct:          l.StopLossPct,
		TakeProfitPct:        l.TakeProfitPct,
		TargetFundingRateMin: l.TargetFundingRateMin,
		MaxHoldPeriods:       l.MaxHoldPeriods,
	}
}

// ExitResult is the outcome of one exit evaluation pass over a Position.
type ExitResult struct {
	ShouldExit  bool
	Reason      domain.ExitReason
	TriggeredBy string
}

// EvaluateExit checks the exit triggers top to bottom; the first matching
// trigger wins, a single-match-wins exit evaluator.
func EvaluateExit(pos domain.Position, legs []domain.Leg, avgFundingRate decimal.Decimal, cfg ExitConfig, now time.Time) ExitResult {
	if pos.HealthStatus == domain.HealthCritical {
		return ExitResult{
			ShouldExit: true, Reason: domain.ExitCriticalHealth,
			TriggeredBy: "position health classified critical: delta, margin, or liquidation distance breached",
		}
	}

	returnPct := pos.ReturnPct()
	if returnPct.LessThanOrEqual(cfg.StopLossPct.Neg().Mul(decimal.NewFromInt(100))) {
		return ExitResult{
			ShouldExit: true, Reason: domain.ExitStopLoss,
			TriggeredBy: fmt.Sprintf("return %.2f%% breached stop loss -%.2f%%", f64(returnPct), f64(cfg.StopLossPct.Mul(decimal.NewFromInt(100)))),
		}
	}

	if avgFundingRate.LessThan(cfg.TargetFundingRateMin) {
		return ExitResult{
			ShouldExit: true, Reason: domain.ExitFundingBelowThreshold,
			TriggeredBy: fmt.Sprintf("average funding rate %s fell below target minimum %s", avgFundingRate.String(), cfg.TargetFundingRateMin.String()),
		}
	}

	if returnPct.GreaterThanOrEqual(cfg.TakeProfitPct.Mul(decimal.NewFromInt(100))) {
		return ExitResult{
			ShouldExit: true, Reason: domain.ExitTakeProfit,
			TriggeredBy: fmt.Sprintf("return %.2f%% reached take profit %.2f%%", f64(returnPct), f64(cfg.TakeProfitPct.Mul(decimal.NewFromInt(100)))),
		}
	}

	if cfg.MaxHoldPeriods > 0 && pos.FundingPeriodsCollected >= cfg.MaxHoldPeriods {
		return ExitResult{
			ShouldExit: true, Reason: domain.ExitMaxHoldTime,
			TriggeredBy: fmt.Sprintf("held for %d funding periods, at or past the %d-period limit", pos.FundingPeriodsCollected, cfg.MaxHoldPeriods),
		}
	}

	return ExitResult{ShouldExit: false, Reason: "", TriggeredBy: ""}
}

func f64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// EvaluateHealth classifies a Position's health from its legs' net delta
// exposure and liquidation distance into healthy/attention/warning/
// critical bands.
func EvaluateHealth(legs []domain.Leg) domain.HealthStatus {
	delta := domain.NetDeltaPct(legs)
	worst := domain.HealthHealthy

	deltaTolerance := decimal.NewFromFloat(domain.DeltaTolerance * 100)
	switch {
	case delta.GreaterThan(deltaTolerance.Mul(decimal.NewFromInt(3))):
		worst = domain.HealthCritical
	case delta.GreaterThan(deltaTolerance.Mul(decimal.NewFromInt(2))):
		worst = downgrade(worst, domain.HealthWarning)
	case delta.GreaterThan(deltaTolerance):
		worst = downgrade(worst, domain.HealthAttention)
	}

	for _, leg := range legs {
		distPct := leg.LiquidationDistancePct()
		if distPct == nil {
			continue
		}
		switch {
		case distPct.LessThan(decimal.NewFromInt(5)):
			worst = domain.HealthCritical
		case distPct.LessThan(decimal.NewFromInt(15)):
			worst = downgrade(worst, domain.HealthWarning)
		case distPct.LessThan(decimal.NewFromInt(30)):
			worst = downgrade(worst, domain.HealthAttention)
		}
	}
	return worst
}

var healthRank = map[domain.HealthStatus]int{
	domain.HealthHealthy:   0,
	domain.HealthAttention: 1,
	domain.HealthWarning:   2,
	domain.HealthCritical:  3,
}

func downgrade(current, candidate domain.HealthStatus) domain.HealthStatus {
	if healthRank[candidate] > healthRank[current] {
		return candidate
	}
	return current
}
