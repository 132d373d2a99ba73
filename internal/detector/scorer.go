package detector

import (
	"github.com/sawpanic/nexus/internal/domain"
)

// Score computes the four-part Unified Opportunity Score for a spread
// given the current capital/concurrency context: return 0-30, risk 0-30,
// execution 0-25, timing 0-15.
func Score(spread domain.Spread, allocCtx AllocationContext) domain.UOSBreakdown {
	return domain.UOSBreakdown{
		ReturnScore:    returnScore(spread),
		RiskScore:      riskScore(spread),
		ExecutionScore: executionScore(allocCtx),
		TimingScore:    timingScore(spread),
	}
}

// returnScore bands the annualized APR into 0-30.
func returnScore(spread domain.Spread) float64 {
	apr, _ := spread.AnnualizedAPR.Float64()
	switch {
	case apr >= 50:
		return 30
	case apr >= 30:
		return 24
	case apr >= 15:
		return 18
	case apr >= 8:
		return 12
	case apr >= 3:
		return 6
	default:
		return 0
	}
}

// riskScore rewards a tighter, more stable spread: a wide spread between
// two otherwise-uncorrelated venues carries more reversal risk than a
// narrow persistent one, so risk score here bands on spread_pct.
func riskScore(spread domain.Spread) float64 {
	pct, _ := spread.SpreadPct.Float64()
	switch {
	case pct <= 0.05:
		return 30
	case pct <= 0.15:
		return 24
	case pct <= 0.3:
		return 18
	case pct <= 0.6:
		return 10
	default:
		return 4
	}
}

// executionScore rewards available capital headroom and concurrent-coin
// slack; a detector with no remaining concurrent-coin slots still scores
// the opportunity (it may queue) but at a discount.
func executionScore(allocCtx AllocationContext) float64 {
	if allocCtx.MaxConcurrentCoins <= 0 {
		return 12.5 // neutral mid-score when allocator context is unavailable
	}
	slack := float64(allocCtx.MaxConcurrentCoins-allocCtx.ConcurrentCoins) / float64(allocCtx.MaxConcurrentCoins)
	switch {
	case slack >= 0.5:
		return 25
	case slack >= 0.25:
		return 18
	case slack > 0:
		return 10
	default:
		return 0
	}
}

// timingScore returns 15 when the long and short rates share a sign and 7
// otherwise. Neither the funding interval nor the time to the next funding
// is considered.
func timingScore(spread domain.Spread) float64 {
	if spread.LongRate.IsNegative() == spread.ShortRate.IsNegative() {
		return 15 // both legs agree on sign: the spread is a genuine rate gap, not a sign flip
	}
	return 7
}
