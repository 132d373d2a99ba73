// Package domain holds the core entities of the funding-rate arbitrage
// platform: funding rates, spreads, opportunities, positions, legs,
// allocations and capital pools. Nothing here talks to a database, an
// exchange or the network; it is pure data plus the invariants each
// entity carries.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FundingRateSource identifies which feed produced a FundingRate.
type FundingRateSource string

const (
	SourceExchangeAPI FundingRateSource = "exchange_api"
	SourceReference   FundingRateSource = "reference"
)

// Hard bounds a validated funding rate must fall within.
var (
	MaxAbsRate     = decimal.NewFromFloat(0.01)  // ±1%
	ExtremeRate    = decimal.NewFromFloat(0.005)  // |rate| > 0.5% flagged extreme
	StaleAfter     = 5 * time.Minute
	DegradedAfter  = 2 * time.Minute
)

// FundingRate is one venue's funding rate for one symbol at a point in time.
type FundingRate struct {
	Exchange             string            `json:"exchange" db:"exchange"`
	Symbol               string            `json:"symbol" db:"symbol"`
	Ticker               string            `json:"ticker" db:"ticker"`
	Rate                 decimal.Decimal   `json:"rate" db:"rate"`
	NextFundingTime      time.Time         `json:"next_funding_time" db:"next_funding_time"`
	FundingIntervalHours int               `json:"funding_interval_hours" db:"funding_interval_hours"`
	Source               FundingRateSource `json:"source" db:"source"`
	Timestamp            time.Time         `json:"timestamp" db:"timestamp"`
	PredictedRate        *decimal.Decimal  `json:"predicted_rate,omitempty" db:"predicted_rate"`
}

// RateAnnualized derives the annualized rate: rate * (24/interval) * 365.
func (f FundingRate) RateAnnualized() decimal.Decimal {
	if f.FundingIntervalHours <= 0 {
		return decimal.Zero
	}
	periodsPerYear := decimal.NewFromInt(24).
		Div(decimal.NewFromInt(int64(f.FundingIntervalHours))).
		Mul(decimal.NewFromInt(365))
	return f.Rate.Mul(periodsPerYear)
}

// IsExtreme reports whether |rate| exceeds the 0.5% extreme-flag threshold.
func (f FundingRate) IsExtreme() bool {
	return f.Rate.Abs().GreaterThan(ExtremeRate)
}

// IsWithinBounds reports whether the rate falls within the ±1% hard
// bound; a rate exactly at the bound validates.
func (f FundingRate) IsWithinBounds() bool {
	return f.Rate.Abs().LessThanOrEqual(MaxAbsRate)
}

// IsStale reports whether the rate is older than the staleness threshold.
func (f FundingRate) IsStale(now time.Time) bool {
	return now.Sub(f.Timestamp) > StaleAfter
}

// deriveTicker extracts the base asset from a symbol such as "BTC/USDT:USDT".
func deriveTicker(symbol string) string {
	s := symbol
	for _, suffix := range []string{":USDT", ":USD"} {
		if i := indexOf(s, suffix); i >= 0 {
			s = s[:i]
		}
	}
	if i := indexOf(s, "/"); i >= 0 {
		return s[:i]
	}
	return s
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

// NewFundingRate constructs a FundingRate, always deriving Ticker from
// Symbol, matching the Python model's model_post_init normalization.
func NewFundingRate(exchange, symbol string, rate decimal.Decimal, interval int, source FundingRateSource, ts time.Time) FundingRate {
	return FundingRate{
		Exchange:             exchange,
		Symbol:               symbol,
		Ticker:               deriveTicker(symbol),
		Rate:                 rate,
		FundingIntervalHours: interval,
		Source:               source,
		Timestamp:            ts,
	}
}

// UnifiedFundingSnapshot is the reconciled view of funding rates across all
// sources: symbol -> exchange -> FundingRate. Invariant: each inner mapping
// holds at most one entry per (symbol, exchange).
type UnifiedFundingSnapshot struct {
	Rates             map[string]map[string]FundingRate `json:"rates"`
	FetchedAt         time.Time                          `json:"fetched_at"`
	Discrepancies     []ReconciliationConflict           `json:"discrepancies"`
	ExchangesHealthy  map[string]bool                    `json:"exchanges_healthy"`
	PrimaryRateCount  int                                `json:"primary_rate_count"`
	ReferenceRateCount int                                `json:"reference_rate_count"`
}

// ReconciliationConflict records a >20% relative disagreement between
// primary and secondary sources for the same (symbol, exchange) key.
type ReconciliationConflict struct {
	Exchange         string          `json:"exchange"`
	Symbol           string          `json:"symbol"`
	PrimaryRate      decimal.Decimal `json:"primary_rate"`
	SecondaryRate    decimal.Decimal `json:"secondary_rate"`
	DiscrepancyPct   decimal.Decimal `json:"discrepancy_pct"`
	Timestamp        time.Time       `json:"timestamp"`
}

// GetRate returns the reconciled rate for a (symbol, exchange) pair.
func (s UnifiedFundingSnapshot) GetRate(symbol, exchange string) (FundingRate, bool) {
	byExchange, ok := s.Rates[symbol]
	if !ok {
		return FundingRate{}, false
	}
	rate, ok := byExchange[exchange]
	return rate, ok
}

// IsEmpty reports whether the snapshot carries no rates at all; the
// aggregator only publishes snapshots while this is false.
func (s UnifiedFundingSnapshot) IsEmpty() bool {
	return len(s.Rates) == 0
}
