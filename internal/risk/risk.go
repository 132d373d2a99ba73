// Package risk implements the Risk Manager: a pre-trade validation
// checklist, a layered circuit breaker over the whole platform's
// auto-execute path, and a stress-test scenario runner.
package risk

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/rs/zerolog"

	"github.com/sawpanic/nexus/internal/domain"
	"github.com/sawpanic/nexus/internal/events"
	"github.com/sawpanic/nexus/internal/logging"
	"github.com/sawpanic/nexus/internal/store"
)

// Violation is one failed pre-trade check.
type Violation struct {
	Check   string `json:"check"`
	Detail  string `json:"detail"`
}

// ValidationResult is the outcome of ValidateTrade: a trade is rejected if
// Violations is non-empty.
type ValidationResult struct {
	Approved   bool        `json:"approved"`
	Violations []Violation `json:"violations"`
}

// PortfolioExposure is the current exposure the validator checks proposed
// trades against, supplied by the caller (position manager / capital
// allocator) rather than computed here, keeping this package free of a
// dependency on either.
type PortfolioExposure struct {
	TotalCapitalUSD    decimal.Decimal            `json:"total_capital_usd"`
	GrossExposureUSD   decimal.Decimal            `json:"gross_exposure_usd"`
	VenueExposureUSD   map[string]decimal.Decimal `json:"venue_exposure_usd"`
	AssetExposureUSD   map[string]decimal.Decimal `json:"asset_exposure_usd"`
	CurrentDrawdownPct decimal.Decimal            `json:"current_drawdown_pct"`
}

// Manager owns the active RiskLimits row, the blacklist, and the circuit
// breaker gating auto-execution.
type Manager struct {
	store   store.RiskStore
	bus     events.Bus
	log     zerolog.Logger
	breaker *Breaker
}

// New constructs a Manager with a fresh Breaker.
func New(st store.RiskStore, bus events.Bus) *Manager {
	return &Manager{store: st, bus: bus, log: logging.Component("risk_manager"), breaker: NewBreaker(DefaultBreakerConfig())}
}

// Breaker exposes the underlying circuit breaker for Execute-wrapped calls
// and manual trip/reset from the operator-facing API.
func (m *Manager) Breaker() *Breaker { return m.breaker }

// ValidateTrade runs the pre-trade checklist: size
// limits, leverage cap, venue/asset/gross concentration, drawdown, and
// blacklist membership, against a proposed trade of sizeUSD on symbol
// using venues long/short at leverage.
func (m *Manager) ValidateTrade(ctx context.Context, symbol, longVenue, shortVenue string, sizeUSD, leverage decimal.Decimal, exposure PortfolioExposure) (ValidationResult, error) {
	if m.breaker.IsOpen() {
		return ValidationResult{Approved: false, Violations: []Violation{{Check: "circuit_breaker", Detail: "circuit breaker is open, auto-execution suspended"}}}, nil
	}

	limits, err := m.store.GetLimits(ctx)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("load risk limits: %w", err)
	}

	blacklisted, err := m.store.ListSymbols(ctx)
	if err != nil {
		return ValidationResult{}, fmt.Errorf("load blacklist: %w", err)
	}
	for _, b := range blacklisted {
		if b == symbol {
			return ValidationResult{Approved: false, Violations: []Violation{{Check: "blacklist", Detail: symbol + " is blacklisted"}}}, nil
		}
	}

	var violations []Violation

	if sizeUSD.GreaterThan(limits.MaxPositionSizeUSD) {
		violations = append(violations, Violation{Check: "max_position_size_usd", Detail: fmt.Sprintf("%s exceeds cap %s", sizeUSD, limits.MaxPositionSizeUSD)})
	}
	if !exposure.TotalCapitalUSD.IsZero() {
		pct := sizeUSD.Div(exposure.TotalCapitalUSD)
		if pct.GreaterThan(limits.MaxPositionSizePct) {
			violations = append(violations, Violation{Check: "max_position_size_pct", Detail: fmt.Sprintf("%.2f%% of capital exceeds cap %.2f%%", f64(pct)*100, f64(limits.MaxPositionSizePct)*100)})
		}
	}
	if leverage.GreaterThan(limits.MaxLeverage) {
		violations = append(violations, Violation{Check: "max_leverage", Detail: fmt.Sprintf("leverage %s exceeds cap %s", leverage, limits.MaxLeverage)})
	}

	if exposure.CurrentDrawdownPct.GreaterThan(limits.MaxDrawdownPct) {
		violations = append(violations, Violation{Check: "max_drawdown_pct", Detail: "portfolio drawdown exceeds cap, new risk blocked"})
	}

	if !exposure.TotalCapitalUSD.IsZero() {
		projectedGross := exposure.GrossExposureUSD.Add(sizeUSD.Mul(decimal.NewFromInt(2))) // both legs
		grossPct := projectedGross.Div(exposure.TotalCapitalUSD)
		if grossPct.GreaterThan(limits.MaxGrossExposurePct) {
			violations = append(violations, Violation{Check: "max_gross_exposure_pct", Detail: "projected gross exposure exceeds cap"})
		}

		for _, venue := range []string{longVenue, shortVenue} {
			projected := exposure.VenueExposureUSD[venue].Add(sizeUSD)
			if projected.Div(exposure.TotalCapitalUSD).GreaterThan(limits.MaxVenueExposurePct) {
				violations = append(violations, Violation{Check: "max_venue_exposure_pct", Detail: "projected exposure on " + venue + " exceeds cap"})
			}
		}

		projectedAsset := exposure.AssetExposureUSD[symbol].Add(sizeUSD)
		if projectedAsset.Div(exposure.TotalCapitalUSD).GreaterThan(limits.MaxAssetExposurePct) {
			violations = append(violations, Violation{Check: "max_asset_exposure_pct", Detail: "projected exposure on " + symbol + " exceeds cap"})
		}
	}

	return ValidationResult{Approved: len(violations) == 0, Violations: violations}, nil
}

func f64(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
