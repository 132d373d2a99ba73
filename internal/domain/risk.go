package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RiskLimits is the active-row singleton of portfolio risk limits.
type RiskLimits struct {
	ID                    string          `json:"id" db:"id"`
	MaxPositionSizeUSD    decimal.Decimal `json:"max_position_size_usd" db:"max_position_size_usd"`
	MaxPositionSizePct    decimal.Decimal `json:"max_position_size_pct" db:"max_position_size_pct"`
	MaxLeverage           decimal.Decimal `json:"max_leverage" db:"max_leverage"`
	MaxVenueExposurePct   decimal.Decimal `json:"max_venue_exposure_pct" db:"max_venue_exposure_pct"`
	MaxAssetExposurePct   decimal.Decimal `json:"max_asset_exposure_pct" db:"max_asset_exposure_pct"`
	MaxGrossExposurePct   decimal.Decimal `json:"max_gross_exposure_pct" db:"max_gross_exposure_pct"`
	MaxDrawdownPct        decimal.Decimal `json:"max_drawdown_pct" db:"max_drawdown_pct"`
	MaxVaRPct             decimal.Decimal `json:"max_var_pct" db:"max_var_pct"`
	StopLossPct           decimal.Decimal `json:"stop_loss_pct" db:"stop_loss_pct"`
	TakeProfitPct         decimal.Decimal `json:"take_profit_pct" db:"take_profit_pct"`
	TargetFundingRateMin  decimal.Decimal `json:"target_funding_rate_min" db:"target_funding_rate_min"`
	MaxHoldPeriods        int             `json:"max_hold_periods" db:"max_hold_periods"`
	IsActive              bool            `json:"is_active" db:"is_active"`
}

// DefaultRiskLimits returns production-reasonable defaults, mirroring the
// original_source service's hardcoded fallbacks where config is silent.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxPositionSizeUSD:   decimal.NewFromInt(5000),
		MaxPositionSizePct:   decimal.NewFromFloat(0.20),
		MaxLeverage:          decimal.NewFromInt(5),
		MaxVenueExposurePct:  decimal.NewFromFloat(0.40),
		MaxAssetExposurePct:  decimal.NewFromFloat(0.25),
		MaxGrossExposurePct:  decimal.NewFromFloat(0.80),
		MaxDrawdownPct:       decimal.NewFromFloat(0.15),
		MaxVaRPct:            decimal.NewFromFloat(0.10),
		StopLossPct:          decimal.NewFromFloat(0.05),
		TakeProfitPct:        decimal.NewFromFloat(0.15),
		TargetFundingRateMin: decimal.NewFromFloat(0.0001),
		MaxHoldPeriods:       21, // ~7 days at 8h funding
		IsActive:             true,
	}
}

// BlacklistEntry bars a symbol from detection; unique by Symbol.
type BlacklistEntry struct {
	Symbol        string    `json:"symbol" db:"symbol"`
	Reason        string    `json:"reason" db:"reason"`
	BlacklistedBy string    `json:"blacklisted_by" db:"blacklisted_by"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
