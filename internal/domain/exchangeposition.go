package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExchangePosition mirrors exchange-side truth, upserted by periodic sync.
// Primary key is (Exchange, Symbol).
type ExchangePosition struct {
	Exchange         string          `json:"exchange" db:"exchange"`
	Symbol           string          `json:"symbol" db:"symbol"`
	Side             Side            `json:"side" db:"side"`
	Size             decimal.Decimal `json:"size" db:"size"`
	NotionalUSD      decimal.Decimal `json:"notional_usd" db:"notional_usd"`
	EntryPrice       decimal.Decimal `json:"entry_price" db:"entry_price"`
	MarkPrice        decimal.Decimal `json:"mark_price" db:"mark_price"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl" db:"unrealized_pnl"`
	Leverage         decimal.Decimal `json:"leverage" db:"leverage"`
	LiquidationPrice *decimal.Decimal `json:"liquidation_price,omitempty" db:"liquidation_price"`
	MarginMode       string          `json:"margin_mode" db:"margin_mode"`
	UpdatedAt        time.Time       `json:"updated_at" db:"updated_at"`
}

// ExchangeOrder mirrors an open order on an exchange, keyed by
// (Exchange, ExchangeOrderID).
type ExchangeOrder struct {
	Exchange        string          `json:"exchange" db:"exchange"`
	ExchangeOrderID string          `json:"exchange_order_id" db:"exchange_order_id"`
	Symbol          string          `json:"symbol" db:"symbol"`
	Side            Side            `json:"side" db:"side"`
	Quantity        decimal.Decimal `json:"quantity" db:"quantity"`
	Price           decimal.Decimal `json:"price" db:"price"`
	Status          string          `json:"status" db:"status"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

// ReconciliationDiffKind classifies a difference between authoritative
// (Position+Leg) state and exchange-side truth.
type ReconciliationDiffKind string

const (
	DiffOrphanOnExchange   ReconciliationDiffKind = "orphan_on_exchange"
	DiffMissingOnExchange  ReconciliationDiffKind = "missing_on_exchange"
	DiffSizeMismatch       ReconciliationDiffKind = "size_mismatch"
	DiffPriceMismatch      ReconciliationDiffKind = "price_mismatch"
	DiffStateMismatch      ReconciliationDiffKind = "state_mismatch"
)

// SizeTolerance and PriceTolerance gate when a mismatch is non-critical
// (auto-corrected) vs. critical (alert only).
const (
	SizeTolerance         = 0.01 // 1%
	SizeCriticalTolerance = 0.50 // >50%
	PriceTolerance        = 0.02 // 2%
)

// ReconciliationDiff is one detected difference during a reconciliation run.
type ReconciliationDiff struct {
	Kind       ReconciliationDiffKind `json:"kind"`
	Exchange   string                 `json:"exchange"`
	Symbol     string                 `json:"symbol"`
	Critical   bool                   `json:"critical"`
	Detail     string                 `json:"detail"`
	Action     string                 `json:"action"` // "adopted", "alerted", "updated", "none"
}

// ReconciliationReport summarizes one reconciliation run, cached under a
// well-known key and published as an alert when RequiresReview > 0.
type ReconciliationReport struct {
	RunAt           time.Time            `json:"run_at"`
	Checked         int                  `json:"checked"`
	Found           int                  `json:"found"`
	Resolved        int                  `json:"resolved"`
	RequiresReview  int                  `json:"requires_review"`
	Actions         []string             `json:"actions"`
	Unresolved      []ReconciliationDiff `json:"unresolved"`
}
