package domain

import "github.com/shopspring/decimal"

// LegType distinguishes the originating leg from its hedge.
type LegType string

const (
	LegPrimary LegType = "primary"
	LegHedge   LegType = "hedge"
)

// Side is a directional position side.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Multiplier returns +1 for long, -1 for short, used to compute net delta.
func (s Side) Multiplier() decimal.Decimal {
	if s == SideShort {
		return decimal.NewFromInt(-1)
	}
	return decimal.NewFromInt(1)
}

// Opposite returns the other side, used when constructing rollback/exit
// orders that must close out an existing leg.
func (s Side) Opposite() Side {
	if s == SideLong {
		return SideShort
	}
	return SideLong
}

// Leg is one side of a two-exchange hedged Position.
type Leg struct {
	ID               string          `json:"id" db:"id"`
	PositionID       string          `json:"position_id" db:"position_id"`
	LegType          LegType         `json:"leg_type" db:"leg_type"`
	Exchange         string          `json:"exchange" db:"exchange"`
	Symbol           string          `json:"symbol" db:"symbol"`
	Side             Side            `json:"side" db:"side"`
	Quantity         decimal.Decimal `json:"quantity" db:"quantity"`
	EntryPrice       decimal.Decimal `json:"entry_price" db:"entry_price"`
	CurrentPrice     decimal.Decimal `json:"current_price" db:"current_price"`
	NotionalUSD      decimal.Decimal `json:"notional_usd" db:"notional_usd"`
	Leverage         decimal.Decimal `json:"leverage" db:"leverage"`
	UnrealizedPnL    decimal.Decimal `json:"unrealized_pnl" db:"unrealized_pnl"`
	FundingPnL       decimal.Decimal `json:"funding_pnl" db:"funding_pnl"`
	LiquidationPrice *decimal.Decimal `json:"liquidation_price,omitempty" db:"liquidation_price"`
	EntryOrderIDs    []string        `json:"entry_order_ids" db:"-"`
	ExitOrderIDs     []string        `json:"exit_order_ids" db:"-"`
}

// SignedQuantity is Quantity * side multiplier, used for net-delta sums.
func (l Leg) SignedQuantity() decimal.Decimal {
	return l.Quantity.Mul(l.Side.Multiplier())
}

// DeltaTolerance bounds the allowed net directional exposure of a Position's
// two legs relative to total notional.
const DeltaTolerance = 0.02

// NetDeltaPct computes |Σ qty*side*current_price| / Σ|notional| * 100 for a set of legs,
// the same formula the Position Manager uses for delta_exposure_pct.
func NetDeltaPct(legs []Leg) decimal.Decimal {
	var net, totalNotional decimal.Decimal
	for _, l := range legs {
		net = net.Add(l.SignedQuantity().Mul(l.CurrentPrice))
		totalNotional = totalNotional.Add(l.NotionalUSD.Abs())
	}
	if totalNotional.IsZero() {
		return decimal.Zero
	}
	return net.Abs().Div(totalNotional).Mul(decimal.NewFromInt(100))
}

// LiquidationDistancePct is |current - liquidation| / current * 100, or
// nil when no liquidation price is known for the leg.
func (l Leg) LiquidationDistancePct() *decimal.Decimal {
	if l.LiquidationPrice == nil || l.CurrentPrice.IsZero() {
		return nil
	}
	d := l.CurrentPrice.Sub(*l.LiquidationPrice).Abs().Div(l.CurrentPrice).Mul(decimal.NewFromInt(100))
	return &d
}
