// Package exchange implements the per-venue capability adapters: one
// instance per exchange, polling funding/prices/depth, placing and
// cancelling orders, and reporting positions/balances, all behind a
// single capability interface so the rest of the platform never branches
// on venue name.
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/nexus/internal/domain"
)

// Credentials holds a venue's API key/secret, decrypted on demand by the
// (out-of-scope) credential store before being handed to an Adapter.
type Credentials struct {
	APIKey    string
	APISecret string
	// Passphrase is required by a handful of venues (okx, kucoin).
	Passphrase string
}

// Ticker is a minimal last/mark price quote.
type Ticker struct {
	Symbol string
	Last   decimal.Decimal
	Mark   decimal.Decimal
}

// Liquidity is a top-of-book depth sum within ±pct of mid, per the
// Non-goals note that order-book modelling stops at top-of-book sums.
type Liquidity struct {
	Symbol      string
	BidDepthUSD decimal.Decimal
	AskDepthUSD decimal.Decimal
}

// OrderSide mirrors domain.Side for the order-placement surface.
type OrderSide = domain.Side

// OrderRequest describes an order to place.
type OrderRequest struct {
	Symbol     string
	Side       OrderSide
	Quantity   decimal.Decimal
	Leverage   decimal.Decimal
	ReduceOnly bool
	// OrderType is always "market" in this platform's execution protocol;
	// kept as a field for forward compatibility.
	OrderType string
}

// OrderResult is what a venue returns after placing an order.
type OrderResult struct {
	OrderID    string
	FilledQty  decimal.Decimal
	EntryPrice decimal.Decimal
}

// Balance is a venue account balance snapshot.
type Balance struct {
	TotalUSD     decimal.Decimal
	AvailableUSD decimal.Decimal
}

// Health is the observable adapter state.
type Health struct {
	IsHealthy        bool
	ReliabilityScore float64 // success / total
	LastUpdate       time.Time
	ConsecutiveErrors int
	LastError        string
	RecoveryAttempts int
}

// Adapter is the capability set every venue implements. There is no
// inheritance hierarchy: ccxt-like generic venues, Hyperliquid, and dYdX
// each satisfy this interface directly.
type Adapter interface {
	Slug() string
	Initialize(ctx context.Context, creds Credentials) error
	Close(ctx context.Context) error

	GetFundingRates(ctx context.Context, symbols []string) ([]domain.FundingRate, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]Ticker, error)
	GetLiquidity(ctx context.Context, symbol string) (Liquidity, error)
	GetBalance(ctx context.Context) (Balance, error)
	GetPositions(ctx context.Context) ([]domain.ExchangePosition, error)
	GetOpenOrders(ctx context.Context) ([]domain.ExchangeOrder, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	GetTicker(ctx context.Context, symbol string) (Ticker, error)
	GetMinOrderSize(symbol string) decimal.Decimal

	Health() Health
}
