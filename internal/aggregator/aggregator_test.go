package aggregator

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/nexus/internal/cache"
	"github.com/sawpanic/nexus/internal/domain"
	"github.com/sawpanic/nexus/internal/events"
	"github.com/sawpanic/nexus/internal/exchange"
)

type fakeAdapter struct {
	slug  string
	rates []domain.FundingRate
	err   error
}

func (f *fakeAdapter) Slug() string                                          { return f.slug }
func (f *fakeAdapter) Initialize(context.Context, exchange.Credentials) error { return nil }
func (f *fakeAdapter) Close(context.Context) error                           { return nil }
func (f *fakeAdapter) GetFundingRates(context.Context, []string) ([]domain.FundingRate, error) {
	return f.rates, f.err
}
func (f *fakeAdapter) GetPrices(context.Context, []string) (map[string]exchange.Ticker, error) {
	return nil, nil
}
func (f *fakeAdapter) GetLiquidity(context.Context, string) (exchange.Liquidity, error) {
	return exchange.Liquidity{}, nil
}
func (f *fakeAdapter) GetBalance(context.Context) (exchange.Balance, error) { return exchange.Balance{}, nil }
func (f *fakeAdapter) GetPositions(context.Context) ([]domain.ExchangePosition, error) {
	return nil, nil
}
func (f *fakeAdapter) GetOpenOrders(context.Context) ([]domain.ExchangeOrder, error) { return nil, nil }
func (f *fakeAdapter) PlaceOrder(context.Context, exchange.OrderRequest) (exchange.OrderResult, error) {
	return exchange.OrderResult{}, nil
}
func (f *fakeAdapter) CancelOrder(context.Context, string, string) error { return nil }
func (f *fakeAdapter) GetTicker(context.Context, string) (exchange.Ticker, error) {
	return exchange.Ticker{}, nil
}
func (f *fakeAdapter) GetMinOrderSize(string) decimal.Decimal { return decimal.Zero }
func (f *fakeAdapter) Health() exchange.Health                { return exchange.Health{IsHealthy: true} }

func rate(exch, symbol string, r float64) domain.FundingRate {
	fr := domain.NewFundingRate(exch, symbol, decimal.NewFromFloat(r), 8, domain.SourceExchangeAPI, time.Now())
	return fr
}

func TestAggregator_ReconcileAndSpreads(t *testing.T) {
	primaries := map[string]exchange.Adapter{
		"binance": &fakeAdapter{slug: "binance", rates: []domain.FundingRate{rate("binance", "BTCUSDT", 0.0001)}},
		"bybit":   &fakeAdapter{slug: "bybit", rates: []domain.FundingRate{rate("bybit", "BTCUSDT", 0.0005)}},
	}
	bus := events.NewInMemoryBus()
	c := cache.NewMemoryCache()

	a := New(DefaultConfig([]string{"BTCUSDT"}), bus, c, primaries, nil)
	a.pollAndReconcile(context.Background())

	snap := a.Snapshot()
	require.False(t, snap.IsEmpty())
	assert.Len(t, snap.Rates["BTCUSDT"], 2)

	spreads := a.TopSpreads(10)
	require.Len(t, spreads, 1)
	assert.Equal(t, "binance", spreads[0].LongExchange)
	assert.Equal(t, "bybit", spreads[0].ShortExchange)
	assert.True(t, spreads[0].AnnualizedAPR.IsPositive())
}

func TestAggregator_SourceHealthDegradesOnError(t *testing.T) {
	primaries := map[string]exchange.Adapter{
		"binance": &fakeAdapter{slug: "binance", err: assertErr{}},
	}
	bus := events.NewInMemoryBus()
	c := cache.NewMemoryCache()
	a := New(DefaultConfig([]string{"BTCUSDT"}), bus, c, primaries, nil)

	a.pollAndReconcile(context.Background())

	a.mu.RLock()
	h := a.sourceHealth["binance"]
	a.mu.RUnlock()
	assert.Equal(t, 1, h.consecutiveErrors)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }
