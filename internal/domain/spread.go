package domain

import "github.com/shopspring/decimal"

// Spread is a cross-exchange funding-rate arbitrage opportunity for one
// symbol: long on the exchange paying the lower rate, short on the one
// paying the higher rate.
type Spread struct {
	Symbol         string          `json:"symbol"`
	LongExchange   string          `json:"long_exchange"`
	ShortExchange  string          `json:"short_exchange"`
	LongRate       decimal.Decimal `json:"long_rate"`
	ShortRate      decimal.Decimal `json:"short_rate"`
	Spread         decimal.Decimal `json:"spread"`
	SpreadPct      decimal.Decimal `json:"spread_pct"`
	AnnualizedAPR  decimal.Decimal `json:"annualized_apr"`
}

// NewSpread builds a Spread from two FundingRates for the same symbol,
// ordering long/short so long_rate <= short_rate and
// annualizing on the smaller of the two funding intervals.
func NewSpread(symbol string, a, b FundingRate) Spread {
	long, short := a, b
	if long.Rate.GreaterThan(short.Rate) {
		long, short = short, long
	}

	spread := short.Rate.Sub(long.Rate)
	spreadPct := spread.Mul(decimal.NewFromInt(100))

	interval := long.FundingIntervalHours
	if short.FundingIntervalHours < interval || interval <= 0 {
		interval = short.FundingIntervalHours
	}
	var apr decimal.Decimal
	if interval > 0 {
		periodsPerYear := decimal.NewFromInt(24).
			Div(decimal.NewFromInt(int64(interval))).
			Mul(decimal.NewFromInt(365))
		apr = spreadPct.Mul(periodsPerYear)
	}

	return Spread{
		Symbol:        symbol,
		LongExchange:  long.Exchange,
		ShortExchange: short.Exchange,
		LongRate:      long.Rate,
		ShortRate:     short.Rate,
		Spread:        spread,
		SpreadPct:     spreadPct,
		AnnualizedAPR: apr,
	}
}
