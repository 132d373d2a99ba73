package exchange

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/nexus/internal/xerrors"
)

// VenueSpec is the per-venue data table the generic adapter specializes
// against: base URL, symbol format, rate-limit width, and the mapping
// from venue-native error codes to normalized xerrors.Kind. No inheritance
// hierarchy; specializations live in this data table instead.
type VenueSpec struct {
	Slug              string
	BaseURL           string
	FundingIntervalHrs int
	SemaphoreWidth    int // in-flight request bound, 5-10 per venue
	MinOrderSizeUSD   decimal.Decimal
	SymbolFormat      func(symbol string) string
	ErrorCodes        map[string]xerrors.Kind
}

// errorKindFromMessage classifies a venue error body using a substring
// table; venues that return structured codes should prefer an exact
// ErrorCodes lookup and fall back to this only for free-text messages.
func errorKindFromMessage(msg string) xerrors.Kind {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "insufficient") && strings.Contains(lower, "balance"):
		return xerrors.KindInsufficientBalance
	case strings.Contains(lower, "notional") && strings.Contains(lower, "small"):
		return xerrors.KindNotionalTooSmall
	case strings.Contains(lower, "precision") || strings.Contains(lower, "lot size"):
		return xerrors.KindPrecision
	case strings.Contains(lower, "invalid symbol") || strings.Contains(lower, "unknown symbol"):
		return xerrors.KindInvalidSymbol
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "too many requests"):
		return xerrors.KindRateLimited
	case strings.Contains(lower, "unauthorized") || strings.Contains(lower, "signature") || strings.Contains(lower, "api key"):
		return xerrors.KindAuth
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "connection"):
		return xerrors.KindTransientNetwork
	default:
		return xerrors.KindUnknown
	}
}

// Classify maps a venue error code (preferred) or free-text message
// (fallback) to a normalized Kind.
func (v VenueSpec) Classify(code, message string) xerrors.Kind {
	if code != "" {
		if kind, ok := v.ErrorCodes[code]; ok {
			return kind
		}
	}
	return errorKindFromMessage(message)
}

func identitySymbol(s string) string { return s }

// knownVenues is the data table of the nine supported venues.
// Binance/Bybit/OKX/Gate/KuCoin/Bitget/Kraken share the ccxt-like generic path;
// Hyperliquid and dYdX get their own Adapter variant that wraps the same
// generic HTTP plumbing plus a signer.
var knownVenues = map[string]VenueSpec{
	"binance": {
		Slug: "binance", BaseURL: "https://fapi.binance.com", FundingIntervalHrs: 8,
		SemaphoreWidth: 10, MinOrderSizeUSD: decimal.NewFromInt(5), SymbolFormat: identitySymbol,
		ErrorCodes: map[string]xerrors.Kind{
			"-2019": xerrors.KindInsufficientBalance,
			"-1013": xerrors.KindNotionalTooSmall,
			"-1111": xerrors.KindPrecision,
			"-1121": xerrors.KindInvalidSymbol,
			"-1003": xerrors.KindRateLimited,
			"-2015": xerrors.KindAuth,
		},
	},
	"bybit": {
		Slug: "bybit", BaseURL: "https://api.bybit.com", FundingIntervalHrs: 8,
		SemaphoreWidth: 10, MinOrderSizeUSD: decimal.NewFromInt(5), SymbolFormat: identitySymbol,
		ErrorCodes: map[string]xerrors.Kind{
			"110007": xerrors.KindInsufficientBalance,
			"110017": xerrors.KindNotionalTooSmall,
			"110013": xerrors.KindPrecision,
			"10001":  xerrors.KindInvalidSymbol,
			"10006":  xerrors.KindRateLimited,
			"10003":  xerrors.KindAuth,
		},
	},
	"okx": {
		Slug: "okx", BaseURL: "https://www.okx.com", FundingIntervalHrs: 8,
		SemaphoreWidth: 8, MinOrderSizeUSD: decimal.NewFromInt(5), SymbolFormat: identitySymbol,
		ErrorCodes: map[string]xerrors.Kind{
			"51008": xerrors.KindInsufficientBalance,
			"51121": xerrors.KindNotionalTooSmall,
			"51000": xerrors.KindPrecision,
			"51001": xerrors.KindInvalidSymbol,
			"50011": xerrors.KindRateLimited,
			"50114": xerrors.KindAuth,
		},
	},
	"gate": {
		Slug: "gate", BaseURL: "https://api.gateio.ws", FundingIntervalHrs: 8,
		SemaphoreWidth: 5, MinOrderSizeUSD: decimal.NewFromInt(5), SymbolFormat: identitySymbol,
		ErrorCodes: map[string]xerrors.Kind{
			"BALANCE_NOT_ENOUGH": xerrors.KindInsufficientBalance,
			"INVALID_PARAM_VALUE": xerrors.KindPrecision,
			"CONTRACT_NOT_FOUND": xerrors.KindInvalidSymbol,
			"TOO_MANY_REQUESTS":  xerrors.KindRateLimited,
			"INVALID_KEY":        xerrors.KindAuth,
		},
	},
	"kucoin": {
		Slug: "kucoin", BaseURL: "https://api-futures.kucoin.com", FundingIntervalHrs: 8,
		SemaphoreWidth: 5, MinOrderSizeUSD: decimal.NewFromInt(5), SymbolFormat: identitySymbol,
		ErrorCodes: map[string]xerrors.Kind{
			"200004": xerrors.KindInsufficientBalance,
			"100004": xerrors.KindPrecision,
			"100003": xerrors.KindInvalidSymbol,
			"429":    xerrors.KindRateLimited,
			"401":    xerrors.KindAuth,
		},
	},
	"bitget": {
		Slug: "bitget", BaseURL: "https://api.bitget.com", FundingIntervalHrs: 8,
		SemaphoreWidth: 5, MinOrderSizeUSD: decimal.NewFromInt(5), SymbolFormat: identitySymbol,
		ErrorCodes: map[string]xerrors.Kind{
			"43012": xerrors.KindInsufficientBalance,
			"40762": xerrors.KindNotionalTooSmall,
			"40009": xerrors.KindInvalidSymbol,
			"30007": xerrors.KindRateLimited,
			"40037": xerrors.KindAuth,
		},
	},
	"hyperliquid": {
		Slug: "hyperliquid", BaseURL: "https://api.hyperliquid.xyz", FundingIntervalHrs: 1,
		SemaphoreWidth: 5, MinOrderSizeUSD: decimal.NewFromInt(10), SymbolFormat: identitySymbol,
		ErrorCodes: map[string]xerrors.Kind{
			"insufficient margin": xerrors.KindInsufficientBalance,
			"order size":          xerrors.KindNotionalTooSmall,
			"unknown asset":       xerrors.KindInvalidSymbol,
		},
	},
	"dydx": {
		Slug: "dydx", BaseURL: "https://indexer.dydx.trade", FundingIntervalHrs: 1,
		SemaphoreWidth: 5, MinOrderSizeUSD: decimal.NewFromInt(10), SymbolFormat: identitySymbol,
		ErrorCodes: map[string]xerrors.Kind{
			"INSUFFICIENT_FUNDS": xerrors.KindInsufficientBalance,
			"INVALID_MARKET":     xerrors.KindInvalidSymbol,
		},
	},
	"kraken": {
		Slug: "kraken", BaseURL: "https://futures.kraken.com/derivatives/api/v3", FundingIntervalHrs: 8,
		SemaphoreWidth: 8, MinOrderSizeUSD: decimal.NewFromInt(5), SymbolFormat: identitySymbol,
		ErrorCodes: map[string]xerrors.Kind{
			"insufficientFunds": xerrors.KindInsufficientBalance,
			"invalidSize":       xerrors.KindPrecision,
			"invalidSymbol":     xerrors.KindInvalidSymbol,
			"rateLimit":         xerrors.KindRateLimited,
			"authenticationError": xerrors.KindAuth,
		},
	},
}

// LookupVenueSpec returns the data table entry for slug.
func LookupVenueSpec(slug string) (VenueSpec, bool) {
	v, ok := knownVenues[slug]
	return v, ok
}

// EXCHANGE_NAME_MAP-equivalent: canonical slug normalization, carried
// forward from original_source's detector (SUPPLEMENTED FEATURES).
var exchangeNameMap = map[string]string{
	"binance":     "binance_futures",
	"bybit":       "bybit_futures",
	"okx":         "okex_futures",
	"okex":        "okex_futures",
	"hyperliquid": "hyperliquid_futures",
	"dydx":        "dydx_futures",
	"kraken":      "kraken_futures",
	"bitget":      "bitget_futures",
	"gate":        "gate_futures",
	"kucoin":      "kucoin_futures",
}

// CanonicalSlug maps a short venue name to its canonical slug.
func CanonicalSlug(name string) string {
	if canonical, ok := exchangeNameMap[name]; ok {
		return canonical
	}
	return name
}
