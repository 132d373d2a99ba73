package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/rs/zerolog"

	"github.com/sawpanic/nexus/internal/domain"
	"github.com/sawpanic/nexus/internal/logging"
	"github.com/sawpanic/nexus/internal/xerrors"
)

// genericAdapter is the ccxt-like implementation shared by every venue
// whose REST surface fits a plain request/response shape: binance, bybit,
// okx, gate, kucoin, bitget. Hyperliquid and dYdX compose this same struct
// and add their own signing step in front of PlaceOrder/CancelOrder.
type genericAdapter struct {
	spec   VenueSpec
	creds  Credentials
	client *http.Client
	sem    *Semaphore
	health *HealthTracker
	retry  RetryConfig
	log    zerolog.Logger
}

// newGenericAdapter builds an adapter for a known venue slug.
func newGenericAdapter(spec VenueSpec) *genericAdapter {
	return &genericAdapter{
		spec:   spec,
		client: &http.Client{Timeout: 10 * time.Second},
		sem:    NewSemaphore(spec.SemaphoreWidth),
		health: NewHealthTracker(DefaultRetryConfig()),
		retry:  DefaultRetryConfig(),
		log:    logging.Component("exchange." + spec.Slug),
	}
}

func (a *genericAdapter) Slug() string { return a.spec.Slug }

func (a *genericAdapter) Initialize(_ context.Context, creds Credentials) error {
	a.creds = creds
	return nil
}

func (a *genericAdapter) Close(_ context.Context) error { return nil }

func (a *genericAdapter) Health() Health { return a.health.Snapshot() }

func (a *genericAdapter) GetMinOrderSize(_ string) decimal.Decimal { return a.spec.MinOrderSizeUSD }

// do executes one HTTP round trip bounded by the venue semaphore and
// retry/backoff wrapper, classifying any non-2xx response through the
// venue's error table.
func (a *genericAdapter) do(ctx context.Context, method, path string, body any, out any) error {
	if err := a.sem.Acquire(ctx); err != nil {
		return err
	}
	defer a.sem.Release()

	return WithRetry(ctx, a.retry, a.health, func(ctx context.Context) error {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return xerrors.New(xerrors.KindInternal, "marshal request body", err)
			}
			reader = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, a.spec.BaseURL+path, reader)
		if err != nil {
			return xerrors.New(xerrors.KindInternal, "build request", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if a.creds.APIKey != "" {
			req.Header.Set("X-API-KEY", a.creds.APIKey)
		}

		resp, err := a.client.Do(req)
		if err != nil {
			return xerrors.New(xerrors.KindTransientNetwork, "http round trip", err)
		}
		defer resp.Body.Close()

		respBody, _ := io.ReadAll(resp.Body)
		if resp.StatusCode >= 400 {
			var errResp struct {
				Code    string `json:"code"`
				Message string `json:"msg"`
			}
			_ = json.Unmarshal(respBody, &errResp)
			kind := a.spec.Classify(errResp.Code, errResp.Message)
			if kind == xerrors.KindUnknown {
				kind = xerrors.ClassifyHTTPStatus(resp.StatusCode)
			}
			return xerrors.New(kind, fmt.Sprintf("%s %s: %d %s", method, path, resp.StatusCode, errResp.Message), nil)
		}

		if out != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, out); err != nil {
				return xerrors.New(xerrors.KindDataValidation, "decode response", err)
			}
		}
		return nil
	})
}

// GetFundingRates polls the venue's current funding snapshot for the
// given symbols. The wire shape here is a stand-in for each venue's real
// response envelope; every venue response ultimately lands on the same
// domain.FundingRate regardless of source field names.
func (a *genericAdapter) GetFundingRates(ctx context.Context, symbols []string) ([]domain.FundingRate, error) {
	var raw []struct {
		Symbol          string  `json:"symbol"`
		FundingRate     string  `json:"fundingRate"`
		NextFundingTime int64   `json:"nextFundingTime"`
	}
	if err := a.do(ctx, http.MethodGet, "/fapi/v1/premiumIndex", nil, &raw); err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}
	out := make([]domain.FundingRate, 0, len(raw))
	for _, r := range raw {
		if len(wanted) > 0 && !wanted[r.Symbol] {
			continue
		}
		rate, err := decimal.NewFromString(r.FundingRate)
		if err != nil {
			continue
		}
		fr := domain.NewFundingRate(
			a.spec.Slug, r.Symbol, rate,
			a.spec.FundingIntervalHrs,
			domain.SourceExchangeAPI,
			time.Now(),
		)
		fr.NextFundingTime = time.UnixMilli(r.NextFundingTime)
		out = append(out, fr)
	}
	return out, nil
}

func (a *genericAdapter) GetPrices(ctx context.Context, symbols []string) (map[string]Ticker, error) {
	var raw []struct {
		Symbol string `json:"symbol"`
		Price  string `json:"price"`
	}
	if err := a.do(ctx, http.MethodGet, "/fapi/v1/ticker/price", nil, &raw); err != nil {
		return nil, err
	}
	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}
	out := make(map[string]Ticker, len(raw))
	for _, r := range raw {
		if len(wanted) > 0 && !wanted[r.Symbol] {
			continue
		}
		price, err := decimal.NewFromString(r.Price)
		if err != nil {
			continue
		}
		out[r.Symbol] = Ticker{Symbol: r.Symbol, Last: price, Mark: price}
	}
	return out, nil
}

func (a *genericAdapter) GetTicker(ctx context.Context, symbol string) (Ticker, error) {
	prices, err := a.GetPrices(ctx, []string{symbol})
	if err != nil {
		return Ticker{}, err
	}
	t, ok := prices[symbol]
	if !ok {
		return Ticker{}, xerrors.New(xerrors.KindInvalidSymbol, "no ticker for "+symbol, nil)
	}
	return t, nil
}

func (a *genericAdapter) GetLiquidity(ctx context.Context, symbol string) (Liquidity, error) {
	var raw struct {
		Bids [][2]string `json:"bids"`
		Asks [][2]string `json:"asks"`
	}
	if err := a.do(ctx, http.MethodGet, "/fapi/v1/depth?symbol="+symbol, nil, &raw); err != nil {
		return Liquidity{}, err
	}
	sum := func(levels [][2]string) decimal.Decimal {
		total := decimal.Zero
		for _, lvl := range levels {
			price, err1 := decimal.NewFromString(lvl[0])
			qty, err2 := decimal.NewFromString(lvl[1])
			if err1 != nil || err2 != nil {
				continue
			}
			total = total.Add(price.Mul(qty))
		}
		return total
	}
	return Liquidity{Symbol: symbol, BidDepthUSD: sum(raw.Bids), AskDepthUSD: sum(raw.Asks)}, nil
}

func (a *genericAdapter) GetBalance(ctx context.Context) (Balance, error) {
	var raw struct {
		TotalUSD     string `json:"totalWalletBalance"`
		AvailableUSD string `json:"availableBalance"`
	}
	if err := a.do(ctx, http.MethodGet, "/fapi/v2/balance", nil, &raw); err != nil {
		return Balance{}, err
	}
	total, _ := decimal.NewFromString(raw.TotalUSD)
	avail, _ := decimal.NewFromString(raw.AvailableUSD)
	return Balance{TotalUSD: total, AvailableUSD: avail}, nil
}

func (a *genericAdapter) GetPositions(ctx context.Context) ([]domain.ExchangePosition, error) {
	var raw []struct {
		Symbol           string `json:"symbol"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		MarkPrice        string `json:"markPrice"`
		LiquidationPrice string `json:"liquidationPrice"`
		Leverage         string `json:"leverage"`
	}
	if err := a.do(ctx, http.MethodGet, "/fapi/v2/positionRisk", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.ExchangePosition, 0, len(raw))
	for _, r := range raw {
		qty, _ := decimal.NewFromString(r.PositionAmt)
		if qty.IsZero() {
			continue
		}
		side := domain.SideLong
		if qty.IsNegative() {
			side = domain.SideShort
			qty = qty.Abs()
		}
		entry, _ := decimal.NewFromString(r.EntryPrice)
		mark, _ := decimal.NewFromString(r.MarkPrice)
		liq, _ := decimal.NewFromString(r.LiquidationPrice)
		lev, _ := decimal.NewFromString(r.Leverage)
		out = append(out, domain.ExchangePosition{
			Exchange:         a.spec.Slug,
			Symbol:           r.Symbol,
			Side:             side,
			Size:             qty,
			NotionalUSD:      qty.Mul(mark),
			EntryPrice:       entry,
			MarkPrice:        mark,
			Leverage:         lev,
			LiquidationPrice: &liq,
			UpdatedAt:        time.Now(),
		})
	}
	return out, nil
}

func (a *genericAdapter) GetOpenOrders(ctx context.Context) ([]domain.ExchangeOrder, error) {
	var raw []struct {
		OrderID  int64  `json:"orderId"`
		Symbol   string `json:"symbol"`
		Side     string `json:"side"`
		Quantity string `json:"origQty"`
		Status   string `json:"status"`
	}
	if err := a.do(ctx, http.MethodGet, "/fapi/v1/openOrders", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]domain.ExchangeOrder, 0, len(raw))
	for _, r := range raw {
		qty, _ := decimal.NewFromString(r.Quantity)
		out = append(out, domain.ExchangeOrder{
			Exchange:        a.spec.Slug,
			ExchangeOrderID: fmt.Sprintf("%d", r.OrderID),
			Symbol:          r.Symbol,
			Side:            domain.Side(r.Side),
			Quantity:        qty,
			Status:          r.Status,
			UpdatedAt:       time.Now(),
		})
	}
	return out, nil
}

func (a *genericAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if req.Quantity.LessThanOrEqual(decimal.Zero) {
		return OrderResult{}, xerrors.New(xerrors.KindNotionalTooSmall, "order quantity must be positive", nil)
	}
	body := map[string]any{
		"symbol":     a.spec.SymbolFormat(req.Symbol),
		"side":       string(req.Side),
		"type":       "MARKET",
		"quantity":   req.Quantity.String(),
		"reduceOnly": req.ReduceOnly,
	}
	var raw struct {
		OrderID       int64  `json:"orderId"`
		ExecutedQty   string `json:"executedQty"`
		AvgPrice      string `json:"avgPrice"`
	}
	if err := a.do(ctx, http.MethodPost, "/fapi/v1/order", body, &raw); err != nil {
		return OrderResult{}, err
	}
	filled, _ := decimal.NewFromString(raw.ExecutedQty)
	avg, _ := decimal.NewFromString(raw.AvgPrice)
	return OrderResult{OrderID: fmt.Sprintf("%d", raw.OrderID), FilledQty: filled, EntryPrice: avg}, nil
}

func (a *genericAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	path := fmt.Sprintf("/fapi/v1/order?symbol=%s&orderId=%s", symbol, orderID)
	return a.do(ctx, http.MethodDelete, path, nil, nil)
}
