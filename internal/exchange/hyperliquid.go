package exchange

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/nexus/internal/domain"
)

// Signer produces an EIP-712 typed-data signature over an action payload.
// The real implementation lives behind the out-of-scope wallet/signing
// boundary; this platform only ever calls through the Signer interface,
// never re-derives the signing scheme itself.
type Signer func(action map[string]any) (signature string, nonce int64, err error)

// hyperliquidAdapter composes the generic HTTP plumbing with a Signer,
// since Hyperliquid's order/cancel endpoints require an EIP-712 signed
// action envelope rather than an API-key header.
type hyperliquidAdapter struct {
	*genericAdapter
	sign Signer
}

func newHyperliquidAdapter(spec VenueSpec, sign Signer) *hyperliquidAdapter {
	return &hyperliquidAdapter{genericAdapter: newGenericAdapter(spec), sign: sign}
}

// PlaceOrder signs the order action before submitting; the wire envelope
// wraps the same OrderRequest semantics used by every other venue.
func (a *hyperliquidAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	action := map[string]any{
		"type":     "order",
		"coin":     req.Symbol,
		"is_buy":   req.Side == domain.SideLong,
		"sz":       req.Quantity.String(),
		"reduce_only": req.ReduceOnly,
	}
	signature, nonce, err := a.sign(action)
	if err != nil {
		return OrderResult{}, err
	}
	body := map[string]any{"action": action, "signature": signature, "nonce": nonce}

	var raw struct {
		Status   string `json:"status"`
		OrderID  int64  `json:"oid"`
		FilledQty string `json:"totalSz"`
		AvgPrice  string `json:"avgPx"`
	}
	if err := a.do(ctx, "POST", "/exchange", body, &raw); err != nil {
		return OrderResult{}, err
	}
	return decodeHyperliquidFill(raw.OrderID, raw.FilledQty, raw.AvgPrice), nil
}

func (a *hyperliquidAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	action := map[string]any{"type": "cancel", "coin": symbol, "oid": orderID}
	signature, nonce, err := a.sign(action)
	if err != nil {
		return err
	}
	body := map[string]any{"action": action, "signature": signature, "nonce": nonce}
	return a.do(ctx, "POST", "/exchange", body, nil)
}

func decodeHyperliquidFill(orderID int64, filledQty, avgPrice string) OrderResult {
	filled, _ := decimal.NewFromString(filledQty)
	avg, _ := decimal.NewFromString(avgPrice)
	return OrderResult{OrderID: fmt.Sprintf("%d", orderID), FilledQty: filled, EntryPrice: avg}
}
