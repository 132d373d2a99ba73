package exchange

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// dydxAdapter composes the generic HTTP plumbing with a Signer over
// dYdX's StarkEx order payload; like Hyperliquid, the signing scheme
// itself lives behind the out-of-scope wallet boundary.
type dydxAdapter struct {
	*genericAdapter
	sign Signer
}

func newDydxAdapter(spec VenueSpec, sign Signer) *dydxAdapter {
	return &dydxAdapter{genericAdapter: newGenericAdapter(spec), sign: sign}
}

func (a *dydxAdapter) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	action := map[string]any{
		"market":   req.Symbol,
		"side":     string(req.Side),
		"size":     req.Quantity.String(),
		"type":     "MARKET",
		"reduceOnly": req.ReduceOnly,
	}
	signature, nonce, err := a.sign(action)
	if err != nil {
		return OrderResult{}, err
	}
	body := map[string]any{"order": action, "signature": signature, "clientId": nonce}

	var raw struct {
		OrderID   string `json:"id"`
		FilledQty string `json:"size"`
		AvgPrice  string `json:"price"`
	}
	if err := a.do(ctx, "POST", "/v4/orders", body, &raw); err != nil {
		return OrderResult{}, err
	}
	filled, _ := decimal.NewFromString(raw.FilledQty)
	avg, _ := decimal.NewFromString(raw.AvgPrice)
	orderID := raw.OrderID
	if orderID == "" {
		orderID = fmt.Sprintf("%d", nonce)
	}
	return OrderResult{OrderID: orderID, FilledQty: filled, EntryPrice: avg}, nil
}

func (a *dydxAdapter) CancelOrder(ctx context.Context, symbol, orderID string) error {
	return a.do(ctx, "DELETE", "/v4/orders/"+orderID, nil, nil)
}
