package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/nexus/internal/domain"
)

// krakenAdapter layers a WebSocket funding-rate stream on top of the
// generic REST adapter: Kraken pushes funding updates on its "ticker"
// channel rather than requiring a poll, so GetFundingRates prefers the
// last streamed value and falls back to the REST snapshot when the
// stream hasn't delivered one yet.
type krakenAdapter struct {
	*genericAdapter

	wsURL string

	mu       sync.RWMutex
	conn     *websocket.Conn
	streamed map[string]domain.FundingRate // symbol -> last streamed rate
	closeCh  chan struct{}
}

func newKrakenAdapter(spec VenueSpec) *krakenAdapter {
	return &krakenAdapter{
		genericAdapter: newGenericAdapter(spec),
		wsURL:          "wss://futures.kraken.com/ws/v1",
		streamed:       make(map[string]domain.FundingRate),
		closeCh:        make(chan struct{}),
	}
}

// StreamFundingRates opens the WebSocket connection and subscribes to the
// ticker channel for symbols, updating the in-memory streamed map as
// messages arrive. Callers run this in a goroutine for the lifetime of
// the adapter; a read error ends the loop and leaves streamed at its
// last known values so GetFundingRates keeps serving stale-but-valid data.
func (a *krakenAdapter) StreamFundingRates(ctx context.Context, symbols []string) error {
	u, err := url.Parse(a.wsURL)
	if err != nil {
		return fmt.Errorf("invalid kraken websocket url: %w", err)
	}
	dialer := websocket.DefaultDialer
	dialer.HandshakeTimeout = 30 * time.Second

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("kraken websocket connect failed: %w", err)
	}
	a.mu.Lock()
	a.conn = conn
	a.mu.Unlock()

	sub := map[string]any{
		"event":         "subscribe",
		"feed":          "ticker",
		"product_ids":   symbols,
	}
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("kraken subscribe failed: %w", err)
	}

	go a.pingLoop(ctx, conn)
	return a.readLoop(ctx, conn)
}

func (a *krakenAdapter) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.closeCh:
			return nil
		default:
		}
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var tick struct {
			Feed            string  `json:"feed"`
			ProductID       string  `json:"product_id"`
			FundingRate     float64 `json:"fundingRate"`
			NextFundingTime int64   `json:"nextFundingTime"`
		}
		if err := json.Unmarshal(raw, &tick); err != nil || tick.Feed != "ticker" {
			continue
		}
		rate := domain.NewFundingRate(
			a.spec.Slug, tick.ProductID, decimal.NewFromFloat(tick.FundingRate),
			a.spec.FundingIntervalHrs, domain.SourceExchangeAPI, time.Now(),
		)
		if tick.NextFundingTime > 0 {
			rate.NextFundingTime = time.UnixMilli(tick.NextFundingTime)
		}
		a.mu.Lock()
		a.streamed[tick.ProductID] = rate
		a.mu.Unlock()
	}
}

func (a *krakenAdapter) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-a.closeCh:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// GetFundingRates prefers streamed values, falling back to the generic
// REST poll for any symbol the stream hasn't delivered yet.
func (a *krakenAdapter) GetFundingRates(ctx context.Context, symbols []string) ([]domain.FundingRate, error) {
	a.mu.RLock()
	out := make([]domain.FundingRate, 0, len(symbols))
	missing := make([]string, 0)
	for _, s := range symbols {
		if rate, ok := a.streamed[s]; ok {
			out = append(out, rate)
		} else {
			missing = append(missing, s)
		}
	}
	a.mu.RUnlock()

	if len(missing) == 0 {
		return out, nil
	}
	polled, err := a.genericAdapter.GetFundingRates(ctx, missing)
	if err != nil {
		if len(out) > 0 {
			return out, nil
		}
		return nil, err
	}
	return append(out, polled...), nil
}

func (a *krakenAdapter) Close(ctx context.Context) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	close(a.closeCh)
	if conn != nil {
		return conn.Close()
	}
	return nil
}
