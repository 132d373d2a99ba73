package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/nexus/internal/domain"
)

func testAdapter(t *testing.T, handler http.HandlerFunc) (*genericAdapter, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	spec, ok := LookupVenueSpec("binance")
	require.True(t, ok)
	spec.BaseURL = server.URL
	spec.SemaphoreWidth = 5
	a := newGenericAdapter(spec)
	return a, server
}

func TestGenericAdapter_GetFundingRates_FiltersToRequestedSymbols(t *testing.T) {
	a, server := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"symbol":"BTCUSDT","fundingRate":"0.0001","nextFundingTime":1700000000000},
			{"symbol":"ETHUSDT","fundingRate":"0.0002","nextFundingTime":1700000000000}
		]`))
	})
	defer server.Close()

	rates, err := a.GetFundingRates(context.Background(), []string{"BTCUSDT"})
	require.NoError(t, err)
	require.Len(t, rates, 1)
	assert.Equal(t, "BTCUSDT", rates[0].Symbol)
	assert.True(t, rates[0].Rate.Equal(decimal.NewFromFloat(0.0001)))
}

func TestGenericAdapter_PlaceOrder_ClassifiesVenueErrorCode(t *testing.T) {
	a, server := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"-2019","msg":"Margin is insufficient"}`))
	})
	defer server.Close()
	a.retry.MaxRetries = 0

	_, err := a.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTCUSDT", Side: domain.SideLong, Quantity: decimal.NewFromInt(1),
	})
	require.Error(t, err)
	var ce interface{ Error() string }
	ce = err
	assert.Contains(t, ce.Error(), "insufficient_balance")
}

func TestGenericAdapter_PlaceOrder_RejectsNonPositiveQuantity(t *testing.T) {
	a, server := testAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach the network for an invalid quantity")
	})
	defer server.Close()

	_, err := a.PlaceOrder(context.Background(), OrderRequest{
		Symbol: "BTCUSDT", Side: domain.SideLong, Quantity: decimal.Zero,
	})
	require.Error(t, err)
}

func TestVenueSpec_ClassifyPrefersErrorCodeOverMessage(t *testing.T) {
	spec, ok := LookupVenueSpec("binance")
	require.True(t, ok)

	assert.Equal(t, "insufficient_balance", string(spec.Classify("-2019", "anything")))
	assert.Equal(t, "rate_limited", string(spec.Classify("", "Too Many Requests")))
	assert.Equal(t, "unknown", string(spec.Classify("", "a totally novel failure")))
}

func TestCanonicalSlug(t *testing.T) {
	assert.Equal(t, "binance_futures", CanonicalSlug("binance"))
	assert.Equal(t, "unlisted", CanonicalSlug("unlisted"))
}
