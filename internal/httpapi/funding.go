package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/sawpanic/nexus/internal/cache"
	"github.com/sawpanic/nexus/internal/domain"
)

func (s *Server) readSnapshot(r *http.Request) (domain.UnifiedFundingSnapshot, bool) {
	var snap domain.UnifiedFundingSnapshot
	if s.deps.Cache == nil {
		return snap, false
	}
	ok, err := s.deps.Cache.Get(r.Context(), cache.KeyUnifiedSnapshot, &snap)
	return snap, ok && err == nil
}

// FundingRates handles GET /funding/rates: the flattened current rate set
// across every tracked exchange, read from the aggregator's published
// snapshot.
func (s *Server) FundingRates(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.readSnapshot(r)
	if !ok {
		writeJSON(w, http.StatusOK, []domain.FundingRate{})
		return
	}
	var rates []domain.FundingRate
	for _, byExchange := range snap.Rates {
		for _, rate := range byExchange {
			rates = append(rates, rate)
		}
	}
	writeJSON(w, http.StatusOK, rates)
}

// FundingMatrix handles GET /funding/matrix?source=primary|reference: the
// symbol x exchange rate matrix as published, unfiltered by source since
// the snapshot only retains the reconciled view.
func (s *Server) FundingMatrix(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.readSnapshot(r)
	if !ok {
		writeJSON(w, http.StatusOK, map[string]map[string]domain.FundingRate{})
		return
	}
	writeJSONMeta(w, http.StatusOK, snap.Rates, map[string]any{
		"fetched_at":   snap.FetchedAt,
		"discrepancies": len(snap.Discrepancies),
	})
}

// FundingHistory handles GET /funding/history/{symbol}: the current rates
// for one symbol across exchanges. Deeper time-series retention lives in
// the aggregator's in-memory spread history and is not yet exposed here.
func (s *Server) FundingHistory(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	snap, ok := s.readSnapshot(r)
	if !ok {
		writeJSON(w, http.StatusOK, []domain.FundingRate{})
		return
	}
	byExchange, ok := snap.Rates[symbol]
	if !ok {
		writeJSON(w, http.StatusOK, []domain.FundingRate{})
		return
	}
	rates := make([]domain.FundingRate, 0, len(byExchange))
	for _, rate := range byExchange {
		rates = append(rates, rate)
	}
	writeJSON(w, http.StatusOK, rates)
}

// FundingSpreads handles GET /funding/spreads?min_spread&limit: the
// aggregator's top cross-exchange spread list.
func (s *Server) FundingSpreads(w http.ResponseWriter, r *http.Request) {
	var spreads []domain.Spread
	if s.deps.Cache != nil {
		_, _ = s.deps.Cache.Get(r.Context(), cache.KeySpreadList, &spreads)
	}

	q := r.URL.Query()
	if minStr := q.Get("min_spread"); minStr != "" {
		if min, err := strconv.ParseFloat(minStr, 64); err == nil {
			filtered := spreads[:0:0]
			for _, sp := range spreads {
				if f, _ := sp.SpreadPct.Float64(); f >= min {
					filtered = append(filtered, sp)
				}
			}
			spreads = filtered
		}
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 && limit < len(spreads) {
		spreads = spreads[:limit]
	}
	writeJSON(w, http.StatusOK, spreads)
}

// RiskAlerts handles GET /risk/alerts: the most recent reconciliation
// report, supplementing the validate/state/limits surface the distilled
// spec named with the alert feed original_source's dashboard relied on.
func (s *Server) RiskAlerts(w http.ResponseWriter, r *http.Request) {
	var report domain.ReconciliationReport
	if s.deps.Cache != nil {
		if ok, _ := s.deps.Cache.Get(r.Context(), cache.KeyReconciliationReport, &report); ok {
			writeJSON(w, http.StatusOK, report)
			return
		}
	}
	writeJSON(w, http.StatusOK, domain.ReconciliationReport{})
}

// AnalyticsStub handles the /analytics/* family. Historical PnL
// attribution and realtime dashboards sit outside this platform's core
// (spec Non-goals); these routes exist so the documented surface resolves
// rather than 404s, returning an empty result set.
func (s *Server) AnalyticsStub(w http.ResponseWriter, r *http.Request) {
	writeJSONMeta(w, http.StatusOK, map[string]any{}, map[string]string{
		"note": "analytics aggregation is out of this platform's core scope",
	})
}
