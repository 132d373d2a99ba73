package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/nexus/internal/domain"
)

// ListOpportunities handles GET /opportunities and /opportunities/live,
// applying symbol/exchange/status/score filters and pagination over the
// persisted active set.
func (s *Server) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	opps, err := s.deps.Opportunities.ListActive(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	q := r.URL.Query()
	if symbol := q.Get("symbol"); symbol != "" {
		opps = filterOpps(opps, func(o domain.Opportunity) bool { return o.Symbol == symbol })
	}
	if exchange := q.Get("exchange"); exchange != "" {
		opps = filterOpps(opps, func(o domain.Opportunity) bool {
			return o.LongExchange == exchange || o.ShortExchange == exchange
		})
	}
	if status := q.Get("status"); status != "" {
		opps = filterOpps(opps, func(o domain.Opportunity) bool { return string(o.Status) == status })
	}
	if minScoreStr := q.Get("min_score"); minScoreStr != "" {
		if minScore, err := strconv.ParseFloat(minScoreStr, 64); err == nil {
			opps = filterOpps(opps, func(o domain.Opportunity) bool { return o.UOSScore >= minScore })
		}
	}

	sortBy := q.Get("sort_by")
	if sortBy == "" {
		sortBy = "uos_score"
	}
	desc := q.Get("sort_order") != "asc"
	sortOpps(opps, sortBy, desc)

	offset, _ := strconv.Atoi(q.Get("offset"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	opps = paginate(opps, offset, limit)

	writeJSONMeta(w, http.StatusOK, opps, map[string]int{"count": len(opps)})
}

// TopOpportunities handles GET /opportunities/top/{n}.
func (s *Server) TopOpportunities(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(mux.Vars(r)["n"])
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_n", "n must be a positive integer")
		return
	}
	opps, err := s.deps.Opportunities.ListActive(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	sortOpps(opps, "uos_score", true)
	writeJSON(w, http.StatusOK, paginate(opps, 0, n))
}

// GetOpportunity handles GET /opportunities/{id}.
func (s *Server) GetOpportunity(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	opp, err := s.deps.Opportunities.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "opportunity "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, opp)
}

type executeRequest struct {
	CapitalUSD *decimal.Decimal `json:"capital_usd"`
	Leverage   *decimal.Decimal `json:"leverage"`
}

// ExecuteOpportunity handles POST /opportunities/{id}/execute.
func (s *Server) ExecuteOpportunity(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	opp, err := s.deps.Opportunities.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "opportunity "+id+" not found")
		return
	}

	var req executeRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	capitalUSD := opp.RecommendedSizeUSD
	if req.CapitalUSD != nil {
		capitalUSD = *req.CapitalUSD
	}
	leverage := decimal.NewFromInt(3)
	if req.Leverage != nil {
		leverage = *req.Leverage
	}

	if s.deps.Execution == nil {
		writeError(w, http.StatusServiceUnavailable, "execution_unavailable", "execution engine is not wired")
		return
	}
	if err := s.deps.Execution.ExecuteOpportunity(r.Context(), opp, capitalUSD, leverage); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "execution_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"opportunity_id": id, "status": "executing"})
}

func filterOpps(opps []domain.Opportunity, pred func(domain.Opportunity) bool) []domain.Opportunity {
	out := opps[:0:0]
	for _, o := range opps {
		if pred(o) {
			out = append(out, o)
		}
	}
	return out
}

func sortOpps(opps []domain.Opportunity, by string, desc bool) {
	less := func(i, j int) bool {
		switch by {
		case "detected_at":
			return opps[i].DetectedAt.Before(opps[j].DetectedAt)
		case "expires_at":
			return opps[i].ExpiresAt.Before(opps[j].ExpiresAt)
		case "funding_spread":
			return opps[i].FundingSpread.LessThan(opps[j].FundingSpread)
		default:
			return opps[i].UOSScore < opps[j].UOSScore
		}
	}
	if desc {
		sort.Slice(opps, func(i, j int) bool { return less(j, i) })
	} else {
		sort.Slice(opps, less)
	}
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return items[:0]
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}
