package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/nexus/internal/risk"
)

// RiskState handles GET /risk/state: the circuit breaker's current status.
func (s *Server) RiskState(w http.ResponseWriter, r *http.Request) {
	if s.deps.Risk == nil {
		writeError(w, http.StatusServiceUnavailable, "risk_manager_unavailable", "risk manager is not wired")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Risk.Breaker().Status())
}

// RiskLimits handles GET /risk/limits.
func (s *Server) RiskLimits(w http.ResponseWriter, r *http.Request) {
	limits, err := s.deps.Blacklist.GetLimits(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, limits)
}

type validateRequest struct {
	Symbol     string          `json:"symbol"`
	LongVenue  string          `json:"long_venue"`
	ShortVenue string          `json:"short_venue"`
	SizeUSD    decimal.Decimal `json:"size_usd"`
	Leverage   decimal.Decimal `json:"leverage"`
	Exposure   risk.PortfolioExposure `json:"exposure"`
}

// RiskValidate handles POST /risk/validate, running the pre-trade
// checklist against a hypothetical trade without submitting any order.
func (s *Server) RiskValidate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Risk == nil {
		writeError(w, http.StatusServiceUnavailable, "risk_manager_unavailable", "risk manager is not wired")
		return
	}
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	result, err := s.deps.Risk.ValidateTrade(r.Context(), req.Symbol, req.LongVenue, req.ShortVenue, req.SizeUSD, req.Leverage, req.Exposure)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "validation_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type breakerRequest struct {
	Reason string `json:"reason"`
}

// ActivateBreaker handles POST /risk/circuit-breaker/activate, a manual
// operator-initiated trip independent of the breaker's own failure count.
func (s *Server) ActivateBreaker(w http.ResponseWriter, r *http.Request) {
	if s.deps.Risk == nil {
		writeError(w, http.StatusServiceUnavailable, "risk_manager_unavailable", "risk manager is not wired")
		return
	}
	var req breakerRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Reason == "" {
		req.Reason = "manually activated via API"
	}
	s.deps.Risk.Breaker().ForceOpen(req.Reason)
	writeJSON(w, http.StatusOK, s.deps.Risk.Breaker().Status())
}

// DeactivateBreaker handles POST /risk/circuit-breaker/deactivate.
func (s *Server) DeactivateBreaker(w http.ResponseWriter, r *http.Request) {
	if s.deps.Risk == nil {
		writeError(w, http.StatusServiceUnavailable, "risk_manager_unavailable", "risk manager is not wired")
		return
	}
	s.deps.Risk.Breaker().ForceClose()
	writeJSON(w, http.StatusOK, s.deps.Risk.Breaker().Status())
}
