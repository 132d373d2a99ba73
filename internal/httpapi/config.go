package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sawpanic/nexus/internal/config"
)

// GetStrategyConfig handles GET /config/strategy.
func (s *Server) GetStrategyConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.RuntimeConfig == nil {
		writeError(w, http.StatusServiceUnavailable, "config_unavailable", "runtime config is not wired")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.RuntimeConfig.Strategy())
}

// PutStrategyConfig handles PUT /config/strategy, replacing the live
// in-memory strategy thresholds. Changes do not persist across restarts;
// the YAML file on disk remains the source of truth there.
func (s *Server) PutStrategyConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.RuntimeConfig == nil {
		writeError(w, http.StatusServiceUnavailable, "config_unavailable", "runtime config is not wired")
		return
	}
	var cfg config.StrategyConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	s.deps.RuntimeConfig.SetStrategy(cfg)
	writeJSON(w, http.StatusOK, cfg)
}

// GetExchangeConfig handles GET /config/exchanges/{slug}.
func (s *Server) GetExchangeConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.RuntimeConfig == nil {
		writeError(w, http.StatusServiceUnavailable, "config_unavailable", "runtime config is not wired")
		return
	}
	slug := mux.Vars(r)["slug"]
	for _, ex := range s.deps.RuntimeConfig.Exchanges().Exchanges {
		if ex.Slug == slug {
			writeJSON(w, http.StatusOK, ex)
			return
		}
	}
	writeError(w, http.StatusNotFound, "not_found", "exchange "+slug+" not configured")
}

type patchExchangeRequest struct {
	Enabled        *bool `json:"enabled"`
	RateLimitWidth *int  `json:"rate_limit_width"`
}

// PatchExchangeConfig handles PATCH /config/exchanges/{slug}, toggling an
// exchange on/off or adjusting its rate-limit width without a restart.
func (s *Server) PatchExchangeConfig(w http.ResponseWriter, r *http.Request) {
	if s.deps.RuntimeConfig == nil {
		writeError(w, http.StatusServiceUnavailable, "config_unavailable", "runtime config is not wired")
		return
	}
	slug := mux.Vars(r)["slug"]
	var req patchExchangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if !s.deps.RuntimeConfig.PatchExchange(slug, req.Enabled, req.RateLimitWidth) {
		writeError(w, http.StatusNotFound, "not_found", "exchange "+slug+" not configured")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"slug": slug, "status": "updated"})
}

// FactoryReset handles POST /config/settings/factory-reset.
func (s *Server) FactoryReset(w http.ResponseWriter, r *http.Request) {
	if s.deps.RuntimeConfig == nil {
		writeError(w, http.StatusServiceUnavailable, "config_unavailable", "runtime config is not wired")
		return
	}
	s.deps.RuntimeConfig.FactoryReset()
	writeJSON(w, http.StatusOK, s.deps.RuntimeConfig.Strategy())
}
