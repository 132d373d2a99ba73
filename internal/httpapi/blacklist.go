package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/sawpanic/nexus/internal/domain"
)

// ListBlacklist handles GET /blacklist.
func (s *Server) ListBlacklist(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.deps.Blacklist.ListSymbols(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, symbols)
}

type blacklistRequest struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// AddBlacklist handles POST /blacklist.
func (s *Server) AddBlacklist(w http.ResponseWriter, r *http.Request) {
	var req blacklistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.Symbol == "" {
		writeError(w, http.StatusBadRequest, "missing_symbol", "symbol is required")
		return
	}
	entry := domain.BlacklistEntry{
		Symbol: req.Symbol, Reason: req.Reason, BlacklistedBy: "api", CreatedAt: time.Now(),
	}
	if err := s.deps.Blacklist.Add(r.Context(), entry); err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// RemoveBlacklist handles DELETE /blacklist/{symbol}.
func (s *Server) RemoveBlacklist(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if err := s.deps.Blacklist.Remove(r.Context(), symbol); err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"symbol": symbol, "status": "removed"})
}
