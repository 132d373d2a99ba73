package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/sawpanic/nexus/internal/domain"
)

type positionView struct {
	domain.Position
	Legs []domain.Leg `json:"legs"`
}

// ListPositions handles GET /positions and /positions/active.
func (s *Server) ListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.deps.Positions.ListOpen(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	writeJSONMeta(w, http.StatusOK, positions, map[string]int{"count": len(positions)})
}

// GetPosition handles GET /positions/{id}, returning the position together
// with its two legs.
func (s *Server) GetPosition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	pos, legs, err := s.deps.Positions.Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "position "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, positionView{Position: pos, Legs: legs})
}

type closeRequest struct {
	Reason domain.ExitReason `json:"reason"`
}

// ClosePosition handles POST /positions/{id}/close, an operator-initiated
// close routed through Manager.RequestClose.
func (s *Server) ClosePosition(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req closeRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	reason := req.Reason
	if reason == "" {
		reason = domain.ExitManual
	}

	if s.deps.PositionMgr == nil {
		writeError(w, http.StatusServiceUnavailable, "position_manager_unavailable", "position manager is not wired")
		return
	}
	if err := s.deps.PositionMgr.RequestClose(r.Context(), id, reason); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "close_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"position_id": id, "status": "closing"})
}
