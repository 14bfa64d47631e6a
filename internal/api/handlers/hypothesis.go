package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Harshitk-cp/genesis/internal/domain"
	"github.com/Harshitk-cp/genesis/internal/service"
)

type HypothesisHandler struct {
	engine *service.GenesisEngine
}

func NewHypothesisHandler(engine *service.GenesisEngine) *HypothesisHandler {
	return &HypothesisHandler{engine: engine}
}

type declareRequest struct {
	Declarations []domain.UncertaintyDeclaration `json:"declarations"`
}

type hypothesesResponse struct {
	Hypotheses []*domain.Hypothesis `json:"hypotheses"`
	Count      int                  `json:"count"`
}

// Declare creates hypotheses from the user's uncertainty declarations.
func (h *HypothesisHandler) Declare(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req declareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Declarations) == 0 {
		writeError(w, http.StatusBadRequest, "declarations are required")
		return
	}
	for i := range req.Declarations {
		if req.Declarations[i].UserID != "" && req.Declarations[i].UserID != userID {
			writeError(w, http.StatusBadRequest, "declaration user_id does not match path")
			return
		}
		req.Declarations[i].UserID = userID
	}

	created, err := h.engine.InitializeFromUncertainties(r.Context(), req.Declarations)
	if err != nil {
		writeServiceError(w, err, "failed to initialize hypotheses")
		return
	}
	if created == nil {
		created = []*domain.Hypothesis{}
	}

	writeJSON(w, http.StatusCreated, hypothesesResponse{Hypotheses: created, Count: len(created)})
}

// List returns the user's hypotheses filtered by ?state=active|confirmed|all.
func (h *HypothesisHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var out []*domain.Hypothesis
	switch r.URL.Query().Get("state") {
	case "", "all":
		out = h.engine.GetHypothesesForUser(r.Context(), userID)
	case "active":
		out = h.engine.GetActiveHypotheses(r.Context(), userID)
	case "confirmed":
		out = h.engine.GetConfirmedHypotheses(r.Context(), userID)
	default:
		writeError(w, http.StatusBadRequest, "state must be one of active, confirmed, all")
		return
	}

	writeJSON(w, http.StatusOK, hypothesesResponse{Hypotheses: out, Count: len(out)})
}

// Next returns the highest-priority hypothesis, or 204 when nothing needs probing.
func (h *HypothesisHandler) Next(w http.ResponseWriter, r *http.Request) {
	next := h.engine.SelectNextHypothesis(r.Context(), chi.URLParam(r, "userID"))
	if next == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

type confirmationsResponse struct {
	Confirmations []service.Confirmation `json:"confirmations"`
}

// Confirm runs the confirmation check for the user.
func (h *HypothesisHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	confirmed := h.engine.CheckConfirmations(r.Context(), chi.URLParam(r, "userID"))
	if confirmed == nil {
		confirmed = []service.Confirmation{}
	}
	writeJSON(w, http.StatusOK, confirmationsResponse{Confirmations: confirmed})
}
