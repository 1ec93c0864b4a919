package api

import (
	"errors"
	"net/http"

	"github.com/MikeSquared-Agency/Ranker/internal/broker"
	"github.com/MikeSquared-Agency/Ranker/internal/store"
	"github.com/MikeSquared-Agency/Ranker/internal/topsis"
)

type CalculationsHandler struct {
	store  store.Store
	broker *broker.Broker
}

func NewCalculationsHandler(s store.Store, b *broker.Broker) *CalculationsHandler {
	return &CalculationsHandler{store: s, broker: b}
}

// Calculate ranks the project's alternatives and stores the result.
// POST /api/v1/projects/{id}/calculate
func (h *CalculationsHandler) Calculate(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	calc, err := h.broker.Calculate(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	if err != nil {
		writeCalculationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

// Results returns the newest stored calculation.
// GET /api/v1/projects/{id}/results
func (h *CalculationsHandler) Results(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	calc, err := h.store.GetLatestCalculation(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if calc == nil {
		writeError(w, http.StatusNotFound, "no calculation for project")
		return
	}
	writeJSON(w, http.StatusOK, calc)
}

// Compute ranks an inline problem without storing anything.
// POST /api/v1/compute
func (h *CalculationsHandler) Compute(w http.ResponseWriter, r *http.Request) {
	var p topsis.Problem
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := h.broker.Evaluate(p)
	if err != nil {
		writeCalculationError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
