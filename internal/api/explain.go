package api

import (
	"net/http"

	"github.com/MikeSquared-Agency/Ranker/internal/store"
	"github.com/MikeSquared-Agency/Ranker/internal/topsis"
)

type ExplainHandler struct {
	store store.Store
}

func NewExplainHandler(s store.Store) *ExplainHandler {
	return &ExplainHandler{store: s}
}

type ExplainResponse struct {
	Calculation *store.Calculation `json:"calculation"`
	// Frontier names the Pareto-efficient alternatives of the current data.
	Frontier []string `json:"pareto_frontier"`
	// Stale is set when the project changed after the calculation.
	Stale bool `json:"stale"`
}

// Explain returns the latest calculation's intermediate steps with the
// Pareto frontier of the project's current data.
// GET /api/v1/projects/{id}/explain
func (h *ExplainHandler) Explain(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}

	detail, err := store.LoadDetail(r.Context(), h.store, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if detail == nil {
		writeError(w, http.StatusNotFound, "project not found")
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

	resp := ExplainResponse{
		Calculation: calc,
		Frontier:    []string{},
		Stale:       detail.UpdatedAt.After(calc.SourceUpdatedAt),
	}
	// Both calls only fail on invalid input; the stored calculation is still
	// returned, flagged stale, without a frontier.
	problem, err := store.BuildProblem(detail.Criteria, detail.Alternatives)
	if err == nil {
		var indices []int
		if indices, err = topsis.Frontier(problem); err == nil {
			for _, i := range indices {
				resp.Frontier = append(resp.Frontier, problem.Alternatives[i].Name)
			}
		}
	}
	if err != nil {
		resp.Stale = true
	}
	writeJSON(w, http.StatusOK, resp)
}
