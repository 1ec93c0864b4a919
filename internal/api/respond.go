package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Ranker/internal/broker"
	"github.com/MikeSquared-Agency/Ranker/internal/topsis"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ValidationResponse is the 422 body for rejected decision problems.
type ValidationResponse struct {
	Error  string `json:"error"`
	Rule   string `json:"rule"`
	Entity string `json:"entity,omitempty"`
	Name   string `json:"name,omitempty"`
	Index  *int   `json:"index,omitempty"`
	Column *int   `json:"column,omitempty"`
}

// writeCalculationError answers 422 for input errors and 500 for everything else.
func writeCalculationError(w http.ResponseWriter, err error) {
	rule := broker.Rule(err)
	if rule == "" {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := ValidationResponse{Error: err.Error(), Rule: rule}
	var ve *topsis.ValidationError
	if errors.As(err, &ve) {
		resp.Entity, resp.Name = ve.Entity, ve.Name
		index := ve.Index
		resp.Index = &index
		if ve.Column >= 0 {
			column := ve.Column
			resp.Column = &column
		}
	}
	writeJSON(w, http.StatusUnprocessableEntity, resp)
}

func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// urlUUID parses a UUID path parameter, writing a 400 on failure.
func urlUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}
