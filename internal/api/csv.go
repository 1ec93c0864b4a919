package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/Ranker/internal/csvimport"
	"github.com/MikeSquared-Agency/Ranker/internal/hermes"
	"github.com/MikeSquared-Agency/Ranker/internal/store"
	"github.com/MikeSquared-Agency/Ranker/internal/topsis"
)

const (
	maxUploadBytes = 10 << 20
	previewRows    = 10
)

type CSVHandler struct {
	store  store.Store
	hermes hermes.Client
	logger *slog.Logger
}

func NewCSVHandler(s store.Store, h hermes.Client, logger *slog.Logger) *CSVHandler {
	return &CSVHandler{store: s, hermes: h, logger: logger}
}

// Preview parses an uploaded CSV file and returns its columns and first rows.
// POST /api/v1/csv/preview (multipart form, field "file")
func (h *CSVHandler) Preview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file provided")
		return
	}
	defer file.Close()

	table, err := csvimport.Parse(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "error reading CSV file: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, table.Preview(previewRows))
}

type ImportRequest struct {
	ProjectName string                    `json:"project_name"`
	CSVData     string                    `json:"csv_data"`
	Criteria    []csvimport.CriterionSpec `json:"criteria_config"`
}

// Import creates a project from CSV text, using the configured columns as
// criteria and every row as an alternative.
// POST /api/v1/csv/import
func (h *CSVHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	var req ImportRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.ProjectName = strings.TrimSpace(req.ProjectName)
	if req.ProjectName == "" || req.CSVData == "" || len(req.Criteria) == 0 {
		writeError(w, http.StatusBadRequest, "project_name, csv_data, and criteria_config are required")
		return
	}

	table, err := csvimport.Parse(strings.NewReader(req.CSVData))
	if err != nil {
		writeError(w, http.StatusBadRequest, "error reading CSV data: "+err.Error())
		return
	}
	detail, err := table.Project(req.ProjectName, req.Criteria)
	if errors.Is(err, topsis.ErrOrientation) {
		writeJSON(w, http.StatusUnprocessableEntity, ValidationResponse{Error: err.Error(), Rule: "orientation"})
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	problem, err := store.BuildProblem(detail.Criteria, detail.Alternatives)
	if err == nil {
		err = topsis.Validate(problem)
	}
	if err != nil {
		writeCalculationError(w, err)
		return
	}

	if err := h.store.ImportProject(r.Context(), detail); err != nil {
		writeError(w, http.StatusInternalServerError, "error importing data: "+err.Error())
		return
	}
	hermes.Publish(h.hermes, h.logger, hermes.SubjectProjectCreated(detail.ID.String()), hermes.ProjectEvent{
		ProjectID: detail.ID.String(),
		Name:      detail.Name,
		Change:    "imported",
		Timestamp: time.Now().UTC(),
	})
	h.logger.Info("project imported from csv",
		"project_id", detail.ID,
		"criteria", len(detail.Criteria),
		"alternatives", len(detail.Alternatives),
	)
	writeJSON(w, http.StatusCreated, detail)
}
