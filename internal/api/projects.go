package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Ranker/internal/hermes"
	"github.com/MikeSquared-Agency/Ranker/internal/store"
	"github.com/MikeSquared-Agency/Ranker/internal/topsis"
)

type ProjectsHandler struct {
	store  store.Store
	hermes hermes.Client
	logger *slog.Logger
}

func NewProjectsHandler(s store.Store, h hermes.Client, logger *slog.Logger) *ProjectsHandler {
	return &ProjectsHandler{store: s, hermes: h, logger: logger}
}

type ProjectRequest struct {
	Name string `json:"name"`
}

func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "project name is required")
		return
	}

	p := &store.Project{Name: req.Name}
	if err := h.store.CreateProject(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.publish(hermes.SubjectProjectCreated(p.ID.String()), p, "created")
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := store.ProjectFilter{}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		filter.Offset = n
	}

	projects, err := h.store.ListProjects(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if projects == nil {
		projects = []*store.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
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
	writeJSON(w, http.StatusOK, detail)
}

func (h *ProjectsHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	var req ProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "project name is required")
		return
	}

	if err := h.store.RenameProject(r.Context(), id, req.Name); err != nil {
		h.writeStoreError(w, err, "project not found")
		return
	}
	p, err := h.store.GetProject(r.Context(), id)
	if err != nil || p == nil {
		writeError(w, http.StatusInternalServerError, "reload project failed")
		return
	}
	h.publish(hermes.SubjectProjectUpdated(id.String()), p, "renamed")
	writeJSON(w, http.StatusOK, p)
}

func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.store.DeleteProject(r.Context(), id); err != nil {
		h.writeStoreError(w, err, "project not found")
		return
	}
	h.publish(hermes.SubjectProjectDeleted(id.String()), &store.Project{ID: id}, "deleted")
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type CriterionRequest struct {
	Name   string   `json:"name"`
	Type   string   `json:"criterion_type"`
	Weight *float64 `json:"weight"`
}

// AddCriterion appends a criterion to the project.
// POST /api/v1/projects/{id}/criteria
func (h *ProjectsHandler) AddCriterion(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	var req CriterionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.Type == "" || req.Weight == nil {
		writeError(w, http.StatusBadRequest, "name, criterion_type, and weight are required")
		return
	}
	existing, found := h.loadCriteria(w, r, id)
	if !found {
		return
	}
	index := len(existing)
	orientation, err := topsis.ParseOrientation(req.Type)
	if err != nil {
		writeCalculationError(w, criterionError(topsis.ErrOrientation, req.Name, index, "criterion_type must be benefit or cost"))
		return
	}
	if weight := *req.Weight; math.IsNaN(weight) || math.IsInf(weight, 0) || weight <= 0 {
		writeCalculationError(w, criterionError(topsis.ErrWeight, req.Name, index, "weight must be a finite number greater than zero"))
		return
	}
	for _, c := range existing {
		if c.Name == req.Name {
			writeError(w, http.StatusConflict, "criterion "+strconv.Quote(req.Name)+" already exists")
			return
		}
	}

	c := &store.Criterion{ProjectID: id, Name: req.Name, Type: orientation, Weight: *req.Weight}
	if err := h.store.AddCriterion(r.Context(), c); err != nil {
		h.writeStoreError(w, err, "project not found")
		return
	}
	h.publish(hermes.SubjectProjectUpdated(id.String()), &store.Project{ID: id}, "criterion_added")
	writeJSON(w, http.StatusCreated, c)
}

func (h *ProjectsHandler) DeleteCriterion(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	cid, ok := urlUUID(w, r, "cid")
	if !ok {
		return
	}
	if err := h.store.DeleteCriterion(r.Context(), id, cid); err != nil {
		h.writeStoreError(w, err, "criterion not found")
		return
	}
	h.publish(hermes.SubjectProjectUpdated(id.String()), &store.Project{ID: id}, "criterion_deleted")
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ValueInput names its criterion by ID or by name.
type ValueInput struct {
	CriterionID string  `json:"criterion_id,omitempty"`
	Criterion   string  `json:"criterion,omitempty"`
	Value       float64 `json:"value"`
}

type AlternativeRequest struct {
	Name   string       `json:"name"`
	Values []ValueInput `json:"values"`
}

// AddAlternative appends an alternative with its values. Criteria without a
// value are allowed here and rejected when the project is calculated.
// POST /api/v1/projects/{id}/alternatives
func (h *ProjectsHandler) AddAlternative(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	var req AlternativeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "alternative name is required")
		return
	}

	criteria, found := h.loadCriteria(w, r, id)
	if !found {
		return
	}
	byID := make(map[uuid.UUID]bool, len(criteria))
	byName := make(map[string]uuid.UUID, len(criteria))
	for _, c := range criteria {
		byID[c.ID] = true
		byName[c.Name] = c.ID
	}

	a := &store.Alternative{ProjectID: id, Name: req.Name, Values: make(map[uuid.UUID]float64, len(req.Values))}
	for _, v := range req.Values {
		var cid uuid.UUID
		switch {
		case v.CriterionID != "":
			parsed, err := uuid.Parse(v.CriterionID)
			if err != nil || !byID[parsed] {
				writeError(w, http.StatusBadRequest, "unknown criterion_id "+strconv.Quote(v.CriterionID))
				return
			}
			cid = parsed
		case v.Criterion != "":
			named, ok := byName[v.Criterion]
			if !ok {
				writeError(w, http.StatusBadRequest, "unknown criterion "+strconv.Quote(v.Criterion))
				return
			}
			cid = named
		default:
			writeError(w, http.StatusBadRequest, "each value needs criterion_id or criterion")
			return
		}
		if _, dup := a.Values[cid]; dup {
			writeError(w, http.StatusBadRequest, "duplicate value for criterion "+cid.String())
			return
		}
		a.Values[cid] = v.Value
	}

	alternatives, err := h.store.ListAlternatives(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, existing := range alternatives {
		if existing.Name == req.Name {
			writeError(w, http.StatusConflict, "alternative "+strconv.Quote(req.Name)+" already exists")
			return
		}
	}

	if err := h.store.AddAlternative(r.Context(), a); err != nil {
		h.writeStoreError(w, err, "project not found")
		return
	}
	h.publish(hermes.SubjectProjectUpdated(id.String()), &store.Project{ID: id}, "alternative_added")
	writeJSON(w, http.StatusCreated, a)
}

func (h *ProjectsHandler) DeleteAlternative(w http.ResponseWriter, r *http.Request) {
	id, ok := urlUUID(w, r, "id")
	if !ok {
		return
	}
	aid, ok := urlUUID(w, r, "aid")
	if !ok {
		return
	}
	if err := h.store.DeleteAlternative(r.Context(), id, aid); err != nil {
		h.writeStoreError(w, err, "alternative not found")
		return
	}
	h.publish(hermes.SubjectProjectUpdated(id.String()), &store.Project{ID: id}, "alternative_deleted")
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// loadCriteria returns the project's criteria, writing a 404 or 500 when the
// project cannot be read.
func (h *ProjectsHandler) loadCriteria(w http.ResponseWriter, r *http.Request, id uuid.UUID) ([]*store.Criterion, bool) {
	p, err := h.store.GetProject(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "project not found")
		return nil, false
	}
	criteria, err := h.store.ListCriteria(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return criteria, true
}

func (h *ProjectsHandler) writeStoreError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, notFound)
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func (h *ProjectsHandler) publish(subject string, p *store.Project, change string) {
	hermes.Publish(h.hermes, h.logger, subject, hermes.ProjectEvent{
		ProjectID: p.ID.String(),
		Name:      p.Name,
		Change:    change,
		Timestamp: time.Now().UTC(),
	})
}

func criterionError(rule error, name string, index int, detail string) error {
	return &topsis.ValidationError{
		Rule:   rule,
		Entity: topsis.EntityCriterion,
		Name:   name,
		Index:  index,
		Column: -1,
		Detail: detail,
	}
}
