package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Ranker/internal/topsis"
)

// ErrNotFound is returned when a mutation targets a row that does not exist.
// Getters return (nil, nil) instead.
var ErrNotFound = errors.New("store: not found")

type Project struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Criterion struct {
	ID        uuid.UUID          `json:"id"`
	ProjectID uuid.UUID          `json:"project_id"`
	Name      string             `json:"name"`
	Type      topsis.Orientation `json:"criterion_type"`
	Weight    float64            `json:"weight"`
	Position  int                `json:"position"`
}

type Alternative struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	// Values maps criterion ID to the alternative's raw score.
	Values map[uuid.UUID]float64 `json:"values"`
}

type Calculation struct {
	ID            uuid.UUID      `json:"id"`
	ProjectID     uuid.UUID      `json:"project_id"`
	Criteria      []string       `json:"criteria"`
	Alternatives  []string       `json:"alternatives"`
	Result        *topsis.Result `json:"result"`
	LowConfidence bool           `json:"low_confidence"`
	DurationMs    float64        `json:"duration_ms"`
	// SourceUpdatedAt is the project's updated_at as loaded for this run.
	// Staleness compares against it, not CreatedAt, so edits committed while
	// the calculation was in flight still mark the project stale.
	SourceUpdatedAt time.Time `json:"source_updated_at"`
	CreatedAt       time.Time `json:"created_at"`
}

// ProjectDetail is a project with its criteria and alternatives in position order.
type ProjectDetail struct {
	Project
	Criteria     []*Criterion   `json:"criteria"`
	Alternatives []*Alternative `json:"alternatives"`
}

type ProjectFilter struct {
	Limit  int
	Offset int
}

type Stats struct {
	Projects          int `json:"projects"`
	Criteria          int `json:"criteria"`
	Alternatives      int `json:"alternatives"`
	Calculations      int `json:"calculations"`
	LowConfidenceRuns int `json:"low_confidence_runs"`
}

type Store interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id uuid.UUID) (*Project, error)
	ListProjects(ctx context.Context, filter ProjectFilter) ([]*Project, error)
	RenameProject(ctx context.Context, id uuid.UUID, name string) error
	DeleteProject(ctx context.Context, id uuid.UUID) error

	AddCriterion(ctx context.Context, c *Criterion) error
	DeleteCriterion(ctx context.Context, projectID, criterionID uuid.UUID) error
	ListCriteria(ctx context.Context, projectID uuid.UUID) ([]*Criterion, error)

	AddAlternative(ctx context.Context, a *Alternative) error
	DeleteAlternative(ctx context.Context, projectID, alternativeID uuid.UUID) error
	ListAlternatives(ctx context.Context, projectID uuid.UUID) ([]*Alternative, error)

	// ImportProject creates a project with all its criteria and alternatives in one transaction.
	ImportProject(ctx context.Context, detail *ProjectDetail) error

	SaveCalculation(ctx context.Context, c *Calculation) error
	GetLatestCalculation(ctx context.Context, projectID uuid.UUID) (*Calculation, error)

	// ListStaleProjects returns projects changed since their newest calculation
	// (or never calculated) that have at least one criterion and one alternative.
	ListStaleProjects(ctx context.Context, limit int) ([]*Project, error)

	GetStats(ctx context.Context) (*Stats, error)

	Close() error
}

// LoadDetail fetches a project with its criteria and alternatives.
// Returns (nil, nil) when the project does not exist.
func LoadDetail(ctx context.Context, s Store, id uuid.UUID) (*ProjectDetail, error) {
	p, err := s.GetProject(ctx, id)
	if err != nil || p == nil {
		return nil, err
	}
	criteria, err := s.ListCriteria(ctx, id)
	if err != nil {
		return nil, err
	}
	alternatives, err := s.ListAlternatives(ctx, id)
	if err != nil {
		return nil, err
	}
	if criteria == nil {
		criteria = []*Criterion{}
	}
	if alternatives == nil {
		alternatives = []*Alternative{}
	}
	return &ProjectDetail{Project: *p, Criteria: criteria, Alternatives: alternatives}, nil
}
