package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MikeSquared-Agency/Ranker/internal/topsis"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS ranker_projects (
	id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	name       TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ranker_criteria (
	id             UUID PRIMARY KEY,
	project_id     UUID NOT NULL REFERENCES ranker_projects(id) ON DELETE CASCADE,
	name           TEXT NOT NULL,
	criterion_type TEXT NOT NULL CHECK (criterion_type IN ('benefit', 'cost')),
	weight         DOUBLE PRECISION NOT NULL,
	position       INTEGER NOT NULL,
	UNIQUE (project_id, name)
);

CREATE TABLE IF NOT EXISTS ranker_alternatives (
	id         UUID PRIMARY KEY,
	project_id UUID NOT NULL REFERENCES ranker_projects(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	position   INTEGER NOT NULL,
	UNIQUE (project_id, name)
);

CREATE TABLE IF NOT EXISTS ranker_alternative_values (
	alternative_id UUID NOT NULL REFERENCES ranker_alternatives(id) ON DELETE CASCADE,
	criterion_id   UUID NOT NULL REFERENCES ranker_criteria(id) ON DELETE CASCADE,
	value          DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (alternative_id, criterion_id)
);

CREATE TABLE IF NOT EXISTS ranker_calculations (
	id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	project_id     UUID NOT NULL REFERENCES ranker_projects(id) ON DELETE CASCADE,
	criteria       JSONB NOT NULL,
	alternatives   JSONB NOT NULL,
	result         JSONB NOT NULL,
	low_confidence BOOLEAN NOT NULL DEFAULT false,
	duration_ms    DOUBLE PRECISION NOT NULL DEFAULT 0,
	source_updated_at TIMESTAMPTZ NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ranker_calculations_project ON ranker_calculations(project_id, created_at DESC);
`

// pgExec is the subset of pgxpool.Pool and pgx.Tx used by shared helpers.
type pgExec interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

// Migrate creates the ranker tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate postgres: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const projectColumns = `id, name, created_at, updated_at`

func (s *PostgresStore) CreateProject(ctx context.Context, p *Project) error {
	return s.pool.QueryRow(ctx, `
		INSERT INTO ranker_projects (name) VALUES ($1)
		RETURNING `+projectColumns,
		p.Name,
	).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
}

func (s *PostgresStore) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	p := &Project{}
	err := s.pool.QueryRow(ctx, `SELECT `+projectColumns+` FROM ranker_projects WHERE id = $1`, id).
		Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context, filter ProjectFilter) ([]*Project, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+projectColumns+` FROM ranker_projects
		ORDER BY updated_at DESC, id LIMIT $1 OFFSET $2`, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProjects(rows)
}

func (s *PostgresStore) RenameProject(ctx context.Context, id uuid.UUID, name string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE ranker_projects SET name = $2, updated_at = now() WHERE id = $1`, id, name)
	if err != nil {
		return err
	}
	return requireRows(tag)
}

func (s *PostgresStore) DeleteProject(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM ranker_projects WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRows(tag)
}

func (s *PostgresStore) AddCriterion(ctx context.Context, c *Criterion) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := pgTouchProject(ctx, tx, c.ProjectID); err != nil {
			return err
		}
		return pgInsertCriterion(ctx, tx, c, -1)
	})
}

func (s *PostgresStore) DeleteCriterion(ctx context.Context, projectID, criterionID uuid.UUID) error {
	return s.deleteChild(ctx, `DELETE FROM ranker_criteria WHERE id = $1 AND project_id = $2`, projectID, criterionID)
}

func (s *PostgresStore) ListCriteria(ctx context.Context, projectID uuid.UUID) ([]*Criterion, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, name, criterion_type, weight, position
		FROM ranker_criteria WHERE project_id = $1 ORDER BY position, name`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Criterion
	for rows.Next() {
		c := &Criterion{}
		var typ string
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Name, &typ, &c.Weight, &c.Position); err != nil {
			return nil, err
		}
		c.Type = topsis.Orientation(typ)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AddAlternative(ctx context.Context, a *Alternative) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := pgTouchProject(ctx, tx, a.ProjectID); err != nil {
			return err
		}
		return pgInsertAlternative(ctx, tx, a, -1)
	})
}

func (s *PostgresStore) DeleteAlternative(ctx context.Context, projectID, alternativeID uuid.UUID) error {
	return s.deleteChild(ctx, `DELETE FROM ranker_alternatives WHERE id = $1 AND project_id = $2`, projectID, alternativeID)
}

func (s *PostgresStore) ListAlternatives(ctx context.Context, projectID uuid.UUID) ([]*Alternative, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, name, position
		FROM ranker_alternatives WHERE project_id = $1 ORDER BY position, name`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Alternative
	byID := make(map[uuid.UUID]*Alternative)
	for rows.Next() {
		a := &Alternative{Values: make(map[uuid.UUID]float64)}
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.Name, &a.Position); err != nil {
			return nil, err
		}
		byID[a.ID] = a
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	vrows, err := s.pool.Query(ctx, `
		SELECT v.alternative_id, v.criterion_id, v.value
		FROM ranker_alternative_values v
		JOIN ranker_alternatives a ON a.id = v.alternative_id
		WHERE a.project_id = $1`, projectID)
	if err != nil {
		return nil, err
	}
	defer vrows.Close()
	for vrows.Next() {
		var aid, cid uuid.UUID
		var v float64
		if err := vrows.Scan(&aid, &cid, &v); err != nil {
			return nil, err
		}
		if a, ok := byID[aid]; ok {
			a.Values[cid] = v
		}
	}
	return out, vrows.Err()
}

func (s *PostgresStore) ImportProject(ctx context.Context, detail *ProjectDetail) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO ranker_projects (name) VALUES ($1)
			RETURNING `+projectColumns, detail.Name,
		).Scan(&detail.ID, &detail.Name, &detail.CreatedAt, &detail.UpdatedAt); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		for j, c := range detail.Criteria {
			c.ProjectID = detail.ID
			if err := pgInsertCriterion(ctx, tx, c, j); err != nil {
				return fmt.Errorf("insert criterion %q: %w", c.Name, err)
			}
		}
		for i, a := range detail.Alternatives {
			a.ProjectID = detail.ID
			if err := pgInsertAlternative(ctx, tx, a, i); err != nil {
				return fmt.Errorf("insert alternative %q: %w", a.Name, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) SaveCalculation(ctx context.Context, c *Calculation) error {
	resultJSON, err := json.Marshal(c.Result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	criteriaJSON, err := json.Marshal(c.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}
	alternativesJSON, err := json.Marshal(c.Alternatives)
	if err != nil {
		return fmt.Errorf("marshal alternatives: %w", err)
	}

	return s.pool.QueryRow(ctx, `
		INSERT INTO ranker_calculations (project_id, criteria, alternatives, result, low_confidence, duration_ms, source_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		c.ProjectID, criteriaJSON, alternativesJSON, resultJSON, c.LowConfidence, c.DurationMs, c.SourceUpdatedAt,
	).Scan(&c.ID, &c.CreatedAt)
}

func (s *PostgresStore) GetLatestCalculation(ctx context.Context, projectID uuid.UUID) (*Calculation, error) {
	c := &Calculation{}
	var criteriaJSON, alternativesJSON, resultJSON []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, project_id, criteria, alternatives, result, low_confidence, duration_ms, source_updated_at, created_at
		FROM ranker_calculations WHERE project_id = $1
		ORDER BY created_at DESC LIMIT 1`, projectID,
	).Scan(&c.ID, &c.ProjectID, &criteriaJSON, &alternativesJSON, &resultJSON, &c.LowConfidence, &c.DurationMs,
		&c.SourceUpdatedAt, &c.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(criteriaJSON, &c.Criteria); err != nil {
		return nil, fmt.Errorf("decode criteria: %w", err)
	}
	if err := json.Unmarshal(alternativesJSON, &c.Alternatives); err != nil {
		return nil, fmt.Errorf("decode alternatives: %w", err)
	}
	if err := json.Unmarshal(resultJSON, &c.Result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) ListStaleProjects(ctx context.Context, limit int) ([]*Project, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.name, p.created_at, p.updated_at FROM ranker_projects p
		WHERE EXISTS (SELECT 1 FROM ranker_criteria c WHERE c.project_id = p.id)
		  AND EXISTS (SELECT 1 FROM ranker_alternatives a WHERE a.project_id = p.id)
		  AND p.updated_at > COALESCE(
			(SELECT MAX(k.source_updated_at) FROM ranker_calculations k WHERE k.project_id = p.id),
			'-infinity'::timestamptz)
		ORDER BY p.updated_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProjects(rows)
}

func (s *PostgresStore) GetStats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM ranker_projects),
			(SELECT COUNT(*) FROM ranker_criteria),
			(SELECT COUNT(*) FROM ranker_alternatives),
			(SELECT COUNT(*) FROM ranker_calculations),
			(SELECT COUNT(*) FROM ranker_calculations WHERE low_confidence)`,
	).Scan(&st.Projects, &st.Criteria, &st.Alternatives, &st.Calculations, &st.LowConfidenceRuns)
	return st, err
}

func (s *PostgresStore) deleteChild(ctx context.Context, query string, projectID, childID uuid.UUID) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, childID, projectID)
		if err != nil {
			return err
		}
		if err := requireRows(tag); err != nil {
			return err
		}
		return pgTouchProject(ctx, tx, projectID)
	})
}

func pgTouchProject(ctx context.Context, db pgExec, id uuid.UUID) error {
	tag, err := db.Exec(ctx, `UPDATE ranker_projects SET updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return requireRows(tag)
}

// pgInsertCriterion appends at the end of the project when position < 0.
func pgInsertCriterion(ctx context.Context, db pgExec, c *Criterion, position int) error {
	if position < 0 {
		if err := db.QueryRow(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM ranker_criteria WHERE project_id = $1`,
			c.ProjectID).Scan(&position); err != nil {
			return err
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Position = position
	_, err := db.Exec(ctx, `
		INSERT INTO ranker_criteria (id, project_id, name, criterion_type, weight, position)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.ProjectID, c.Name, string(c.Type), c.Weight, c.Position)
	return err
}

func pgInsertAlternative(ctx context.Context, db pgExec, a *Alternative, position int) error {
	if position < 0 {
		if err := db.QueryRow(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM ranker_alternatives WHERE project_id = $1`,
			a.ProjectID).Scan(&position); err != nil {
			return err
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Position = position
	if _, err := db.Exec(ctx, `
		INSERT INTO ranker_alternatives (id, project_id, name, position) VALUES ($1, $2, $3, $4)`,
		a.ID, a.ProjectID, a.Name, a.Position); err != nil {
		return err
	}
	for cid, v := range a.Values {
		if _, err := db.Exec(ctx, `
			INSERT INTO ranker_alternative_values (alternative_id, criterion_id, value) VALUES ($1, $2, $3)`,
			a.ID, cid, v); err != nil {
			return fmt.Errorf("insert value: %w", err)
		}
	}
	return nil
}

func requireRows(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanProjects(rows pgx.Rows) ([]*Project, error) {
	var projects []*Project
	for rows.Next() {
		p := &Project{}
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}
