package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/MikeSquared-Agency/Ranker/internal/topsis"
)

// timeLayout is fixed-width UTC so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS criteria (
	id             TEXT PRIMARY KEY,
	project_id     TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name           TEXT NOT NULL,
	criterion_type TEXT NOT NULL,
	weight         REAL NOT NULL,
	position       INTEGER NOT NULL,
	UNIQUE (project_id, name)
);

CREATE TABLE IF NOT EXISTS alternatives (
	id         TEXT PRIMARY KEY,
	project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	name       TEXT NOT NULL,
	position   INTEGER NOT NULL,
	UNIQUE (project_id, name)
);

CREATE TABLE IF NOT EXISTS alternative_values (
	alternative_id TEXT NOT NULL REFERENCES alternatives(id) ON DELETE CASCADE,
	criterion_id   TEXT NOT NULL REFERENCES criteria(id) ON DELETE CASCADE,
	value          REAL NOT NULL,
	PRIMARY KEY (alternative_id, criterion_id)
);

CREATE TABLE IF NOT EXISTS calculations (
	id             TEXT PRIMARY KEY,
	project_id     TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	criteria       TEXT NOT NULL,
	alternatives   TEXT NOT NULL,
	result         TEXT NOT NULL,
	low_confidence INTEGER NOT NULL DEFAULT 0,
	duration_ms    REAL NOT NULL DEFAULT 0,
	source_updated_at TEXT NOT NULL,
	created_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_calculations_project ON calculations(project_id, created_at);
`

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// SQLiteStore persists projects in a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and applies the schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps per-connection pragmas (foreign_keys) in force.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func (s *SQLiteStore) CreateProject(ctx context.Context, p *Project) error {
	now := time.Now().UTC()
	p.ID = uuid.New()
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		p.ID.String(), p.Name, formatTime(now), formatTime(now))
	return err
}

func (s *SQLiteStore) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	p := &Project{}
	var pid, created, updated string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, created_at, updated_at FROM projects WHERE id = ?`, id.String(),
	).Scan(&pid, &p.Name, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.ID = uuid.MustParse(pid)
	p.CreatedAt, p.UpdatedAt = parseTime(created), parseTime(updated)
	return p, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context, filter ProjectFilter) ([]*Project, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, created_at, updated_at FROM projects
		ORDER BY updated_at DESC, id LIMIT ? OFFSET ?`, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteProjects(rows)
}

func (s *SQLiteStore) RenameProject(ctx context.Context, id uuid.UUID, name string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, updated_at = ? WHERE id = ?`,
		name, formatTime(time.Now()), id.String())
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id.String())
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) AddCriterion(ctx context.Context, c *Criterion) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := touchProject(ctx, tx, c.ProjectID); err != nil {
		return err
	}
	if err := insertCriterion(ctx, tx, c, -1); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteCriterion(ctx context.Context, projectID, criterionID uuid.UUID) error {
	return s.deleteChild(ctx, `DELETE FROM criteria WHERE id = ? AND project_id = ?`, projectID, criterionID)
}

func (s *SQLiteStore) ListCriteria(ctx context.Context, projectID uuid.UUID) ([]*Criterion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, criterion_type, weight, position
		FROM criteria WHERE project_id = ? ORDER BY position, name`, projectID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Criterion
	for rows.Next() {
		c := &Criterion{}
		var id, pid, typ string
		if err := rows.Scan(&id, &pid, &c.Name, &typ, &c.Weight, &c.Position); err != nil {
			return nil, err
		}
		c.ID, c.ProjectID, c.Type = uuid.MustParse(id), uuid.MustParse(pid), topsis.Orientation(typ)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddAlternative(ctx context.Context, a *Alternative) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := touchProject(ctx, tx, a.ProjectID); err != nil {
		return err
	}
	if err := insertAlternative(ctx, tx, a, -1); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) DeleteAlternative(ctx context.Context, projectID, alternativeID uuid.UUID) error {
	return s.deleteChild(ctx, `DELETE FROM alternatives WHERE id = ? AND project_id = ?`, projectID, alternativeID)
}

func (s *SQLiteStore) ListAlternatives(ctx context.Context, projectID uuid.UUID) ([]*Alternative, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, project_id, name, position
		FROM alternatives WHERE project_id = ? ORDER BY position, name`, projectID.String())
	if err != nil {
		return nil, err
	}
	var out []*Alternative
	byID := make(map[string]*Alternative)
	for rows.Next() {
		a := &Alternative{Values: make(map[uuid.UUID]float64)}
		var id, pid string
		if err := rows.Scan(&id, &pid, &a.Name, &a.Position); err != nil {
			rows.Close()
			return nil, err
		}
		a.ID, a.ProjectID = uuid.MustParse(id), uuid.MustParse(pid)
		byID[id] = a
		out = append(out, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	vrows, err := s.db.QueryContext(ctx,
		`SELECT v.alternative_id, v.criterion_id, v.value
		FROM alternative_values v JOIN alternatives a ON a.id = v.alternative_id
		WHERE a.project_id = ?`, projectID.String())
	if err != nil {
		return nil, err
	}
	defer vrows.Close()
	for vrows.Next() {
		var aid, cid string
		var v float64
		if err := vrows.Scan(&aid, &cid, &v); err != nil {
			return nil, err
		}
		if a, ok := byID[aid]; ok {
			a.Values[uuid.MustParse(cid)] = v
		}
	}
	return out, vrows.Err()
}

func (s *SQLiteStore) ImportProject(ctx context.Context, detail *ProjectDetail) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	detail.ID = uuid.New()
	detail.CreatedAt, detail.UpdatedAt = now, now
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO projects (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		detail.ID.String(), detail.Name, formatTime(now), formatTime(now)); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	for j, c := range detail.Criteria {
		c.ProjectID = detail.ID
		if err := insertCriterion(ctx, tx, c, j); err != nil {
			return fmt.Errorf("insert criterion %q: %w", c.Name, err)
		}
	}
	for i, a := range detail.Alternatives {
		a.ProjectID = detail.ID
		if err := insertAlternative(ctx, tx, a, i); err != nil {
			return fmt.Errorf("insert alternative %q: %w", a.Name, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) SaveCalculation(ctx context.Context, c *Calculation) error {
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

	c.ID = uuid.New()
	c.CreatedAt = time.Now().UTC()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calculations (id, project_id, criteria, alternatives, result, low_confidence, duration_ms, source_updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.ProjectID.String(), string(criteriaJSON), string(alternativesJSON),
		string(resultJSON), c.LowConfidence, c.DurationMs, formatTime(c.SourceUpdatedAt), formatTime(c.CreatedAt))
	return err
}

func (s *SQLiteStore) GetLatestCalculation(ctx context.Context, projectID uuid.UUID) (*Calculation, error) {
	c := &Calculation{}
	var id, pid, criteriaJSON, alternativesJSON, resultJSON, source, created string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, criteria, alternatives, result, low_confidence, duration_ms, source_updated_at, created_at
		FROM calculations WHERE project_id = ?
		ORDER BY created_at DESC LIMIT 1`, projectID.String(),
	).Scan(&id, &pid, &criteriaJSON, &alternativesJSON, &resultJSON, &c.LowConfidence, &c.DurationMs, &source, &created)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.ID, c.ProjectID = uuid.MustParse(id), uuid.MustParse(pid)
	c.SourceUpdatedAt, c.CreatedAt = parseTime(source), parseTime(created)
	if err := json.Unmarshal([]byte(criteriaJSON), &c.Criteria); err != nil {
		return nil, fmt.Errorf("decode criteria: %w", err)
	}
	if err := json.Unmarshal([]byte(alternativesJSON), &c.Alternatives); err != nil {
		return nil, fmt.Errorf("decode alternatives: %w", err)
	}
	if err := json.Unmarshal([]byte(resultJSON), &c.Result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListStaleProjects(ctx context.Context, limit int) ([]*Project, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.created_at, p.updated_at FROM projects p
		WHERE EXISTS (SELECT 1 FROM criteria c WHERE c.project_id = p.id)
		  AND EXISTS (SELECT 1 FROM alternatives a WHERE a.project_id = p.id)
		  AND p.updated_at > COALESCE(
			(SELECT MAX(k.source_updated_at) FROM calculations k WHERE k.project_id = p.id), '')
		ORDER BY p.updated_at ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSQLiteProjects(rows)
}

func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	st := &Stats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM projects),
			(SELECT COUNT(*) FROM criteria),
			(SELECT COUNT(*) FROM alternatives),
			(SELECT COUNT(*) FROM calculations),
			(SELECT COUNT(*) FROM calculations WHERE low_confidence = 1)`,
	).Scan(&st.Projects, &st.Criteria, &st.Alternatives, &st.Calculations, &st.LowConfidenceRuns)
	return st, err
}

func (s *SQLiteStore) deleteChild(ctx context.Context, query string, projectID, childID uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, childID.String(), projectID.String())
	if err != nil {
		return err
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	if err := touchProject(ctx, tx, projectID); err != nil {
		return err
	}
	return tx.Commit()
}

// touchProject bumps updated_at so the project counts as changed since its last calculation.
func touchProject(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), id.String())
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// insertCriterion appends at the end of the project when position < 0.
func insertCriterion(ctx context.Context, tx *sql.Tx, c *Criterion, position int) error {
	if position < 0 {
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM criteria WHERE project_id = ?`,
			c.ProjectID.String()).Scan(&position); err != nil {
			return err
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.Position = position
	_, err := tx.ExecContext(ctx, `
		INSERT INTO criteria (id, project_id, name, criterion_type, weight, position)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.ProjectID.String(), c.Name, string(c.Type), c.Weight, c.Position)
	return err
}

func insertAlternative(ctx context.Context, tx *sql.Tx, a *Alternative, position int) error {
	if position < 0 {
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(position) + 1, 0) FROM alternatives WHERE project_id = ?`,
			a.ProjectID.String()).Scan(&position); err != nil {
			return err
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.Position = position
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO alternatives (id, project_id, name, position) VALUES (?, ?, ?, ?)`,
		a.ID.String(), a.ProjectID.String(), a.Name, a.Position); err != nil {
		return err
	}
	for cid, v := range a.Values {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO alternative_values (alternative_id, criterion_id, value) VALUES (?, ?, ?)`,
			a.ID.String(), cid.String(), v); err != nil {
			return fmt.Errorf("insert value: %w", err)
		}
	}
	return nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSQLiteProjects(rows *sql.Rows) ([]*Project, error) {
	var out []*Project
	for rows.Next() {
		p := &Project{}
		var id, created, updated string
		if err := rows.Scan(&id, &p.Name, &created, &updated); err != nil {
			return nil, err
		}
		p.ID = uuid.MustParse(id)
		p.CreatedAt, p.UpdatedAt = parseTime(created), parseTime(updated)
		out = append(out, p)
	}
	return out, rows.Err()
}
