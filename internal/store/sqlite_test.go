package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MikeSquared-Agency/Ranker/internal/topsis"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "ranker.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// seedLaptops stores the three-laptop example and returns its project id.
func seedLaptops(t *testing.T, s Store) uuid.UUID {
	t.Helper()
	ctx := context.Background()

	p := &Project{Name: "Laptops"}
	require.NoError(t, s.CreateProject(ctx, p))

	specs := []struct {
		name string
		typ  topsis.Orientation
	}{{"Price", topsis.Cost}, {"Quality", topsis.Benefit}, {"Performance", topsis.Benefit}}
	var ids []uuid.UUID
	for _, spec := range specs {
		c := &Criterion{ProjectID: p.ID, Name: spec.name, Type: spec.typ, Weight: 1}
		require.NoError(t, s.AddCriterion(ctx, c))
		ids = append(ids, c.ID)
	}

	rows := []struct {
		name string
		vals [3]float64
	}{{"A", [3]float64{100, 8, 7}}, {"B", [3]float64{150, 9, 8}}, {"C", [3]float64{80, 6, 6}}}
	for _, row := range rows {
		a := &Alternative{ProjectID: p.ID, Name: row.name, Values: map[uuid.UUID]float64{}}
		for j, v := range row.vals {
			a.Values[ids[j]] = v
		}
		require.NoError(t, s.AddAlternative(ctx, a))
	}
	return p.ID
}

func TestSQLiteProjectLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	p := &Project{Name: "Cars"}
	require.NoError(t, s.CreateProject(ctx, p))
	require.NotEqual(t, uuid.Nil, p.ID)
	require.False(t, p.CreatedAt.IsZero())

	got, err := s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Cars", got.Name)
	assert.WithinDuration(t, p.CreatedAt, got.CreatedAt, time.Millisecond)

	require.NoError(t, s.RenameProject(ctx, p.ID, "Trucks"))
	got, err = s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Trucks", got.Name)

	list, err := s.ListProjects(ctx, ProjectFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteProject(ctx, p.ID))
	got, err = s.GetProject(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.ErrorIs(t, s.DeleteProject(ctx, p.ID), ErrNotFound)
	assert.ErrorIs(t, s.RenameProject(ctx, uuid.New(), "x"), ErrNotFound)
}

func TestSQLiteCriteriaAndAlternatives(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	pid := seedLaptops(t, s)

	detail, err := LoadDetail(ctx, s, pid)
	require.NoError(t, err)
	require.Len(t, detail.Criteria, 3)
	require.Len(t, detail.Alternatives, 3)
	assert.Equal(t, "Price", detail.Criteria[0].Name)
	assert.Equal(t, topsis.Cost, detail.Criteria[0].Type)
	assert.Equal(t, 2, detail.Criteria[2].Position)
	assert.Equal(t, "C", detail.Alternatives[2].Name)
	assert.Equal(t, 80.0, detail.Alternatives[2].Values[detail.Criteria[0].ID])

	problem, err := BuildProblem(detail.Criteria, detail.Alternatives)
	require.NoError(t, err)
	res, err := topsis.Compute(problem)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C", "B"}, res.RankedNames())

	// Deleting a criterion drops its values too.
	require.NoError(t, s.DeleteCriterion(ctx, pid, detail.Criteria[2].ID))
	alts, err := s.ListAlternatives(ctx, pid)
	require.NoError(t, err)
	assert.Len(t, alts[0].Values, 2)

	require.NoError(t, s.DeleteAlternative(ctx, pid, detail.Alternatives[1].ID))
	alts, err = s.ListAlternatives(ctx, pid)
	require.NoError(t, err)
	assert.Len(t, alts, 2)

	assert.ErrorIs(t, s.DeleteAlternative(ctx, pid, uuid.New()), ErrNotFound)
	assert.ErrorIs(t, s.DeleteCriterion(ctx, uuid.New(), detail.Criteria[0].ID), ErrNotFound)
	assert.ErrorIs(t, s.AddCriterion(ctx, &Criterion{ProjectID: uuid.New(), Name: "x", Type: topsis.Benefit, Weight: 1}), ErrNotFound)
}

func TestSQLiteDuplicateNamesRejected(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	pid := seedLaptops(t, s)

	err := s.AddCriterion(ctx, &Criterion{ProjectID: pid, Name: "Price", Type: topsis.Cost, Weight: 1})
	assert.Error(t, err)

	criteria, err := s.ListCriteria(ctx, pid)
	require.NoError(t, err)
	assert.Len(t, criteria, 3)
}

func TestSQLiteCalculations(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	pid := seedLaptops(t, s)

	none, err := s.GetLatestCalculation(ctx, pid)
	require.NoError(t, err)
	assert.Nil(t, none)

	stale, err := s.ListStaleProjects(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, pid, stale[0].ID)

	detail, err := LoadDetail(ctx, s, pid)
	require.NoError(t, err)
	problem, err := BuildProblem(detail.Criteria, detail.Alternatives)
	require.NoError(t, err)
	res, err := topsis.Compute(problem)
	require.NoError(t, err)

	calc := &Calculation{
		ProjectID:       pid,
		Criteria:        []string{"Price", "Quality", "Performance"},
		Alternatives:    []string{"A", "B", "C"},
		Result:          res,
		DurationMs:      0.2,
		SourceUpdatedAt: detail.UpdatedAt,
	}
	require.NoError(t, s.SaveCalculation(ctx, calc))
	require.NotEqual(t, uuid.Nil, calc.ID)

	got, err := s.GetLatestCalculation(ctx, pid)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, calc.ID, got.ID)
	assert.Equal(t, []string{"A", "C", "B"}, got.Result.RankedNames())
	assert.Equal(t, calc.Criteria, got.Criteria)
	assert.True(t, detail.UpdatedAt.Equal(got.SourceUpdatedAt))
	assert.InDelta(t, res.Scores[0].Closeness, got.Result.Scores[0].Closeness, 1e-12)

	stale, err = s.ListStaleProjects(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	// Any edit makes the project stale again.
	require.NoError(t, s.DeleteAlternative(ctx, pid, detail.Alternatives[0].ID))
	stale, err = s.ListStaleProjects(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, stale, 1)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Projects)
	assert.Equal(t, 3, stats.Criteria)
	assert.Equal(t, 2, stats.Alternatives)
	assert.Equal(t, 1, stats.Calculations)
	assert.Equal(t, 0, stats.LowConfidenceRuns)
}

func TestSQLiteStaleTracksLoadedVersion(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	pid := seedLaptops(t, s)

	detail, err := LoadDetail(ctx, s, pid)
	require.NoError(t, err)
	problem, err := BuildProblem(detail.Criteria, detail.Alternatives)
	require.NoError(t, err)
	res, err := topsis.Compute(problem)
	require.NoError(t, err)

	// An edit lands after the load but before the result is saved.
	require.NoError(t, s.RenameProject(ctx, pid, "Laptops 2026"))
	require.NoError(t, s.SaveCalculation(ctx, &Calculation{
		ProjectID:       pid,
		Result:          res,
		SourceUpdatedAt: detail.UpdatedAt,
	}))

	stale, err := s.ListStaleProjects(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, pid, stale[0].ID)
}

func TestSQLiteLatestCalculationRejectsCorruptColumns(t *testing.T) {
	for _, column := range []string{"criteria", "alternatives", "result"} {
		t.Run(column, func(t *testing.T) {
			s := newTestSQLite(t)
			ctx := context.Background()
			pid := seedLaptops(t, s)

			res, err := topsis.Compute(topsis.Problem{
				Criteria:     []topsis.Criterion{{Name: "x", Weight: 1, Orientation: topsis.Benefit}},
				Alternatives: []topsis.Alternative{{Name: "a", Values: []float64{1}}},
			})
			require.NoError(t, err)
			require.NoError(t, s.SaveCalculation(ctx, &Calculation{
				ProjectID:    pid,
				Criteria:     []string{"x"},
				Alternatives: []string{"a"},
				Result:       res,
			}))
			_, err = s.db.ExecContext(ctx, `UPDATE calculations SET `+column+` = '{not json'`)
			require.NoError(t, err)

			got, err := s.GetLatestCalculation(ctx, pid)
			assert.Error(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestSQLiteImportProject(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	price := &Criterion{ID: uuid.New(), Name: "Price", Type: topsis.Cost, Weight: 1}
	speed := &Criterion{ID: uuid.New(), Name: "Speed", Type: topsis.Benefit, Weight: 2}
	detail := &ProjectDetail{
		Project:  Project{Name: "Imported"},
		Criteria: []*Criterion{price, speed},
		Alternatives: []*Alternative{
			{Name: "x", Values: map[uuid.UUID]float64{price.ID: 10, speed.ID: 3}},
			{Name: "y", Values: map[uuid.UUID]float64{price.ID: 12, speed.ID: 5}},
		},
	}
	require.NoError(t, s.ImportProject(ctx, detail))
	require.NotEqual(t, uuid.Nil, detail.ID)

	loaded, err := LoadDetail(ctx, s, detail.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Criteria, 2)
	assert.Equal(t, "Speed", loaded.Criteria[1].Name)
	assert.Equal(t, 1, loaded.Criteria[1].Position)
	require.Len(t, loaded.Alternatives, 2)
	assert.Equal(t, 5.0, loaded.Alternatives[1].Values[speed.ID])
}

func TestSQLiteImportRollsBack(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	dup := &ProjectDetail{
		Project: Project{Name: "Broken"},
		Criteria: []*Criterion{
			{Name: "Same", Type: topsis.Benefit, Weight: 1},
			{Name: "Same", Type: topsis.Cost, Weight: 1},
		},
	}
	require.Error(t, s.ImportProject(ctx, dup))

	list, err := s.ListProjects(ctx, ProjectFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestLoadDetailMissingProject(t *testing.T) {
	s := newTestSQLite(t)
	detail, err := LoadDetail(context.Background(), s, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, detail)
}
