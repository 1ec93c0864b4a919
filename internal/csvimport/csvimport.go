// Package csvimport reads decision tables from CSV. The header row names the
// alternative column followed by one column per criterion; each data row names
// an alternative followed by its numeric scores.
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/MikeSquared-Agency/Ranker/internal/store"
	"github.com/MikeSquared-Agency/Ranker/internal/topsis"
)

var (
	ErrEmpty         = errors.New("csv: no header row")
	ErrNoRows        = errors.New("csv: no data rows")
	ErrNoCriteria    = errors.New("csv: header has no criterion columns")
	ErrDuplicate     = errors.New("csv: duplicate column")
	ErrUnknownColumn = errors.New("csv: unknown column")
)

// CellError reports a cell that could not be parsed as a number.
// Row is 1-based over data rows; the header is row 0.
type CellError struct {
	Row    int
	Column string
	Value  string
}

func (e *CellError) Error() string {
	return fmt.Sprintf("csv: row %d column %q: %q is not a number", e.Row, e.Column, e.Value)
}

// Table is a parsed decision table.
type Table struct {
	// AlternativeColumn is the header of the first column.
	AlternativeColumn string
	Criteria          []string
	Alternatives      []string
	// Values is indexed [alternative][criterion].
	Values [][]float64
}

// Parse reads a CSV decision table. Blank lines are skipped and cells are trimmed.
func Parse(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	if len(header) < 2 {
		return nil, ErrNoCriteria
	}
	seen := make(map[string]bool, len(header))
	for _, h := range header {
		if seen[h] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicate, h)
		}
		seen[h] = true
	}

	t := &Table{AlternativeColumn: header[0], Criteria: header[1:]}
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// csv.ErrFieldCount covers ragged rows.
			return nil, fmt.Errorf("csv: row %d: %w", row, err)
		}
		values := make([]float64, len(t.Criteria))
		for j, cell := range rec[1:] {
			cell = strings.TrimSpace(cell)
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, &CellError{Row: row, Column: t.Criteria[j], Value: cell}
			}
			values[j] = v
		}
		t.Alternatives = append(t.Alternatives, strings.TrimSpace(rec[0]))
		t.Values = append(t.Values, values)
	}
	if len(t.Alternatives) == 0 {
		return nil, ErrNoRows
	}
	return t, nil
}

// Preview is the summary shown after an upload, before import.
type Preview struct {
	Columns   []string            `json:"columns"`
	Preview   []map[string]string `json:"preview"`
	TotalRows int                 `json:"total_rows"`
}

// Preview returns the header and up to n rows keyed by column name.
func (t *Table) Preview(n int) Preview {
	cols := append([]string{t.AlternativeColumn}, t.Criteria...)
	if n > len(t.Alternatives) {
		n = len(t.Alternatives)
	}
	rows := make([]map[string]string, n)
	for i := 0; i < n; i++ {
		row := map[string]string{t.AlternativeColumn: t.Alternatives[i]}
		for j, c := range t.Criteria {
			row[c] = strconv.FormatFloat(t.Values[i][j], 'g', -1, 64)
		}
		rows[i] = row
	}
	return Preview{Columns: cols, Preview: rows, TotalRows: len(t.Alternatives)}
}

// CriterionSpec configures one table column as a criterion.
type CriterionSpec struct {
	// Column is the CSV header to read. Defaults to Name.
	Column string  `json:"column,omitempty"`
	Name   string  `json:"name"`
	Type   string  `json:"type"`
	Weight float64 `json:"weight"`
}

// Project maps the configured columns onto store records ready for
// store.Store.ImportProject. Columns without a spec are ignored.
func (t *Table) Project(name string, specs []CriterionSpec) (*store.ProjectDetail, error) {
	if len(specs) == 0 {
		return nil, ErrNoCriteria
	}
	colIndex := make(map[string]int, len(t.Criteria))
	for j, c := range t.Criteria {
		colIndex[c] = j
	}

	detail := &store.ProjectDetail{Project: store.Project{Name: name}}
	cols := make([]int, len(specs))
	for k, spec := range specs {
		column := spec.Column
		if column == "" {
			column = spec.Name
		}
		j, ok := colIndex[column]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, column)
		}
		orientation, err := topsis.ParseOrientation(spec.Type)
		if err != nil {
			return nil, fmt.Errorf("criterion %q: %w", spec.Name, err)
		}
		cols[k] = j
		detail.Criteria = append(detail.Criteria, &store.Criterion{
			ID:       uuid.New(),
			Name:     spec.Name,
			Type:     orientation,
			Weight:   spec.Weight,
			Position: k,
		})
	}

	for i, altName := range t.Alternatives {
		a := &store.Alternative{
			ID:       uuid.New(),
			Name:     altName,
			Position: i,
			Values:   make(map[uuid.UUID]float64, len(specs)),
		}
		for k, c := range detail.Criteria {
			a.Values[c.ID] = t.Values[i][cols[k]]
		}
		detail.Alternatives = append(detail.Alternatives, a)
	}
	return detail, nil
}

// Problem converts the whole table to an engine problem using specs for
// weights and orientation. It is the stateless counterpart of Project.
func (t *Table) Problem(specs []CriterionSpec) (topsis.Problem, error) {
	detail, err := t.Project("", specs)
	if err != nil {
		return topsis.Problem{}, err
	}
	return store.BuildProblem(detail.Criteria, detail.Alternatives)
}
