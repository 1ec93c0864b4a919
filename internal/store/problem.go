package store

import (
	"errors"
	"fmt"

	"github.com/MikeSquared-Agency/Ranker/internal/topsis"
)

// ErrMissingValue is returned when an alternative has no value for a criterion.
var ErrMissingValue = errors.New("store: missing value")

// MissingValueError names the alternative and criterion lacking a value.
type MissingValueError struct {
	Alternative string
	Criterion   string
}

func (e *MissingValueError) Error() string {
	return fmt.Sprintf("%s: alternative %q has no value for criterion %q", ErrMissingValue, e.Alternative, e.Criterion)
}

func (e *MissingValueError) Unwrap() error { return ErrMissingValue }

// BuildProblem assembles an engine problem from stored records. Criteria and
// alternatives are taken in slice order, which the store returns by position.
func BuildProblem(criteria []*Criterion, alternatives []*Alternative) (topsis.Problem, error) {
	p := topsis.Problem{
		Criteria:     make([]topsis.Criterion, len(criteria)),
		Alternatives: make([]topsis.Alternative, len(alternatives)),
	}
	for j, c := range criteria {
		p.Criteria[j] = topsis.Criterion{Name: c.Name, Weight: c.Weight, Orientation: c.Type}
	}
	for i, a := range alternatives {
		values := make([]float64, len(criteria))
		for j, c := range criteria {
			v, ok := a.Values[c.ID]
			if !ok {
				return topsis.Problem{}, &MissingValueError{Alternative: a.Name, Criterion: c.Name}
			}
			values[j] = v
		}
		p.Alternatives[i] = topsis.Alternative{Name: a.Name, Values: values}
	}
	return p, nil
}
