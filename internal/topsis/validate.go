package topsis

import (
	"fmt"
	"math"
)

// Validate checks the problem's structural invariants without modifying it.
// The first violation found is returned; criteria are checked before alternatives.
func Validate(p Problem) error {
	m, n := len(p.Criteria), len(p.Alternatives)
	if m == 0 {
		return &ValidationError{Rule: ErrEmptyInput, Entity: EntityProblem, Index: -1, Column: -1, Detail: "no criteria"}
	}
	if n == 0 {
		return &ValidationError{Rule: ErrEmptyInput, Entity: EntityProblem, Index: -1, Column: -1, Detail: "no alternatives"}
	}

	seen := make(map[string]int, m)
	for j, c := range p.Criteria {
		if c.Orientation != Benefit && c.Orientation != Cost {
			return criterionErr(ErrOrientation, j, c, fmt.Sprintf("got %q", c.Orientation))
		}
		if !isFinite(c.Weight) || c.Weight <= 0 {
			return criterionErr(ErrWeight, j, c, fmt.Sprintf("got %v", c.Weight))
		}
		if prev, dup := seen[c.Name]; dup {
			return criterionErr(ErrDuplicateName, j, c, fmt.Sprintf("same as criterion %d", prev))
		}
		seen[c.Name] = j
	}

	seen = make(map[string]int, n)
	for i, a := range p.Alternatives {
		if prev, dup := seen[a.Name]; dup {
			return alternativeErr(ErrDuplicateName, i, -1, a, fmt.Sprintf("same as alternative %d", prev))
		}
		seen[a.Name] = i
		if len(a.Values) != m {
			return alternativeErr(ErrShape, i, -1, a, fmt.Sprintf("has %d values, want %d", len(a.Values), m))
		}
		for j, v := range a.Values {
			if !isFinite(v) {
				return alternativeErr(ErrValue, i, j, a, fmt.Sprintf("%s is %v", p.Criteria[j].Name, v))
			}
		}
	}
	return nil
}

func criterionErr(rule error, j int, c Criterion, detail string) *ValidationError {
	return &ValidationError{Rule: rule, Entity: EntityCriterion, Name: c.Name, Index: j, Column: -1, Detail: detail}
}

func alternativeErr(rule error, i, col int, a Alternative, detail string) *ValidationError {
	return &ValidationError{Rule: rule, Entity: EntityAlternative, Name: a.Name, Index: i, Column: col, Detail: detail}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
