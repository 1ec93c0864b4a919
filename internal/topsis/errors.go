package topsis

import (
	"errors"
	"fmt"
)

// Validation rules. A *ValidationError always unwraps to exactly one of these,
// so callers match with errors.Is.
var (
	// ErrEmptyInput is returned when a problem has no criteria or no alternatives.
	ErrEmptyInput = errors.New("topsis: empty input")

	// ErrShape is returned when an alternative's value count differs from the criterion count.
	ErrShape = errors.New("topsis: value count does not match criterion count")

	// ErrWeight is returned for a non-positive, NaN or infinite weight.
	ErrWeight = errors.New("topsis: weight must be finite and positive")

	// ErrValue is returned for a NaN or infinite matrix value.
	ErrValue = errors.New("topsis: value must be finite")

	// ErrDuplicateName is returned when two criteria or two alternatives share a name.
	ErrDuplicateName = errors.New("topsis: duplicate name")

	// ErrOrientation is returned for an orientation other than benefit or cost.
	ErrOrientation = errors.New("topsis: orientation must be benefit or cost")
)

// Entity kinds reported by ValidationError.
const (
	EntityProblem     = "problem"
	EntityCriterion   = "criterion"
	EntityAlternative = "alternative"
)

// ValidationError identifies the offending entity and the rule it broke.
type ValidationError struct {
	Rule   error  `json:"-"`
	Entity string `json:"entity"`
	Name   string `json:"name,omitempty"`
	// Index is the entity's position in its input sequence, or -1 for the whole problem.
	Index int `json:"index"`
	// Column is the criterion index for per-value failures, otherwise -1.
	Column int    `json:"column"`
	Detail string `json:"detail,omitempty"`
}

func (e *ValidationError) Error() string {
	msg := e.Rule.Error()
	switch {
	case e.Name != "":
		msg = fmt.Sprintf("%s: %s %q (index %d)", msg, e.Entity, e.Name, e.Index)
	case e.Index >= 0:
		msg = fmt.Sprintf("%s: %s index %d", msg, e.Entity, e.Index)
	}
	if e.Column >= 0 {
		msg = fmt.Sprintf("%s, column %d", msg, e.Column)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ValidationError) Unwrap() error { return e.Rule }

// RuleName returns a short machine-readable name for the violated rule.
func (e *ValidationError) RuleName() string {
	switch e.Rule {
	case ErrEmptyInput:
		return "empty_input"
	case ErrShape:
		return "shape"
	case ErrWeight:
		return "weight"
	case ErrValue:
		return "value"
	case ErrDuplicateName:
		return "duplicate_name"
	case ErrOrientation:
		return "orientation"
	}
	return "unknown"
}

// Warning codes attached to a Result.
const (
	// WarnDegenerateResult means every alternative coincides with both ideals
	// and closeness was fixed at 0.5. The ranking is low-confidence.
	WarnDegenerateResult = "degenerate_result"

	// WarnConstantColumn means a criterion had no variance and was zeroed during normalization.
	WarnConstantColumn = "constant_column"
)

// Warning is a non-fatal condition observed during computation.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Criterion is set for column-level warnings.
	Criterion string `json:"criterion,omitempty"`
}
