package topsis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Orientation says whether higher or lower raw values are preferred on a criterion.
type Orientation string

const (
	Benefit Orientation = "benefit"
	Cost    Orientation = "cost"
)

// ParseOrientation accepts "benefit" or "cost" in any case.
func ParseOrientation(s string) (Orientation, error) {
	switch Orientation(strings.ToLower(strings.TrimSpace(s))) {
	case Benefit:
		return Benefit, nil
	case Cost:
		return Cost, nil
	}
	return "", fmt.Errorf("%w: %q", ErrOrientation, s)
}

// UnmarshalJSON applies ParseOrientation to JSON input. Unknown strings are
// kept as given so Validate reports them against the offending criterion.
func (o *Orientation) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if parsed, err := ParseOrientation(s); err == nil {
		*o = parsed
		return nil
	}
	*o = Orientation(s)
	return nil
}

// Criterion is one column of the decision matrix.
// Weights are relative importance multipliers and need not sum to 1.
type Criterion struct {
	Name        string      `json:"name"`
	Weight      float64     `json:"weight"`
	Orientation Orientation `json:"orientation"`
}

// Alternative is one row of the decision matrix, values in criterion order.
type Alternative struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
}

// Problem is the immutable input to Compute.
type Problem struct {
	Criteria     []Criterion   `json:"criteria"`
	Alternatives []Alternative `json:"alternatives"`
}

// Matrix is an n×m row-major matrix indexed [alternative][criterion].
type Matrix [][]float64

func newMatrix(rows, cols int) Matrix {
	m := make(Matrix, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

// IdealSolution holds the synthetic best and worst vectors, one coordinate per criterion.
type IdealSolution struct {
	Positive []float64 `json:"positive"`
	Negative []float64 `json:"negative"`
}

// Score is the distance and closeness outcome for one alternative.
type Score struct {
	Alternative      string  `json:"alternative"`
	Index            int     `json:"index"`
	DistancePositive float64 `json:"distance_positive"`
	DistanceNegative float64 `json:"distance_negative"`
	Closeness        float64 `json:"closeness"`
	// Degenerate is set when both distances are zero and Closeness was fixed at 0.5.
	Degenerate bool `json:"degenerate,omitempty"`
}

// Ranked is one entry of the final order. Rank 1 is best.
type Ranked struct {
	Rank      int     `json:"rank"`
	Index     int     `json:"index"`
	Name      string  `json:"name"`
	Closeness float64 `json:"closeness"`
}

// Result bundles every intermediate stage so callers can show the derivation.
type Result struct {
	Norms         []float64     `json:"norms"`
	Normalized    Matrix        `json:"normalized"`
	Weighted      Matrix        `json:"weighted"`
	Ideal         IdealSolution `json:"ideal"`
	Scores        []Score       `json:"scores"`
	Ranking       []Ranked      `json:"ranking"`
	Warnings      []Warning     `json:"warnings,omitempty"`
	LowConfidence bool          `json:"low_confidence"`
}

// RankedNames returns alternative names best to worst.
func (r *Result) RankedNames() []string {
	names := make([]string, len(r.Ranking))
	for i, rk := range r.Ranking {
		names[i] = rk.Name
	}
	return names
}
