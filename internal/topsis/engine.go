// Package topsis ranks alternatives scored against weighted benefit/cost
// criteria using TOPSIS with vector normalization and Euclidean distance.
//
// The computation is a single forward pass:
//
//	validate → normalize → weight → ideal → score → rank
//
// Each stage allocates its own output, so the caller's Problem is never
// modified and every intermediate matrix is kept on the Result. Compute holds
// no state between calls and is safe to run concurrently on different problems.
package topsis

import "fmt"

// Stage identifies a completed pipeline step.
type Stage string

const (
	StageValidate  Stage = "validate"
	StageNormalize Stage = "normalize"
	StageWeight    Stage = "weight"
	StageIdeal     Stage = "ideal"
	StageScore     Stage = "score"
	StageRank      Stage = "rank"
)

// Stages lists the pipeline steps in execution order.
var Stages = []Stage{StageValidate, StageNormalize, StageWeight, StageIdeal, StageScore, StageRank}

// Observer is called after each stage with the partially filled Result.
// It must not modify the Result.
type Observer func(stage Stage, partial *Result)

type options struct {
	observer Observer
}

// Option configures a Compute call.
type Option func(*options)

// WithObserver registers a stage observer.
func WithObserver(o Observer) Option {
	return func(opts *options) { opts.observer = o }
}

// Compute runs the full TOPSIS pipeline. It returns a *ValidationError when the
// problem is malformed; no partial result is returned in that case.
func Compute(p Problem, opts ...Option) (*Result, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	notify := func(s Stage, r *Result) {
		if o.observer != nil {
			o.observer(s, r)
		}
	}

	if err := Validate(p); err != nil {
		return nil, err
	}
	res := &Result{}
	notify(StageValidate, res)

	res.Norms = ColumnNorms(p)
	normalized, constant := Normalize(p, res.Norms)
	res.Normalized = normalized
	for _, j := range constant {
		res.Warnings = append(res.Warnings, Warning{
			Code:      WarnConstantColumn,
			Message:   fmt.Sprintf("criterion %q has the same value for every alternative and does not affect the ranking", p.Criteria[j].Name),
			Criterion: p.Criteria[j].Name,
		})
	}
	notify(StageNormalize, res)

	res.Weighted = ApplyWeights(res.Normalized, p.Criteria)
	notify(StageWeight, res)

	res.Ideal = ResolveIdeal(res.Weighted, p.Criteria)
	notify(StageIdeal, res)

	res.Scores = ScoreAlternatives(p, res.Weighted, res.Ideal)
	for _, s := range res.Scores {
		if s.Degenerate {
			res.LowConfidence = true
			break
		}
	}
	if res.LowConfidence {
		res.Warnings = append(res.Warnings, Warning{
			Code:    WarnDegenerateResult,
			Message: "all alternatives are identical on every criterion; closeness fixed at 0.5 for each",
		})
	}
	notify(StageScore, res)

	res.Ranking = Rank(res.Scores)
	notify(StageRank, res)

	return res, nil
}
