package topsis

import "sort"

// neutralCloseness is assigned when an alternative coincides with both ideals.
const neutralCloseness = 0.5

// ScoreAlternatives computes each alternative's Euclidean distance to both
// ideals and its closeness coefficient S-/(S+ + S-). Scores are returned in
// input order.
func ScoreAlternatives(p Problem, weighted Matrix, ideal IdealSolution) []Score {
	scores := make([]Score, len(weighted))
	for i, row := range weighted {
		sPos := euclidean(row, ideal.Positive)
		sNeg := euclidean(row, ideal.Negative)
		s := Score{
			Alternative:      p.Alternatives[i].Name,
			Index:            i,
			DistancePositive: sPos,
			DistanceNegative: sNeg,
		}
		if sPos == 0 && sNeg == 0 {
			s.Closeness = neutralCloseness
			s.Degenerate = true
		} else {
			// Halved so the denominator stays finite for distances near MaxFloat64.
			s.Closeness = (sNeg / 2) / (sPos/2 + sNeg/2)
		}
		scores[i] = s
	}
	return scores
}

// Rank orders scores by closeness, highest first. Equal closeness keeps
// input order so identical inputs always give identical rankings.
func Rank(scores []Score) []Ranked {
	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]].Closeness > scores[order[b]].Closeness
	})

	ranking := make([]Ranked, len(order))
	for pos, idx := range order {
		ranking[pos] = Ranked{
			Rank:      pos + 1,
			Index:     idx,
			Name:      scores[idx].Alternative,
			Closeness: scores[idx].Closeness,
		}
	}
	return ranking
}

func euclidean(a, b []float64) float64 {
	d := make([]float64, len(a))
	for j := range a {
		d[j] = a[j] - b[j]
	}
	return scaledNorm(d)
}
