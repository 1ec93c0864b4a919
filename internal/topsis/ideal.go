package topsis

// ResolveIdeal derives the positive and negative ideal vectors from the
// weighted matrix's column extremes.
//
//	benefit: positive = max, negative = min
//	cost:    positive = min, negative = max
//
// Ties are immaterial since the ideals are synthetic points, not alternatives.
func ResolveIdeal(weighted Matrix, criteria []Criterion) IdealSolution {
	m := len(criteria)
	ideal := IdealSolution{
		Positive: make([]float64, m),
		Negative: make([]float64, m),
	}
	for j, c := range criteria {
		lo, hi := columnExtremes(weighted, j)
		if c.Orientation == Cost {
			ideal.Positive[j], ideal.Negative[j] = lo, hi
		} else {
			ideal.Positive[j], ideal.Negative[j] = hi, lo
		}
	}
	return ideal
}

func columnExtremes(mat Matrix, j int) (lo, hi float64) {
	lo, hi = mat[0][j], mat[0][j]
	for _, row := range mat[1:] {
		if row[j] < lo {
			lo = row[j]
		}
		if row[j] > hi {
			hi = row[j]
		}
	}
	return lo, hi
}
