package topsis

// ApplyWeights scales each normalized column by its criterion weight.
// The input matrix is left untouched; weighted columns are not renormalized.
func ApplyWeights(normalized Matrix, criteria []Criterion) Matrix {
	out := make(Matrix, len(normalized))
	for i, row := range normalized {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = v * criteria[j].Weight
		}
	}
	return out
}
