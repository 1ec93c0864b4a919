package topsis

import "math"

// ColumnNorms returns the Euclidean norm of every criterion column.
func ColumnNorms(p Problem) []float64 {
	norms := make([]float64, len(p.Criteria))
	col := make([]float64, len(p.Alternatives))
	for j := range norms {
		for i, a := range p.Alternatives {
			col[i] = a.Values[j]
		}
		norms[j] = scaledNorm(col)
	}
	return norms
}

// scaledNorm computes sqrt(sum(v*v)) without squaring raw values, so columns
// near the float64 range limits neither overflow to +Inf nor underflow to 0.
func scaledNorm(v []float64) float64 {
	var scale float64
	for _, x := range v {
		if ax := math.Abs(x); ax > scale {
			scale = ax
		}
	}
	if scale == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		r := x / scale
		sum += r * r
	}
	return scale * math.Sqrt(sum)
}

// Normalize vector-normalizes each column by its norm.
//
// A column with no variance (every alternative has the same value, which
// includes the all-zero column) normalizes to zeros. It cannot differentiate
// alternatives, and zeroing it avoids dividing by a zero norm.
// The returned slice lists the indices of such columns.
func Normalize(p Problem, norms []float64) (Matrix, []int) {
	n, m := len(p.Alternatives), len(p.Criteria)
	out := newMatrix(n, m)
	var constant []int
	for j := 0; j < m; j++ {
		if norms[j] == 0 || isConstantColumn(p, j) {
			constant = append(constant, j)
			continue
		}
		for i, a := range p.Alternatives {
			out[i][j] = a.Values[j] / norms[j]
		}
	}
	return out, constant
}

func isConstantColumn(p Problem, j int) bool {
	first := p.Alternatives[0].Values[j]
	for _, a := range p.Alternatives[1:] {
		if a.Values[j] != first {
			return false
		}
	}
	return true
}
