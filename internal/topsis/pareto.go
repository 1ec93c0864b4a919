package topsis

// Frontier returns the indices of Pareto-efficient alternatives over the raw
// values, in input order. An alternative is dominated if another is at least as
// good on every criterion (respecting orientation) and strictly better on one.
// O(n²·m); intended for explanation, not ranking.
func Frontier(p Problem) ([]int, error) {
	if err := Validate(p); err != nil {
		return nil, err
	}
	var frontier []int
	for i := range p.Alternatives {
		dominated := false
		for k := range p.Alternatives {
			if i == k {
				continue
			}
			if dominates(p, k, i) {
				dominated = true
				break
			}
		}
		if !dominated {
			frontier = append(frontier, i)
		}
	}
	return frontier, nil
}

// dominates reports whether alternative a dominates alternative b.
func dominates(p Problem, a, b int) bool {
	strictly := false
	for j, c := range p.Criteria {
		va, vb := p.Alternatives[a].Values[j], p.Alternatives[b].Values[j]
		if c.Orientation == Cost {
			va, vb = -va, -vb
		}
		if va < vb {
			return false
		}
		if va > vb {
			strictly = true
		}
	}
	return strictly
}
