package imbalance

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// nearestNeighbors returns, for every query row, the indices of its k nearest
// rows of X by squared Euclidean distance. Equal distances break toward the
// lower index. When excludeSelf is set, query row i is row i of X and is
// skipped.
func nearestNeighbors(X mat.Matrix, queries mat.Matrix, k int, excludeSelf bool) [][]int {
	n, d := X.Dims()
	q, _ := queries.Dims()

	type cand struct {
		idx  int
		dist float64
	}
	out := make([][]int, q)
	cands := make([]cand, 0, n)
	for i := 0; i < q; i++ {
		cands = cands[:0]
		for j := 0; j < n; j++ {
			if excludeSelf && i == j {
				continue
			}
			dist := 0.0
			for f := 0; f < d; f++ {
				diff := queries.At(i, f) - X.At(j, f)
				dist += diff * diff
			}
			cands = append(cands, cand{idx: j, dist: dist})
		}
		sort.Slice(cands, func(a, b int) bool {
			if cands[a].dist != cands[b].dist {
				return cands[a].dist < cands[b].dist
			}
			return cands[a].idx < cands[b].idx
		})
		m := k
		if m > len(cands) {
			m = len(cands)
		}
		nn := make([]int, m)
		for t := 0; t < m; t++ {
			nn[t] = cands[t].idx
		}
		out[i] = nn
	}
	return out
}

func classCounts(y []int) (classes []int, counts map[int]int) {
	counts = make(map[int]int)
	for _, l := range y {
		counts[l]++
	}
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return classes, counts
}

func rowsOf(X mat.Matrix, idx []int) *mat.Dense {
	_, d := X.Dims()
	out := mat.NewDense(len(idx), d, nil)
	for k, i := range idx {
		for j := 0; j < d; j++ {
			out.Set(k, j, X.At(i, j))
		}
	}
	return out
}
