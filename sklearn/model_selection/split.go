// Package model_selection splits labeled data into train and test partitions.
package model_selection

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
)

// Split holds the row indices of each partition, in shuffled order.
type Split struct {
	TrainIndices []int
	TestIndices  []int
}

// TrainTestSplitter draws a seeded, optionally stratified train/test split.
type TrainTestSplitter struct {
	// TestSize is the fraction of rows placed in the test partition.
	TestSize float64
	// Stratify keeps each class's proportion equal in both partitions.
	Stratify   bool
	RandomSeed int64
}

// NewTrainTestSplitter returns a stratified splitter.
func NewTrainTestSplitter(testSize float64, randomSeed int64) *TrainTestSplitter {
	return &TrainTestSplitter{TestSize: testSize, Stratify: true, RandomSeed: randomSeed}
}

// SplitSizes returns the partition sizes for n rows: the test partition gets
// ceil(testSize·n) rows.
func SplitSizes(n int, testSize float64) (nTrain, nTest int, err error) {
	if testSize <= 0 || testSize >= 1 || math.IsNaN(testSize) {
		return 0, 0, scigoErrors.NewValidationError("test_size", "must be in (0, 1)", testSize)
	}
	nTest = int(math.Ceil(testSize * float64(n)))
	nTrain = n - nTest
	if nTest == 0 || nTrain == 0 {
		return 0, 0, scigoErrors.NewValidationError("test_size",
			"leaves one partition empty", testSize)
	}
	return nTrain, nTest, nil
}

func (s *TrainTestSplitter) rng() *rand.Rand {
	return rand.New(rand.NewPCG(uint64(s.RandomSeed), uint64(s.RandomSeed)))
}

// Indices computes the split from labels alone. The same labels and seed always
// yield the same split.
func (s *TrainTestSplitter) Indices(labels []int) (*Split, error) {
	n := len(labels)
	if n == 0 {
		return nil, scigoErrors.NewModelError("TrainTestSplit", "empty data", scigoErrors.ErrEmptyData)
	}
	nTrain, nTest, err := SplitSizes(n, s.TestSize)
	if err != nil {
		return nil, err
	}
	r := s.rng()

	if !s.Stratify {
		perm := r.Perm(n)
		return &Split{TrainIndices: perm[nTest:], TestIndices: perm[:nTest]}, nil
	}

	classes, byClass := groupByClass(labels)
	if len(classes) < 2 {
		return nil, scigoErrors.NewMissingClassError("TrainTestSplit", 2, len(classes))
	}
	for _, c := range classes {
		if len(byClass[c]) < 2 {
			return nil, scigoErrors.NewValidationError("stratify",
				"the least populated class needs at least 2 members", c)
		}
	}
	if nTest < len(classes) || nTrain < len(classes) {
		return nil, scigoErrors.NewValidationError("test_size",
			"each partition needs at least one row per class", s.TestSize)
	}

	counts := make([]int, len(classes))
	for i, c := range classes {
		counts[i] = len(byClass[c])
	}
	testPerClass := allocate(counts, nTest)

	split := &Split{
		TrainIndices: make([]int, 0, nTrain),
		TestIndices:  make([]int, 0, nTest),
	}
	for i, c := range classes {
		idx := append([]int(nil), byClass[c]...)
		r.Shuffle(len(idx), func(a, b int) { idx[a], idx[b] = idx[b], idx[a] })
		split.TestIndices = append(split.TestIndices, idx[:testPerClass[i]]...)
		split.TrainIndices = append(split.TrainIndices, idx[testPerClass[i]:]...)
	}
	r.Shuffle(len(split.TrainIndices), func(a, b int) {
		split.TrainIndices[a], split.TrainIndices[b] = split.TrainIndices[b], split.TrainIndices[a]
	})
	r.Shuffle(len(split.TestIndices), func(a, b int) {
		split.TestIndices[a], split.TestIndices[b] = split.TestIndices[b], split.TestIndices[a]
	})
	return split, nil
}

// allocate distributes total draws over classes proportionally to counts:
// every class gets the floor of its share, and the remainder goes to the
// classes with the largest fractional parts (ties to the larger class, then
// the lower label). Each class keeps at least one row on both sides.
func allocate(counts []int, total int) []int {
	n := 0
	for _, c := range counts {
		n += c
	}
	out := make([]int, len(counts))
	frac := make([]float64, len(counts))
	assigned := 0
	for i, c := range counts {
		exact := float64(total) * float64(c) / float64(n)
		out[i] = int(math.Floor(exact))
		frac[i] = exact - float64(out[i])
		assigned += out[i]
	}
	order := make([]int, len(counts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		if frac[order[a]] != frac[order[b]] {
			return frac[order[a]] > frac[order[b]]
		}
		return counts[order[a]] > counts[order[b]]
	})
	for k := 0; assigned < total; k = (k + 1) % len(order) {
		i := order[k]
		if out[i] < counts[i]-1 {
			out[i]++
			assigned++
		}
	}
	// a class too small for a floor share still needs one test row
	for i := range out {
		if out[i] == 0 {
			donor := largest(out)
			out[donor]--
			out[i]++
		}
	}
	return out
}

func largest(xs []int) int {
	best := 0
	for i, x := range xs {
		if x > xs[best] {
			best = i
		}
	}
	return best
}

func groupByClass(labels []int) ([]int, map[int][]int) {
	byClass := make(map[int][]int)
	for i, l := range labels {
		byClass[l] = append(byClass[l], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return classes, byClass
}

// Take gathers the given rows of X and y.
func Take(X mat.Matrix, y []int, rows []int) (*mat.Dense, []int) {
	_, c := X.Dims()
	if len(rows) == 0 {
		return &mat.Dense{}, nil
	}
	out := mat.NewDense(len(rows), c, nil)
	var labels []int
	if y != nil {
		labels = make([]int, len(rows))
	}
	for k, i := range rows {
		for j := 0; j < c; j++ {
			out.Set(k, j, X.At(i, j))
		}
		if y != nil {
			labels[k] = y[i]
		}
	}
	return out, labels
}
