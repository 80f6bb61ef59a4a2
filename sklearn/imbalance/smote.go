// Package imbalance rebalances class distributions of training data by
// synthesizing minority samples (SMOTE), removing noisy samples with edited
// nearest neighbours (ENN), or both (SMOTEENN).
package imbalance

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"
)

// Resampler changes the rows of a labeled training set.
type Resampler interface {
	FitResample(X mat.Matrix, y []int) (*mat.Dense, []int, error)
}

// SMOTE oversamples every class up to the size of the majority class by
// interpolating between a sample and one of its k nearest same-class
// neighbours.
type SMOTE struct {
	KNeighbors int
	RandomSeed int64
}

// NewSMOTE returns a SMOTE with k neighbours and a fixed seed.
func NewSMOTE(kNeighbors int, randomSeed int64) *SMOTE {
	return &SMOTE{KNeighbors: kNeighbors, RandomSeed: randomSeed}
}

// FitResample returns the original rows followed by the synthetic rows.
func (s *SMOTE) FitResample(X mat.Matrix, y []int) (_ *mat.Dense, _ []int, err error) {
	defer scigoErrors.Recover(&err, "SMOTE.FitResample")
	n, d := X.Dims()
	if n != len(y) {
		return nil, nil, scigoErrors.NewDimensionError("SMOTE.FitResample", n, len(y), 0)
	}
	if n == 0 {
		return nil, nil, scigoErrors.NewModelError("SMOTE.FitResample", "empty data", scigoErrors.ErrEmptyData)
	}
	if s.KNeighbors < 1 {
		return nil, nil, scigoErrors.NewValidationError("k_neighbors", "must be at least 1", s.KNeighbors)
	}

	classes, counts := classCounts(y)
	if len(classes) < 2 {
		return nil, nil, scigoErrors.NewMissingClassError("SMOTE.FitResample", 2, len(classes))
	}
	majority := classes[0]
	for _, c := range classes {
		if counts[c] > counts[majority] {
			majority = c
		}
	}

	rng := rand.New(rand.NewPCG(uint64(s.RandomSeed), uint64(s.RandomSeed)))

	var synthRows [][]float64
	var synthLabels []int
	for _, c := range classes {
		need := counts[majority] - counts[c]
		if need == 0 {
			continue
		}
		if counts[c] < 2 {
			return nil, nil, scigoErrors.NewValidationError("n_samples",
				"SMOTE needs at least 2 samples of every minority class", c)
		}
		k := s.KNeighbors
		if k > counts[c]-1 {
			k = counts[c] - 1
		}

		idx := make([]int, 0, counts[c])
		for i, l := range y {
			if l == c {
				idx = append(idx, i)
			}
		}
		members := rowsOf(X, idx)
		nn := nearestNeighbors(members, members, k, true)

		for t := 0; t < need; t++ {
			pick := rng.IntN(len(idx) * k)
			i, j := pick/k, nn[pick/k][pick%k]
			gap := rng.Float64()
			row := make([]float64, d)
			for f := 0; f < d; f++ {
				xi := members.At(i, f)
				row[f] = xi + gap*(members.At(j, f)-xi)
			}
			synthRows = append(synthRows, row)
			synthLabels = append(synthLabels, c)
		}
	}

	out := mat.NewDense(n+len(synthRows), d, nil)
	outY := make([]int, 0, n+len(synthRows))
	for i := 0; i < n; i++ {
		for f := 0; f < d; f++ {
			out.Set(i, f, X.At(i, f))
		}
	}
	outY = append(outY, y...)
	for t, row := range synthRows {
		out.SetRow(n+t, row)
	}
	outY = append(outY, synthLabels...)

	log.GetLoggerWithName("SMOTE").Debug("SMOTE oversampled",
		log.OperationKey, log.OperationResample,
		log.ResampleBeforeKey, n,
		log.ResampleAfterKey, len(outY),
	)
	return out, outY, nil
}
