package imbalance

import (
	"gonum.org/v1/gonum/mat"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"
)

// EditedNearestNeighbours drops every sample whose k nearest neighbours do not
// all share its label. Every class is cleaned.
type EditedNearestNeighbours struct {
	NNeighbors int
}

// NewEditedNearestNeighbours returns an ENN cleaner using k neighbours.
func NewEditedNearestNeighbours(k int) *EditedNearestNeighbours {
	return &EditedNearestNeighbours{NNeighbors: k}
}

// FitResample returns the retained rows in their original order.
func (e *EditedNearestNeighbours) FitResample(X mat.Matrix, y []int) (_ *mat.Dense, _ []int, err error) {
	defer scigoErrors.Recover(&err, "EditedNearestNeighbours.FitResample")
	n, _ := X.Dims()
	if n != len(y) {
		return nil, nil, scigoErrors.NewDimensionError("EditedNearestNeighbours.FitResample", n, len(y), 0)
	}
	if n == 0 {
		return nil, nil, scigoErrors.NewModelError("EditedNearestNeighbours.FitResample", "empty data", scigoErrors.ErrEmptyData)
	}
	if e.NNeighbors < 1 {
		return nil, nil, scigoErrors.NewValidationError("n_neighbors", "must be at least 1", e.NNeighbors)
	}

	nn := nearestNeighbors(X, X, e.NNeighbors, true)
	keep := make([]int, 0, n)
	for i, neighbours := range nn {
		agree := true
		for _, j := range neighbours {
			if y[j] != y[i] {
				agree = false
				break
			}
		}
		if agree {
			keep = append(keep, i)
		}
	}
	if len(keep) == 0 {
		return nil, nil, scigoErrors.NewModelError("EditedNearestNeighbours.FitResample",
			"cleaning removed every sample", scigoErrors.ErrEmptyData)
	}

	outY := make([]int, len(keep))
	for k, i := range keep {
		outY[k] = y[i]
	}
	log.GetLoggerWithName("EditedNearestNeighbours").Debug("ENN cleaned",
		log.OperationKey, log.OperationResample,
		log.ResampleBeforeKey, n,
		log.ResampleAfterKey, len(keep),
	)
	return rowsOf(X, keep), outY, nil
}

// SMOTEENN oversamples with SMOTE and then cleans with ENN.
type SMOTEENN struct {
	SMOTE *SMOTE
	ENN   *EditedNearestNeighbours
}

// NewSMOTEENN combines SMOTE(kNeighbors, seed) with ENN(nNeighbors).
func NewSMOTEENN(kNeighbors, nNeighbors int, randomSeed int64) *SMOTEENN {
	return &SMOTEENN{
		SMOTE: NewSMOTE(kNeighbors, randomSeed),
		ENN:   NewEditedNearestNeighbours(nNeighbors),
	}
}

// FitResample applies SMOTE then ENN.
func (s *SMOTEENN) FitResample(X mat.Matrix, y []int) (*mat.Dense, []int, error) {
	n, _ := X.Dims()
	Xs, ys, err := s.SMOTE.FitResample(X, y)
	if err != nil {
		return nil, nil, err
	}
	Xc, yc, err := s.ENN.FitResample(Xs, ys)
	if err != nil {
		return nil, nil, err
	}
	log.GetLoggerWithName("SMOTEENN").Info("SMOTEENN applied",
		log.OperationKey, log.OperationResample,
		log.ResampleBeforeKey, n,
		log.ResampleAfterKey, len(yc),
		log.RandomSeedKey, s.SMOTE.RandomSeed,
	)
	return Xc, yc, nil
}
