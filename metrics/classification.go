// Package metrics scores classifier output: accuracy, per-class
// precision/recall/F1, confusion matrices, ROC AUC and log loss.
package metrics

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
)

// probabilityClip bounds probabilities away from 0 and 1 in LogLoss.
const probabilityClip = 1e-15

type scored struct {
	score    float64
	positive bool
}

// scoresFor pairs column positive of proba with whether each label equals
// positive. proba has one row per label and one column per class, as
// returned by PredictProba.
func scoresFor(op string, y []int, proba mat.Matrix, positive int) ([]scored, int, error) {
	if proba == nil {
		return nil, 0, scigoErrors.NewValueError(op, "probabilities cannot be nil")
	}
	if len(y) == 0 {
		return nil, 0, scigoErrors.NewValueError(op, "labels cannot be empty")
	}
	rows, cols := proba.Dims()
	if rows != len(y) {
		return nil, 0, scigoErrors.NewDimensionError(op, len(y), rows, 0)
	}
	if positive < 0 || positive >= cols {
		return nil, 0, scigoErrors.NewValidationError("positive",
			fmt.Sprintf("must index one of %d probability columns", cols), positive)
	}
	out := make([]scored, len(y))
	nPos := 0
	for i, l := range y {
		out[i] = scored{score: proba.At(i, positive), positive: l == positive}
		if out[i].positive {
			nPos++
		}
	}
	return out, nPos, nil
}

// ROCAUC is the area under the ROC curve for class positive, scored by
// column positive of proba. A positive and a negative sample with equal
// scores count as half a correctly ranked pair. Both classes must occur in
// y, otherwise the area is undefined and MissingClassError is returned.
//
//	y := []int{0, 0, 1, 1}
//	proba := mat.NewDense(4, 2, []float64{0.9, 0.1, 0.6, 0.4, 0.65, 0.35, 0.2, 0.8})
//	auc, err := metrics.ROCAUC(y, proba, 1) // 0.75
func ROCAUC(y []int, proba mat.Matrix, positive int) (float64, error) {
	samples, nPos, err := scoresFor("ROCAUC", y, proba, positive)
	if err != nil {
		return 0, err
	}
	nNeg := len(samples) - nPos
	if nPos == 0 || nNeg == 0 {
		return 0, scigoErrors.NewMissingClassError("ROCAUC", 2, 1)
	}

	sort.SliceStable(samples, func(i, j int) bool { return samples[i].score > samples[j].score })

	// Walk thresholds from the highest score. Every negative adds the
	// positives ranked above it, and half of those tied with it.
	var tp, area float64
	for i := 0; i < len(samples); {
		j := i
		var pos, neg float64
		for ; j < len(samples) && samples[j].score == samples[i].score; j++ {
			if samples[j].positive {
				pos++
			} else {
				neg++
			}
		}
		area += neg * (tp + pos/2)
		tp += pos
		i = j
	}
	return area / (float64(nPos) * float64(nNeg)), nil
}

// LogLoss is the mean binary cross-entropy of column positive of proba
// against y == positive. Probabilities are clipped to [1e-15, 1-1e-15].
func LogLoss(y []int, proba mat.Matrix, positive int) (float64, error) {
	samples, _, err := scoresFor("LogLoss", y, proba, positive)
	if err != nil {
		return 0, err
	}
	loss := 0.0
	for _, s := range samples {
		p := math.Min(math.Max(s.score, probabilityClip), 1-probabilityClip)
		if s.positive {
			loss -= math.Log(p)
		} else {
			loss -= math.Log(1 - p)
		}
	}
	return loss / float64(len(samples)), nil
}
