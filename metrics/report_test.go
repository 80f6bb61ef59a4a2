package metrics_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/churn/metrics"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
)

func vec(v ...float64) *mat.VecDense { return mat.NewVecDense(len(v), v) }

func TestAccuracyIsCorrectOverTotal(t *testing.T) {
	yTrue := vec(0, 1, 1, 0, 1, 0, 0)
	yPred := vec(0, 1, 0, 0, 1, 1, 0)
	acc, err := metrics.Accuracy(yTrue, yPred)
	require.NoError(t, err)
	assert.Equal(t, 5.0/7.0, acc)

	errRate, err := metrics.ClassificationError(yTrue, yPred)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/7.0, errRate, 1e-15)
}

func TestAccuracyInputErrors(t *testing.T) {
	_, err := metrics.Accuracy(vec(1, 0), vec(1))
	var dim *scigoErrors.DimensionError
	assert.True(t, errors.As(err, &dim))

	_, err = metrics.Accuracy(nil, vec(1))
	var val *scigoErrors.ValueError
	assert.True(t, errors.As(err, &val))
}

func TestConfusionMatrix(t *testing.T) {
	cm, err := metrics.NewConfusionMatrix(vec(0, 0, 1, 1, 1), vec(0, 1, 1, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, cm.Labels)
	assert.Equal(t, [][]int{{1, 1}, {1, 2}}, cm.Counts)
	assert.Equal(t, 3, cm.Correct())
	assert.Equal(t, 5, cm.Total())
}

func TestClassificationReportScores(t *testing.T) {
	// label 1: tp=2, predicted=3, actual=3; label 0: tp=1, predicted=2, actual=2
	report, err := metrics.ClassificationReport(vec(0, 0, 1, 1, 1), vec(0, 1, 1, 1, 0))
	require.NoError(t, err)

	assert.Equal(t, 0.6, report.Accuracy)
	assert.Equal(t, 3, report.Correct)
	assert.Equal(t, 5, report.Total)

	one := report.PerClass[1]
	assert.InDelta(t, 2.0/3.0, one.Precision, 1e-12)
	assert.InDelta(t, 2.0/3.0, one.Recall, 1e-12)
	assert.InDelta(t, 2.0/3.0, one.F1, 1e-12)
	assert.Equal(t, 3, one.Support)

	zero := report.PerClass[0]
	assert.InDelta(t, 0.5, zero.Precision, 1e-12)
	assert.InDelta(t, 0.5, zero.Recall, 1e-12)
	assert.Equal(t, 2, zero.Support)

	assert.InDelta(t, (0.5+2.0/3.0)/2, report.MacroAvg.F1, 1e-12)
	assert.InDelta(t, 0.5*0.4+2.0/3.0*0.6, report.WeightedAvg.Recall, 1e-12)
	assert.Equal(t, 5, report.WeightedAvg.Support)
}

func TestClassificationReportZeroDivisionWarns(t *testing.T) {
	var warnings []error
	scigoErrors.SetZerologWarnFunc(func(w error) { warnings = append(warnings, w) })
	t.Cleanup(func() { scigoErrors.SetZerologWarnFunc(nil) })

	// label 1 is never predicted
	report, err := metrics.ClassificationReport(vec(0, 1, 0, 1), vec(0, 0, 0, 0))
	require.NoError(t, err)

	one := report.PerClass[1]
	assert.Equal(t, 0.0, one.Precision)
	assert.Equal(t, 0.0, one.Recall)
	assert.Equal(t, 0.0, one.F1)
	require.NotEmpty(t, warnings)

	var w *scigoErrors.UndefinedMetricWarning
	assert.True(t, errors.As(warnings[0], &w))
	assert.Equal(t, "precision", w.Metric)
}

func proba(positive ...float64) *mat.Dense {
	m := mat.NewDense(len(positive), 2, nil)
	for i, p := range positive {
		m.Set(i, 0, 1-p)
		m.Set(i, 1, p)
	}
	return m
}

func TestROCAUC(t *testing.T) {
	tests := []struct {
		name  string
		y     []int
		proba *mat.Dense
		want  float64
	}{
		{"ranked", []int{0, 0, 1, 1}, proba(0.1, 0.4, 0.35, 0.8), 0.75},
		{"perfect", []int{1, 0, 1, 0}, proba(0.9, 0.2, 0.7, 0.1), 1},
		{"inverted", []int{1, 0}, proba(0.1, 0.9), 0},
		{"all tied", []int{0, 1, 0, 1}, proba(0.5, 0.5, 0.5, 0.5), 0.5},
		// leaf probabilities of a tree: one positive tied with one negative at 1.0
		{"partial tie", []int{1, 0, 1, 0}, proba(1, 1, 0, 0), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auc, err := metrics.ROCAUC(tt.y, tt.proba, 1)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, auc, 1e-12)
		})
	}
}

func TestROCAUCInputErrors(t *testing.T) {
	_, err := metrics.ROCAUC([]int{1, 1}, proba(0.2, 0.9), 1)
	var missing *scigoErrors.MissingClassError
	assert.True(t, errors.As(err, &missing))

	_, err = metrics.ROCAUC([]int{0, 1, 1}, proba(0.2, 0.9), 1)
	var dim *scigoErrors.DimensionError
	assert.True(t, errors.As(err, &dim))

	_, err = metrics.ROCAUC([]int{0, 1}, proba(0.2, 0.9), 2)
	var v *scigoErrors.ValidationError
	assert.True(t, errors.As(err, &v))
}

func TestLogLoss(t *testing.T) {
	loss, err := metrics.LogLoss([]int{0, 1}, proba(0.5, 0.5), 1)
	require.NoError(t, err)
	assert.InDelta(t, math.Ln2, loss, 1e-12)

	// a confident miss is clipped, not infinite
	loss, err = metrics.LogLoss([]int{1}, proba(0), 1)
	require.NoError(t, err)
	assert.InDelta(t, -math.Log(1e-15), loss, 1e-9)

	_, err = metrics.LogLoss(nil, proba(0.5), 1)
	var val *scigoErrors.ValueError
	assert.True(t, errors.As(err, &val))
}
