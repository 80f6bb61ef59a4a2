package tree_test

import (
	"bytes"
	"encoding/gob"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/sklearn/tree"
)

// separable returns rows where feature 0 decides the class and feature 1 is noise.
func separable() (*mat.Dense, *mat.VecDense) {
	X := mat.NewDense(8, 2, []float64{
		1, 5,
		2, 3,
		3, 8,
		4, 1,
		10, 2,
		11, 7,
		12, 4,
		13, 6,
	})
	y := mat.NewVecDense(8, []float64{0, 0, 0, 0, 1, 1, 1, 1})
	return X, y
}

var separableLabels = []int{0, 0, 0, 0, 1, 1, 1, 1}

func TestFitPerfectSplit(t *testing.T) {
	X, y := separable()
	dt := tree.NewDecisionTreeClassifier(tree.WithDTRandomState(1))
	require.NoError(t, dt.Fit(X, y))

	assert.True(t, dt.IsFitted())
	assert.Equal(t, 1, dt.GetDepth())
	assert.Equal(t, 2, dt.GetNLeaves())
	assert.Equal(t, 0, dt.Root.Feature)
	assert.InDelta(t, 7.0, dt.Root.Threshold, 1e-12)
	assert.Equal(t, []int{0, 1}, dt.Classes)

	imp := dt.GetFeatureImportances()
	assert.InDelta(t, 1.0, imp[0], 1e-12)
	assert.InDelta(t, 0.0, imp[1], 1e-12)

	pred, err := dt.PredictLabels(X)
	require.NoError(t, err)
	assert.Equal(t, separableLabels, pred)
}

func TestPredictProbaSumsToOne(t *testing.T) {
	X := mat.NewDense(6, 1, []float64{1, 1, 1, 2, 2, 2})
	y := mat.NewVecDense(6, []float64{0, 0, 1, 1, 1, 1})
	dt := tree.NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))

	proba, err := dt.PredictProba(mat.NewDense(1, 1, []float64{1}))
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, proba.At(0, 0), 1e-12)
	assert.InDelta(t, 1.0/3.0, proba.At(0, 1), 1e-12)

	labels, err := dt.PredictLabels(mat.NewDense(2, 1, []float64{1, 2}))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, labels)
}

func TestMaxDepthAndMinSamplesLeaf(t *testing.T) {
	X := mat.NewDense(10, 1, []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9})
	y := mat.NewVecDense(10, []float64{0, 1, 0, 1, 0, 1, 0, 1, 0, 1})

	shallow := tree.NewDecisionTreeClassifier(tree.WithMaxDepth(2))
	require.NoError(t, shallow.Fit(X, y))
	assert.LessOrEqual(t, shallow.GetDepth(), 2)

	leafy := tree.NewDecisionTreeClassifier(tree.WithMinSamplesLeaf(4))
	require.NoError(t, leafy.Fit(X, y))
	var walk func(n *tree.TreeNode)
	walk = func(n *tree.TreeNode) {
		if n.IsLeaf {
			assert.GreaterOrEqual(t, n.NSamples, 4)
			return
		}
		walk(n.Left)
		walk(n.Right)
	}
	walk(leafy.Root)

	full := tree.NewDecisionTreeClassifier()
	require.NoError(t, full.Fit(X, y))
	pred, err := full.PredictLabels(X)
	require.NoError(t, err)
	for i, l := range pred {
		assert.Equal(t, int(y.AtVec(i)), l)
	}
}

func TestRandomSplitterIsDeterministicPerSeed(t *testing.T) {
	X, y := separable()
	fit := func(seed int64) *tree.DecisionTreeClassifier {
		dt := tree.NewDecisionTreeClassifier(tree.WithSplitter("random"), tree.WithDTRandomState(seed))
		require.NoError(t, dt.Fit(X, y))
		return dt
	}
	a, b := fit(7), fit(7)
	assert.Equal(t, a.Root, b.Root)

	pred, err := a.PredictLabels(X)
	require.NoError(t, err)
	assert.Equal(t, separableLabels, pred)
}

func TestEntropyCriterion(t *testing.T) {
	X, y := separable()
	dt := tree.NewDecisionTreeClassifier(tree.WithCriterion("entropy"))
	require.NoError(t, dt.Fit(X, y))
	assert.InDelta(t, 1.0, dt.Root.Impurity, 1e-12)
}

func TestInvalidHyperparameters(t *testing.T) {
	X, y := separable()
	tests := []struct {
		name string
		opt  tree.DecisionTreeClassifierOption
	}{
		{"criterion", tree.WithCriterion("mse")},
		{"splitter", tree.WithSplitter("greedy")},
		{"max depth", tree.WithMaxDepth(-1)},
		{"min samples split", tree.WithMinSamplesSplit(1)},
		{"min samples leaf", tree.WithMinSamplesLeaf(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tree.NewDecisionTreeClassifier(tt.opt).Fit(X, y)
			var vErr *scigoErrors.ValidationError
			assert.True(t, errors.As(err, &vErr), "got %v", err)
		})
	}
}

func TestPredictErrors(t *testing.T) {
	dt := tree.NewDecisionTreeClassifier()
	_, err := dt.Predict(mat.NewDense(1, 2, nil))
	var nf *scigoErrors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	X, y := separable()
	require.NoError(t, dt.Fit(X, y))
	_, err = dt.Predict(mat.NewDense(1, 3, nil))
	var dim *scigoErrors.DimensionError
	assert.True(t, errors.As(err, &dim))
}

func TestGobRoundTrip(t *testing.T) {
	X, y := separable()
	dt := tree.NewDecisionTreeClassifier(tree.WithMaxDepth(3), tree.WithDTRandomState(42))
	require.NoError(t, dt.Fit(X, y))

	var buf bytes.Buffer
	require.NoError(t, gob.NewEncoder(&buf).Encode(dt))
	var loaded tree.DecisionTreeClassifier
	require.NoError(t, gob.NewDecoder(&buf).Decode(&loaded))

	want, err := dt.PredictLabels(X)
	require.NoError(t, err)
	got, err := loaded.PredictLabels(X)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, dt.MaxDepth, loaded.MaxDepth)
	assert.Equal(t, dt.GetFeatureImportances(), loaded.GetFeatureImportances())
}
