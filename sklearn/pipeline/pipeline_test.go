package pipeline_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/preprocessing"
	"github.com/ezoic/churn/sklearn/pipeline"
	"github.com/ezoic/churn/sklearn/tree"
)

func data() (*mat.Dense, *mat.VecDense) {
	X := mat.NewDense(8, 2, []float64{
		1, 100,
		2, 110,
		3, 90,
		4, 105,
		10, 95,
		11, 120,
		12, 80,
		13, 102,
	})
	y := mat.NewVecDense(8, []float64{0, 0, 0, 0, 1, 1, 1, 1})
	return X, y
}

func TestPipelineMatchesManualChain(t *testing.T) {
	X, y := data()

	scaler := preprocessing.NewStandardScalerDefault()
	Xs, err := scaler.FitTransform(X)
	require.NoError(t, err)
	pca := preprocessing.NewPCA(2)
	Xr, err := pca.FitTransform(Xs)
	require.NoError(t, err)
	dt := tree.NewDecisionTreeClassifier(tree.WithDTRandomState(3))
	require.NoError(t, dt.Fit(Xr, y))

	want, err := dt.Predict(Xr)
	require.NoError(t, err)

	p, err := pipeline.FromFitted(
		pipeline.Step{Name: "scaler", Estimator: scaler},
		pipeline.Step{Name: "reducer", Estimator: pca},
		pipeline.Step{Name: "model", Estimator: dt},
	)
	require.NoError(t, err)
	got, err := p.Predict(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(want, got))
	assert.True(t, mat.Equal(mat.NewDense(8, 1, y.RawVector().Data), got))
}

func TestFromFittedRequiresFittedSteps(t *testing.T) {
	X, y := data()
	scaler := preprocessing.NewStandardScalerDefault()
	dt := tree.NewDecisionTreeClassifier()

	_, err := pipeline.FromFitted(
		pipeline.Step{Name: "scaler", Estimator: scaler},
		pipeline.Step{Name: "model", Estimator: dt},
	)
	var nf *scigoErrors.NotFittedError
	require.True(t, errors.As(err, &nf))

	Xs, err := scaler.FitTransform(X)
	require.NoError(t, err)
	require.NoError(t, dt.Fit(Xs, y))

	p, err := pipeline.FromFitted(
		pipeline.Step{Name: "scaler", Estimator: scaler},
		pipeline.Step{Name: "model", Estimator: dt},
	)
	require.NoError(t, err)
	pred, err := p.Predict(X)
	require.NoError(t, err)
	assert.Equal(t, 1.0, pred.At(7, 0))
}

func TestFromFittedRejectsNoSteps(t *testing.T) {
	_, err := pipeline.FromFitted()
	var v *scigoErrors.ValidationError
	assert.True(t, errors.As(err, &v))
}

func TestIntermediateStepMustTransform(t *testing.T) {
	X, y := data()
	dt := tree.NewDecisionTreeClassifier()
	require.NoError(t, dt.Fit(X, y))

	p, err := pipeline.FromFitted(
		pipeline.Step{Name: "model", Estimator: dt},
		pipeline.Step{Name: "model2", Estimator: dt},
	)
	require.NoError(t, err)
	_, err = p.Predict(X)
	var v *scigoErrors.ValidationError
	assert.True(t, errors.As(err, &v))
}
