package preprocessing_test

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/preprocessing"
)

// correlatedData returns n rows of 5 features driven by two latent factors
// plus small noise, so two components carry almost all variance.
func correlatedData(n int, seed int64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	X := mat.NewDense(n, 5, nil)
	for i := 0; i < n; i++ {
		a, b := rng.NormFloat64(), rng.NormFloat64()
		X.SetRow(i, []float64{
			a + 0.01*rng.NormFloat64(),
			2*a + 0.01*rng.NormFloat64(),
			b + 0.01*rng.NormFloat64(),
			-b + 0.01*rng.NormFloat64(),
			a + b + 0.01*rng.NormFloat64(),
		})
	}
	return X
}

func TestPCA_VarianceThresholdSelectsComponents(t *testing.T) {
	X := correlatedData(200, 1)

	pca := preprocessing.NewPCA(0.95)
	out, err := pca.FitTransform(X)
	require.NoError(t, err)

	assert.Equal(t, 2, pca.NComponentsFitted)
	assert.GreaterOrEqual(t, pca.CumulativeVariance(), 0.95)
	assert.LessOrEqual(t, pca.NComponentsFitted, 5)

	r, c := out.Dims()
	assert.Equal(t, 200, r)
	assert.Equal(t, 2, c)

	sum := 0.0
	for _, v := range pca.ExplainedVarianceRatio {
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	for i := 1; i < len(pca.ExplainedVariance); i++ {
		assert.GreaterOrEqual(t, pca.ExplainedVariance[i-1], pca.ExplainedVariance[i])
	}
}

func TestPCA_FixedComponentCount(t *testing.T) {
	pca := preprocessing.NewPCA(3)
	out, err := pca.FitTransform(correlatedData(50, 2))
	require.NoError(t, err)
	_, c := out.Dims()
	assert.Equal(t, 3, c)
}

func TestPCA_ProjectedColumnsAreCenteredAndUncorrelated(t *testing.T) {
	pca := preprocessing.NewPCA(0.999)
	out, err := pca.FitTransform(correlatedData(300, 3))
	require.NoError(t, err)

	r, c := out.Dims()
	for j := 0; j < c; j++ {
		mean := 0.0
		for i := 0; i < r; i++ {
			mean += out.At(i, j)
		}
		assert.InDelta(t, 0, mean/float64(r), 1e-9)
	}
	if c >= 2 {
		cov := 0.0
		for i := 0; i < r; i++ {
			cov += out.At(i, 0) * out.At(i, 1)
		}
		assert.InDelta(t, 0, cov/float64(r-1), 1e-8)
	}
}

func TestPCA_DeterministicAcrossFits(t *testing.T) {
	X := correlatedData(100, 4)
	a := preprocessing.NewPCA(0.95)
	b := preprocessing.NewPCA(0.95)
	outA, err := a.FitTransform(X)
	require.NoError(t, err)
	outB, err := b.FitTransform(X)
	require.NoError(t, err)
	assert.True(t, mat.Equal(outA, outB))

	for i := 0; i < a.NComponentsFitted; i++ {
		row := a.Components[i*a.NFeatures : (i+1)*a.NFeatures]
		maxAbs, at := 0.0, 0
		for j, v := range row {
			if math.Abs(v) > maxAbs {
				maxAbs, at = math.Abs(v), j
			}
		}
		assert.Positive(t, row[at], "component %d largest loading should be positive", i)
	}
}

func TestPCA_Errors(t *testing.T) {
	_, err := preprocessing.NewPCA(0.95).Transform(mat.NewDense(1, 2, nil))
	var nf *scigoErrors.NotFittedError
	assert.True(t, errors.As(err, &nf))

	var ve *scigoErrors.ValidationError
	assert.True(t, errors.As(preprocessing.NewPCA(0).Fit(correlatedData(10, 5)), &ve))
	assert.True(t, errors.As(preprocessing.NewPCA(9).Fit(correlatedData(10, 5)), &ve))
	assert.True(t, errors.As(preprocessing.NewPCA(1.5).Fit(correlatedData(10, 5)), &ve))

	constant := mat.NewDense(3, 2, []float64{1, 1, 1, 1, 1, 1})
	assert.ErrorIs(t, preprocessing.NewPCA(0.95).Fit(constant), scigoErrors.ErrSingularMatrix)

	pca := preprocessing.NewPCA(0.95)
	require.NoError(t, pca.Fit(correlatedData(10, 6)))
	_, err = pca.Transform(mat.NewDense(1, 4, nil))
	var dim *scigoErrors.DimensionError
	assert.True(t, errors.As(err, &dim))
}
