package preprocessing

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/ezoic/churn/core/model"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"
)

// PCA projects data onto its principal components.
//
// NComponents selects how many components are kept:
//   - 0 < NComponents < 1: the smallest number whose cumulative explained
//     variance ratio reaches NComponents
//   - NComponents >= 1: exactly int(NComponents) components
//
// Components are sign-normalized so the largest-magnitude loading of each is
// positive, which makes repeated fits on the same data identical.
type PCA struct {
	NComponents float64

	// Mean is the per-feature mean removed before projection.
	Mean []float64

	// Components is the k × NFeatures loading matrix, row-major.
	Components []float64

	// NComponentsFitted is k, the number of retained components.
	NComponentsFitted int

	// ExplainedVariance and ExplainedVarianceRatio cover every component in
	// decreasing order, not only the retained ones.
	ExplainedVariance      []float64
	ExplainedVarianceRatio []float64

	NFeatures int

	State *model.StateManager
}

// NewPCA returns an unfitted PCA. See PCA for the meaning of nComponents.
func NewPCA(nComponents float64) *PCA {
	return &PCA{NComponents: nComponents, State: model.NewStateManager()}
}

func (p *PCA) validate(nSamples, nFeatures int) error {
	switch {
	case p.NComponents <= 0 || math.IsNaN(p.NComponents):
		return scigoErrors.NewValidationError("n_components", "must be positive", p.NComponents)
	case p.NComponents >= 1 && p.NComponents != math.Trunc(p.NComponents):
		return scigoErrors.NewValidationError("n_components", "must be a fraction in (0,1) or a whole number", p.NComponents)
	case p.NComponents >= 1 && int(p.NComponents) > nFeatures:
		return scigoErrors.NewValidationError("n_components", fmt.Sprintf("cannot exceed the %d input features", nFeatures), p.NComponents)
	case nSamples < 2:
		return scigoErrors.NewValidationError("n_samples", "PCA needs at least 2 samples", nSamples)
	}
	return nil
}

// Fit computes the principal axes of X.
func (p *PCA) Fit(X mat.Matrix) (err error) {
	defer scigoErrors.Recover(&err, "PCA.Fit")
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return scigoErrors.NewModelError("PCA.Fit", "empty data", scigoErrors.ErrEmptyData)
	}
	if err := p.validate(r, c); err != nil {
		return err
	}
	if err := scigoErrors.CheckMatrix("PCA.Fit", X, r, c, 0); err != nil {
		return err
	}
	if p.State == nil {
		p.State = model.NewStateManager()
	}

	mean := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		mean[j] = stat.Mean(col, nil)
	}

	var cov mat.SymDense
	stat.CovarianceMatrix(&cov, X, nil)

	var eig mat.EigenSym
	if ok := eig.Factorize(&cov, true); !ok {
		return scigoErrors.NewModelError("PCA.Fit", "eigendecomposition failed", scigoErrors.ErrSingularMatrix)
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	// eigenvalues come back ascending
	order := make([]int, c)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] > values[order[b]] })

	variance := make([]float64, c)
	total := 0.0
	for i, idx := range order {
		variance[i] = math.Max(values[idx], 0)
		total += variance[i]
	}
	if total <= 0 {
		return scigoErrors.NewModelError("PCA.Fit", "data has zero total variance", scigoErrors.ErrSingularMatrix)
	}
	ratio := make([]float64, c)
	for i := range variance {
		ratio[i] = variance[i] / total
	}

	k := p.componentCount(ratio)

	components := make([]float64, k*c)
	for i := 0; i < k; i++ {
		src := order[i]
		maxAbs, sign := 0.0, 1.0
		for j := 0; j < c; j++ {
			if v := vectors.At(j, src); math.Abs(v) > maxAbs {
				maxAbs = math.Abs(v)
				sign = math.Copysign(1, v)
			}
		}
		for j := 0; j < c; j++ {
			components[i*c+j] = sign * vectors.At(j, src)
		}
	}

	p.Mean = mean
	p.Components = components
	p.NComponentsFitted = k
	p.ExplainedVariance = variance
	p.ExplainedVarianceRatio = ratio
	p.NFeatures = c
	p.State.SetDimensions(c, r)
	p.State.SetFitted()

	log.GetLoggerWithName("PCA").Info("PCA completed",
		log.OperationKey, log.OperationFit,
		log.FeaturesKey, c,
		log.ComponentsKey, k,
		log.ExplainedVarianceKey, p.CumulativeVariance(),
	)
	return nil
}

func (p *PCA) componentCount(ratio []float64) int {
	if p.NComponents >= 1 {
		return int(p.NComponents)
	}
	const tol = 1e-12
	cum := 0.0
	for i, r := range ratio {
		cum += r
		if cum >= p.NComponents-tol {
			return i + 1
		}
	}
	return len(ratio)
}

// Transform projects X onto the retained components.
func (p *PCA) Transform(X mat.Matrix) (_ mat.Matrix, err error) {
	defer scigoErrors.Recover(&err, "PCA.Transform")
	if p.State == nil || !p.State.IsFitted() {
		return nil, scigoErrors.NewNotFittedError("PCA", "Transform")
	}
	r, c := X.Dims()
	if c != p.NFeatures {
		return nil, scigoErrors.NewDimensionError("PCA.Transform", p.NFeatures, c, 1)
	}

	centered := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			centered.Set(i, j, X.At(i, j)-p.Mean[j])
		}
	}
	w := mat.NewDense(p.NComponentsFitted, c, p.Components)

	var out mat.Dense
	out.Mul(centered, w.T())
	return &out, nil
}

// FitTransform fits on X and projects it.
func (p *PCA) FitTransform(X mat.Matrix) (_ mat.Matrix, err error) {
	defer scigoErrors.Recover(&err, "PCA.FitTransform")
	if err := p.Fit(X); err != nil {
		return nil, err
	}
	return p.Transform(X)
}

// IsFitted reports whether Fit has succeeded.
func (p *PCA) IsFitted() bool {
	return p.State != nil && p.State.IsFitted()
}

// CumulativeVariance is the explained variance ratio covered by the retained
// components.
func (p *PCA) CumulativeVariance() float64 {
	sum := 0.0
	for i := 0; i < p.NComponentsFitted && i < len(p.ExplainedVarianceRatio); i++ {
		sum += p.ExplainedVarianceRatio[i]
	}
	return sum
}

// String returns a short description of the reducer.
func (p *PCA) String() string {
	if !p.IsFitted() {
		return fmt.Sprintf("PCA(n_components=%g)", p.NComponents)
	}
	return fmt.Sprintf("PCA(n_components=%g, n_components_fitted=%d, explained_variance=%.4f)",
		p.NComponents, p.NComponentsFitted, p.CumulativeVariance())
}
