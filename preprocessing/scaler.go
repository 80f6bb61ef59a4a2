// Package preprocessing provides the feature transformations of the churn
// pipeline:
//
//   - StandardScaler: standardizes features by removing the mean and scaling to unit variance
//   - FrequencyEncoder: replaces a categorical value by its occurrence count
//   - BinaryEncoder: maps a two-valued categorical column to 1/0
//   - PCA: projects standardized features onto the principal components that
//     retain a requested share of variance
//
// Numeric transformers follow the Fit, Transform and FitTransform pattern over
// gonum matrices; encoders apply the same pattern to string columns. All fitted
// state is held in exported fields so transformers can be persisted with gob.
//
// Example usage:
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	if err := scaler.Fit(trainingData); err != nil {
//		return err
//	}
//	scaledData, err := scaler.Transform(testData)
package preprocessing

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/ezoic/churn/core/model"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"
)

// StandardScaler standardizes each feature to zero mean and unit variance.
type StandardScaler struct {
	model.BaseEstimator

	// Mean holds the per-feature mean seen during Fit.
	Mean []float64

	// Scale holds the per-feature population standard deviation. Constant
	// features get a scale of 1 so they map to 0 instead of NaN.
	Scale []float64

	// NFeatures is the number of features seen during Fit.
	NFeatures int

	// WithMean controls centering (default: true).
	WithMean bool

	// WithStd controls scaling to unit variance (default: true).
	WithStd bool
}

// NewStandardScaler creates a new StandardScaler for feature standardization.
//
// Parameters:
//   - withMean: whether to center the data at zero by removing the mean
//   - withStd: whether to scale the data to unit variance
//
// Example:
//
//	scaler := preprocessing.NewStandardScaler(true, true)
//	err := scaler.Fit(X_train)
//	X_scaled, err := scaler.Transform(X_test)
func NewStandardScaler(withMean, withStd bool) *StandardScaler {
	return &StandardScaler{
		BaseEstimator: model.BaseEstimator{ModelType: "StandardScaler"},
		WithMean:      withMean,
		WithStd:       withStd,
	}
}

// NewStandardScalerDefault returns a scaler that both centers and scales.
func NewStandardScalerDefault() *StandardScaler {
	return NewStandardScaler(true, true)
}

// Fit computes the per-feature mean and population standard deviation.
//
// Errors:
//   - ErrEmptyData: if X has no rows or columns
//   - NumericalInstabilityError: if X contains NaN or Inf
func (s *StandardScaler) Fit(X mat.Matrix) (err error) {
	defer scigoErrors.Recover(&err, "StandardScaler.Fit")
	r, c := X.Dims()
	if r == 0 || c == 0 {
		return scigoErrors.NewModelError("StandardScaler.Fit", "empty data", scigoErrors.ErrEmptyData)
	}
	if err := scigoErrors.CheckMatrix("StandardScaler.Fit", X, r, c, 0); err != nil {
		return err
	}

	s.NFeatures = c
	s.Mean = make([]float64, c)
	s.Scale = make([]float64, c)

	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, X)
		mean, variance := stat.PopMeanVariance(col, nil)

		if s.WithMean {
			s.Mean[j] = mean
		}

		s.Scale[j] = 1.0
		if s.WithStd {
			// variance is taken around the true mean even when WithMean is
			// false, matching the reference scaler
			if sd := math.Sqrt(variance); sd >= 1e-8 {
				s.Scale[j] = sd
			}
		}
	}

	s.SetFitted()
	log.GetLoggerWithName("StandardScaler").Debug("StandardScaler fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, r,
		log.FeaturesKey, c,
	)
	return nil
}

// Transform applies (X - mean) / scale using the fitted statistics.
//
// Errors:
//   - NotFittedError: if the scaler hasn't been fitted yet
//   - DimensionError: if X doesn't match the number of features from training
func (s *StandardScaler) Transform(X mat.Matrix) (_ mat.Matrix, err error) {
	defer scigoErrors.Recover(&err, "StandardScaler.Transform")
	if !s.IsFitted() {
		return nil, scigoErrors.NewNotFittedError("StandardScaler", "Transform")
	}

	r, c := X.Dims()
	if c != s.NFeatures {
		return nil, scigoErrors.NewDimensionError("StandardScaler.Transform", s.NFeatures, c, 1)
	}

	result := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			result.Set(i, j, (X.At(i, j)-s.Mean[j])/s.Scale[j])
		}
	}
	if err := scigoErrors.CheckMatrix("StandardScaler.Transform", result, r, c, 0); err != nil {
		return nil, err
	}
	return result, nil
}

// FitTransform fits the scaler and transforms the training data in one step.
func (s *StandardScaler) FitTransform(X mat.Matrix) (_ mat.Matrix, err error) {
	defer scigoErrors.Recover(&err, "StandardScaler.FitTransform")
	if err := s.Fit(X); err != nil {
		return nil, err
	}
	return s.Transform(X)
}

// String returns a short description of the scaler.
func (s *StandardScaler) String() string {
	if !s.IsFitted() {
		return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t)", s.WithMean, s.WithStd)
	}
	return fmt.Sprintf("StandardScaler(with_mean=%t, with_std=%t, n_features=%d)",
		s.WithMean, s.WithStd, s.NFeatures)
}
