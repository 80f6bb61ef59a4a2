package model

import "gonum.org/v1/gonum/mat"

// Fitter is a supervised model that learns from features and labels.
type Fitter interface {
	Fit(X, y mat.Matrix) error
}

// Predictor produces one prediction per input row.
type Predictor interface {
	Predict(X mat.Matrix) (mat.Matrix, error)
}

// Classifier is a fitted-or-fittable model that predicts class labels.
type Classifier interface {
	Fitter
	Predictor
	PredictProba(X mat.Matrix) (mat.Matrix, error)
	IsFitted() bool
}

// Transformer learns a column transformation and applies it to new rows.
type Transformer interface {
	Fit(X mat.Matrix) error
	Transform(X mat.Matrix) (mat.Matrix, error)
	FitTransform(X mat.Matrix) (mat.Matrix, error)
}
