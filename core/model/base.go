// Package model provides the building blocks shared by every estimator and
// transformer in the churn pipeline:
//
//   - BaseEstimator and StateManager track whether a model has been fitted
//   - Fitter, Predictor and Transformer describe the fit/predict/transform contract
//   - SaveModel and LoadModel persist fitted models with encoding/gob
//
// Fitted state lives in exported fields so that a model decoded from disk is
// immediately usable.
package model

// EstimatorState represents the learning state of a model
type EstimatorState int

const (
	// NotFitted indicates the model is not yet trained
	NotFitted EstimatorState = iota
	// Fitted indicates the model has been trained
	Fitted
)

// BaseEstimator is embedded by transformers that carry no other lifecycle
// state than "fitted or not".
type BaseEstimator struct {
	// State holds the model's learning state. Public for gob encoding.
	State EstimatorState

	// ModelType identifies the type of model
	ModelType string
}

// IsFitted returns whether the model has been fitted with training data.
func (e *BaseEstimator) IsFitted() bool {
	return e.State == Fitted
}

// SetFitted marks the estimator as fitted. Called by implementations at the
// end of a successful Fit.
func (e *BaseEstimator) SetFitted() {
	e.State = Fitted
}

// Reset returns the estimator to its initial untrained state.
func (e *BaseEstimator) Reset() {
	e.State = NotFitted
}
