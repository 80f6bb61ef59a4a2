// Package pipeline chains fitted numeric transformers and a final classifier
// so that inference applies exactly the transformations used in training, in
// the same order.
package pipeline

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/churn/core/model"
	"github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"
)

// Step is a named stage of the pipeline.
type Step struct {
	Name      string      // Name of this step (for identification)
	Estimator interface{} // model.Transformer, or the final estimator
}

// Pipeline chains transformers and a final estimator. Every step but the
// last must implement model.Transformer.
type Pipeline struct {
	logger log.Logger
	steps  []Step
}

// FromFitted assembles a pipeline out of already fitted steps, as loaded
// from an artifact bundle. Every step must report IsFitted.
func FromFitted(steps ...Step) (*Pipeline, error) {
	if len(steps) == 0 {
		return nil, errors.NewValidationError("steps", "pipeline needs at least one step", 0)
	}
	for _, step := range steps {
		f, ok := step.Estimator.(interface{ IsFitted() bool })
		if !ok || !f.IsFitted() {
			return nil, errors.NewNotFittedError(step.Name, "FromFitted")
		}
	}
	return &Pipeline{
		logger: log.GetLoggerWithName("Pipeline"),
		steps:  steps,
	}, nil
}

// Predict transforms X and predicts with the final estimator.
func (p *Pipeline) Predict(X mat.Matrix) (mat.Matrix, error) {
	start := time.Now()
	Xt := X
	var err error
	for _, step := range p.steps[:len(p.steps)-1] {
		transformer, ok := step.Estimator.(model.Transformer)
		if !ok {
			return nil, errors.NewValidationError("pipeline step", "intermediate steps must be transformers", step.Name)
		}
		Xt, err = transformer.Transform(Xt)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("failed to transform at step '%s'", step.Name))
		}
	}
	final := p.steps[len(p.steps)-1]
	predictor, ok := final.Estimator.(model.Predictor)
	if !ok {
		return nil, errors.NewValidationError("pipeline final step", "final step must have Predict method for prediction", final.Name)
	}
	pred, err := predictor.Predict(Xt)
	if err != nil {
		return nil, err
	}
	rows, cols := X.Dims()
	p.logger.Debug("Pipeline predicted",
		log.OperationKey, log.OperationPredict,
		log.SamplesKey, rows,
		log.FeaturesKey, cols,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return pred, nil
}
