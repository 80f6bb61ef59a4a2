package churn

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"
	"github.com/ezoic/churn/sklearn/tree"
)

// Hyperparameters configure the decision tree. MaxDepth nil means the tree
// grows until its leaves are pure or too small to split.
type Hyperparameters struct {
	Criterion       string `json:"criterion" yaml:"criterion"`
	Splitter        string `json:"splitter" yaml:"splitter"`
	MaxDepth        *int   `json:"max_depth" yaml:"max_depth"`
	MinSamplesSplit int    `json:"min_samples_split" yaml:"min_samples_split"`
	MinSamplesLeaf  int    `json:"min_samples_leaf" yaml:"min_samples_leaf"`
	RandomState     int64  `json:"random_state" yaml:"random_state"`
}

// DefaultHyperparameters is the configuration used by the batch pipeline.
func DefaultHyperparameters() Hyperparameters {
	depth := 6
	return Hyperparameters{
		Criterion:       "gini",
		Splitter:        "best",
		MaxDepth:        &depth,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  8,
		RandomState:     100,
	}
}

// RetrainDefaults fills the fields a retrain request leaves out.
func RetrainDefaults() Hyperparameters {
	return Hyperparameters{
		Criterion:       "gini",
		Splitter:        "best",
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
		RandomState:     42,
	}
}

// Options translates h into tree options.
func (h Hyperparameters) Options() []tree.DecisionTreeClassifierOption {
	depth := 0
	if h.MaxDepth != nil {
		depth = *h.MaxDepth
	}
	return []tree.DecisionTreeClassifierOption{
		tree.WithCriterion(h.Criterion),
		tree.WithSplitter(h.Splitter),
		tree.WithMaxDepth(depth),
		tree.WithMinSamplesSplit(h.MinSamplesSplit),
		tree.WithMinSamplesLeaf(h.MinSamplesLeaf),
		tree.WithDTRandomState(h.RandomState),
	}
}

// Validate rejects settings the tree would refuse.
func (h Hyperparameters) Validate() error {
	if h.MaxDepth != nil && *h.MaxDepth < 1 {
		return scigoErrors.NewValidationError("max_depth", "must be at least 1 or null", *h.MaxDepth)
	}
	return tree.NewDecisionTreeClassifier(h.Options()...).Validate()
}

// Params flattens h for experiment tracking.
func (h Hyperparameters) Params() map[string]any {
	var depth any = "None"
	if h.MaxDepth != nil {
		depth = *h.MaxDepth
	}
	return map[string]any{
		"criterion":         h.Criterion,
		"splitter":          h.Splitter,
		"max_depth":         depth,
		"min_samples_split": h.MinSamplesSplit,
		"min_samples_leaf":  h.MinSamplesLeaf,
		"random_state":      h.RandomState,
	}
}

// Train fits a decision tree on X and y. The result depends only on the
// inputs and h.
func Train(ctx context.Context, X mat.Matrix, y []int, h Hyperparameters) (*tree.DecisionTreeClassifier, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := h.Validate(); err != nil {
		return nil, err
	}
	rows, _ := X.Dims()
	if rows != len(y) {
		return nil, scigoErrors.NewDimensionError("Train", rows, len(y), 0)
	}

	labels := mat.NewVecDense(len(y), nil)
	for i, l := range y {
		labels.SetVec(i, float64(l))
	}

	logger := log.GetLoggerWithName("trainer")
	start := time.Now()
	model := tree.NewDecisionTreeClassifier(h.Options()...)
	if err := model.Fit(X, labels); err != nil {
		return nil, scigoErrors.Wrap(err, "train decision tree")
	}
	logger.Info("Model training completed",
		log.PhaseKey, log.PhaseTraining,
		log.ModelNameKey, "DecisionTreeClassifier",
		log.HyperParamsKey, model.String(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return model, nil
}
