package churn

import (
	"context"

	"github.com/ezoic/churn/sklearn/tree"
)

// Result is the outcome of a full prepare → train → evaluate run.
type Result struct {
	Prepared *Prepared
	Model    *tree.DecisionTreeClassifier
	Report   *EvaluationReport
	Bundle   *Bundle
}

// Run prepares the data, trains with h, evaluates on the holdout and
// assembles the bundle. Nothing is written to disk.
func Run(ctx context.Context, p *Preparer, h Hyperparameters) (*Result, error) {
	prepared, err := p.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	return Fit(ctx, prepared, h)
}

// Fit trains and evaluates on an existing preparation.
func Fit(ctx context.Context, prepared *Prepared, h Hyperparameters) (*Result, error) {
	model, err := Train(ctx, prepared.XTrain, prepared.YTrain, h)
	if err != nil {
		return nil, err
	}
	report, err := Evaluate(model, prepared.XTest, prepared.YTest)
	if err != nil {
		return nil, err
	}
	return &Result{
		Prepared: prepared,
		Model:    model,
		Report:   report,
		Bundle:   NewBundle(prepared, model, h, report),
	}, nil
}
