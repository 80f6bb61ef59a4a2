package churn

import (
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/churn/dataset"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/preprocessing"
	"github.com/ezoic/churn/sklearn/pipeline"
	"github.com/ezoic/churn/sklearn/tree"
)

// Metadata describes a bundle. It is stored as meta.json next to the
// artifact files.
type Metadata struct {
	ID                string             `json:"id"`
	CreatedAt         time.Time          `json:"created_at"`
	Hyperparameters   Hyperparameters    `json:"hyperparameters"`
	NComponents       int                `json:"n_components"`
	ExplainedVariance float64            `json:"explained_variance"`
	FeatureNames      []string           `json:"feature_names"`
	EncodingScope     string             `json:"encoding_scope"`
	Metrics           map[string]float64 `json:"metrics,omitempty"`

	// ComponentImportances is the tree's importance of each PCA component.
	ComponentImportances []float64 `json:"component_importances,omitempty"`
}

// Bundle is the set of fitted artifacts needed for inference. Its parts are
// saved together and loaded together.
type Bundle struct {
	Encoder  *Encoder
	Scaler   *preprocessing.StandardScaler
	Reducer  *preprocessing.PCA
	Model    *tree.DecisionTreeClassifier
	Metadata Metadata
}

// NewBundle assembles a bundle from a preparation result and the model
// trained on it. report may be nil.
func NewBundle(p *Prepared, model *tree.DecisionTreeClassifier, h Hyperparameters, report *EvaluationReport) *Bundle {
	b := &Bundle{
		Encoder: p.Encoder,
		Scaler:  p.Scaler,
		Reducer: p.Reducer,
		Model:   model,
		Metadata: Metadata{
			CreatedAt:            time.Now().UTC(),
			Hyperparameters:      h,
			NComponents:          p.Reducer.NComponentsFitted,
			ExplainedVariance:    p.Reducer.CumulativeVariance(),
			FeatureNames:         p.Encoder.Schema.FeatureNames(),
			EncodingScope:        p.Scope,
			ComponentImportances: model.GetFeatureImportances(),
		},
	}
	if report != nil {
		b.Metadata.Metrics = report.Flatten()
	}
	return b
}

// Validate checks that every part is present, fitted and that the widths
// chain: encoder → scaler → reducer → model.
func (b *Bundle) Validate() error {
	switch {
	case b.Encoder == nil || !b.Encoder.IsFitted():
		return scigoErrors.NewNotFittedError("Encoder", "Bundle")
	case b.Scaler == nil || !b.Scaler.IsFitted():
		return scigoErrors.NewNotFittedError("StandardScaler", "Bundle")
	case b.Reducer == nil || !b.Reducer.IsFitted():
		return scigoErrors.NewNotFittedError("PCA", "Bundle")
	case b.Model == nil || !b.Model.IsFitted():
		return scigoErrors.NewNotFittedError("DecisionTreeClassifier", "Bundle")
	}
	if b.Scaler.NFeatures != b.Encoder.NFeatures() {
		return scigoErrors.NewDimensionError("Bundle scaler", b.Encoder.NFeatures(), b.Scaler.NFeatures, 1)
	}
	if b.Reducer.NFeatures != b.Scaler.NFeatures {
		return scigoErrors.NewDimensionError("Bundle reducer", b.Scaler.NFeatures, b.Reducer.NFeatures, 1)
	}
	if b.Model.NFeatures != b.Reducer.NComponentsFitted {
		return scigoErrors.NewDimensionError("Bundle model", b.Reducer.NComponentsFitted, b.Model.NFeatures, 1)
	}
	return nil
}

// Pipeline chains scaler, reducer and model.
func (b *Bundle) Pipeline() (*pipeline.Pipeline, error) {
	return pipeline.FromFitted(
		pipeline.Step{Name: "scaler", Estimator: b.Scaler},
		pipeline.Step{Name: "reducer", Estimator: b.Reducer},
		pipeline.Step{Name: "model", Estimator: b.Model},
	)
}

// PredictMatrix predicts from already encoded rows.
func (b *Bundle) PredictMatrix(X mat.Matrix) ([]int, error) {
	p, err := b.Pipeline()
	if err != nil {
		return nil, err
	}
	pred, err := p.Predict(X)
	if err != nil {
		return nil, err
	}
	n, _ := pred.Dims()
	out := make([]int, n)
	for i := range out {
		out[i] = int(pred.At(i, 0))
	}
	return out, nil
}

// Predict encodes records and returns one class label per record.
func (b *Bundle) Predict(records []Record) ([]int, error) {
	X, err := b.Encoder.EncodeRecords(records)
	if err != nil {
		return nil, err
	}
	return b.PredictMatrix(X)
}

// PredictTable encodes the given rows of t (nil for all) and predicts them.
func (b *Bundle) PredictTable(t *dataset.Table, rows []int) ([]int, error) {
	X, err := b.Encoder.EncodeTable(t, rows)
	if err != nil {
		return nil, err
	}
	return b.PredictMatrix(X)
}
