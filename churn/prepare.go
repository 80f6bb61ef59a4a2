// Package churn implements the churn prediction pipeline: preparing the
// dataset, training and evaluating the decision tree, and predicting from a
// saved bundle of fitted artifacts.
package churn

import (
	"context"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/churn/dataset"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"
	"github.com/ezoic/churn/preprocessing"
	"github.com/ezoic/churn/sklearn/imbalance"
	"github.com/ezoic/churn/sklearn/model_selection"
)

// Encoding scopes select which rows the encoder, scaler and reducer are fit on.
const (
	ScopeFull  = "full"
	ScopeTrain = "train"
)

// PrepareConfig controls data preparation.
type PrepareConfig struct {
	DataPath          string
	TestSize          float64
	SplitSeed         int64
	VarianceThreshold float64
	EncodingScope     string
	SMOTENeighbors    int
	ENNNeighbors      int
	ResampleSeed      int64
	// StateFeature keeps the frequency-encoded State column as a model
	// feature. Prediction requests must then carry a state.
	StateFeature bool
}

// DefaultPrepareConfig returns the reference settings: 20% stratified
// holdout with seed 42, 95% retained variance, SMOTEENN with seed 100.
func DefaultPrepareConfig() PrepareConfig {
	return PrepareConfig{
		DataPath:          "merged_churn1.csv",
		TestSize:          0.2,
		SplitSeed:         42,
		VarianceThreshold: 0.95,
		EncodingScope:     ScopeFull,
		SMOTENeighbors:    5,
		ENNNeighbors:      3,
		ResampleSeed:      100,
	}
}

// Validate checks value ranges.
func (c PrepareConfig) Validate() error {
	switch {
	case c.TestSize <= 0 || c.TestSize >= 1:
		return scigoErrors.NewValidationError("test_size", "must be in (0, 1)", c.TestSize)
	case c.VarianceThreshold <= 0 || c.VarianceThreshold > 1:
		return scigoErrors.NewValidationError("variance_threshold", "must be in (0, 1]", c.VarianceThreshold)
	case c.EncodingScope != ScopeFull && c.EncodingScope != ScopeTrain:
		return scigoErrors.NewValidationError("encoding_scope", "must be full or train", c.EncodingScope)
	case c.SMOTENeighbors < 1:
		return scigoErrors.NewValidationError("smote_neighbors", "must be positive", c.SMOTENeighbors)
	case c.ENNNeighbors < 1:
		return scigoErrors.NewValidationError("enn_neighbors", "must be positive", c.ENNNeighbors)
	}
	return nil
}

// Schema returns the columns the encoder, scaler and reducer are fit on:
// the churn schema, without State unless StateFeature is set.
func (c PrepareConfig) Schema() dataset.Schema {
	if c.StateFeature {
		return dataset.ChurnSchema
	}
	return dataset.ChurnSchema.Without(dataset.Frequency)
}

// Prepared is the output of preparation. XTrain and YTrain are resampled;
// XTest and YTest are never touched by the resampler.
type Prepared struct {
	XTrain *mat.Dense
	YTrain []int
	XTest  *mat.Dense
	YTest  []int

	Encoder *Encoder
	Scaler  *preprocessing.StandardScaler
	Reducer *preprocessing.PCA

	// TrainRows is the training split size before resampling.
	TrainRows int
	Profile   dataset.Profile
	Scope     string
}

// Preparer runs data preparation.
type Preparer struct {
	cfg    PrepareConfig
	schema dataset.Schema
	logger log.Logger
}

// NewPreparer returns a Preparer for cfg.Schema().
func NewPreparer(cfg PrepareConfig) *Preparer {
	return &Preparer{cfg: cfg, schema: cfg.Schema(), logger: log.GetLoggerWithName("preparer")}
}

// Prepare loads cfg.DataPath and prepares it.
func (p *Preparer) Prepare(ctx context.Context) (*Prepared, error) {
	t, err := dataset.Load(p.cfg.DataPath)
	if err != nil {
		return nil, err
	}
	return p.PrepareTable(ctx, t)
}

// PrepareTable runs, in order: profile, stratified split of the labels,
// encode, scale, reduce, gather the split rows and resample the training
// rows. The split depends only on labels and seed, so computing it first
// leaves encoded features identical to splitting afterwards.
func (p *Preparer) PrepareTable(ctx context.Context, t *dataset.Table) (*Prepared, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	extra, err := t.Validate(p.schema)
	if err != nil {
		return nil, err
	}
	if len(extra) > 0 {
		p.logger.Warn("Ignoring columns outside the schema", "columns", extra)
	}

	profile := t.Profile()
	p.logger.Info("Dataset profiled",
		log.PhaseKey, log.PhasePreprocessing,
		log.SamplesKey, profile.Rows,
		"missing_values", profile.TotalMissing(),
		"missing_per_column", profile.MissingPerColumn,
		"duplicate_rows", profile.DuplicateRows,
	)

	labels, err := t.Labels(p.schema)
	if err != nil {
		return nil, err
	}
	split, err := model_selection.NewTrainTestSplitter(p.cfg.TestSize, p.cfg.SplitSeed).Indices(labels)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var fitRows []int
	if p.cfg.EncodingScope == ScopeTrain {
		fitRows = split.TrainIndices
	}

	encoder := NewEncoder(p.schema)
	if err := encoder.Fit(t, fitRows); err != nil {
		return nil, err
	}
	X, err := encoder.EncodeTable(t, nil)
	if err != nil {
		return nil, err
	}

	fitX := X
	if fitRows != nil {
		fitX, _ = model_selection.Take(X, labels, fitRows)
	}
	scaler := preprocessing.NewStandardScalerDefault()
	if err := scaler.Fit(fitX); err != nil {
		return nil, scigoErrors.Wrap(err, "fit scaler")
	}
	Xs, err := scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	fitXs := Xs
	if fitRows != nil {
		fitXs, _ = model_selection.Take(Xs, labels, fitRows)
	}
	reducer := preprocessing.NewPCA(p.cfg.VarianceThreshold)
	if err := reducer.Fit(fitXs); err != nil {
		return nil, scigoErrors.Wrap(err, "fit reducer")
	}
	Xr, err := reducer.Transform(Xs)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	XTrain, yTrain := model_selection.Take(Xr, labels, split.TrainIndices)
	XTest, yTest := model_selection.Take(Xr, labels, split.TestIndices)

	resampler := imbalance.NewSMOTEENN(p.cfg.SMOTENeighbors, p.cfg.ENNNeighbors, p.cfg.ResampleSeed)
	XRes, yRes, err := resampler.FitResample(XTrain, yTrain)
	if err != nil {
		return nil, scigoErrors.Wrap(err, "resample training split")
	}

	p.logger.Info("Data preparation completed",
		log.PhaseKey, log.PhasePreprocessing,
		log.ComponentsKey, reducer.NComponentsFitted,
		log.ExplainedVarianceKey, reducer.CumulativeVariance(),
		log.ResampleBeforeKey, len(yTrain),
		log.ResampleAfterKey, len(yRes),
		"test_rows", len(yTest),
		"encoding_scope", p.cfg.EncodingScope,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)

	return &Prepared{
		XTrain:    XRes,
		YTrain:    yRes,
		XTest:     XTest,
		YTest:     yTest,
		Encoder:   encoder,
		Scaler:    scaler,
		Reducer:   reducer,
		TrainRows: len(yTrain),
		Profile:   profile,
		Scope:     p.cfg.EncodingScope,
	}, nil
}
