package config_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezoic/churn/churn"
	"github.com/ezoic/churn/config"
	"github.com/ezoic/churn/dataset"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, churn.DefaultPrepareConfig(), cfg.Prepare())
	assert.Equal(t, churn.DefaultHyperparameters(), cfg.Model)
	assert.NotContains(t, cfg.Prepare().Schema().FeatureNames(), "State")
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := config.Load("testdata/churn.yaml")
	require.NoError(t, err)

	prep := cfg.Prepare()
	assert.Equal(t, "data/merged_churn1.csv", prep.DataPath)
	assert.Equal(t, 0.25, prep.TestSize)
	assert.Equal(t, int64(7), prep.SplitSeed)
	assert.Equal(t, churn.ScopeTrain, prep.EncodingScope)
	assert.Equal(t, 0.9, prep.VarianceThreshold)
	assert.True(t, prep.StateFeature)
	assert.Equal(t, dataset.ChurnSchema, prep.Schema())
	// untouched sections keep defaults
	assert.Equal(t, 5, prep.SMOTENeighbors)
	assert.Equal(t, int64(100), prep.ResampleSeed)

	assert.Equal(t, "entropy", cfg.Model.Criterion)
	assert.Equal(t, "random", cfg.Model.Splitter)
	assert.Nil(t, cfg.Model.MaxDepth)
	assert.Equal(t, 2, cfg.Model.MinSamplesLeaf)

	assert.Equal(t, ":9000", cfg.Serving.Addr)
	assert.Equal(t, 5*time.Second, cfg.Serving.RequestTimeout)
	assert.Equal(t, 15*time.Second, cfg.Serving.ShutdownTimeout)
	assert.False(t, cfg.Tracking.Enabled)
}

func TestUnknownKeysAreRejected(t *testing.T) {
	_, err := config.Load("testdata/unknown_key.yaml")
	assert.Error(t, err)
}

func TestValidationErrors(t *testing.T) {
	tests := map[string]string{
		"scope":     "preprocessing:\n  encoding_scope: test\n",
		"test size": "data:\n  test_size: 1.5\n",
		"criterion": "model:\n  criterion: mse\n",
		"log level": "logging:\n  level: loud\n",
		"keep":      "artifacts:\n  keep: -1\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := config.Unmarshal([]byte(doc))
			require.Error(t, err)
		})
	}

	_, err := config.Unmarshal([]byte("preprocessing:\n  encoding_scope: test\n"))
	var v *scigoErrors.ValidationError
	assert.True(t, errors.As(err, &v))
}

func TestEmptyDocumentIsDefault(t *testing.T) {
	cfg, err := config.Unmarshal(nil)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Serving, cfg.Serving)
}

func TestMissingFile(t *testing.T) {
	_, err := config.Load("testdata/absent.yaml")
	assert.Error(t, err)
}
