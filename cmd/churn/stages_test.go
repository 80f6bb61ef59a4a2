package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezoic/churn/artifacts"
	"github.com/ezoic/churn/config"
	"github.com/ezoic/churn/dataset/datasettest"
	"github.com/ezoic/churn/tracking"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	c := config.Default()
	c.Data.Path = datasettest.WriteCSV(t, dir, 400, 11)
	c.Workdir = filepath.Join(dir, "work")
	c.Artifacts.Dir = filepath.Join(dir, "artifacts")
	c.Tracking.DSN = filepath.Join(dir, "mlruns", "tracking.db")
	return c
}

func TestStagesAcrossInvocations(t *testing.T) {
	c := testConfig(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runStages(ctx, c, stages{prepare: true, train: true}, &out))
	assert.Contains(t, out.String(), "Data prepared.")
	assert.Contains(t, out.String(), "Model trained")
	for _, f := range []string{preparedFile, modelFile, runIDFile, varianceFile} {
		assert.FileExists(t, filepath.Join(c.Workdir, f))
	}
	runID, err := os.ReadFile(filepath.Join(c.Workdir, runIDFile))
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, runStages(ctx, c, stages{evaluate: true, save: true}, &out))
	assert.Contains(t, out.String(), "Accuracy:")
	assert.Contains(t, out.String(), "weighted avg")
	assert.NotContains(t, out.String(), "training first")

	store, err := artifacts.NewStore(c.Artifacts.Dir)
	require.NoError(t, err)
	b, err := store.Load()
	require.NoError(t, err)
	assert.Contains(t, b.Metadata.Metrics, "accuracy")

	tracker, err := tracking.Open(c.Tracking.DSN)
	require.NoError(t, err)
	defer tracker.Close()
	expID, err := tracker.Experiment(ctx, c.Tracking.Experiment)
	require.NoError(t, err)
	runs, err := tracker.Runs(ctx, expID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	assert.Equal(t, strings.TrimSpace(string(runID)), run.ID)
	assert.Equal(t, tracking.StatusFinished, run.Status)
	assert.Equal(t, "DecisionTreeClassifier", run.Params["model_type"])
	assert.Equal(t, "6", run.Params["max_depth"])
	assert.Equal(t, b.Metadata.ID, run.Tags["bundle_id"])
	assert.Len(t, run.Artifacts, 3)

	metrics, err := tracker.Metrics(ctx, run.ID)
	require.NoError(t, err)
	assert.InDelta(t, b.Metadata.Metrics["accuracy"], metrics["accuracy"], 1e-12)
}

func TestLaterStageProducesMissingIntermediates(t *testing.T) {
	c := testConfig(t)
	c.Tracking.Enabled = false

	var out bytes.Buffer
	require.NoError(t, runStages(context.Background(), c, stages{evaluate: true}, &out))
	assert.Contains(t, out.String(), "Model not trained yet")
	assert.Contains(t, out.String(), "Data not prepared yet")
	assert.FileExists(t, filepath.Join(c.Workdir, preparedFile))
	assert.FileExists(t, filepath.Join(c.Workdir, modelFile))
	assert.NoFileExists(t, filepath.Join(c.Workdir, runIDFile))
}

func TestEvaluateRetrainsWhenPreparedDataIsMissing(t *testing.T) {
	c := testConfig(t)
	c.Tracking.Enabled = false
	ctx := context.Background()

	require.NoError(t, runStages(ctx, c, stages{prepare: true, train: true}, &bytes.Buffer{}))
	require.NoError(t, os.Remove(filepath.Join(c.Workdir, preparedFile)))

	var out bytes.Buffer
	require.NoError(t, runStages(ctx, c, stages{evaluate: true}, &out))
	assert.Contains(t, out.String(), "Data not prepared yet")
	assert.Contains(t, out.String(), "Model not trained yet")
	assert.Contains(t, out.String(), "Accuracy:")
	assert.FileExists(t, filepath.Join(c.Workdir, preparedFile))
	assert.FileExists(t, filepath.Join(c.Workdir, modelFile))

	out.Reset()
	require.NoError(t, runStages(ctx, c, stages{save: true}, &out))
	assert.NotContains(t, out.String(), "not prepared yet")
	assert.NotContains(t, out.String(), "not trained yet")
	assert.Contains(t, out.String(), "Bundle ")
}

func TestFailedStageMarksRunFailed(t *testing.T) {
	c := testConfig(t)
	c.Data.Path = filepath.Join(t.TempDir(), "missing.csv")

	err := runStages(context.Background(), c, stages{train: true}, &bytes.Buffer{})
	require.Error(t, err)

	tracker, err := tracking.Open(c.Tracking.DSN)
	require.NoError(t, err)
	defer tracker.Close()
	expID, err := tracker.Experiment(context.Background(), c.Tracking.Experiment)
	require.NoError(t, err)
	runs, err := tracker.Runs(context.Background(), expID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, tracking.StatusFailed, runs[0].Status)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "churn (devel)\n", out.String())
}
