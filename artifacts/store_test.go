package artifacts_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezoic/churn/artifacts"
	"github.com/ezoic/churn/churn"
	"github.com/ezoic/churn/dataset"
	"github.com/ezoic/churn/dataset/datasettest"
)

func trained(t *testing.T) (*churn.Result, *dataset.Table) {
	t.Helper()
	tb, err := dataset.Read(bytes.NewReader(datasettest.Generate(200, 21)))
	require.NoError(t, err)
	p, err := churn.NewPreparer(churn.DefaultPrepareConfig()).PrepareTable(context.Background(), tb)
	require.NoError(t, err)
	res, err := churn.Fit(context.Background(), p, churn.DefaultHyperparameters())
	require.NoError(t, err)
	return res, tb
}

func TestSaveLoadRoundTrip(t *testing.T) {
	res, tb := trained(t)
	store, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)

	id, err := store.Save(res.Bundle)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	current, err := store.CurrentID()
	require.NoError(t, err)
	assert.Equal(t, id, current)

	loaded, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, id, loaded.Metadata.ID)
	assert.Equal(t, res.Bundle.Metadata.Metrics, loaded.Metadata.Metrics)

	want, err := res.Bundle.PredictTable(tb, nil)
	require.NoError(t, err)
	got, err := loaded.PredictTable(tb, nil)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadWithoutCurrentIsNotFound(t *testing.T) {
	store, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Load()
	assert.True(t, errors.Is(err, artifacts.ErrNotFound))
}

func TestLoadMissingScalerIsNotFound(t *testing.T) {
	res, _ := trained(t)
	dir := t.TempDir()
	store, err := artifacts.NewStore(dir)
	require.NoError(t, err)
	id, err := store.Save(res.Bundle)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "bundles", id, artifacts.ScalerFile)))

	b, err := store.Load()
	assert.Nil(t, b)
	assert.True(t, errors.Is(err, artifacts.ErrNotFound), "got %v", err)
}

func TestSaveRejectsUnfittedBundle(t *testing.T) {
	store, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)
	_, err = store.Save(&churn.Bundle{})
	assert.Error(t, err)

	_, err = store.CurrentID()
	assert.True(t, errors.Is(err, artifacts.ErrNotFound))
}

func TestSaveSwapsCurrentAndPrune(t *testing.T) {
	res, _ := trained(t)
	store, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		res.Bundle.Metadata.ID = ""
		res.Bundle.Metadata.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		id, err := store.Save(res.Bundle)
		require.NoError(t, err)
		ids = append(ids, id)

		current, err := store.CurrentID()
		require.NoError(t, err)
		assert.Equal(t, id, current)
	}

	listed, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, ids, listed)

	removed, err := store.Prune(1)
	require.NoError(t, err)
	assert.Equal(t, ids[:2], removed)

	listed, err = store.List()
	require.NoError(t, err)
	assert.Equal(t, ids[2:], listed)

	_, err = store.Load()
	assert.NoError(t, err)

	_, err = store.Prune(0)
	assert.Error(t, err)
}
