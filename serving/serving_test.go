package serving_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezoic/churn/artifacts"
	"github.com/ezoic/churn/churn"
	"github.com/ezoic/churn/config"
	"github.com/ezoic/churn/dataset/datasettest"
	"github.com/ezoic/churn/serving"
	"github.com/ezoic/churn/tracking"
)

type fixture struct {
	store   *artifacts.Store
	prepare churn.PrepareConfig
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	prepare := churn.DefaultPrepareConfig()
	prepare.DataPath = datasettest.WriteCSV(t, dir, 400, 7)
	store, err := artifacts.NewStore(filepath.Join(dir, "artifacts"))
	require.NoError(t, err)
	return fixture{store: store, prepare: prepare}
}

func (f fixture) train(t *testing.T) *churn.Bundle {
	t.Helper()
	res, err := churn.Run(context.Background(), churn.NewPreparer(f.prepare), churn.DefaultHyperparameters())
	require.NoError(t, err)
	_, err = f.store.Save(res.Bundle)
	require.NoError(t, err)
	return res.Bundle
}

func (f fixture) server(t *testing.T, holder *serving.Holder, opts ...serving.Option) http.Handler {
	t.Helper()
	h, err := serving.NewHandlers(holder, f.store, f.prepare, opts...)
	require.NoError(t, err)
	cfg := config.Default().Serving
	return serving.NewServer(h, cfg).Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func customer() map[string]any {
	return map[string]any{
		"state":                  "OH",
		"account_length":         120,
		"international_plan":     0,
		"voice_mail_plan":        1,
		"number_vmail_messages":  25,
		"total_day_minutes":      210.5,
		"total_day_calls":        100,
		"total_day_charge":       35.8,
		"total_eve_minutes":      190.1,
		"total_eve_calls":        95,
		"total_night_minutes":    230.4,
		"total_night_calls":      110,
		"total_intl_minutes":     9.7,
		"total_intl_calls":       4,
		"customer_service_calls": 5,
	}
}

func encode(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestRoot(t *testing.T) {
	f := newFixture(t)
	code, body := do(t, f.server(t, serving.NewHolder(nil)), http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, serving.Banner, body["message"])
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	holder := serving.NewHolder(nil)
	srv := f.server(t, holder)

	code, _ := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	b := f.train(t)
	holder.Store(b)
	code, body := do(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, b.Metadata.ID, body["bundle_id"])
}

func TestPredict(t *testing.T) {
	f := newFixture(t)
	b := f.train(t)
	srv := f.server(t, serving.NewHolder(b))

	var rec churn.Record
	body := encode(t, customer())
	require.NoError(t, json.Unmarshal([]byte(body), &rec))
	want, err := b.Predict([]churn.Record{rec})
	require.NoError(t, err)

	for _, path := range []string{"/predict", "/predict/"} {
		code, out := do(t, srv, http.MethodPost, path, body)
		require.Equal(t, http.StatusOK, code, path)
		assert.Equal(t, float64(want[0]), out["prediction"], path)
	}

	assert.NotContains(t, b.Metadata.FeatureNames, "State")
	c := customer()
	delete(c, "state")
	code, out := do(t, srv, http.MethodPost, "/predict", encode(t, c))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(want[0]), out["prediction"], "state does not change the prediction")
}

func TestPredictRequiresStateWhenBundleUsesIt(t *testing.T) {
	f := newFixture(t)
	f.prepare.StateFeature = true
	b := f.train(t)
	require.Contains(t, b.Metadata.FeatureNames, "State")
	srv := f.server(t, serving.NewHolder(b))

	code, out := do(t, srv, http.MethodPost, "/predict", encode(t, customer()))
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, []any{0.0, 1.0}, out["prediction"])

	c := customer()
	delete(c, "state")
	code, out = do(t, srv, http.MethodPost, "/predict", encode(t, c))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, out["error"], "State")
}

func TestPredictRejectsInvalidRecords(t *testing.T) {
	f := newFixture(t)
	srv := f.server(t, serving.NewHolder(f.train(t)))

	missing := customer()
	delete(missing, "total_day_minutes")
	badPlan := customer()
	badPlan["international_plan"] = 2
	text := customer()
	text["account_length"] = "long"
	extra := customer()
	extra["area_code"] = 415

	cases := map[string]string{
		"missing field": encode(t, missing),
		"plan not 0/1":  encode(t, badPlan),
		"not a number":  encode(t, text),
		"unknown field": encode(t, extra),
		"malformed":     `{"account_length": `,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			code, out := do(t, srv, http.MethodPost, "/predict", body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestPredictWithoutBundle(t *testing.T) {
	f := newFixture(t)
	code, out := do(t, f.server(t, serving.NewHolder(nil)), http.MethodPost, "/predict", encode(t, customer()))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.NotEmpty(t, out["error"])
}

func TestRetrain(t *testing.T) {
	f := newFixture(t)
	tracker, err := tracking.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { tracker.Close() })

	holder := serving.NewHolder(nil)
	srv := f.server(t, holder, serving.WithTracker(tracker, "retrain-test"), serving.WithKeep(1))

	code, out := do(t, srv, http.MethodPost, "/retrain", `{"max_depth": 4, "min_samples_leaf": 3}`)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "Model retrained successfully", out["message"])

	id, _ := out["bundle_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, id, holder.ID())
	current, err := f.store.CurrentID()
	require.NoError(t, err)
	assert.Equal(t, id, current)

	perf, ok := out["performance"].(map[string]any)
	require.True(t, ok)
	assert.InDelta(t, 0.5, perf["accuracy"], 0.5)

	depth := holder.Load().Metadata.Hyperparameters.MaxDepth
	require.NotNil(t, depth)
	assert.Equal(t, 4, *depth)
	assert.Equal(t, 3, holder.Load().Metadata.Hyperparameters.MinSamplesLeaf)
	assert.Equal(t, churn.RetrainDefaults().RandomState, holder.Load().Metadata.Hyperparameters.RandomState)

	expID, err := tracker.Experiment(context.Background(), "retrain-test")
	require.NoError(t, err)
	runs, err := tracker.Runs(context.Background(), expID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, tracking.StatusFinished, runs[0].Status)
	assert.Equal(t, id, runs[0].Tags["bundle_id"])
	assert.Equal(t, "4", runs[0].Params["max_depth"])
}

func TestRetrainWithoutBodyUsesDefaults(t *testing.T) {
	f := newFixture(t)
	holder := serving.NewHolder(nil)
	srv := f.server(t, holder)

	code, _ := do(t, srv, http.MethodPost, "/retrain/", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, churn.RetrainDefaults().MinSamplesLeaf, holder.Load().Metadata.Hyperparameters.MinSamplesLeaf)
	assert.Nil(t, holder.Load().Metadata.Hyperparameters.MaxDepth)
}

func TestRetrainRejectsBadHyperparameters(t *testing.T) {
	f := newFixture(t)
	srv := f.server(t, serving.NewHolder(nil))

	for _, body := range []string{
		`{"criterion": "variance"}`,
		`{"max_depth": 0}`,
		`{"min_samples_split": 1}`,
		`{"learning_rate": 0.1}`,
	} {
		code, out := do(t, srv, http.MethodPost, "/retrain", body)
		assert.Equal(t, http.StatusBadRequest, code, body)
		assert.NotEmpty(t, out["error"], body)
	}
}

func TestRetrainFailureKeepsServing(t *testing.T) {
	f := newFixture(t)
	b := f.train(t)
	holder := serving.NewHolder(b)
	f.prepare.DataPath = filepath.Join(t.TempDir(), "missing.csv")
	srv := f.server(t, holder)

	code, out := do(t, srv, http.MethodPost, "/retrain", `{}`)
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.NotEmpty(t, out["error"])
	assert.Equal(t, b.Metadata.ID, holder.ID())
}

func TestBundleWatcherReloads(t *testing.T) {
	f := newFixture(t)
	holder := serving.NewHolder(nil)
	w, err := serving.NewBundleWatcher(f.store, holder)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	b := f.train(t)
	assert.Eventually(t, func() bool { return holder.ID() == b.Metadata.ID }, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
