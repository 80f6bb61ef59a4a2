package serving

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezoic/churn/artifacts"
	"github.com/ezoic/churn/churn"
	"github.com/ezoic/churn/config"
)

func TestRetrainRefusesConcurrentRuns(t *testing.T) {
	store, err := artifacts.NewStore(t.TempDir())
	require.NoError(t, err)
	h, err := NewHandlers(NewHolder(nil), store, churn.DefaultPrepareConfig())
	require.NoError(t, err)
	srv := NewServer(h, config.Default().Serving).Handler()

	h.retraining.Lock()
	defer h.retraining.Unlock()

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/retrain", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already running")
}

func TestSchemasCompile(t *testing.T) {
	s, err := compileSchemas()
	require.NoError(t, err)

	var r churn.Record
	require.NoError(t, decode(s.predict, []byte(`{
		"account_length": 1, "international_plan": 1, "voice_mail_plan": 0,
		"number_vmail_messages": 0, "total_day_minutes": 1, "total_day_calls": 1,
		"total_day_charge": 1, "total_eve_minutes": 1, "total_eve_calls": 1,
		"total_night_minutes": 1, "total_night_calls": 1, "total_intl_minutes": 1,
		"total_intl_calls": 1, "customer_service_calls": 2}`), &r))
	assert.Equal(t, 1.0, r.InternationalPlan)
	assert.Equal(t, 2.0, r.CustomerServiceCalls)
	assert.Nil(t, r.State)

	params := churn.RetrainDefaults()
	require.NoError(t, decode(s.retrain, []byte(`{"splitter": "random", "max_depth": null}`), &params))
	assert.Equal(t, "random", params.Splitter)
	assert.Nil(t, params.MaxDepth)
	assert.Equal(t, churn.RetrainDefaults().MinSamplesLeaf, params.MinSamplesLeaf)
}
