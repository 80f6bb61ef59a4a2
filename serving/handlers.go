package serving

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ezoic/churn/artifacts"
	"github.com/ezoic/churn/churn"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"
	"github.com/ezoic/churn/tracking"
)

// Banner is the body of GET /.
const Banner = "Churn Prediction API - Use POST /predict with customer data"

// PredictResponse is the body of a successful POST /predict.
type PredictResponse struct {
	Prediction int `json:"prediction"`
}

// RetrainResponse is the body of a successful POST /retrain.
type RetrainResponse struct {
	Message     string                  `json:"message"`
	BundleID    string                  `json:"bundle_id"`
	Performance *churn.EvaluationReport `json:"performance"`
}

// Handlers serves predictions from a Holder and retrains into a Store.
type Handlers struct {
	holder  *Holder
	store   *artifacts.Store
	prepare churn.PrepareConfig
	schemas *bodySchemas
	logger  log.Logger

	tracker    *tracking.Store
	experiment string
	keep       int

	// retraining is held for the duration of a retrain; concurrent
	// requests are refused rather than queued.
	retraining sync.Mutex
}

// Option configures Handlers.
type Option func(*Handlers)

// WithTracker records every retrain as a run of experiment.
func WithTracker(t *tracking.Store, experiment string) Option {
	return func(h *Handlers) {
		h.tracker = t
		h.experiment = experiment
	}
}

// WithKeep prunes the store down to keep bundles after each retrain.
// 0 keeps everything.
func WithKeep(keep int) Option {
	return func(h *Handlers) { h.keep = keep }
}

// NewHandlers returns handlers serving holder. Retraining reads data as
// described by prepare and saves bundles into store.
func NewHandlers(holder *Holder, store *artifacts.Store, prepare churn.PrepareConfig, opts ...Option) (*Handlers, error) {
	schemas, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	h := &Handlers{
		holder:  holder,
		store:   store,
		prepare: prepare,
		schemas: schemas,
		logger:  log.GetLoggerWithName("serving"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Root answers GET /.
func (h *Handlers) Root(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": Banner})
}

// Health reports whether a bundle is loaded.
func (h *Handlers) Health(c echo.Context) error {
	id := h.holder.ID()
	if id == "" {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "no model loaded"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok", "bundle_id": id})
}

// Predict classifies one customer record.
func (h *Handlers) Predict(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read request body")
	}
	var record churn.Record
	if err := decode(h.schemas.predict, body, &record); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	b := h.holder.Load()
	if b == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, artifacts.ErrNotFound.Error())
	}
	if err := c.Request().Context().Err(); err != nil {
		return err
	}
	labels, err := b.Predict([]churn.Record{record})
	if err != nil {
		var (
			unmapped *scigoErrors.UnmappedCategoryError
			missing  *scigoErrors.MissingValueError
		)
		if scigoErrors.As(err, &unmapped) || scigoErrors.As(err, &missing) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		h.logger.Error("Prediction failed", "error", err, log.BundleIDKey, b.Metadata.ID)
		return echo.NewHTTPError(http.StatusInternalServerError, "prediction failed")
	}
	return c.JSON(http.StatusOK, PredictResponse{Prediction: labels[0]})
}

// Retrain trains a new bundle from the configured data with the posted
// hyperparameters, saves it and swaps it in. Omitted hyperparameters take
// churn.RetrainDefaults.
func (h *Handlers) Retrain(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read request body")
	}
	params := churn.RetrainDefaults()
	if len(body) > 0 {
		if err := decode(h.schemas.retrain, body, &params); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}

	if !h.retraining.TryLock() {
		return echo.NewHTTPError(http.StatusConflict, "a retrain is already running")
	}
	defer h.retraining.Unlock()

	start := time.Now()
	ctx := c.Request().Context()
	res, id, err := h.retrain(ctx, params)
	if err != nil {
		h.logger.Error("Retrain failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	h.logger.Info("Model retrained",
		log.BundleIDKey, id,
		log.AccuracyKey, res.Report.Accuracy,
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
	return c.JSON(http.StatusOK, RetrainResponse{
		Message:     "Model retrained successfully",
		BundleID:    id,
		Performance: res.Report,
	})
}

func (h *Handlers) retrain(ctx context.Context, params churn.Hyperparameters) (*churn.Result, string, error) {
	res, err := churn.Run(ctx, churn.NewPreparer(h.prepare), params)
	if err != nil {
		return nil, "", err
	}
	id, err := h.store.Save(res.Bundle)
	if err != nil {
		return nil, "", err
	}
	h.holder.Store(res.Bundle)

	if h.keep > 0 {
		if removed, err := h.store.Prune(h.keep); err != nil {
			h.logger.Warn("Pruning bundles failed", "error", err)
		} else if len(removed) > 0 {
			h.logger.Debug("Pruned bundles", "removed", removed)
		}
	}
	if h.tracker != nil {
		if err := h.track(ctx, params, res, id); err != nil {
			h.logger.Warn("Tracking retrain failed", "error", err, log.BundleIDKey, id)
		}
	}
	return res, id, nil
}

func (h *Handlers) track(ctx context.Context, params churn.Hyperparameters, res *churn.Result, id string) error {
	expID, err := h.tracker.Experiment(ctx, h.experiment)
	if err != nil {
		return err
	}
	run, err := h.tracker.StartRun(ctx, expID)
	if err != nil {
		return err
	}
	steps := []func() error{
		func() error { return run.SetTag(ctx, "trigger", "retrain") },
		func() error { return run.SetTag(ctx, "bundle_id", id) },
		func() error { return run.LogParams(ctx, params.Params()) },
		func() error { return run.LogMetrics(ctx, res.Report.Flatten()) },
		func() error { return run.LogArtifact(ctx, h.store.BundlePath(id), "bundle") },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			_ = run.End(ctx, tracking.StatusFailed)
			return err
		}
	}
	return run.End(ctx, tracking.StatusFinished)
}
