package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/ezoic/churn/artifacts"
	"github.com/ezoic/churn/churn"
	"github.com/ezoic/churn/config"
	"github.com/ezoic/churn/core/model"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"
	"github.com/ezoic/churn/report"
	"github.com/ezoic/churn/sklearn/tree"
	"github.com/ezoic/churn/tracking"
)

// Files kept in the working directory between invocations.
const (
	preparedFile = "prepared.gob"
	modelFile    = "model.gob"
	runIDFile    = "run.id"
	varianceFile = "variance.png"
)

type stages struct {
	prepare, train, evaluate, save bool
}

func (s stages) any() bool {
	return s.prepare || s.train || s.evaluate || s.save
}

// pipelineRun carries intermediate results between the stages of one
// invocation.
type pipelineRun struct {
	cfg     config.Config
	out     io.Writer
	logger  log.Logger
	tracker *tracking.Store
	run     *tracking.Run

	prepared *churn.Prepared
	model    *tree.DecisionTreeClassifier
	report   *churn.EvaluationReport
}

func runStages(ctx context.Context, cfg config.Config, s stages, out io.Writer) (err error) {
	if err := os.MkdirAll(cfg.Workdir, 0o755); err != nil {
		return scigoErrors.Wrapf(err, "create workdir %s", cfg.Workdir)
	}
	p := &pipelineRun{cfg: cfg, out: out, logger: log.GetLoggerWithName("cli")}

	if cfg.Tracking.Enabled {
		if p.tracker, err = tracking.Open(cfg.Tracking.DSN); err != nil {
			return err
		}
		defer p.tracker.Close()
		if err := p.openRun(ctx, s.train); err != nil {
			return err
		}
		defer func() {
			status := tracking.StatusFinished
			if err != nil {
				status = tracking.StatusFailed
			}
			if endErr := p.run.End(context.WithoutCancel(ctx), status); endErr != nil && err == nil {
				err = endErr
			}
		}()
	}

	steps := []struct {
		on bool
		fn func(context.Context) error
	}{
		{s.prepare, p.doPrepare},
		{s.train, p.doTrain},
		{s.evaluate, p.doEvaluate},
		{s.save, p.doSave},
	}
	for _, step := range steps {
		if !step.on {
			continue
		}
		if err := step.fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (p *pipelineRun) path(name string) string {
	return filepath.Join(p.cfg.Workdir, name)
}

// openRun starts a tracking run when training, and otherwise resumes the
// run that trained the model in the working directory, if any.
func (p *pipelineRun) openRun(ctx context.Context, training bool) error {
	if !training {
		if raw, err := os.ReadFile(p.path(runIDFile)); err == nil {
			if run, err := p.tracker.Run(ctx, strings.TrimSpace(string(raw))); err == nil {
				p.run = run
				return nil
			}
		}
	}
	expID, err := p.tracker.Experiment(ctx, p.cfg.Tracking.Experiment)
	if err != nil {
		return err
	}
	if p.run, err = p.tracker.StartRun(ctx, expID); err != nil {
		return err
	}
	p.logger.Debug("Tracking run started", log.RunIDKey, p.run.ID)
	return os.WriteFile(p.path(runIDFile), []byte(p.run.ID+"\n"), 0o644)
}

func (p *pipelineRun) doPrepare(ctx context.Context) error {
	fmt.Fprintln(p.out, "Preparing data...")
	prepared, err := churn.NewPreparer(p.cfg.Prepare()).Prepare(ctx)
	if err != nil {
		return err
	}
	if err := model.SaveModel(prepared, p.path(preparedFile)); err != nil {
		return err
	}
	p.prepared = prepared
	p.model, p.report = nil, nil
	// a model left from an earlier preparation no longer matches
	if err := os.Remove(p.path(modelFile)); err != nil && !os.IsNotExist(err) {
		return scigoErrors.Wrap(err, "remove stale model")
	}

	printProfile(p.out, prepared)

	plot := p.path(varianceFile)
	if err := report.SaveVarianceCurve(prepared.Reducer, plot); err != nil {
		return err
	}
	if p.run != nil {
		if err := p.run.LogArtifact(ctx, plot, "plot"); err != nil {
			return err
		}
	}
	fmt.Fprintln(p.out, "Data prepared.")
	return nil
}

func (p *pipelineRun) ensurePrepared(ctx context.Context) error {
	if p.prepared != nil {
		return nil
	}
	var prepared churn.Prepared
	err := model.LoadModel(&prepared, p.path(preparedFile))
	if err == nil {
		p.prepared = &prepared
		return nil
	}
	if !scigoErrors.Is(err, os.ErrNotExist) {
		return err
	}
	fmt.Fprintln(p.out, "Data not prepared yet, preparing first.")
	return p.doPrepare(ctx)
}

func (p *pipelineRun) doTrain(ctx context.Context) error {
	if err := p.ensurePrepared(ctx); err != nil {
		return err
	}
	fmt.Fprintln(p.out, "Training model...")
	h := p.cfg.Model
	m, err := churn.Train(ctx, p.prepared.XTrain, p.prepared.YTrain, h)
	if err != nil {
		return err
	}
	if err := model.SaveModel(m, p.path(modelFile)); err != nil {
		return err
	}
	p.model, p.report = m, nil
	fmt.Fprintf(p.out, "Model trained: depth %d, %d leaves.\n", m.GetDepth(), m.GetNLeaves())

	if p.run != nil {
		params := h.Params()
		params["model_type"] = "DecisionTreeClassifier"
		if err := p.run.LogParams(ctx, params); err != nil {
			return err
		}
		if err := p.run.LogArtifact(ctx, p.path(modelFile), "model"); err != nil {
			return err
		}
	}
	return nil
}

// ensureModel loads or trains the model for the prepared data. Data is
// resolved first: preparing from scratch removes model.gob, so a model left
// from older data is retrained instead of loaded.
func (p *pipelineRun) ensureModel(ctx context.Context) error {
	if p.model != nil {
		return nil
	}
	if err := p.ensurePrepared(ctx); err != nil {
		return err
	}
	var m tree.DecisionTreeClassifier
	err := model.LoadModel(&m, p.path(modelFile))
	if err == nil {
		p.model = &m
		return nil
	}
	if !scigoErrors.Is(err, os.ErrNotExist) {
		return err
	}
	fmt.Fprintln(p.out, "Model not trained yet, training first.")
	return p.doTrain(ctx)
}

func (p *pipelineRun) doEvaluate(ctx context.Context) error {
	if err := p.ensureModel(ctx); err != nil {
		return err
	}
	fmt.Fprintln(p.out, "Evaluating model...")
	rep, err := churn.Evaluate(p.model, p.prepared.XTest, p.prepared.YTest)
	if err != nil {
		return err
	}
	p.report = rep
	printReport(p.out, rep)

	if p.run != nil {
		if err := p.run.LogMetrics(ctx, rep.Flatten()); err != nil {
			return err
		}
	}
	return nil
}

func (p *pipelineRun) doSave(ctx context.Context) error {
	if err := p.ensureModel(ctx); err != nil {
		return err
	}
	if p.report == nil {
		rep, err := churn.Evaluate(p.model, p.prepared.XTest, p.prepared.YTest)
		if err != nil {
			return err
		}
		p.report = rep
	}
	store, err := artifacts.NewStore(p.cfg.Artifacts.Dir)
	if err != nil {
		return err
	}
	bundle := churn.NewBundle(p.prepared, p.model, p.cfg.Model, p.report)
	id, err := store.Save(bundle)
	if err != nil {
		return err
	}
	fmt.Fprintf(p.out, "Bundle %s saved to %s.\n", id, store.BundlePath(id))

	if p.cfg.Artifacts.Keep > 0 {
		if _, err := store.Prune(p.cfg.Artifacts.Keep); err != nil {
			return err
		}
	}
	if p.run != nil {
		if err := p.run.SetTag(ctx, "bundle_id", id); err != nil {
			return err
		}
		if err := p.run.LogArtifact(ctx, store.BundlePath(id), "bundle"); err != nil {
			return err
		}
	}
	return nil
}

func printProfile(w io.Writer, p *churn.Prepared) {
	fmt.Fprintf(w, "Dataset: %d rows, %d duplicate rows\n", p.Profile.Rows, p.Profile.DuplicateRows)
	cols := make([]string, 0, len(p.Profile.MissingPerColumn))
	for c := range p.Profile.MissingPerColumn {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		fmt.Fprintf(w, "  missing in %s: %d\n", c, p.Profile.MissingPerColumn[c])
	}
	r, c := p.XTrain.Dims()
	fmt.Fprintf(w, "PCA: %d components, %.4f explained variance\n", c, p.Reducer.CumulativeVariance())
	fmt.Fprintf(w, "Training rows: %d before resampling, %d after\n", p.TrainRows, r)
}

func printReport(w io.Writer, r *churn.EvaluationReport) {
	fmt.Fprintf(w, "Accuracy: %.4f (%d/%d)\n", r.Accuracy, r.Correct, r.Total)
	if r.ROCAUC != nil {
		fmt.Fprintf(w, "ROC AUC: %.4f\n", *r.ROCAUC)
	}
	if r.LogLoss != nil {
		fmt.Fprintf(w, "Log loss: %.4f\n", *r.LogLoss)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tprecision\trecall\tf1-score\tsupport\t")
	for _, name := range r.Labels {
		s := r.Classes[name]
		fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.2f\t%d\t\n", name, s.Precision, s.Recall, s.F1, s.Support)
	}
	fmt.Fprintf(tw, "macro avg\t%.2f\t%.2f\t%.2f\t%d\t\n", r.MacroAvg.Precision, r.MacroAvg.Recall, r.MacroAvg.F1, r.MacroAvg.Support)
	fmt.Fprintf(tw, "weighted avg\t%.2f\t%.2f\t%.2f\t%d\t\n", r.WeightedAvg.Precision, r.WeightedAvg.Recall, r.WeightedAvg.F1, r.WeightedAvg.Support)
	_ = tw.Flush()

	fmt.Fprintln(w, "Confusion matrix (rows: true, columns: predicted):")
	for i, row := range r.ConfusionMatrix {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = fmt.Sprint(v)
		}
		label := ""
		if i < len(r.Labels) {
			label = r.Labels[i]
		}
		fmt.Fprintf(w, "  %-8s %s\n", label, strings.Join(cells, " "))
	}
}
