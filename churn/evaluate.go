package churn

import (
	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/churn/core/model"
	"github.com/ezoic/churn/dataset"
	"github.com/ezoic/churn/metrics"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"
)

// EvaluationReport holds held-out scores. Per-class entries are keyed by the
// display name of each label observed in the test labels or predictions.
type EvaluationReport struct {
	Accuracy        float64                        `json:"accuracy"`
	Correct         int                            `json:"correct"`
	Total           int                            `json:"total"`
	Labels          []string                       `json:"labels"`
	Classes         map[string]metrics.ClassScores `json:"classes"`
	MacroAvg        metrics.ClassScores            `json:"macro_avg"`
	WeightedAvg     metrics.ClassScores            `json:"weighted_avg"`
	ConfusionMatrix [][]int                        `json:"confusion_matrix"`
	ROCAUC          *float64                       `json:"roc_auc,omitempty"`
	LogLoss         *float64                       `json:"log_loss,omitempty"`
}

// Evaluate predicts X once and scores the predictions against y. The test
// labels must contain at least two classes.
func Evaluate(m model.Classifier, X mat.Matrix, y []int) (*EvaluationReport, error) {
	present := make(map[int]bool)
	for _, l := range y {
		present[l] = true
	}
	if len(present) < 2 {
		return nil, scigoErrors.NewMissingClassError("Evaluate", 2, len(present))
	}
	rows, _ := X.Dims()
	if rows != len(y) {
		return nil, scigoErrors.NewDimensionError("Evaluate", rows, len(y), 0)
	}

	pred, err := m.Predict(X)
	if err != nil {
		return nil, scigoErrors.Wrap(err, "evaluate")
	}
	yTrue := mat.NewVecDense(len(y), nil)
	yPred := mat.NewVecDense(len(y), nil)
	for i, l := range y {
		yTrue.SetVec(i, float64(l))
		yPred.SetVec(i, pred.At(i, 0))
	}

	rep, err := metrics.ClassificationReport(yTrue, yPred)
	if err != nil {
		return nil, err
	}
	out := &EvaluationReport{
		Accuracy:        rep.Accuracy,
		Correct:         rep.Correct,
		Total:           rep.Total,
		Classes:         make(map[string]metrics.ClassScores, len(rep.Labels)),
		MacroAvg:        rep.MacroAvg,
		WeightedAvg:     rep.WeightedAvg,
		ConfusionMatrix: rep.Confusion.Counts,
	}
	for _, l := range rep.Labels {
		name := dataset.LabelName(l)
		out.Labels = append(out.Labels, name)
		out.Classes[name] = rep.PerClass[l]
	}

	logger := log.GetLoggerWithName("evaluator")
	if len(present) == 2 && present[0] && present[1] {
		probabilityScores(m, X, y, out, logger)
	} else {
		logger.Debug("Probability metrics skipped: labels are not 0 and 1", "labels", out.Labels)
	}

	logger.Info("Model evaluated",
		log.PhaseKey, log.PhaseTesting,
		log.SamplesKey, out.Total,
		log.AccuracyKey, out.Accuracy,
	)
	return out, nil
}

// probabilityScores adds ROC AUC and log loss for label 1 to out. A metric
// that cannot be computed is left nil and the reason logged.
func probabilityScores(m model.Classifier, X mat.Matrix, y []int, out *EvaluationReport, logger log.Logger) {
	proba, err := m.PredictProba(X)
	if err != nil {
		logger.Debug("Probability metrics skipped", "error", err)
		return
	}
	if auc, err := metrics.ROCAUC(y, proba, 1); err != nil {
		logger.Debug("ROC AUC skipped", "error", err)
	} else {
		out.ROCAUC = &auc
	}
	if loss, err := metrics.LogLoss(y, proba, 1); err != nil {
		logger.Debug("Log loss skipped", "error", err)
	} else {
		out.LogLoss = &loss
	}
}

// Flatten returns the report as tracker metrics: accuracy, then
// precision_<label>, recall_<label> and f1_score_<label> for every label,
// and roc_auc and log_loss when available.
func (r *EvaluationReport) Flatten() map[string]float64 {
	out := map[string]float64{"accuracy": r.Accuracy}
	for name, s := range r.Classes {
		out["precision_"+name] = s.Precision
		out["recall_"+name] = s.Recall
		out["f1_score_"+name] = s.F1
	}
	if r.ROCAUC != nil {
		out["roc_auc"] = *r.ROCAUC
	}
	if r.LogLoss != nil {
		out["log_loss"] = *r.LogLoss
	}
	return out
}
