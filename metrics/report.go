package metrics

import (
	"fmt"
	"sort"

	"gonum.org/v1/gonum/mat"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
)

func checkPair(op string, yTrue, yPred *mat.VecDense) (int, error) {
	if yTrue == nil || yPred == nil {
		return 0, scigoErrors.NewValueError(op, "input vectors cannot be nil")
	}
	n := yTrue.Len()
	if n == 0 {
		return 0, scigoErrors.NewValueError(op, "input vectors cannot be empty")
	}
	if n != yPred.Len() {
		return 0, scigoErrors.NewDimensionError(op, n, yPred.Len(), 0)
	}
	return n, nil
}

// ClassificationError calculates the fraction of incorrect predictions.
//
// Example:
//
//	yTrue := mat.NewVecDense(5, []float64{0, 1, 2, 1, 0})
//	yPred := mat.NewVecDense(5, []float64{0, 1, 1, 1, 0})
//	errorRate, err := ClassificationError(yTrue, yPred) // 0.2
func ClassificationError(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("ClassificationError", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	errors := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) != yPred.AtVec(i) {
			errors++
		}
	}
	return float64(errors) / float64(n), nil
}

// Accuracy calculates the fraction of correct predictions.
func Accuracy(yTrue, yPred *mat.VecDense) (float64, error) {
	n, err := checkPair("Accuracy", yTrue, yPred)
	if err != nil {
		return 0, err
	}
	correct := 0
	for i := 0; i < n; i++ {
		if yTrue.AtVec(i) == yPred.AtVec(i) {
			correct++
		}
	}
	return float64(correct) / float64(n), nil
}

// ConfusionMatrix counts predictions per (true, predicted) label pair.
// Counts[i][j] is the number of samples with label Labels[i] predicted as
// Labels[j].
type ConfusionMatrix struct {
	Labels []int
	Counts [][]int
}

// NewConfusionMatrix builds the matrix over the sorted union of labels
// appearing in yTrue and yPred.
func NewConfusionMatrix(yTrue, yPred *mat.VecDense) (*ConfusionMatrix, error) {
	n, err := checkPair("ConfusionMatrix", yTrue, yPred)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool)
	for i := 0; i < n; i++ {
		seen[int(yTrue.AtVec(i))] = true
		seen[int(yPred.AtVec(i))] = true
	}
	labels := make([]int, 0, len(seen))
	for l := range seen {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	index := make(map[int]int, len(labels))
	for i, l := range labels {
		index[l] = i
	}
	counts := make([][]int, len(labels))
	for i := range counts {
		counts[i] = make([]int, len(labels))
	}
	for i := 0; i < n; i++ {
		counts[index[int(yTrue.AtVec(i))]][index[int(yPred.AtVec(i))]]++
	}
	return &ConfusionMatrix{Labels: labels, Counts: counts}, nil
}

// Correct is the trace of the matrix.
func (c *ConfusionMatrix) Correct() int {
	correct := 0
	for i := range c.Counts {
		correct += c.Counts[i][i]
	}
	return correct
}

// Total is the number of scored samples.
func (c *ConfusionMatrix) Total() int {
	total := 0
	for _, row := range c.Counts {
		for _, v := range row {
			total += v
		}
	}
	return total
}

// ClassScores holds the one-vs-rest scores of a single label, or an average
// over labels.
type ClassScores struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// Report is the outcome of ClassificationReport.
type Report struct {
	Accuracy    float64
	Correct     int
	Total       int
	Labels      []int
	PerClass    map[int]ClassScores
	MacroAvg    ClassScores
	WeightedAvg ClassScores
	Confusion   *ConfusionMatrix
}

// ClassificationReport computes accuracy and per-label precision, recall, F1
// and support, plus macro and support-weighted averages. A score whose
// denominator is zero is reported as 0 and raises an UndefinedMetricWarning.
func ClassificationReport(yTrue, yPred *mat.VecDense) (*Report, error) {
	cm, err := NewConfusionMatrix(yTrue, yPred)
	if err != nil {
		return nil, err
	}

	k := len(cm.Labels)
	report := &Report{
		Correct:   cm.Correct(),
		Total:     cm.Total(),
		Labels:    cm.Labels,
		PerClass:  make(map[int]ClassScores, k),
		Confusion: cm,
	}
	report.Accuracy = float64(report.Correct) / float64(report.Total)

	for i, label := range cm.Labels {
		tp := cm.Counts[i][i]
		predicted, actual := 0, 0
		for j := 0; j < k; j++ {
			predicted += cm.Counts[j][i]
			actual += cm.Counts[i][j]
		}

		s := ClassScores{Support: actual}
		s.Precision = ratio("precision", label, tp, predicted, "no predicted samples")
		s.Recall = ratio("recall", label, tp, actual, "no true samples")
		if s.Precision+s.Recall > 0 {
			s.F1 = 2 * s.Precision * s.Recall / (s.Precision + s.Recall)
		} else {
			scigoErrors.Warn(scigoErrors.NewUndefinedMetricWarning(
				"f1_score", fmt.Sprintf("label %d has zero precision and recall", label), 0))
		}
		report.PerClass[label] = s

		w := float64(actual) / float64(report.Total)
		report.MacroAvg.Precision += s.Precision / float64(k)
		report.MacroAvg.Recall += s.Recall / float64(k)
		report.MacroAvg.F1 += s.F1 / float64(k)
		report.WeightedAvg.Precision += s.Precision * w
		report.WeightedAvg.Recall += s.Recall * w
		report.WeightedAvg.F1 += s.F1 * w
	}
	report.MacroAvg.Support = report.Total
	report.WeightedAvg.Support = report.Total
	return report, nil
}

func ratio(metric string, label, num, den int, why string) float64 {
	if den == 0 {
		scigoErrors.Warn(scigoErrors.NewUndefinedMetricWarning(
			metric, fmt.Sprintf("label %d has %s", label, why), 0))
		return 0
	}
	return float64(num) / float64(den)
}
