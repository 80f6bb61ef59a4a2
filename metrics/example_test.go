package metrics_test

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/churn/metrics"
)

// ExampleClassificationReport scores a small binary prediction run.
func ExampleClassificationReport() {
	yTrue := mat.NewVecDense(6, []float64{0, 0, 0, 1, 1, 1})
	yPred := mat.NewVecDense(6, []float64{0, 0, 1, 1, 1, 0})

	report, err := metrics.ClassificationReport(yTrue, yPred)
	if err != nil {
		slog.Error("Test failed", "error", err)
		return
	}

	fmt.Printf("accuracy: %.3f (%d/%d)\n", report.Accuracy, report.Correct, report.Total)
	for _, label := range report.Labels {
		s := report.PerClass[label]
		fmt.Printf("%d: precision=%.3f recall=%.3f f1=%.3f support=%d\n",
			label, s.Precision, s.Recall, s.F1, s.Support)
	}

	// Output:
	// accuracy: 0.667 (4/6)
	// 0: precision=0.667 recall=0.667 f1=0.667 support=3
	// 1: precision=0.667 recall=0.667 f1=0.667 support=3
}

// ExampleROCAUC scores the churn probability column of a two-class model.
func ExampleROCAUC() {
	labels := []int{0, 0, 1, 1}
	proba := mat.NewDense(4, 2, []float64{
		0.9, 0.1,
		0.6, 0.4,
		0.65, 0.35,
		0.2, 0.8,
	})

	auc, err := metrics.ROCAUC(labels, proba, 1)
	if err != nil {
		slog.Error("Test failed", "error", err)
		return
	}
	fmt.Printf("ROC AUC: %.2f\n", auc)

	// Output: ROC AUC: 0.75
}
