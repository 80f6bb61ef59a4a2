// Package tree implements a CART decision tree classifier.
package tree

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/ezoic/churn/core/model"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"
)

const (
	// featureThreshold is the smallest gap between two feature values that
	// can be split on.
	featureThreshold = 1e-7
	epsilon          = 1e-10
)

// TreeNode represents a node in the decision tree
type TreeNode struct {
	IsLeaf       bool      // Whether this is a leaf node
	Feature      int       // Feature index for split (internal nodes)
	Threshold    float64   // Threshold value for split (internal nodes)
	Left         *TreeNode // Left child (values <= threshold)
	Right        *TreeNode // Right child (values > threshold)
	ClassCounts  []int     // Training samples per class index
	PredictClass int       // Index into Classes of the majority class
	Impurity     float64   // Node impurity
	NSamples     int       // Number of samples at this node
	Depth        int       // Depth of this node in the tree
}

// DecisionTreeClassifier implements a decision tree for classification.
// Fields are exported so a fitted tree survives gob encoding.
type DecisionTreeClassifier struct {
	State *model.StateManager

	// Hyperparameters
	Criterion           string  // "gini", "entropy" or "log_loss"
	Splitter            string  // "best" or "random"
	MaxDepth            int     // 0 = unlimited
	MinSamplesSplit     int     // Minimum samples to split a node
	MinSamplesLeaf      int     // Minimum samples in a leaf
	MinImpurityDecrease float64 // Minimum weighted impurity decrease for a split
	RandomState         int64   // Seed for feature order and random thresholds

	// Fitted structure
	Root               *TreeNode
	Classes            []int // Sorted unique class labels
	NFeatures          int
	FeatureImportances []float64
}

// DecisionTreeClassifierOption is a functional option
type DecisionTreeClassifierOption func(*DecisionTreeClassifier)

// NewDecisionTreeClassifier creates a new decision tree classifier
func NewDecisionTreeClassifier(opts ...DecisionTreeClassifierOption) *DecisionTreeClassifier {
	dt := &DecisionTreeClassifier{
		State:           model.NewStateManager(),
		Criterion:       "gini",
		Splitter:        "best",
		MaxDepth:        0,
		MinSamplesSplit: 2,
		MinSamplesLeaf:  1,
	}
	for _, opt := range opts {
		opt(dt)
	}
	return dt
}

// WithCriterion sets the splitting criterion
func WithCriterion(criterion string) DecisionTreeClassifierOption {
	return func(dt *DecisionTreeClassifier) {
		dt.Criterion = criterion
	}
}

// WithSplitter sets the split strategy
func WithSplitter(splitter string) DecisionTreeClassifierOption {
	return func(dt *DecisionTreeClassifier) {
		dt.Splitter = splitter
	}
}

// WithMaxDepth sets the maximum tree depth; 0 means unlimited
func WithMaxDepth(depth int) DecisionTreeClassifierOption {
	return func(dt *DecisionTreeClassifier) {
		dt.MaxDepth = depth
	}
}

// WithMinSamplesSplit sets minimum samples to split
func WithMinSamplesSplit(n int) DecisionTreeClassifierOption {
	return func(dt *DecisionTreeClassifier) {
		dt.MinSamplesSplit = n
	}
}

// WithMinSamplesLeaf sets minimum samples in leaf
func WithMinSamplesLeaf(n int) DecisionTreeClassifierOption {
	return func(dt *DecisionTreeClassifier) {
		dt.MinSamplesLeaf = n
	}
}

// WithMinImpurityDecrease sets the minimum impurity decrease for a split
func WithMinImpurityDecrease(v float64) DecisionTreeClassifierOption {
	return func(dt *DecisionTreeClassifier) {
		dt.MinImpurityDecrease = v
	}
}

// WithDTRandomState sets the random seed
func WithDTRandomState(seed int64) DecisionTreeClassifierOption {
	return func(dt *DecisionTreeClassifier) {
		dt.RandomState = seed
	}
}

// Validate checks the hyperparameters.
func (dt *DecisionTreeClassifier) Validate() error {
	switch dt.Criterion {
	case "gini", "entropy", "log_loss":
	default:
		return scigoErrors.NewValidationError("criterion", "must be gini, entropy or log_loss", dt.Criterion)
	}
	switch dt.Splitter {
	case "best", "random":
	default:
		return scigoErrors.NewValidationError("splitter", "must be best or random", dt.Splitter)
	}
	if dt.MaxDepth < 0 {
		return scigoErrors.NewValidationError("max_depth", "must be non-negative (0 for unlimited)", dt.MaxDepth)
	}
	if dt.MinSamplesSplit < 2 {
		return scigoErrors.NewValidationError("min_samples_split", "must be at least 2", dt.MinSamplesSplit)
	}
	if dt.MinSamplesLeaf < 1 {
		return scigoErrors.NewValidationError("min_samples_leaf", "must be at least 1", dt.MinSamplesLeaf)
	}
	if dt.MinImpurityDecrease < 0 {
		return scigoErrors.NewValidationError("min_impurity_decrease", "must be non-negative", dt.MinImpurityDecrease)
	}
	return nil
}

// builder holds per-fit scratch state.
type builder struct {
	dt       *DecisionTreeClassifier
	X        mat.Matrix
	y        []int // class indices
	nClasses int
	nTotal   int
	rng      *rand.Rand
}

// Fit trains the decision tree. y is a column of integer class labels.
func (dt *DecisionTreeClassifier) Fit(X, y mat.Matrix) (err error) {
	defer scigoErrors.Recover(&err, "DecisionTreeClassifier.Fit")
	if err := dt.Validate(); err != nil {
		return err
	}
	nSamples, nFeatures := X.Dims()
	yRows, yCols := y.Dims()
	if nSamples == 0 || nFeatures == 0 {
		return scigoErrors.NewModelError("DecisionTreeClassifier.Fit", "empty data", scigoErrors.ErrEmptyData)
	}
	if nSamples != yRows {
		return scigoErrors.NewDimensionError("DecisionTreeClassifier.Fit", nSamples, yRows, 0)
	}
	if yCols != 1 {
		return scigoErrors.NewDimensionError("DecisionTreeClassifier.Fit", 1, yCols, 1)
	}
	if err := scigoErrors.CheckMatrix("DecisionTreeClassifier.Fit", X, nSamples, nFeatures, 0); err != nil {
		return err
	}
	if dt.State == nil {
		dt.State = model.NewStateManager()
	}

	dt.extractClasses(y)
	dt.NFeatures = nFeatures
	dt.FeatureImportances = make([]float64, nFeatures)

	classIndex := make(map[int]int, len(dt.Classes))
	for i, c := range dt.Classes {
		classIndex[c] = i
	}
	yIndices := make([]int, nSamples)
	for i := 0; i < nSamples; i++ {
		yIndices[i] = classIndex[int(y.At(i, 0))]
	}

	b := &builder{
		dt:       dt,
		X:        X,
		y:        yIndices,
		nClasses: len(dt.Classes),
		nTotal:   nSamples,
		rng:      rand.New(rand.NewPCG(uint64(dt.RandomState), uint64(dt.RandomState))),
	}
	samples := make([]int, nSamples)
	for i := range samples {
		samples[i] = i
	}
	dt.Root = b.build(samples, 0)
	dt.normalizeFeatureImportances()

	dt.State.SetDimensions(nFeatures, nSamples)
	dt.State.SetFitted()

	log.GetLoggerWithName("DecisionTreeClassifier").Info("Decision tree fitted",
		log.OperationKey, log.OperationFit,
		log.SamplesKey, nSamples,
		log.FeaturesKey, nFeatures,
		log.ClassesKey, len(dt.Classes),
		"depth", dt.GetDepth(),
		"leaves", dt.GetNLeaves(),
	)
	return nil
}

// extractClasses identifies unique class labels
func (dt *DecisionTreeClassifier) extractClasses(y mat.Matrix) {
	rows, _ := y.Dims()
	classMap := make(map[int]bool)
	for i := 0; i < rows; i++ {
		classMap[int(y.At(i, 0))] = true
	}
	dt.Classes = make([]int, 0, len(classMap))
	for class := range classMap {
		dt.Classes = append(dt.Classes, class)
	}
	sort.Ints(dt.Classes)
}

func (b *builder) build(samples []int, depth int) *TreeNode {
	classCounts := make([]int, b.nClasses)
	for _, i := range samples {
		classCounts[b.y[i]]++
	}
	predictClass := 0
	for i, count := range classCounts {
		if count > classCounts[predictClass] {
			predictClass = i
		}
	}
	impurity := b.dt.calculateImpurity(classCounts)

	node := &TreeNode{
		IsLeaf:       true,
		ClassCounts:  classCounts,
		PredictClass: predictClass,
		Impurity:     impurity,
		NSamples:     len(samples),
		Depth:        depth,
	}
	if b.shouldStop(len(samples), impurity, depth) {
		return node
	}

	feature, threshold, decrease := b.findSplit(samples, classCounts, impurity)
	if feature == -1 {
		return node
	}
	weighted := float64(len(samples)) / float64(b.nTotal) * decrease
	if weighted+epsilon < b.dt.MinImpurityDecrease {
		return node
	}

	var left, right []int
	for _, i := range samples {
		if b.X.At(i, feature) <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	node.IsLeaf = false
	node.Feature = feature
	node.Threshold = threshold
	b.dt.FeatureImportances[feature] += math.Max(decrease, 0) * float64(len(samples))

	node.Left = b.build(left, depth+1)
	node.Right = b.build(right, depth+1)
	return node
}

// shouldStop checks stopping criteria
func (b *builder) shouldStop(nSamples int, impurity float64, depth int) bool {
	dt := b.dt
	return (dt.MaxDepth > 0 && depth >= dt.MaxDepth) ||
		nSamples < dt.MinSamplesSplit ||
		nSamples < 2*dt.MinSamplesLeaf ||
		impurity <= 0
}

// calculateImpurity calculates node impurity for the configured criterion
func (dt *DecisionTreeClassifier) calculateImpurity(classCounts []int) float64 {
	total := 0
	for _, count := range classCounts {
		total += count
	}
	if total == 0 {
		return 0.0
	}

	impurity := 0.0
	switch dt.Criterion {
	case "entropy", "log_loss":
		for _, count := range classCounts {
			if count > 0 {
				p := float64(count) / float64(total)
				impurity -= p * math.Log2(p)
			}
		}
	default:
		sumSquared := 0.0
		for _, count := range classCounts {
			p := float64(count) / float64(total)
			sumSquared += p * p
		}
		impurity = 1.0 - sumSquared
	}
	return impurity
}

// findSplit visits features in a seeded random order and returns the split
// with the largest impurity decrease, or feature -1 if none is valid. Ties go
// to the feature visited first.
func (b *builder) findSplit(samples []int, parentCounts []int, parentImpurity float64) (int, float64, float64) {
	bestFeature, bestThreshold, bestDecrease := -1, 0.0, math.Inf(-1)
	n := len(samples)

	values := make([]float64, n)
	order := make([]int, n)
	leftCounts := make([]int, b.nClasses)
	rightCounts := make([]int, b.nClasses)

	for _, feature := range b.rng.Perm(b.dt.NFeatures) {
		for k, i := range samples {
			values[k] = b.X.At(i, feature)
		}

		if b.dt.Splitter == "random" {
			lo, hi := values[0], values[0]
			for _, v := range values[1:] {
				lo = math.Min(lo, v)
				hi = math.Max(hi, v)
			}
			if hi <= lo+featureThreshold {
				continue
			}
			threshold := lo + b.rng.Float64()*(hi-lo)
			if threshold >= hi {
				threshold = lo
			}
			clear(leftCounts)
			nLeft := 0
			for k, i := range samples {
				if values[k] <= threshold {
					leftCounts[b.y[i]]++
					nLeft++
				}
			}
			for c := range rightCounts {
				rightCounts[c] = parentCounts[c] - leftCounts[c]
			}
			if nLeft < b.dt.MinSamplesLeaf || n-nLeft < b.dt.MinSamplesLeaf {
				continue
			}
			if d := b.decrease(parentImpurity, leftCounts, rightCounts, nLeft, n); d > bestDecrease {
				bestFeature, bestThreshold, bestDecrease = feature, threshold, d
			}
			continue
		}

		for k := range order {
			order[k] = k
		}
		sort.Slice(order, func(a, c int) bool { return values[order[a]] < values[order[c]] })

		clear(leftCounts)
		copy(rightCounts, parentCounts)
		for p := 0; p < n-1; p++ {
			cls := b.y[samples[order[p]]]
			leftCounts[cls]++
			rightCounts[cls]--

			cur, next := values[order[p]], values[order[p+1]]
			if next <= cur+featureThreshold {
				continue
			}
			nLeft := p + 1
			if nLeft < b.dt.MinSamplesLeaf || n-nLeft < b.dt.MinSamplesLeaf {
				continue
			}
			if d := b.decrease(parentImpurity, leftCounts, rightCounts, nLeft, n); d > bestDecrease {
				threshold := cur/2 + next/2
				if threshold == next || math.IsInf(threshold, 0) {
					threshold = cur
				}
				bestFeature, bestThreshold, bestDecrease = feature, threshold, d
			}
		}
	}
	return bestFeature, bestThreshold, bestDecrease
}

func (b *builder) decrease(parent float64, left, right []int, nLeft, n int) float64 {
	nRight := n - nLeft
	weighted := (float64(nLeft)*b.dt.calculateImpurity(left) + float64(nRight)*b.dt.calculateImpurity(right)) / float64(n)
	return parent - weighted
}

// normalizeFeatureImportances normalizes feature importance scores
func (dt *DecisionTreeClassifier) normalizeFeatureImportances() {
	sum := 0.0
	for _, imp := range dt.FeatureImportances {
		sum += imp
	}
	if sum > 0 {
		for i := range dt.FeatureImportances {
			dt.FeatureImportances[i] /= sum
		}
	}
}

// IsFitted reports whether Fit has succeeded.
func (dt *DecisionTreeClassifier) IsFitted() bool {
	return dt.State != nil && dt.State.IsFitted()
}

func (dt *DecisionTreeClassifier) leaf(X mat.Matrix, i int) *TreeNode {
	node := dt.Root
	for !node.IsLeaf {
		if X.At(i, node.Feature) <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
	return node
}

func (dt *DecisionTreeClassifier) checkInput(X mat.Matrix, method string) error {
	if !dt.IsFitted() {
		return scigoErrors.NewNotFittedError("DecisionTreeClassifier", method)
	}
	if _, c := X.Dims(); c != dt.NFeatures {
		return scigoErrors.NewDimensionError("DecisionTreeClassifier."+method, dt.NFeatures, c, 1)
	}
	return nil
}

// Predict returns an n×1 matrix of class labels.
func (dt *DecisionTreeClassifier) Predict(X mat.Matrix) (_ mat.Matrix, err error) {
	defer scigoErrors.Recover(&err, "DecisionTreeClassifier.Predict")
	if err := dt.checkInput(X, "Predict"); err != nil {
		return nil, err
	}
	nSamples, _ := X.Dims()
	predictions := mat.NewDense(nSamples, 1, nil)
	for i := 0; i < nSamples; i++ {
		predictions.Set(i, 0, float64(dt.Classes[dt.leaf(X, i).PredictClass]))
	}
	return predictions, nil
}

// PredictLabels is Predict returning a plain slice.
func (dt *DecisionTreeClassifier) PredictLabels(X mat.Matrix) ([]int, error) {
	pred, err := dt.Predict(X)
	if err != nil {
		return nil, err
	}
	n, _ := pred.Dims()
	out := make([]int, n)
	for i := range out {
		out[i] = int(pred.At(i, 0))
	}
	return out, nil
}

// PredictProba returns the class distribution of the leaf each row lands in,
// one column per entry of Classes.
func (dt *DecisionTreeClassifier) PredictProba(X mat.Matrix) (_ mat.Matrix, err error) {
	defer scigoErrors.Recover(&err, "DecisionTreeClassifier.PredictProba")
	if err := dt.checkInput(X, "PredictProba"); err != nil {
		return nil, err
	}
	nSamples, _ := X.Dims()
	probas := mat.NewDense(nSamples, len(dt.Classes), nil)
	for i := 0; i < nSamples; i++ {
		node := dt.leaf(X, i)
		total := 0
		for _, count := range node.ClassCounts {
			total += count
		}
		for j, count := range node.ClassCounts {
			if total > 0 {
				probas.Set(i, j, float64(count)/float64(total))
			}
		}
	}
	return probas, nil
}

// GetFeatureImportances returns a copy of the normalized importances, one
// per input column, summing to 1 unless the tree never split.
func (dt *DecisionTreeClassifier) GetFeatureImportances() []float64 {
	if dt.FeatureImportances == nil {
		return nil
	}
	importances := make([]float64, len(dt.FeatureImportances))
	copy(importances, dt.FeatureImportances)
	return importances
}

// GetDepth returns the depth of the tree
func (dt *DecisionTreeClassifier) GetDepth() int {
	if dt.Root == nil {
		return 0
	}
	return maxDepth(dt.Root)
}

func maxDepth(node *TreeNode) int {
	if node.IsLeaf {
		return node.Depth
	}
	return max(maxDepth(node.Left), maxDepth(node.Right))
}

// GetNLeaves returns the number of leaf nodes
func (dt *DecisionTreeClassifier) GetNLeaves() int {
	return countLeaves(dt.Root)
}

func countLeaves(node *TreeNode) int {
	if node == nil {
		return 0
	}
	if node.IsLeaf {
		return 1
	}
	return countLeaves(node.Left) + countLeaves(node.Right)
}

// String returns a short description of the classifier.
func (dt *DecisionTreeClassifier) String() string {
	depth := "None"
	if dt.MaxDepth > 0 {
		depth = fmt.Sprint(dt.MaxDepth)
	}
	return fmt.Sprintf("DecisionTreeClassifier(criterion=%s, splitter=%s, max_depth=%s, min_samples_split=%d, min_samples_leaf=%d, random_state=%d)",
		dt.Criterion, dt.Splitter, depth, dt.MinSamplesSplit, dt.MinSamplesLeaf, dt.RandomState)
}
