package log

// Model and operation context.
const (
	// ModelNameKey identifies the estimator or transformer type,
	// e.g. "DecisionTreeClassifier", "StandardScaler", "PCA".
	ModelNameKey = "model.name"

	// OperationKey specifies the operation being performed.
	OperationKey = "ml.operation"

	// ComponentKey identifies the package doing the work.
	ComponentKey = "ml.component"

	// PhaseKey indicates the pipeline phase.
	PhaseKey = "ml.phase"
)

// Data shape.
const (
	SamplesKey  = "data.samples"
	FeaturesKey = "data.features"
	ClassesKey  = "data.classes"
	PathKey     = "data.path"
)

// Performance and metrics.
const (
	DurationMsKey = "perf.duration_ms"
	AccuracyKey   = "metrics.accuracy"
)

// Pipeline stages.
const (
	// ComponentsKey is the number of retained principal components.
	ComponentsKey = "pca.components"

	// ExplainedVarianceKey is the cumulative explained-variance ratio retained.
	ExplainedVarianceKey = "pca.explained_variance"

	// ResampleBeforeKey and ResampleAfterKey bracket a resampling step.
	ResampleBeforeKey = "resample.before"
	ResampleAfterKey  = "resample.after"

	// BundleIDKey identifies a published artifact bundle.
	BundleIDKey = "bundle.id"

	// RunIDKey identifies a tracked experiment run.
	RunIDKey = "tracking.run_id"

	// HyperParamsKey holds model hyperparameters.
	HyperParamsKey = "model.hyperparams"

	// RandomSeedKey records the seed of a stochastic step.
	RandomSeedKey = "config.random_seed"
)

// HTTP serving.
const (
	HTTPMethodKey  = "http.method"
	HTTPPathKey    = "http.path"
	HTTPStatusKey  = "http.status"
	HTTPLatencyKey = "http.latency_ms"
	HTTPAddrKey    = "http.addr"
)

const (
	OperationFit          = "fit"
	OperationPredict      = "predict"
	OperationTransform    = "transform"
	OperationFitTransform = "fit_transform"
	OperationResample     = "fit_resample"

	PhaseTraining      = "training"
	PhaseTesting       = "testing"
	PhaseInference     = "inference"
	PhasePreprocessing = "preprocessing"
)
