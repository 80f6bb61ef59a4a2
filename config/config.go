// Package config loads the YAML configuration shared by every churn
// command.
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ezoic/churn/churn"
	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"
)

// Config is the root of churn.yaml.
type Config struct {
	Data          Data                  `yaml:"data"`
	Preprocessing Preprocessing         `yaml:"preprocessing"`
	Resample      Resample              `yaml:"resample"`
	Model         churn.Hyperparameters `yaml:"model"`
	Artifacts     Artifacts             `yaml:"artifacts"`
	Tracking      Tracking              `yaml:"tracking"`
	Serving       Serving               `yaml:"serving"`
	Frontend      Frontend              `yaml:"frontend"`
	Logging       Logging               `yaml:"logging"`
	Workdir       string                `yaml:"workdir"`
}

type Data struct {
	Path      string  `yaml:"path"`
	TestSize  float64 `yaml:"test_size"`
	SplitSeed int64   `yaml:"split_seed"`
}

type Preprocessing struct {
	VarianceThreshold float64 `yaml:"variance_threshold"`
	// EncodingScope is "full" or "train".
	EncodingScope string `yaml:"encoding_scope"`
	// StateFeature fits the model on the frequency-encoded State as well as
	// the request fields; /predict then requires state.
	StateFeature bool `yaml:"state_feature"`
}

type Resample struct {
	SMOTENeighbors int   `yaml:"smote_neighbors"`
	ENNNeighbors   int   `yaml:"enn_neighbors"`
	Seed           int64 `yaml:"seed"`
}

type Artifacts struct {
	Dir string `yaml:"dir"`
	// Keep is how many bundles Prune leaves; 0 disables pruning.
	Keep int `yaml:"keep"`
}

type Tracking struct {
	Enabled    bool   `yaml:"enabled"`
	DSN        string `yaml:"dsn"`
	Experiment string `yaml:"experiment"`
}

type Serving struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// WatchBundles reloads the served bundle when another process saves one.
	WatchBundles bool `yaml:"watch_bundles"`
	// RequireBundle makes serve fail at startup when no bundle exists,
	// instead of answering 500 on /predict until one is trained.
	RequireBundle bool `yaml:"require_bundle"`
}

type Frontend struct {
	Addr       string        `yaml:"addr"`
	PredictURL string        `yaml:"predict_url"`
	Timeout    time.Duration `yaml:"timeout"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	prep := churn.DefaultPrepareConfig()
	return Config{
		Data: Data{
			Path:      prep.DataPath,
			TestSize:  prep.TestSize,
			SplitSeed: prep.SplitSeed,
		},
		Preprocessing: Preprocessing{
			VarianceThreshold: prep.VarianceThreshold,
			EncodingScope:     prep.EncodingScope,
			StateFeature:      prep.StateFeature,
		},
		Resample: Resample{
			SMOTENeighbors: prep.SMOTENeighbors,
			ENNNeighbors:   prep.ENNNeighbors,
			Seed:           prep.ResampleSeed,
		},
		Model:     churn.DefaultHyperparameters(),
		Artifacts: Artifacts{Dir: "artifacts", Keep: 5},
		Tracking: Tracking{
			Enabled:    true,
			DSN:        "mlruns/tracking.db",
			Experiment: "churn-prediction",
		},
		Serving: Serving{
			Addr:            ":8000",
			RequestTimeout:  30 * time.Second,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			WatchBundles:    true,
		},
		Frontend: Frontend{
			Addr:       ":5000",
			PredictURL: "http://localhost:8000/predict",
			Timeout:    10 * time.Second,
		},
		Logging: Logging{Level: "info"},
		Workdir: ".churn",
	}
}

// Load reads path over the defaults. An empty path returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, cfg.Validate()
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, scigoErrors.Wrapf(err, "read config %s", path)
	}
	return Unmarshal(content)
}

// Unmarshal decodes YAML over the defaults. Unknown keys are rejected.
func Unmarshal(content []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !scigoErrors.Is(err, io.EOF) {
		return Config{}, scigoErrors.Wrap(err, "decode config")
	}
	return cfg, cfg.Validate()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Prepare().Validate(); err != nil {
		return err
	}
	if err := c.Model.Validate(); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch {
	case c.Artifacts.Dir == "":
		return scigoErrors.NewValidationError("artifacts.dir", "must not be empty", c.Artifacts.Dir)
	case c.Artifacts.Keep < 0:
		return scigoErrors.NewValidationError("artifacts.keep", "must not be negative", c.Artifacts.Keep)
	case c.Tracking.Enabled && c.Tracking.DSN == "":
		return scigoErrors.NewValidationError("tracking.dsn", "required when tracking is enabled", c.Tracking.DSN)
	case c.Tracking.Enabled && c.Tracking.Experiment == "":
		return scigoErrors.NewValidationError("tracking.experiment", "required when tracking is enabled", c.Tracking.Experiment)
	case c.Serving.RequestTimeout <= 0:
		return scigoErrors.NewValidationError("serving.request_timeout", "must be positive", c.Serving.RequestTimeout)
	case c.Frontend.Timeout <= 0:
		return scigoErrors.NewValidationError("frontend.timeout", "must be positive", c.Frontend.Timeout)
	case c.Workdir == "":
		return scigoErrors.NewValidationError("workdir", "must not be empty", c.Workdir)
	}
	return nil
}

// Prepare maps the data, preprocessing and resample sections onto the
// preparation settings.
func (c Config) Prepare() churn.PrepareConfig {
	return churn.PrepareConfig{
		DataPath:          c.Data.Path,
		TestSize:          c.Data.TestSize,
		SplitSeed:         c.Data.SplitSeed,
		VarianceThreshold: c.Preprocessing.VarianceThreshold,
		EncodingScope:     c.Preprocessing.EncodingScope,
		StateFeature:      c.Preprocessing.StateFeature,
		SMOTENeighbors:    c.Resample.SMOTENeighbors,
		ENNNeighbors:      c.Resample.ENNNeighbors,
		ResampleSeed:      c.Resample.Seed,
	}
}
