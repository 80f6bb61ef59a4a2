// Package tracking records pipeline runs in a SQLite database: the
// hyperparameters, metrics, tags and artifacts of each run, grouped by
// experiment.
package tracking

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	scigoErrors "github.com/ezoic/churn/pkg/errors"
	"github.com/ezoic/churn/pkg/log"

	// Pure Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning  = "RUNNING"
	StatusFinished = "FINISHED"
	StatusFailed   = "FAILED"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS experiments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		experiment_id INTEGER NOT NULL REFERENCES experiments(id),
		status TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS params (
		run_id TEXT NOT NULL REFERENCES runs(id),
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS metrics (
		run_id TEXT NOT NULL REFERENCES runs(id),
		key TEXT NOT NULL,
		value REAL NOT NULL,
		step INTEGER NOT NULL DEFAULT 0,
		timestamp INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		run_id TEXT NOT NULL REFERENCES runs(id),
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (run_id, key)
	)`,
	`CREATE TABLE IF NOT EXISTS artifacts (
		run_id TEXT NOT NULL REFERENCES runs(id),
		path TEXT NOT NULL,
		kind TEXT NOT NULL,
		PRIMARY KEY (run_id, path)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_experiment ON runs(experiment_id, start_time)`,
}

// Store is a tracking database.
type Store struct {
	db     *sql.DB
	logger log.Logger
}

// Open opens or creates the SQLite database at dsn and applies the schema.
func Open(dsn string) (*Store, error) {
	if dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, scigoErrors.Wrap(err, "create tracking dir")
		}
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, scigoErrors.Wrap(err, "open tracking database")
	}
	// one connection keeps :memory: databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, scigoErrors.Wrap(err, "migrate tracking schema")
		}
	}
	return &Store{db: db, logger: log.GetLoggerWithName("tracking")}, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return scigoErrors.Wrapf(err, "%s", p)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Experiment returns the id of the named experiment, creating it if needed.
func (s *Store) Experiment(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, scigoErrors.NewValidationError("experiment", "name must not be empty", name)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO experiments (name, created_at) VALUES (?, ?)`,
		name, time.Now().UnixMilli())
	if err != nil {
		return 0, scigoErrors.Wrap(err, "create experiment")
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM experiments WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, scigoErrors.Wrap(err, "find experiment")
	}
	return id, nil
}

// Run is an open tracking run.
type Run struct {
	ID           string
	ExperimentID int64
	store        *Store
}

// StartRun opens a new run in experimentID.
func (s *Store) StartRun(ctx context.Context, experimentID int64) (*Run, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, experiment_id, status, start_time) VALUES (?, ?, ?, ?)`,
		id, experimentID, StatusRunning, time.Now().UnixMilli())
	if err != nil {
		return nil, scigoErrors.Wrap(err, "start run")
	}
	s.logger.Info("Tracking run started", log.RunIDKey, id, "experiment_id", experimentID)
	return &Run{ID: id, ExperimentID: experimentID, store: s}, nil
}

// Run reopens an existing run by id.
func (s *Store) Run(ctx context.Context, id string) (*Run, error) {
	r := &Run{ID: id, store: s}
	err := s.db.QueryRowContext(ctx, `SELECT experiment_id FROM runs WHERE id = ?`, id).Scan(&r.ExperimentID)
	if err == sql.ErrNoRows {
		return nil, scigoErrors.Newf("tracking: run %s not found", id)
	}
	if err != nil {
		return nil, scigoErrors.Wrap(err, "find run")
	}
	return r, nil
}

// LogParam records a parameter. Logging the same key again overwrites it.
func (r *Run) LogParam(ctx context.Context, key string, value any) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO params (run_id, key, value) VALUES (?, ?, ?)`,
		r.ID, key, fmt.Sprint(value))
	return scigoErrors.Wrapf(err, "log param %s", key)
}

// LogParams records every entry of params in one transaction.
func (r *Run) LogParams(ctx context.Context, params map[string]any) error {
	return r.store.tx(ctx, func(tx *sql.Tx) error {
		for _, k := range sortedKeys(params) {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO params (run_id, key, value) VALUES (?, ?, ?)`,
				r.ID, k, fmt.Sprint(params[k])); err != nil {
				return scigoErrors.Wrapf(err, "log param %s", k)
			}
		}
		return nil
	})
}

// LogMetric appends a metric value at step 0.
func (r *Run) LogMetric(ctx context.Context, key string, value float64) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO metrics (run_id, key, value, step, timestamp) VALUES (?, ?, ?, 0, ?)`,
		r.ID, key, value, time.Now().UnixMilli())
	return scigoErrors.Wrapf(err, "log metric %s", key)
}

// LogMetrics appends every entry of metrics in one transaction.
func (r *Run) LogMetrics(ctx context.Context, metrics map[string]float64) error {
	now := time.Now().UnixMilli()
	return r.store.tx(ctx, func(tx *sql.Tx) error {
		for _, k := range sortedKeys(metrics) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO metrics (run_id, key, value, step, timestamp) VALUES (?, ?, ?, 0, ?)`,
				r.ID, k, metrics[k], now); err != nil {
				return scigoErrors.Wrapf(err, "log metric %s", k)
			}
		}
		return nil
	})
}

// SetTag sets a tag, replacing any previous value.
func (r *Run) SetTag(ctx context.Context, key, value string) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO tags (run_id, key, value) VALUES (?, ?, ?)`,
		r.ID, key, value)
	return scigoErrors.Wrapf(err, "set tag %s", key)
}

// LogArtifact records a file produced by the run. kind is free-form, e.g.
// "plot" or "bundle".
func (r *Run) LogArtifact(ctx context.Context, path, kind string) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO artifacts (run_id, path, kind) VALUES (?, ?, ?)`,
		r.ID, path, kind)
	return scigoErrors.Wrapf(err, "log artifact %s", path)
}

// End closes the run with status.
func (r *Run) End(ctx context.Context, status string) error {
	_, err := r.store.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, end_time = ? WHERE id = ?`,
		status, time.Now().UnixMilli(), r.ID)
	if err != nil {
		return scigoErrors.Wrap(err, "end run")
	}
	r.store.logger.Info("Tracking run ended", log.RunIDKey, r.ID, "status", status)
	return nil
}

// RunInfo summarizes a stored run.
type RunInfo struct {
	ID           string
	ExperimentID int64
	Status       string
	StartTime    time.Time
	EndTime      *time.Time
	Params       map[string]string
	Tags         map[string]string
	Artifacts    []string
}

// Runs returns up to limit runs of experimentID, newest first.
func (s *Store) Runs(ctx context.Context, experimentID int64, limit int) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, start_time, end_time FROM runs
		 WHERE experiment_id = ? ORDER BY start_time DESC, rowid DESC LIMIT ?`,
		experimentID, limit)
	if err != nil {
		return nil, scigoErrors.Wrap(err, "list runs")
	}
	var out []RunInfo
	for rows.Next() {
		var (
			info  RunInfo
			start int64
			end   sql.NullInt64
		)
		if err := rows.Scan(&info.ID, &info.Status, &start, &end); err != nil {
			rows.Close()
			return nil, scigoErrors.Wrap(err, "scan run")
		}
		info.ExperimentID = experimentID
		info.StartTime = time.UnixMilli(start)
		if end.Valid {
			t := time.UnixMilli(end.Int64)
			info.EndTime = &t
		}
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, scigoErrors.Wrap(err, "list runs")
	}
	rows.Close()

	for i := range out {
		if out[i].Params, err = s.keyValues(ctx, "params", out[i].ID); err != nil {
			return nil, err
		}
		if out[i].Tags, err = s.keyValues(ctx, "tags", out[i].ID); err != nil {
			return nil, err
		}
		if out[i].Artifacts, err = s.artifacts(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Metrics returns the latest value of every metric of runID.
func (s *Store) Metrics(ctx context.Context, runID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM metrics WHERE run_id = ? ORDER BY timestamp, rowid`, runID)
	if err != nil {
		return nil, scigoErrors.Wrap(err, "read metrics")
	}
	defer rows.Close()
	out := make(map[string]float64)
	for rows.Next() {
		var k string
		var v float64
		if err := rows.Scan(&k, &v); err != nil {
			return nil, scigoErrors.Wrap(err, "scan metric")
		}
		out[k] = v
	}
	return out, scigoErrors.Wrap(rows.Err(), "read metrics")
}

// table is one of the fixed names "params" or "tags".
func (s *Store) keyValues(ctx context.Context, table, runID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM `+table+` WHERE run_id = ?`, runID)
	if err != nil {
		return nil, scigoErrors.Wrapf(err, "read %s", table)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, scigoErrors.Wrapf(err, "scan %s", table)
		}
		out[k] = v
	}
	return out, scigoErrors.Wrapf(rows.Err(), "read %s", table)
}

func (s *Store) artifacts(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM artifacts WHERE run_id = ? ORDER BY path`, runID)
	if err != nil {
		return nil, scigoErrors.Wrap(err, "read artifacts")
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, scigoErrors.Wrap(err, "scan artifact")
		}
		out = append(out, p)
	}
	return out, scigoErrors.Wrap(rows.Err(), "read artifacts")
}

func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return scigoErrors.Wrap(err, "begin transaction")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return scigoErrors.Wrap(tx.Commit(), "commit transaction")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
