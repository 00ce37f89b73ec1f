// Package results persists tuning runs: an append-only CSV of trial
// rows, a trace sidecar, and a YAML summary written once at the end.
// Rows are flushed as they arrive so a crash mid-experiment loses no
// measured data.
package results

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/robotune/harness-core/internal/tuner"
	"github.com/robotune/harness-core/pkg/config"
	"github.com/robotune/harness-core/pkg/logger"
)

// csvHeader is the column layout of the run log. Existing analysis
// notebooks key on these names; do not reorder.
var csvHeader = []string{
	"timestamp", "iteration",
	"kp", "ki", "kd",
	"overshoot_pct", "rise_time_ms", "settling_time_ms", "steady_state_error_deg",
	"cost",
}

// StoreConfig describes one run's persistence
type StoreConfig struct {
	Dir        string
	Optimizer  string
	InitState  int
	Bounds     config.GainBounds
	Constraint config.Constraint
}

// Store writes one run's artifacts. Not safe for concurrent use; the
// experiment loop is strictly sequential.
type Store struct {
	cfg     StoreConfig
	runID   string
	base    string
	started time.Time

	csvFile   *os.File
	csvWriter *csv.Writer
	traces    *os.File
}

// NewStore creates the run log and trace sidecar for a fresh run. File
// names carry the start time, init state and optimizer so runs sort
// chronologically in a directory listing.
func NewStore(cfg StoreConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("results: creating %s: %w", cfg.Dir, err)
	}

	started := time.Now()
	base := fmt.Sprintf("%s_init_%d_%s", started.Format("20060102_150405"), cfg.InitState, cfg.Optimizer)

	csvFile, err := os.Create(filepath.Join(cfg.Dir, base+".csv"))
	if err != nil {
		return nil, fmt.Errorf("results: creating run log: %w", err)
	}
	w := csv.NewWriter(csvFile)
	if err := w.Write(csvHeader); err != nil {
		csvFile.Close()
		return nil, fmt.Errorf("results: writing header: %w", err)
	}
	w.Flush()

	traces, err := os.Create(filepath.Join(cfg.Dir, base+"_traces.txt"))
	if err != nil {
		csvFile.Close()
		return nil, fmt.Errorf("results: creating trace sidecar: %w", err)
	}

	s := &Store{
		cfg:       cfg,
		runID:     uuid.NewString(),
		base:      base,
		started:   started,
		csvFile:   csvFile,
		csvWriter: w,
		traces:    traces,
	}
	logger.Info("run store opened", "run_id", s.runID, "base", base, "dir", cfg.Dir)
	return s, nil
}

// RunID returns this run's unique identifier
func (s *Store) RunID() string {
	return s.runID
}

// BasePath returns the shared path prefix of this run's artifacts
func (s *Store) BasePath() string {
	return filepath.Join(s.cfg.Dir, s.base)
}

// RecordTrial appends one iteration to the run log and its trace to the
// sidecar, flushing both immediately.
func (s *Store) RecordTrial(tr tuner.TrialResult) error {
	row := []string{
		tr.Timestamp.UTC().Format(time.RFC3339),
		strconv.Itoa(tr.Iteration),
		formatGain(tr.Gains.Kp),
		formatGain(tr.Gains.Ki),
		formatGain(tr.Gains.Kd),
		formatMetric(tr.Metrics.OvershootPct),
		formatMetric(tr.Metrics.RiseTimeMs),
		formatMetric(tr.Metrics.SettlingTimeMs),
		formatMetric(tr.Metrics.SteadyStateErrorDeg),
		formatMetric(tr.Cost),
	}
	if err := s.csvWriter.Write(row); err != nil {
		return fmt.Errorf("results: writing iteration %d: %w", tr.Iteration, err)
	}
	s.csvWriter.Flush()
	if err := s.csvWriter.Error(); err != nil {
		return fmt.Errorf("results: flushing iteration %d: %w", tr.Iteration, err)
	}

	// Penalized iterations have no trace; an empty line keeps the
	// sidecar aligned with the CSV rows.
	line := make([]string, len(tr.Trace))
	for i, v := range tr.Trace {
		line[i] = strconv.FormatFloat(v, 'f', 2, 64)
	}
	if _, err := fmt.Fprintln(s.traces, strings.Join(line, ";")); err != nil {
		return fmt.Errorf("results: writing trace for iteration %d: %w", tr.Iteration, err)
	}
	return nil
}

// Summary is the per-run YAML record written once at the end
type Summary struct {
	RunID             string            `yaml:"run_id"`
	Optimizer         string            `yaml:"optimizer"`
	InitState         int               `yaml:"init_state"`
	Bounds            config.GainBounds `yaml:"bounds"`
	Constraint        config.Constraint `yaml:"constraint"`
	Iterations        int               `yaml:"iterations"`
	Trials            int               `yaml:"trials"`
	Penalized         int               `yaml:"penalized"`
	BestKp            float64           `yaml:"best_kp"`
	BestKi            float64           `yaml:"best_ki"`
	BestKd            float64           `yaml:"best_kd"`
	BestCost          float64           `yaml:"best_cost"`
	EarlyStopped      bool              `yaml:"early_stopped"`
	Converged         bool              `yaml:"converged"`
	ConvergenceReason string            `yaml:"convergence_reason,omitempty"`
	StartedAt         string            `yaml:"started_at"`
	FinishedAt        string            `yaml:"finished_at"`
	DurationSeconds   float64           `yaml:"duration_seconds"`
}

// Finalize writes the run summary. Called once, after the experiment
// reaches a clean end; a run that died mid-way keeps its partial CSV
// but gets no summary.
func (s *Store) Finalize(result tuner.RunResult) error {
	finished := s.started.Add(result.Duration)
	summary := Summary{
		RunID:             s.runID,
		Optimizer:         result.Optimizer,
		InitState:         s.cfg.InitState,
		Bounds:            s.cfg.Bounds,
		Constraint:        s.cfg.Constraint,
		Iterations:        result.Iterations,
		Trials:            result.Trials,
		Penalized:         result.Penalized,
		BestKp:            result.BestGains.Kp,
		BestKi:            result.BestGains.Ki,
		BestKd:            result.BestGains.Kd,
		BestCost:          result.BestCost,
		EarlyStopped:      result.EarlyStopped,
		Converged:         result.Converged,
		ConvergenceReason: result.ConvergenceReason,
		StartedAt:         s.started.UTC().Format(time.RFC3339),
		FinishedAt:        finished.UTC().Format(time.RFC3339),
		DurationSeconds:   result.Duration.Seconds(),
	}

	data, err := yaml.Marshal(summary)
	if err != nil {
		return fmt.Errorf("results: marshaling summary: %w", err)
	}
	path := s.BasePath() + "_summary.yaml"
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("results: writing summary: %w", err)
	}
	logger.Info("run summary written", "run_id", s.runID, "path", path)
	return nil
}

// Close releases the run's files
func (s *Store) Close() error {
	s.csvWriter.Flush()
	var firstErr error
	if err := s.csvWriter.Error(); err != nil {
		firstErr = err
	}
	if err := s.csvFile.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.traces.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func formatGain(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// formatMetric renders a metric for the CSV, writing the never-reached
// sentinel as "inf" for downstream tooling.
func formatMetric(v float64) string {
	if math.IsInf(v, 1) {
		return "inf"
	}
	return strconv.FormatFloat(v, 'f', 4, 64)
}
