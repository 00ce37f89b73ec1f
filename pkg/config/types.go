package config

import "time"

// Config represents the full tuning-run configuration, read once at
// startup and immutable for the duration of the run.
type Config struct {
	LogLevel       string          `yaml:"log_level"`
	Serial         SerialConfig    `yaml:"serial"`
	Firmware       string          `yaml:"firmware"`
	Setpoint       float64         `yaml:"setpoint"`
	RunTimeMs      int             `yaml:"experiment_total_run_time"`
	DumpRateMs     int             `yaml:"experiment_values_dump_rate"`
	Bounds         GainBounds      `yaml:"parameters_bounds"`
	Constraint     Constraint      `yaml:"constraint"`
	Optimizer      OptimizerConfig `yaml:"optimizer"`
	Trial          TrialConfig     `yaml:"trial"`
	ResultsDir     string          `yaml:"results_dir"`
	InitStatesPath string          `yaml:"init_states_path"`
	InitState      int             `yaml:"init_state"`
}

// SerialConfig describes the serial link to the embedded controller
type SerialConfig struct {
	Port          string `yaml:"port"`
	BaudRate      int    `yaml:"baud_rate"`
	ReadTimeoutMs int    `yaml:"read_timeout_ms"`
}

// ReadTimeout returns the per-trial read timeout as a duration
func (s SerialConfig) ReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeoutMs) * time.Millisecond
}

// GainBounds holds the box bounds for the PID gains
type GainBounds struct {
	KpLower float64 `yaml:"kp_lower_bound"`
	KpUpper float64 `yaml:"kp_upper_bound"`
	KiLower float64 `yaml:"ki_lower_bound"`
	KiUpper float64 `yaml:"ki_upper_bound"`
	KdLower float64 `yaml:"kd_lower_bound"`
	KdUpper float64 `yaml:"kd_upper_bound"`
}

// Constraint holds the soft-constraint caps applied by the cost function.
// Candidates violating any cap are penalized so that every infeasible
// candidate scores worse than any feasible one.
type Constraint struct {
	OvershootUpperPct   float64 `yaml:"overshoot_upper_bound"`
	RiseTimeUpperMs     float64 `yaml:"rise_time_upper_bound"`
	SettlingTimeUpperMs float64 `yaml:"settling_time_upper_bound"`
}

// OptimizerConfig selects and parameterizes the search strategy
type OptimizerConfig struct {
	Name           string  `yaml:"name"` // "de" or "bo"
	NIterations    int     `yaml:"n_iterations"`
	PopulationSize int     `yaml:"population_size"`
	MutationRate   float64 `yaml:"mutation_rate"`
	CrossoverRate  float64 `yaml:"crossover_rate"`
	InitPoints     int     `yaml:"init_points"`
	EarlyStopCost  float64 `yaml:"early_stop_cost"`
	Seed           int64   `yaml:"seed"`
}

// TrialConfig parameterizes trial evaluation and scoring
type TrialConfig struct {
	MaxRetries      int     `yaml:"max_retries"`
	RetryBackoff    string  `yaml:"retry_backoff"` // constant, linear, exponential
	RetryBaseMs     int     `yaml:"retry_base_ms"`
	RetryMaxMs      int     `yaml:"retry_max_ms"`
	PenaltyCost     float64 `yaml:"penalty_cost"`
	SettleTolerance float64 `yaml:"settle_tolerance"`
	TailWindow      float64 `yaml:"tail_window"`
}
