package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Optimizer names accepted by the optimizer.name key
const (
	OptimizerDifferentialEvolution = "de"
	OptimizerBayesian              = "bo"
)

// ParseYAML parses a Config from YAML bytes, applies defaults and
// validates it. Validation failures here are fatal: a run never starts
// with a partially valid configuration.
func ParseYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config yaml: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Serial.BaudRate == 0 {
		cfg.Serial.BaudRate = 9600
	}
	if cfg.Serial.ReadTimeoutMs == 0 {
		// One rotation plus margin; the robot executes the whole
		// run_time before the batch arrives.
		cfg.Serial.ReadTimeoutMs = 30000
	}
	if cfg.Firmware == "" {
		cfg.Firmware = "rev-a"
	}
	if cfg.Setpoint == 0 {
		cfg.Setpoint = 90
	}
	if cfg.RunTimeMs == 0 {
		cfg.RunTimeMs = 5000
	}
	if cfg.DumpRateMs == 0 {
		cfg.DumpRateMs = 100
	}
	if cfg.Constraint.OvershootUpperPct == 0 {
		cfg.Constraint.OvershootUpperPct = 30
	}
	if cfg.Constraint.RiseTimeUpperMs == 0 {
		cfg.Constraint.RiseTimeUpperMs = 1000
	}
	if cfg.Constraint.SettlingTimeUpperMs == 0 {
		cfg.Constraint.SettlingTimeUpperMs = 2500
	}
	if cfg.Optimizer.NIterations == 0 {
		cfg.Optimizer.NIterations = 30
	}
	if cfg.Optimizer.PopulationSize == 0 {
		cfg.Optimizer.PopulationSize = 6
	}
	if cfg.Optimizer.MutationRate == 0 {
		cfg.Optimizer.MutationRate = 0.6
	}
	if cfg.Optimizer.CrossoverRate == 0 {
		cfg.Optimizer.CrossoverRate = 0.6
	}
	if cfg.Optimizer.InitPoints == 0 {
		cfg.Optimizer.InitPoints = 3
	}
	if cfg.Trial.MaxRetries == 0 {
		cfg.Trial.MaxRetries = 3
	}
	if cfg.Trial.RetryBackoff == "" {
		cfg.Trial.RetryBackoff = "constant"
	}
	if cfg.Trial.RetryBaseMs == 0 {
		cfg.Trial.RetryBaseMs = 500
	}
	if cfg.Trial.PenaltyCost == 0 {
		cfg.Trial.PenaltyCost = 1e6
	}
	if cfg.Trial.SettleTolerance == 0 {
		cfg.Trial.SettleTolerance = 0.02
	}
	if cfg.Trial.TailWindow == 0 {
		cfg.Trial.TailWindow = 0.1
	}
	if cfg.ResultsDir == "" {
		cfg.ResultsDir = "results"
	}
}

func validate(cfg *Config) error {
	if cfg.Serial.Port == "" {
		return fmt.Errorf("serial.port must be set")
	}
	if cfg.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be positive, got %d", cfg.Serial.BaudRate)
	}
	if cfg.DumpRateMs <= 0 {
		return fmt.Errorf("experiment_values_dump_rate must be positive, got %d", cfg.DumpRateMs)
	}
	if cfg.RunTimeMs <= 0 {
		return fmt.Errorf("experiment_total_run_time must be positive, got %d", cfg.RunTimeMs)
	}
	if cfg.RunTimeMs%cfg.DumpRateMs != 0 {
		return fmt.Errorf("experiment_total_run_time (%d) must be divisible by experiment_values_dump_rate (%d)", cfg.RunTimeMs, cfg.DumpRateMs)
	}

	if err := validateBounds(&cfg.Bounds); err != nil {
		return err
	}

	switch cfg.Optimizer.Name {
	case OptimizerDifferentialEvolution, OptimizerBayesian:
	case "":
		return fmt.Errorf("optimizer.name must be set (de or bo)")
	default:
		return fmt.Errorf("unknown optimizer: %s (must be de or bo)", cfg.Optimizer.Name)
	}

	if cfg.Optimizer.NIterations <= 0 {
		return fmt.Errorf("optimizer.n_iterations must be positive, got %d", cfg.Optimizer.NIterations)
	}
	if cfg.Optimizer.PopulationSize < 4 {
		return fmt.Errorf("optimizer.population_size must be at least 4, got %d", cfg.Optimizer.PopulationSize)
	}
	if cfg.Optimizer.MutationRate <= 0 || cfg.Optimizer.MutationRate > 2 {
		return fmt.Errorf("optimizer.mutation_rate must be in (0, 2], got %f", cfg.Optimizer.MutationRate)
	}
	if cfg.Optimizer.CrossoverRate <= 0 || cfg.Optimizer.CrossoverRate > 1 {
		return fmt.Errorf("optimizer.crossover_rate must be in (0, 1], got %f", cfg.Optimizer.CrossoverRate)
	}

	if cfg.Trial.MaxRetries < 0 {
		return fmt.Errorf("trial.max_retries cannot be negative, got %d", cfg.Trial.MaxRetries)
	}
	if cfg.Trial.PenaltyCost <= 0 {
		return fmt.Errorf("trial.penalty_cost must be positive, got %f", cfg.Trial.PenaltyCost)
	}
	if cfg.Trial.SettleTolerance <= 0 || cfg.Trial.SettleTolerance >= 1 {
		return fmt.Errorf("trial.settle_tolerance must be in (0, 1), got %f", cfg.Trial.SettleTolerance)
	}
	if cfg.Trial.TailWindow <= 0 || cfg.Trial.TailWindow > 1 {
		return fmt.Errorf("trial.tail_window must be in (0, 1], got %f", cfg.Trial.TailWindow)
	}

	if cfg.InitState < 0 {
		return fmt.Errorf("init_state cannot be negative, got %d", cfg.InitState)
	}

	return nil
}

func validateBounds(b *GainBounds) error {
	pairs := []struct {
		name         string
		lower, upper float64
	}{
		{"kp", b.KpLower, b.KpUpper},
		{"ki", b.KiLower, b.KiUpper},
		{"kd", b.KdLower, b.KdUpper},
	}
	for _, p := range pairs {
		if p.upper <= p.lower {
			return fmt.Errorf("parameters_bounds: %s upper bound (%f) must exceed lower bound (%f)", p.name, p.upper, p.lower)
		}
	}
	return nil
}
