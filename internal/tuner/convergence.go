package tuner

import (
	"fmt"

	"github.com/robotune/harness-core/pkg/utils"
)

// ConvergenceStrategy decides when the search has stopped making
// progress, based on the per-iteration cost history.
type ConvergenceStrategy interface {
	// CheckConvergence inspects the cost history and reports whether
	// the search has converged, with a human-readable reason.
	CheckConvergence(costs []float64) (bool, string)
	// Name returns the name of the convergence strategy
	Name() string
}

// ConvergenceConfig holds configuration for convergence detection
type ConvergenceConfig struct {
	// NoImprovementIterations is how many iterations without a new
	// best before stopping.
	NoImprovementIterations int
	// CostTolerance is the absolute spread under which recent costs
	// count as a plateau.
	CostTolerance float64
	// MinIterations gates any convergence decision; a physical trial
	// is noisy, so the first few costs prove nothing.
	MinIterations int
	// PlateauIterations is the window checked for a plateau
	PlateauIterations int
}

// DefaultConvergenceConfig returns the detection defaults
func DefaultConvergenceConfig() *ConvergenceConfig {
	return &ConvergenceConfig{
		NoImprovementIterations: 10,
		CostTolerance:           0.001,
		MinIterations:           5,
		PlateauIterations:       8,
	}
}

// NoImprovementStrategy converges when no new best cost has appeared
// for N iterations.
type NoImprovementStrategy struct {
	config *ConvergenceConfig
}

// NewNoImprovementStrategy creates a new no-improvement strategy
func NewNoImprovementStrategy(config *ConvergenceConfig) *NoImprovementStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &NoImprovementStrategy{config: config}
}

func (s *NoImprovementStrategy) Name() string {
	return "no_improvement"
}

func (s *NoImprovementStrategy) CheckConvergence(costs []float64) (bool, string) {
	if len(costs) < s.config.MinIterations {
		return false, ""
	}

	bestIteration := 0
	for i, c := range costs {
		if c < costs[bestIteration] {
			bestIteration = i
		}
	}

	sinceBest := len(costs) - 1 - bestIteration
	if sinceBest >= s.config.NoImprovementIterations {
		return true, fmt.Sprintf("no improvement for %d iterations (best at iteration %d)", sinceBest, bestIteration)
	}
	return false, ""
}

// PlateauStrategy converges when the recent costs all sit within the
// tolerance of each other.
type PlateauStrategy struct {
	config *ConvergenceConfig
}

// NewPlateauStrategy creates a new plateau strategy
func NewPlateauStrategy(config *ConvergenceConfig) *PlateauStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &PlateauStrategy{config: config}
}

func (s *PlateauStrategy) Name() string {
	return "plateau"
}

func (s *PlateauStrategy) CheckConvergence(costs []float64) (bool, string) {
	if len(costs) < s.config.MinIterations || len(costs) < s.config.PlateauIterations {
		return false, ""
	}

	recent := costs[len(costs)-s.config.PlateauIterations:]
	low, high := recent[0], recent[0]
	for _, c := range recent[1:] {
		low = utils.MinFloat64(low, c)
		high = utils.MaxFloat64(high, c)
	}
	spread := high - low
	if spread <= s.config.CostTolerance {
		return true, fmt.Sprintf("cost plateaued for %d iterations (spread: %.6f)", s.config.PlateauIterations, spread)
	}
	return false, ""
}

// CombinedStrategy converges as soon as any member strategy does
type CombinedStrategy struct {
	strategies []ConvergenceStrategy
}

// NewCombinedStrategy builds the default detector: no-improvement plus
// plateau.
func NewCombinedStrategy(config *ConvergenceConfig) *CombinedStrategy {
	if config == nil {
		config = DefaultConvergenceConfig()
	}
	return &CombinedStrategy{
		strategies: []ConvergenceStrategy{
			NewNoImprovementStrategy(config),
			NewPlateauStrategy(config),
		},
	}
}

func (s *CombinedStrategy) Name() string {
	return "combined"
}

func (s *CombinedStrategy) CheckConvergence(costs []float64) (bool, string) {
	for _, strategy := range s.strategies {
		if converged, reason := strategy.CheckConvergence(costs); converged {
			return true, fmt.Sprintf("%s: %s", strategy.Name(), reason)
		}
	}
	return false, ""
}
