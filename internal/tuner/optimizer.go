package tuner

import (
	"fmt"

	"github.com/robotune/harness-core/pkg/config"
	"github.com/robotune/harness-core/pkg/utils"
)

// Optimizer proposes gain candidates and learns from their costs. The
// executor drives it strictly sequentially: one Ask, one trial, one
// Tell. Every candidate returned by Ask lies inside the search bounds.
type Optimizer interface {
	// Ask returns the next candidate to evaluate
	Ask() Gains
	// Tell reports the cost observed for a candidate returned by Ask
	Tell(g Gains, cost float64)
	// Best returns the lowest-cost candidate observed so far
	Best() (Gains, float64)
	// Name identifies the strategy in logs and result files
	Name() string
}

// NewOptimizer builds the configured search strategy. The init state's
// gains seed the search in both strategies.
func NewOptimizer(cfg config.OptimizerConfig, bounds Bounds, initState Gains) (Optimizer, error) {
	rng := utils.NewRandSource(cfg.Seed)
	switch cfg.Name {
	case config.OptimizerDifferentialEvolution:
		return NewDifferentialEvolution(DEConfig{
			PopulationSize: cfg.PopulationSize,
			MutationRate:   cfg.MutationRate,
			CrossoverRate:  cfg.CrossoverRate,
			Bounds:         bounds,
			InitState:      initState,
		}, rng), nil
	case config.OptimizerBayesian:
		return NewBayesianOptimizer(BOConfig{
			InitPoints: cfg.InitPoints,
			Bounds:     bounds,
			InitState:  initState,
		}, rng), nil
	default:
		return nil, fmt.Errorf("tuner: unknown optimizer %q", cfg.Name)
	}
}
