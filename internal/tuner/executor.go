package tuner

import (
	"context"
	"fmt"
	"time"

	"github.com/robotune/harness-core/pkg/logger"
)

// TrialResult is one completed iteration: the candidate as dispatched
// and everything observed about it.
type TrialResult struct {
	Iteration int
	Timestamp time.Time
	Evaluation
}

// Recorder persists trial results as they happen. Implemented by the
// results store; rows must be durable immediately so a crash
// mid-experiment loses nothing already measured.
type Recorder interface {
	RecordTrial(TrialResult) error
}

// RunResult summarizes a finished experiment
type RunResult struct {
	Optimizer         string
	BestGains         Gains
	BestCost          float64
	Iterations        int
	Trials            int // physical trials, including retries
	Penalized         int // iterations that burned their retry budget
	EarlyStopped      bool
	Converged         bool
	ConvergenceReason string
	Duration          time.Duration
}

// ExecutorConfig parameterizes the experiment loop
type ExecutorConfig struct {
	NIterations int
	// EarlyStopCost ends the experiment as soon as the best cost drops
	// to this value or below. Zero disables early stopping.
	EarlyStopCost float64
	// Convergence is optional; nil means run the full budget
	Convergence ConvergenceStrategy
}

// Executor owns the experiment loop: ask the optimizer, evaluate the
// candidate on the robot, observe the cost, persist the row. Strictly
// sequential because there is one robot and one serial port.
type Executor struct {
	cost      *CostFunction
	optimizer Optimizer
	recorder  Recorder
	cfg       ExecutorConfig
}

// NewExecutor wires the loop together. recorder may be nil to run
// without persistence (tests do).
func NewExecutor(cost *CostFunction, optimizer Optimizer, recorder Recorder, cfg ExecutorConfig) *Executor {
	return &Executor{cost: cost, optimizer: optimizer, recorder: recorder, cfg: cfg}
}

// Run executes the experiment until the iteration budget is spent, the
// early-stop cost is reached, the convergence detector fires, or the
// context is cancelled. On a fatal error the partial result is returned
// alongside it; every completed iteration has already been persisted.
func (e *Executor) Run(ctx context.Context) (RunResult, error) {
	start := time.Now()
	result := RunResult{Optimizer: e.optimizer.Name()}
	history := make([]float64, 0, e.cfg.NIterations)

	logger.Info("experiment started",
		"optimizer", e.optimizer.Name(), "n_iterations", e.cfg.NIterations)

	for i := 0; i < e.cfg.NIterations; i++ {
		if err := ctx.Err(); err != nil {
			return e.finish(result, start), fmt.Errorf("tuner: experiment cancelled: %w", err)
		}

		candidate := e.optimizer.Ask()
		ev, err := e.cost.Evaluate(candidate)
		if err != nil {
			return e.finish(result, start), err
		}

		e.optimizer.Tell(ev.Gains, ev.Cost)
		result.Iterations++
		result.Trials += ev.Attempts
		if ev.Penalized {
			result.Penalized++
		}
		history = append(history, ev.Cost)

		trial := TrialResult{Iteration: i, Timestamp: time.Now(), Evaluation: ev}
		if e.recorder != nil {
			if err := e.recorder.RecordTrial(trial); err != nil {
				return e.finish(result, start), fmt.Errorf("tuner: persisting iteration %d: %w", i, err)
			}
		}

		best, bestCost := e.optimizer.Best()
		logger.Info("iteration observed",
			"iteration", i, "gains", ev.Gains.String(), "cost", ev.Cost,
			"best", best.String(), "best_cost", bestCost)

		if e.cfg.EarlyStopCost > 0 && bestCost <= e.cfg.EarlyStopCost {
			logger.Info("early stop: cost limit reached",
				"best_cost", bestCost, "limit", e.cfg.EarlyStopCost)
			result.EarlyStopped = true
			break
		}
		if e.cfg.Convergence != nil {
			if converged, reason := e.cfg.Convergence.CheckConvergence(history); converged {
				logger.Info("early stop: converged", "reason", reason)
				result.Converged = true
				result.ConvergenceReason = reason
				break
			}
		}
	}

	return e.finish(result, start), nil
}

func (e *Executor) finish(result RunResult, start time.Time) RunResult {
	result.BestGains, result.BestCost = e.optimizer.Best()
	result.Duration = time.Since(start)
	return result
}
