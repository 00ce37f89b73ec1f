package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/robotune/harness-core/internal/results"
	"github.com/robotune/harness-core/internal/telemetry"
	"github.com/robotune/harness-core/internal/transport"
	"github.com/robotune/harness-core/internal/tuner"
	"github.com/robotune/harness-core/pkg/config"
	"github.com/robotune/harness-core/pkg/logger"
	"github.com/robotune/harness-core/pkg/utils"
)

func main() {
	var configPath string
	var optimizerName string
	var logLevel string

	flag.StringVar(&configPath, "config", "configurations.yaml", "path to the configuration file")
	flag.StringVar(&optimizerName, "optimizer", "", "override the configured optimizer (de or bo)")
	flag.StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load configuration", "path", configPath, "error", err)
		os.Exit(1)
	}
	if optimizerName != "" {
		cfg.Optimizer.Name = optimizerName
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger.SetDefault(logger.NewText(cfg.LogLevel, os.Stdout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("tuning run failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	states, err := config.LoadInitStates(cfg.InitStatesPath)
	if err != nil {
		return err
	}
	state, err := config.SelectInitState(states, cfg.InitState)
	if err != nil {
		return err
	}
	initState := tuner.Gains{Kp: state[0], Ki: state[1], Kd: state[2]}

	firmware, err := transport.LookupFirmware(cfg.Firmware)
	if err != nil {
		return err
	}
	conn, err := transport.Open(cfg.Serial, firmware)
	if err != nil {
		return err
	}
	defer conn.Close()
	logger.Info("serial port open",
		"port", cfg.Serial.Port, "baud_rate", cfg.Serial.BaudRate, "firmware", firmware.Name)

	bounds := tuner.BoundsFromConfig(cfg.Bounds)
	cost := tuner.NewCostFunction(conn, tuner.CostConfig{
		Bounds:     bounds,
		Setpoint:   cfg.Setpoint,
		RunTimeMs:  cfg.RunTimeMs,
		DumpRateMs: cfg.DumpRateMs,
		Timeout:    cfg.Serial.ReadTimeout(),
		Constraint: cfg.Constraint,
		Metric: telemetry.Options{
			SettleTolerance: cfg.Trial.SettleTolerance,
			TailWindow:      cfg.Trial.TailWindow,
		},
		MaxRetries:  cfg.Trial.MaxRetries,
		Backoff:     utils.BackoffFromConfig(cfg.Trial.RetryBackoff, cfg.Trial.RetryBaseMs, cfg.Trial.RetryMaxMs),
		PenaltyCost: cfg.Trial.PenaltyCost,
	})

	optimizer, err := tuner.NewOptimizer(cfg.Optimizer, bounds, initState)
	if err != nil {
		return err
	}

	store, err := results.NewStore(results.StoreConfig{
		Dir:        cfg.ResultsDir,
		Optimizer:  optimizer.Name(),
		InitState:  cfg.InitState,
		Bounds:     cfg.Bounds,
		Constraint: cfg.Constraint,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	executor := tuner.NewExecutor(cost, optimizer, store, tuner.ExecutorConfig{
		NIterations:   cfg.Optimizer.NIterations,
		EarlyStopCost: cfg.Optimizer.EarlyStopCost,
		Convergence:   tuner.NewCombinedStrategy(nil),
	})

	result, err := executor.Run(ctx)
	if err != nil {
		// Rows already written stay on disk; only the summary is
		// skipped for a run that died mid-way.
		return err
	}
	if err := store.Finalize(result); err != nil {
		return err
	}

	logger.Info("tuning run complete",
		"run_id", store.RunID(),
		"best_gains", result.BestGains.String(),
		"best_cost", result.BestCost,
		"iterations", result.Iterations,
		"trials", result.Trials,
		"early_stopped", result.EarlyStopped,
		"converged", result.Converged,
		"duration", result.Duration)
	return nil
}
