package tuner

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/robotune/harness-core/internal/telemetry"
	"github.com/robotune/harness-core/internal/transport"
	"github.com/robotune/harness-core/pkg/config"
	"github.com/robotune/harness-core/pkg/logger"
	"github.com/robotune/harness-core/pkg/utils"
)

// Transport is the trial runner the cost function drives. Satisfied by
// *transport.Conn and by fakes in tests.
type Transport interface {
	RunTrial(req transport.Request, timeout time.Duration) (telemetry.Trace, error)
}

// CostWeights scales each metric's contribution to the base cost. Each
// metric is normalized by its constraint cap before weighting, so a
// candidate sitting exactly on every cap scores near the sum of the
// weights.
type CostWeights struct {
	Overshoot        float64
	RiseTime         float64
	SettlingTime     float64
	SteadyStateError float64
	// ConstraintPenalty is added once per violated cap. It dominates
	// any feasible base cost so infeasible candidates always rank last.
	ConstraintPenalty float64
}

// DefaultCostWeights returns the scoring defaults
func DefaultCostWeights() CostWeights {
	return CostWeights{
		Overshoot:         0.5,
		RiseTime:          1.0,
		SettlingTime:      1.0,
		SteadyStateError:  1.0,
		ConstraintPenalty: 1000,
	}
}

// infeasibleNormalized stands in for a metric that never happened
// (+Inf rise or settling time) in the base cost. The real ranking work
// for such candidates is done by the constraint penalty.
const infeasibleNormalized = 10.0

// CostConfig assembles everything Evaluate needs besides the transport
type CostConfig struct {
	Bounds     Bounds
	Setpoint   float64
	RunTimeMs  int
	DumpRateMs int
	Timeout    time.Duration
	Constraint config.Constraint
	Weights    CostWeights
	Metric     telemetry.Options

	// MaxRetries is the total transport attempt budget per candidate
	MaxRetries  int
	Backoff     utils.BackoffStrategy
	PenaltyCost float64
}

// Evaluation is the full outcome of scoring one candidate
type Evaluation struct {
	Gains    Gains // as dispatched, after clamping
	Cost     float64
	Metrics  telemetry.Metrics
	Trace    telemetry.Trace
	Attempts int
	// Penalized marks a candidate whose trials all failed; Cost is the
	// fixed penalty and Metrics/Trace are empty.
	Penalized bool
}

// CostFunction turns a gain candidate into a scalar cost by running one
// physical trial and scoring the step response. Transport failures are
// retried with backoff; exhaustion yields the fixed finite penalty cost
// so the optimizer never sees an error, NaN or infinity.
type CostFunction struct {
	transport Transport
	cfg       CostConfig
	sleep     func(time.Duration)
}

// NewCostFunction builds a cost function over the given transport
func NewCostFunction(t Transport, cfg CostConfig) *CostFunction {
	if cfg.Weights == (CostWeights{}) {
		cfg.Weights = DefaultCostWeights()
	}
	if cfg.PenaltyCost <= 0 {
		cfg.PenaltyCost = 1e6
	}
	if cfg.Backoff == nil {
		cfg.Backoff = utils.NewConstantBackoff(time.Second)
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &CostFunction{transport: t, cfg: cfg, sleep: time.Sleep}
}

// Evaluate runs one trial for the candidate and returns its cost. The
// candidate is clamped to the bounds before it reaches the robot. Only
// non-recoverable harness errors are returned; any transport failure is
// absorbed into the penalty cost after the retry budget runs out.
func (c *CostFunction) Evaluate(g Gains) (Evaluation, error) {
	clamped := c.cfg.Bounds.Clamp(g)
	if clamped != g {
		logger.Debug("candidate clamped to bounds", "from", g.String(), "to", clamped.String())
	}

	req := transport.Request{
		Kp:         clamped.Kp,
		Ki:         clamped.Ki,
		Kd:         clamped.Kd,
		RunTimeMs:  c.cfg.RunTimeMs,
		DumpRateMs: c.cfg.DumpRateMs,
	}

	var trace telemetry.Trace
	attempts := 0
	for {
		var err error
		trace, err = c.transport.RunTrial(req, c.cfg.Timeout)
		attempts++
		if err == nil {
			break
		}

		var terr *transport.TransportError
		if !errors.As(err, &terr) {
			return Evaluation{}, fmt.Errorf("tuner: trial failed: %w", err)
		}
		if attempts >= c.cfg.MaxRetries {
			logger.Warn("trial retries exhausted, assigning penalty cost",
				"gains", clamped.String(), "attempts", attempts, "last_error", terr)
			return Evaluation{
				Gains:     clamped,
				Cost:      c.cfg.PenaltyCost,
				Attempts:  attempts,
				Penalized: true,
			}, nil
		}

		delay := c.cfg.Backoff.NextDelay(attempts - 1)
		logger.Warn("trial failed, retrying",
			"gains", clamped.String(), "attempt", attempts, "kind", terr.Kind, "backoff", delay)
		c.sleep(delay)
	}

	metrics, err := telemetry.Compute(trace, c.cfg.Setpoint, float64(c.cfg.DumpRateMs), c.cfg.Metric)
	if err != nil {
		return Evaluation{}, fmt.Errorf("tuner: scoring trial: %w", err)
	}

	return Evaluation{
		Gains:    clamped,
		Cost:     c.score(metrics),
		Metrics:  metrics,
		Trace:    trace,
		Attempts: attempts,
	}, nil
}

// score folds the four metrics into one scalar: a weighted sum of
// cap-normalized terms plus one penalty per violated constraint.
func (c *CostFunction) score(m telemetry.Metrics) float64 {
	w := c.cfg.Weights
	con := c.cfg.Constraint

	cost := w.Overshoot*normalized(m.OvershootPct, con.OvershootUpperPct) +
		w.RiseTime*normalized(m.RiseTimeMs, con.RiseTimeUpperMs) +
		w.SettlingTime*normalized(m.SettlingTimeMs, con.SettlingTimeUpperMs) +
		w.SteadyStateError*normalized(m.SteadyStateErrorDeg, math.Abs(c.cfg.Setpoint))

	if m.OvershootPct > con.OvershootUpperPct {
		cost += w.ConstraintPenalty
	}
	if m.RiseTimeMs > con.RiseTimeUpperMs {
		cost += w.ConstraintPenalty
	}
	if m.SettlingTimeMs > con.SettlingTimeUpperMs {
		cost += w.ConstraintPenalty
	}
	return cost
}

// normalized scales a metric by its cap. A never-reached sentinel
// contributes a fixed large term instead of propagating infinity.
func normalized(value, scale float64) float64 {
	if math.IsInf(value, 1) {
		return infeasibleNormalized
	}
	if scale <= 0 {
		return value
	}
	return value / scale
}
