package telemetry

import (
	"fmt"
	"math"

	"github.com/robotune/harness-core/pkg/utils"
)

// Metrics holds the four step-response figures derived from one trace.
// Rise and settling time use +Inf as the never-reached sentinel.
type Metrics struct {
	OvershootPct        float64
	RiseTimeMs          float64
	SettlingTimeMs      float64
	SteadyStateErrorDeg float64
}

// Options parameterizes metric extraction
type Options struct {
	// SettleTolerance is the half-width of the settling band as a
	// fraction of the setpoint (0.02 = +/-2%).
	SettleTolerance float64
	// TailWindow is the fraction of trailing samples averaged for the
	// steady-state error (0.1 = last 10%).
	TailWindow float64
}

// DefaultOptions returns the extraction defaults used by the harness
func DefaultOptions() Options {
	return Options{
		SettleTolerance: 0.02,
		TailWindow:      0.1,
	}
}

// Compute derives all four metrics from a trace. It is a pure function:
// the same trace, setpoint and options always produce the same metrics.
func Compute(trace Trace, setpoint float64, dumpRateMs float64, opts Options) (Metrics, error) {
	if len(trace) == 0 {
		return Metrics{}, fmt.Errorf("telemetry: trace is empty")
	}
	if setpoint == 0 {
		return Metrics{}, fmt.Errorf("telemetry: setpoint cannot be zero")
	}
	if dumpRateMs <= 0 {
		return Metrics{}, fmt.Errorf("telemetry: dump rate must be positive, got %f", dumpRateMs)
	}
	if opts.SettleTolerance <= 0 || opts.TailWindow <= 0 {
		opts = DefaultOptions()
	}

	return Metrics{
		OvershootPct:        Overshoot(trace, setpoint),
		RiseTimeMs:          RiseTime(trace, setpoint, dumpRateMs),
		SettlingTimeMs:      SettlingTime(trace, setpoint, dumpRateMs, opts.SettleTolerance),
		SteadyStateErrorDeg: SteadyStateError(trace, setpoint, opts.TailWindow),
	}, nil
}

// Overshoot returns the peak excursion beyond the setpoint as a
// percentage of the setpoint. Direction is normalized away: a response
// that never crosses the setpoint has zero overshoot.
func Overshoot(trace Trace, setpoint float64) float64 {
	peak := trace.Peak(setpoint)

	var excess float64
	if setpoint > 0 {
		excess = peak - setpoint
	} else {
		excess = setpoint - peak
	}
	if excess <= 0 {
		return 0
	}
	return excess / math.Abs(setpoint) * 100
}

// RiseTime returns the elapsed time until the response first reaches
// 90% of the setpoint, or +Inf if it never does.
func RiseTime(trace Trace, setpoint float64, dumpRateMs float64) float64 {
	threshold := 0.9 * setpoint
	for i, v := range trace {
		if setpoint > 0 && v >= threshold {
			return float64(i) * dumpRateMs
		}
		if setpoint < 0 && v <= threshold {
			return float64(i) * dumpRateMs
		}
	}
	return math.Inf(1)
}

// SettlingTime returns the elapsed time until the response enters the
// tolerance band around the setpoint and stays inside it through the
// end of the trace, or +Inf if the trace ends outside the band.
func SettlingTime(trace Trace, setpoint float64, dumpRateMs float64, tolerance float64) float64 {
	band := math.Abs(setpoint) * tolerance
	inside := func(v float64) bool {
		return math.Abs(v-setpoint) <= band
	}

	if !inside(trace[len(trace)-1]) {
		return math.Inf(1)
	}

	// Walk backwards to the first sample from which the trace never
	// leaves the band again.
	settled := len(trace) - 1
	for settled > 0 && inside(trace[settled-1]) {
		settled--
	}
	return float64(settled) * dumpRateMs
}

// SteadyStateError returns the absolute offset between the mean of the
// trailing window and the setpoint.
func SteadyStateError(trace Trace, setpoint float64, tailWindow float64) float64 {
	k := int(float64(len(trace)) * tailWindow)
	if k < 1 {
		k = 1
	}
	tail := trace[len(trace)-k:]
	return math.Abs(utils.Mean(tail) - setpoint)
}

// IntegralSquaredError sums the squared error over the trailing
// proportion of the error series. Kept for run analysis; the cost
// function scores on the four headline metrics.
func IntegralSquaredError(errors []float64, tailProportion float64) float64 {
	if len(errors) == 0 {
		return 0
	}
	if tailProportion <= 0 || tailProportion > 1 {
		tailProportion = 0.5
	}
	start := len(errors) - int(float64(len(errors))*tailProportion)
	if start < 0 {
		start = 0
	}
	sum := 0.0
	for _, e := range errors[start:] {
		sum += e * e
	}
	return sum
}
