// Package telemetry models the step-response trace streamed back by the
// robot after each trial and derives the control metrics the optimizers
// score against.
package telemetry

import "math"

// Trace is a time-ordered sequence of heading samples in degrees.
// Samples arrive once per dump interval; index order is time order.
type Trace []float64

// Peak returns the sample farthest in the setpoint's direction.
// For a positive setpoint that is the maximum sample, for a negative
// setpoint the minimum.
func (t Trace) Peak(setpoint float64) float64 {
	if len(t) == 0 {
		return 0
	}
	peak := t[0]
	for _, v := range t[1:] {
		if setpoint >= 0 && v > peak {
			peak = v
		}
		if setpoint < 0 && v < peak {
			peak = v
		}
	}
	return peak
}

// NormalizeAngle wraps an angle in degrees into [-180, 180]
func NormalizeAngle(deg float64) float64 {
	wrapped := math.Mod(deg+180, 360)
	if wrapped < 0 {
		wrapped += 360
	}
	return wrapped - 180
}
