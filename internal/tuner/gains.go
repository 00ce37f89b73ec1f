// Package tuner searches the PID gain space for the candidate with the
// lowest trial cost. Candidates come from pluggable optimizer adapters;
// every candidate is evaluated by driving one physical trial on the
// robot and scoring the resulting step response.
package tuner

import (
	"fmt"

	"github.com/robotune/harness-core/pkg/config"
	"github.com/robotune/harness-core/pkg/utils"
)

// Gains is one PID gain candidate
type Gains struct {
	Kp float64
	Ki float64
	Kd float64
}

func (g Gains) String() string {
	return fmt.Sprintf("kp=%.4f ki=%.4f kd=%.4f", g.Kp, g.Ki, g.Kd)
}

// Interval is one closed gain range
type Interval struct {
	Lower float64
	Upper float64
}

// Bounds is the box the search is confined to. Every candidate that
// reaches the robot lies inside it.
type Bounds struct {
	Kp Interval
	Ki Interval
	Kd Interval
}

// BoundsFromConfig converts the configured bounds into the search box
func BoundsFromConfig(b config.GainBounds) Bounds {
	return Bounds{
		Kp: Interval{Lower: b.KpLower, Upper: b.KpUpper},
		Ki: Interval{Lower: b.KiLower, Upper: b.KiUpper},
		Kd: Interval{Lower: b.KdLower, Upper: b.KdUpper},
	}
}

// Clamp clips each gain to its interval
func (b Bounds) Clamp(g Gains) Gains {
	return Gains{
		Kp: utils.ClampFloat64(g.Kp, b.Kp.Lower, b.Kp.Upper),
		Ki: utils.ClampFloat64(g.Ki, b.Ki.Lower, b.Ki.Upper),
		Kd: utils.ClampFloat64(g.Kd, b.Kd.Lower, b.Kd.Upper),
	}
}

// Contains reports whether the candidate lies inside the box
func (b Bounds) Contains(g Gains) bool {
	return g.Kp >= b.Kp.Lower && g.Kp <= b.Kp.Upper &&
		g.Ki >= b.Ki.Lower && g.Ki <= b.Ki.Upper &&
		g.Kd >= b.Kd.Lower && g.Kd <= b.Kd.Upper
}

// Random draws a uniform candidate from the box
func (b Bounds) Random(rng *utils.RandSource) Gains {
	return Gains{
		Kp: rng.UniformFloat64(b.Kp.Lower, b.Kp.Upper),
		Ki: rng.UniformFloat64(b.Ki.Lower, b.Ki.Upper),
		Kd: rng.UniformFloat64(b.Kd.Lower, b.Kd.Upper),
	}
}

// vector and gainsFromVector convert between the named candidate and the
// coordinate form the optimizers work in.
func (g Gains) vector() [3]float64 {
	return [3]float64{g.Kp, g.Ki, g.Kd}
}

func gainsFromVector(v [3]float64) Gains {
	return Gains{Kp: v[0], Ki: v[1], Kd: v[2]}
}

// intervals returns the box as an indexable slice, ordered like vector()
func (b Bounds) intervals() [3]Interval {
	return [3]Interval{b.Kp, b.Ki, b.Kd}
}
