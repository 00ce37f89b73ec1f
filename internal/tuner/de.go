package tuner

import (
	"math"

	"github.com/robotune/harness-core/pkg/utils"
)

// DEConfig parameterizes the differential evolution strategy
type DEConfig struct {
	PopulationSize int
	// MutationRate is the differential weight F applied to the
	// difference vector.
	MutationRate float64
	// CrossoverRate is the per-coordinate probability of taking the
	// mutant's value.
	CrossoverRate float64
	Bounds        Bounds
	InitState     Gains
}

// DifferentialEvolution is a rand/1/bin DE strategy adapted to the
// one-candidate-at-a-time trial loop. The initial population is the
// selected init state plus uniform random members; afterwards each Ask
// produces the trial vector for the next target slot and Tell applies
// greedy replacement.
type DifferentialEvolution struct {
	cfg DEConfig
	rng *utils.RandSource

	population []Gains
	costs      []float64
	cursor     int
	seeding    bool

	best     Gains
	bestCost float64
}

// NewDifferentialEvolution builds the strategy with a freshly seeded
// population. PopulationSize below four is rejected by config
// validation before this is reached.
func NewDifferentialEvolution(cfg DEConfig, rng *utils.RandSource) *DifferentialEvolution {
	population := make([]Gains, cfg.PopulationSize)
	costs := make([]float64, cfg.PopulationSize)
	population[0] = cfg.Bounds.Clamp(cfg.InitState)
	for i := 1; i < cfg.PopulationSize; i++ {
		population[i] = cfg.Bounds.Random(rng)
	}
	for i := range costs {
		costs[i] = math.Inf(1)
	}
	return &DifferentialEvolution{
		cfg:        cfg,
		rng:        rng,
		population: population,
		costs:      costs,
		seeding:    true,
		bestCost:   math.Inf(1),
	}
}

func (d *DifferentialEvolution) Name() string { return "de" }

// Ask returns the next candidate: an unevaluated seed member during the
// initial pass, then the trial vector for the current target slot.
func (d *DifferentialEvolution) Ask() Gains {
	if d.seeding {
		return d.population[d.cursor]
	}
	return d.trialVector(d.cursor)
}

// Tell records the candidate's cost. During seeding it fills the slot;
// afterwards the trial vector replaces the target only if it does not
// score worse.
func (d *DifferentialEvolution) Tell(g Gains, cost float64) {
	if d.seeding {
		d.population[d.cursor] = g
		d.costs[d.cursor] = cost
	} else if cost <= d.costs[d.cursor] {
		d.population[d.cursor] = g
		d.costs[d.cursor] = cost
	}

	if cost < d.bestCost {
		d.best = g
		d.bestCost = cost
	}

	d.cursor++
	if d.cursor == len(d.population) {
		d.cursor = 0
		d.seeding = false
	}
}

// Best returns the lowest-cost candidate observed so far
func (d *DifferentialEvolution) Best() (Gains, float64) {
	return d.best, d.bestCost
}

// trialVector builds the rand/1/bin candidate for the target slot:
// mutate three distinct donors, then binomially cross with the target.
func (d *DifferentialEvolution) trialVector(target int) Gains {
	donors := d.rng.DistinctIntn(len(d.population), 3, target)
	a := d.population[donors[0]].vector()
	b := d.population[donors[1]].vector()
	c := d.population[donors[2]].vector()
	base := d.population[target].vector()
	intervals := d.cfg.Bounds.intervals()

	// One coordinate always comes from the mutant so the trial vector
	// never degenerates into a copy of the target.
	forced := d.rng.Intn(3)

	var trial [3]float64
	for j := 0; j < 3; j++ {
		mutant := a[j] + d.cfg.MutationRate*(b[j]-c[j])
		mutant = utils.ClampFloat64(mutant, intervals[j].Lower, intervals[j].Upper)
		if j == forced || d.rng.Float64() < d.cfg.CrossoverRate {
			trial[j] = mutant
		} else {
			trial[j] = base[j]
		}
	}
	return gainsFromVector(trial)
}
