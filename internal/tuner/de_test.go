package tuner

import (
	"math"
	"testing"

	"github.com/robotune/harness-core/pkg/utils"
)

func testDEConfig() DEConfig {
	return DEConfig{
		PopulationSize: 6,
		MutationRate:   0.6,
		CrossoverRate:  0.6,
		Bounds:         testBounds(),
		InitState:      Gains{Kp: 10, Ki: 1, Kd: 1},
	}
}

// sphere is a synthetic cost with its minimum inside the test bounds
func sphere(g Gains) float64 {
	dp := g.Kp - 25
	di := g.Ki - 2
	dd := g.Kd - 3
	return dp*dp + di*di + dd*dd
}

func TestDESeedsPopulationWithInitState(t *testing.T) {
	de := NewDifferentialEvolution(testDEConfig(), utils.NewRandSource(1))

	first := de.Ask()
	if first != (Gains{Kp: 10, Ki: 1, Kd: 1}) {
		t.Errorf("first candidate = %+v, want the init state", first)
	}
}

func TestDEClampsOutOfBoundsInitState(t *testing.T) {
	cfg := testDEConfig()
	cfg.InitState = Gains{Kp: 500, Ki: -1, Kd: 1}
	de := NewDifferentialEvolution(cfg, utils.NewRandSource(1))

	first := de.Ask()
	if !cfg.Bounds.Contains(first) {
		t.Errorf("seed candidate %+v outside bounds", first)
	}
}

func TestDECandidatesStayInBounds(t *testing.T) {
	cfg := testDEConfig()
	de := NewDifferentialEvolution(cfg, utils.NewRandSource(7))
	rng := utils.NewRandSource(8)

	for i := 0; i < 300; i++ {
		g := de.Ask()
		if !cfg.Bounds.Contains(g) {
			t.Fatalf("iteration %d: candidate %+v outside bounds", i, g)
		}
		de.Tell(g, rng.Float64()) // arbitrary costs
	}
}

func TestDEGreedyReplacement(t *testing.T) {
	cfg := testDEConfig()
	cfg.PopulationSize = 4
	de := NewDifferentialEvolution(cfg, utils.NewRandSource(3))

	// Seed pass: give every member a high cost.
	for i := 0; i < 4; i++ {
		de.Tell(de.Ask(), 100+float64(i))
	}

	// A better trial vector must replace its target slot and become
	// the new best.
	trial := de.Ask()
	de.Tell(trial, 1)

	best, bestCost := de.Best()
	if bestCost != 1 {
		t.Errorf("best cost = %v, want 1", bestCost)
	}
	if best != trial {
		t.Errorf("best = %+v, want the improving trial %+v", best, trial)
	}
	if de.population[0] != trial {
		t.Errorf("target slot not replaced by the better trial")
	}
}

func TestDEWorseTrialDoesNotReplace(t *testing.T) {
	cfg := testDEConfig()
	cfg.PopulationSize = 4
	de := NewDifferentialEvolution(cfg, utils.NewRandSource(3))

	for i := 0; i < 4; i++ {
		de.Tell(de.Ask(), 10)
	}
	incumbent := de.population[0]
	de.Tell(de.Ask(), 50)

	if de.population[0] != incumbent {
		t.Errorf("worse trial replaced the incumbent")
	}
	if _, bestCost := de.Best(); bestCost != 10 {
		t.Errorf("best cost = %v, want 10", bestCost)
	}
}

func TestDEImprovesOnSphere(t *testing.T) {
	cfg := testDEConfig()
	de := NewDifferentialEvolution(cfg, utils.NewRandSource(11))

	seedBest := math.Inf(1)
	for i := 0; i < 200; i++ {
		g := de.Ask()
		cost := sphere(g)
		de.Tell(g, cost)
		if i < cfg.PopulationSize && cost < seedBest {
			seedBest = cost
		}
	}

	_, bestCost := de.Best()
	if bestCost >= seedBest {
		t.Errorf("best cost %v did not improve on the seed population's %v", bestCost, seedBest)
	}
	if bestCost > seedBest/4 {
		t.Errorf("best cost %v barely improved on seed best %v", bestCost, seedBest)
	}
}

func TestDEDeterministicWithSeed(t *testing.T) {
	run := func() []Gains {
		de := NewDifferentialEvolution(testDEConfig(), utils.NewRandSource(99))
		out := make([]Gains, 0, 20)
		for i := 0; i < 20; i++ {
			g := de.Ask()
			out = append(out, g)
			de.Tell(g, sphere(g))
		}
		return out
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("iteration %d diverged: %+v vs %+v", i, a[i], b[i])
		}
	}
}
