package tuner

import (
	"math"
	"testing"

	"github.com/robotune/harness-core/pkg/utils"
)

func testBOConfig() BOConfig {
	return BOConfig{
		InitPoints: 3,
		Bounds:     testBounds(),
		InitState:  Gains{Kp: 10, Ki: 1, Kd: 1},
	}
}

func TestBOProbesInitStateFirst(t *testing.T) {
	bo := NewBayesianOptimizer(testBOConfig(), utils.NewRandSource(1))

	first := bo.Ask()
	if first != (Gains{Kp: 10, Ki: 1, Kd: 1}) {
		t.Errorf("first probe = %+v, want the init state", first)
	}
}

func TestBOWarmupProbesStayInBounds(t *testing.T) {
	cfg := testBOConfig()
	bo := NewBayesianOptimizer(cfg, utils.NewRandSource(2))

	for i := 0; i < cfg.InitPoints; i++ {
		g := bo.Ask()
		if !cfg.Bounds.Contains(g) {
			t.Fatalf("probe %d = %+v outside bounds", i, g)
		}
		bo.Tell(g, sphere(g))
	}
}

func TestBOSurrogateCandidatesStayInBounds(t *testing.T) {
	cfg := testBOConfig()
	bo := NewBayesianOptimizer(cfg, utils.NewRandSource(3))

	for i := 0; i < 15; i++ {
		g := bo.Ask()
		if !cfg.Bounds.Contains(g) {
			t.Fatalf("iteration %d: candidate %+v outside bounds", i, g)
		}
		bo.Tell(g, sphere(g))
	}
}

func TestBOTracksBest(t *testing.T) {
	bo := NewBayesianOptimizer(testBOConfig(), utils.NewRandSource(4))

	bo.Tell(Gains{Kp: 5, Ki: 1, Kd: 1}, 40)
	bo.Tell(Gains{Kp: 20, Ki: 2, Kd: 2}, 12)
	bo.Tell(Gains{Kp: 30, Ki: 3, Kd: 3}, 25)

	best, cost := bo.Best()
	if cost != 12 {
		t.Errorf("best cost = %v, want 12", cost)
	}
	if best != (Gains{Kp: 20, Ki: 2, Kd: 2}) {
		t.Errorf("best gains = %+v", best)
	}
}

func TestBOImprovesOnSphere(t *testing.T) {
	bo := NewBayesianOptimizer(testBOConfig(), utils.NewRandSource(5))

	var probeCost float64
	for i := 0; i < 20; i++ {
		g := bo.Ask()
		cost := sphere(g)
		if i == 0 {
			probeCost = cost
		}
		bo.Tell(g, cost)
	}

	_, bestCost := bo.Best()
	if bestCost >= probeCost {
		t.Errorf("best cost %v did not improve on the init probe's %v", bestCost, probeCost)
	}
}

func TestGPPredictsTrainingPoints(t *testing.T) {
	bo := NewBayesianOptimizer(testBOConfig(), utils.NewRandSource(6))
	bo.Tell(Gains{Kp: 5, Ki: 1, Kd: 1}, 100)
	bo.Tell(Gains{Kp: 25, Ki: 2, Kd: 3}, 10)
	bo.Tell(Gains{Kp: 45, Ki: 4, Kd: 4}, 80)

	gp := bo.fit()
	for i, x := range bo.xs {
		mean, variance := gp.predict(x)
		wantStd := (bo.ys[i] - gp.yMean) / gp.yScale
		if math.Abs(mean-wantStd) > 0.05 {
			t.Errorf("point %d: posterior mean %v, want ~%v", i, mean, wantStd)
		}
		if variance > 0.01 {
			t.Errorf("point %d: posterior variance %v, want near zero at a training point", i, variance)
		}
	}
}

func TestGPExpectedImprovementPositiveAwayFromData(t *testing.T) {
	bo := NewBayesianOptimizer(testBOConfig(), utils.NewRandSource(7))
	bo.Tell(Gains{Kp: 5, Ki: 0.5, Kd: 0.5}, 100)
	bo.Tell(Gains{Kp: 8, Ki: 1, Kd: 1}, 90)
	bo.Tell(Gains{Kp: 12, Ki: 1.5, Kd: 1.5}, 80)

	gp := bo.fit()

	// Far corner of the box: high posterior uncertainty, so there must
	// be a chance of improvement.
	far := bo.normalize(Gains{Kp: 48, Ki: 4.8, Kd: 4.8}.vector())
	if ei := gp.expectedImprovement(far); ei <= 0 {
		t.Errorf("EI at unexplored point = %v, want positive", ei)
	}

	// At the worst training point there is essentially no uncertainty
	// and the mean is far above the incumbent.
	worst := bo.xs[0]
	if ei := gp.expectedImprovement(worst); ei > 1e-3 {
		t.Errorf("EI at known-bad point = %v, want ~0", ei)
	}
}

func TestCholeskySolve(t *testing.T) {
	// Symmetric positive definite 3x3.
	k := [][]float64{
		{4, 2, 0.6},
		{2, 3, 0.4},
		{0.6, 0.4, 2},
	}
	b := []float64{1, 2, 3}

	l := cholesky(k)
	x := cholSolve(l, b)

	// K·x must reproduce b.
	for i := range k {
		got := 0.0
		for j := range x {
			got += k[i][j] * x[j]
		}
		if math.Abs(got-b[i]) > 1e-9 {
			t.Errorf("row %d: K·x = %v, want %v", i, got, b[i])
		}
	}

	// L must be lower triangular with positive diagonal.
	for i := range l {
		if l[i][i] <= 0 {
			t.Errorf("diagonal %d = %v, want positive", i, l[i][i])
		}
		for j := i + 1; j < len(l); j++ {
			if l[i][j] != 0 {
				t.Errorf("upper entry (%d,%d) = %v, want 0", i, j, l[i][j])
			}
		}
	}
}
