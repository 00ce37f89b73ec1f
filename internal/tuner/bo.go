package tuner

import (
	"math"

	"github.com/robotune/harness-core/pkg/utils"
)

// BOConfig parameterizes the Bayesian optimization strategy
type BOConfig struct {
	// InitPoints is the number of warm-up probes before the surrogate
	// takes over: the init state first, then random points.
	InitPoints int
	Bounds     Bounds
	InitState  Gains
}

// Surrogate hyperparameters. Inputs are normalized to the unit cube and
// costs standardized before fitting, so fixed values work across gain
// scales.
const (
	rbfLengthscale = 0.2
	noiseVariance  = 1e-4
	jitter         = 1e-6
	// acquisitionSamples is the size of the random multistart used to
	// maximize expected improvement over the box.
	acquisitionSamples = 512
)

// BayesianOptimizer fits a Gaussian-process surrogate over the observed
// costs and proposes the candidate maximizing expected improvement.
// Trial counts here are tiny (a physical robot run per evaluation), so
// the dense Cholesky refit per Ask is nowhere near a bottleneck.
type BayesianOptimizer struct {
	cfg BOConfig
	rng *utils.RandSource

	xs [][3]float64
	ys []float64

	best     Gains
	bestCost float64
}

// NewBayesianOptimizer builds the strategy
func NewBayesianOptimizer(cfg BOConfig, rng *utils.RandSource) *BayesianOptimizer {
	if cfg.InitPoints < 1 {
		cfg.InitPoints = 1
	}
	return &BayesianOptimizer{cfg: cfg, rng: rng, bestCost: math.Inf(1)}
}

func (b *BayesianOptimizer) Name() string { return "bo" }

// Ask returns the next candidate: warm-up probes first, then the
// expected-improvement maximizer under the current surrogate.
func (b *BayesianOptimizer) Ask() Gains {
	if len(b.ys) == 0 {
		return b.cfg.Bounds.Clamp(b.cfg.InitState)
	}
	if len(b.ys) < b.cfg.InitPoints {
		return b.cfg.Bounds.Random(b.rng)
	}
	return b.maximizeEI()
}

// Tell records an observation
func (b *BayesianOptimizer) Tell(g Gains, cost float64) {
	b.xs = append(b.xs, b.normalize(g.vector()))
	b.ys = append(b.ys, cost)
	if cost < b.bestCost {
		b.best = g
		b.bestCost = cost
	}
}

// Best returns the lowest-cost candidate observed so far
func (b *BayesianOptimizer) Best() (Gains, float64) {
	return b.best, b.bestCost
}

// maximizeEI fits the surrogate and scans a random multistart over the
// box for the point with the highest expected improvement.
func (b *BayesianOptimizer) maximizeEI() Gains {
	gp := b.fit()

	var bestPoint [3]float64
	bestEI := math.Inf(-1)
	for i := 0; i < acquisitionSamples; i++ {
		point := b.normalize(b.cfg.Bounds.Random(b.rng).vector())
		if ei := gp.expectedImprovement(point); ei > bestEI {
			bestEI = ei
			bestPoint = point
		}
	}
	return b.cfg.Bounds.Clamp(gainsFromVector(b.denormalize(bestPoint)))
}

// normalize maps a gain vector into the unit cube spanned by the bounds
func (b *BayesianOptimizer) normalize(v [3]float64) [3]float64 {
	intervals := b.cfg.Bounds.intervals()
	var out [3]float64
	for j, iv := range intervals {
		span := iv.Upper - iv.Lower
		if span <= 0 {
			out[j] = 0
			continue
		}
		out[j] = (v[j] - iv.Lower) / span
	}
	return out
}

func (b *BayesianOptimizer) denormalize(v [3]float64) [3]float64 {
	intervals := b.cfg.Bounds.intervals()
	var out [3]float64
	for j, iv := range intervals {
		out[j] = iv.Lower + v[j]*(iv.Upper-iv.Lower)
	}
	return out
}

// gaussianProcess is one fitted posterior: the Cholesky factor of the
// kernel matrix, the precomputed K⁻¹y weights, and the standardization
// applied to the training costs.
type gaussianProcess struct {
	xs     [][3]float64
	chol   [][]float64
	alpha  []float64
	yMean  float64
	yScale float64
	// bestStd is the standardized best (lowest) training cost; the
	// improvement baseline for EI.
	bestStd float64
}

// fit builds the GP posterior over all observations so far
func (b *BayesianOptimizer) fit() *gaussianProcess {
	n := len(b.xs)

	mean := utils.Mean(b.ys)
	scale := utils.StdDev(b.ys)
	if scale <= 0 {
		scale = 1
	}
	ys := make([]float64, n)
	bestStd := math.Inf(1)
	for i, y := range b.ys {
		ys[i] = (y - mean) / scale
		if ys[i] < bestStd {
			bestStd = ys[i]
		}
	}

	k := make([][]float64, n)
	for i := range k {
		k[i] = make([]float64, n)
		for j := range k[i] {
			k[i][j] = rbfKernel(b.xs[i], b.xs[j])
		}
		k[i][i] += noiseVariance + jitter
	}

	chol := cholesky(k)
	return &gaussianProcess{
		xs:      b.xs,
		chol:    chol,
		alpha:   cholSolve(chol, ys),
		yMean:   mean,
		yScale:  scale,
		bestStd: bestStd,
	}
}

// expectedImprovement scores a normalized point against the current
// best. Minimization form: improvement is how far the predicted mean
// sits below the incumbent.
func (g *gaussianProcess) expectedImprovement(x [3]float64) float64 {
	mean, variance := g.predict(x)
	sigma := math.Sqrt(math.Max(variance, 0))
	if sigma < 1e-12 {
		if imp := g.bestStd - mean; imp > 0 {
			return imp
		}
		return 0
	}
	imp := g.bestStd - mean
	z := imp / sigma
	return imp*normCDF(z) + sigma*normPDF(z)
}

// predict returns the standardized posterior mean and variance at x
func (g *gaussianProcess) predict(x [3]float64) (float64, float64) {
	n := len(g.xs)
	kv := make([]float64, n)
	for i := range kv {
		kv[i] = rbfKernel(g.xs[i], x)
	}

	mean := 0.0
	for i := range kv {
		mean += kv[i] * g.alpha[i]
	}

	v := forwardSolve(g.chol, kv)
	variance := rbfKernel(x, x)
	for _, vi := range v {
		variance -= vi * vi
	}
	return mean, variance
}

// rbfKernel is the squared-exponential kernel with unit signal variance
func rbfKernel(a, c [3]float64) float64 {
	var sq float64
	for j := range a {
		d := a[j] - c[j]
		sq += d * d
	}
	return math.Exp(-sq / (2 * rbfLengthscale * rbfLengthscale))
}

// cholesky returns the lower-triangular factor L with K = L·Lᵀ. The
// kernel matrix is positive definite by construction (jittered
// diagonal), so the diagonal stays strictly positive.
func cholesky(k [][]float64) [][]float64 {
	n := len(k)
	l := make([][]float64, n)
	for i := range l {
		l[i] = make([]float64, n)
	}
	for i := 0; i < n; i++ {
		for j := 0; j <= i; j++ {
			sum := k[i][j]
			for m := 0; m < j; m++ {
				sum -= l[i][m] * l[j][m]
			}
			if i == j {
				l[i][j] = math.Sqrt(math.Max(sum, jitter))
			} else {
				l[i][j] = sum / l[j][j]
			}
		}
	}
	return l
}

// forwardSolve solves L·x = b for lower-triangular L
func forwardSolve(l [][]float64, b []float64) []float64 {
	n := len(b)
	x := make([]float64, n)
	for i := 0; i < n; i++ {
		sum := b[i]
		for j := 0; j < i; j++ {
			sum -= l[i][j] * x[j]
		}
		x[i] = sum / l[i][i]
	}
	return x
}

// backSolve solves Lᵀ·x = b for lower-triangular L
func backSolve(l [][]float64, b []float64) []float64 {
	n := len(b)
	x := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		sum := b[i]
		for j := i + 1; j < n; j++ {
			sum -= l[j][i] * x[j]
		}
		x[i] = sum / l[i][i]
	}
	return x
}

// cholSolve solves K·x = b given the Cholesky factor of K
func cholSolve(l [][]float64, b []float64) []float64 {
	return backSolve(l, forwardSolve(l, b))
}

func normPDF(z float64) float64 {
	return math.Exp(-z*z/2) / math.Sqrt(2*math.Pi)
}

func normCDF(z float64) float64 {
	return 0.5 * (1 + math.Erf(z/math.Sqrt2))
}
