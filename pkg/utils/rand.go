package utils

import (
	"math/rand"
	"time"
)

// RandSource is a seeded random number generator shared by the optimizers.
// Not safe for concurrent use; the trial loop is strictly sequential.
type RandSource struct {
	rng *rand.Rand
}

// NewRandSource creates a new random source with the given seed
func NewRandSource(seed int64) *RandSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandSource{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// Float64 returns a random float64 in [0.0, 1.0)
func (r *RandSource) Float64() float64 {
	return r.rng.Float64()
}

// Intn returns a random int in [0, n)
func (r *RandSource) Intn(n int) int {
	return r.rng.Intn(n)
}

// NormFloat64 returns a normally distributed random number with mean and stddev
func (r *RandSource) NormFloat64(mean, stddev float64) float64 {
	return r.rng.NormFloat64()*stddev + mean
}

// UniformFloat64 returns a uniformly distributed random number in [min, max)
func (r *RandSource) UniformFloat64(min, max float64) float64 {
	return min + r.rng.Float64()*(max-min)
}

// DistinctIntn returns k distinct random ints in [0, n), all different
// from each other and from the excluded index. Panics if n is too small,
// which only happens with a population below four members.
func (r *RandSource) DistinctIntn(n, k, exclude int) []int {
	if n-1 < k {
		panic("utils: not enough values to draw from")
	}
	picked := map[int]bool{exclude: true}
	out := make([]int, 0, k)
	for len(out) < k {
		idx := r.rng.Intn(n)
		if picked[idx] {
			continue
		}
		picked[idx] = true
		out = append(out, idx)
	}
	return out
}
