package utils

import "testing"

func TestRandSourceDeterminism(t *testing.T) {
	r1 := NewRandSource(42)
	r2 := NewRandSource(42)

	for i := 0; i < 100; i++ {
		if r1.Float64() != r2.Float64() {
			t.Fatalf("same seed produced different sequences at draw %d", i)
		}
	}
}

func TestUniformFloat64Range(t *testing.T) {
	r := NewRandSource(7)
	for i := 0; i < 1000; i++ {
		v := r.UniformFloat64(1.0, 25.0)
		if v < 1.0 || v >= 25.0 {
			t.Fatalf("UniformFloat64 produced %v outside [1, 25)", v)
		}
	}
}

func TestIntnRange(t *testing.T) {
	r := NewRandSource(7)
	for i := 0; i < 1000; i++ {
		if v := r.Intn(5); v < 0 || v >= 5 {
			t.Fatalf("Intn(5) produced %v", v)
		}
	}
}

func TestDistinctIntn(t *testing.T) {
	r := NewRandSource(11)
	for trial := 0; trial < 100; trial++ {
		exclude := r.Intn(10)
		picks := r.DistinctIntn(10, 3, exclude)
		if len(picks) != 3 {
			t.Fatalf("got %d picks, want 3", len(picks))
		}
		seen := map[int]bool{exclude: true}
		for _, p := range picks {
			if p < 0 || p >= 10 {
				t.Fatalf("pick %d out of range", p)
			}
			if seen[p] {
				t.Fatalf("duplicate or excluded pick %d (exclude=%d, picks=%v)", p, exclude, picks)
			}
			seen[p] = true
		}
	}
}

func TestDistinctIntnPanicsWhenTooSmall(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic when pool is too small")
		}
	}()
	r := NewRandSource(1)
	r.DistinctIntn(3, 3, 0)
}
