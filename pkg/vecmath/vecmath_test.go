package vecmath_test

import (
	"math"
	"testing"

	"github.com/corvid-labs/voxline/pkg/vecmath"
)

const tol = 1e-5

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func vecAlmostEqual(a, b []float32, eps float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !almostEqual(float64(a[i]), float64(b[i]), eps) {
			return false
		}
	}
	return true
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	t.Run("produces unit length", func(t *testing.T) {
		t.Parallel()
		v := vecmath.Normalize([]float32{3, 4})
		if n := vecmath.Norm(v); !almostEqual(n, 1, tol) {
			t.Fatalf("Norm after Normalize = %v, want 1", n)
		}
	})

	t.Run("zero vector stays zero", func(t *testing.T) {
		t.Parallel()
		v := vecmath.Normalize([]float32{0, 0, 0})
		if n := vecmath.Norm(v); n != 0 {
			t.Fatalf("Norm of normalized zero vector = %v, want 0", n)
		}
	})

	t.Run("does not mutate input", func(t *testing.T) {
		t.Parallel()
		in := []float32{2, 0}
		_ = vecmath.Normalize(in)
		if in[0] != 2 {
			t.Fatalf("input mutated: %v", in)
		}
	})
}

func TestCosine(t *testing.T) {
	t.Parallel()

	t.Run("identical unit vectors", func(t *testing.T) {
		t.Parallel()
		a := vecmath.Normalize([]float32{1, 2, 3})
		if sim := vecmath.Cosine(a, a); !almostEqual(sim, 1, tol) {
			t.Fatalf("Cosine(a, a) = %v, want 1", sim)
		}
	})

	t.Run("orthogonal vectors", func(t *testing.T) {
		t.Parallel()
		if sim := vecmath.Cosine([]float32{1, 0}, []float32{0, 1}); !almostEqual(sim, 0, tol) {
			t.Fatalf("Cosine orthogonal = %v, want 0", sim)
		}
	})

	t.Run("opposite vectors", func(t *testing.T) {
		t.Parallel()
		if sim := vecmath.Cosine([]float32{1, 0}, []float32{-1, 0}); !almostEqual(sim, -1, tol) {
			t.Fatalf("Cosine opposite = %v, want -1", sim)
		}
	})

	t.Run("zero norm yields zero not NaN", func(t *testing.T) {
		t.Parallel()
		if sim := vecmath.Cosine([]float32{0, 0}, []float32{1, 0}); sim != 0 {
			t.Fatalf("Cosine with zero vector = %v, want 0", sim)
		}
	})
}

func TestSlerp(t *testing.T) {
	t.Parallel()

	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}

	t.Run("t=0 returns first endpoint", func(t *testing.T) {
		t.Parallel()
		got := vecmath.Slerp(a, b, 0)
		if !vecAlmostEqual(got, a, tol) {
			t.Fatalf("Slerp(a, b, 0) = %v, want %v", got, a)
		}
	})

	t.Run("t=1 returns second endpoint", func(t *testing.T) {
		t.Parallel()
		got := vecmath.Slerp(a, b, 1)
		if !vecAlmostEqual(got, b, tol) {
			t.Fatalf("Slerp(a, b, 1) = %v, want %v", got, b)
		}
	})

	t.Run("midpoint of orthogonal vectors", func(t *testing.T) {
		t.Parallel()
		got := vecmath.Slerp(a, b, 0.5)
		want := []float32(vecmath.Normalize([]float32{1, 1, 0}))
		if !vecAlmostEqual(got, want, tol) {
			t.Fatalf("Slerp midpoint = %v, want %v", got, want)
		}
	})

	t.Run("result is always unit length", func(t *testing.T) {
		t.Parallel()
		for _, frac := range []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 1} {
			got := vecmath.Slerp(a, b, frac)
			if n := vecmath.Norm(got); !almostEqual(n, 1, tol) {
				t.Fatalf("Slerp(t=%v) norm = %v, want 1", frac, n)
			}
		}
	})

	t.Run("t clamped outside [0,1]", func(t *testing.T) {
		t.Parallel()
		if got := vecmath.Slerp(a, b, -2); !vecAlmostEqual(got, a, tol) {
			t.Fatalf("Slerp(t=-2) = %v, want %v", got, a)
		}
		if got := vecmath.Slerp(a, b, 5); !vecAlmostEqual(got, b, tol) {
			t.Fatalf("Slerp(t=5) = %v, want %v", got, b)
		}
	})

	t.Run("antipodal vectors keep unit length", func(t *testing.T) {
		t.Parallel()
		neg := []float32{-1, 0, 0}
		for _, frac := range []float64{0.1, 0.25, 0.5, 0.75, 0.9} {
			got := vecmath.Slerp(a, neg, frac)
			if n := vecmath.Norm(got); !almostEqual(n, 1, tol) {
				t.Fatalf("Slerp(a, -a, t=%v) norm = %v, want 1", frac, n)
			}
		}
	})

	t.Run("antipodal endpoints are exact", func(t *testing.T) {
		t.Parallel()
		neg := []float32{-1, 0, 0}
		if got := vecmath.Slerp(a, neg, 0); !vecAlmostEqual(got, a, tol) {
			t.Fatalf("Slerp(a, -a, 0) = %v, want %v", got, a)
		}
		if got := vecmath.Slerp(a, neg, 1); !vecAlmostEqual(got, neg, tol) {
			t.Fatalf("Slerp(a, -a, 1) = %v, want %v", got, neg)
		}
	})

	t.Run("near-antipodal vectors keep unit length", func(t *testing.T) {
		t.Parallel()
		near := vecmath.Normalize([]float32{-1, 1e-7, 0})
		got := vecmath.Slerp(a, near, 0.5)
		if n := vecmath.Norm(got); !almostEqual(n, 1, tol) {
			t.Fatalf("near-antipodal midpoint norm = %v, want 1", n)
		}
	})

	t.Run("agrees with linear blend for tiny angles", func(t *testing.T) {
		t.Parallel()
		c := vecmath.Normalize([]float32{1, 1e-6, 0})
		got := vecmath.Slerp(a, c, 0.5)
		want := []float32(vecmath.Normalize(vecmath.Lerp(a, c, 0.5)))
		if !vecAlmostEqual(got, want, tol) {
			t.Fatalf("near-zero angle: Slerp = %v, Lerp fallback = %v", got, want)
		}
		if n := vecmath.Norm(got); !almostEqual(n, 1, tol) {
			t.Fatalf("near-zero angle result norm = %v, want 1", n)
		}
	})
}

func TestIncrementalMean(t *testing.T) {
	t.Parallel()

	t.Run("matches arithmetic mean", func(t *testing.T) {
		t.Parallel()
		// Mean of {2} folded with 4 at count=1 must be 3.
		got := vecmath.IncrementalMean([]float32{2}, []float32{4}, 1)
		if !almostEqual(float64(got[0]), 3, tol) {
			t.Fatalf("IncrementalMean = %v, want 3", got[0])
		}
	})

	t.Run("weights by sample count", func(t *testing.T) {
		t.Parallel()
		// Mean 1.0 over 9 samples folded with 11 gives (9+11)/10 = 2.
		got := vecmath.IncrementalMean([]float32{1}, []float32{11}, 9)
		if !almostEqual(float64(got[0]), 2, tol) {
			t.Fatalf("IncrementalMean = %v, want 2", got[0])
		}
	})

	t.Run("replay-safe associativity", func(t *testing.T) {
		t.Parallel()
		// Folding x1..x3 one at a time equals their arithmetic mean.
		mean := []float32{1, 2}
		mean = vecmath.IncrementalMean(mean, []float32{3, 4}, 1)
		mean = vecmath.IncrementalMean(mean, []float32{5, 6}, 2)
		want := []float32{3, 4}
		if !vecAlmostEqual(mean, want, tol) {
			t.Fatalf("chained IncrementalMean = %v, want %v", mean, want)
		}
	})
}

func TestSubAddScaled(t *testing.T) {
	t.Parallel()

	a := []float32{3, 5}
	b := []float32{1, 2}

	if got := vecmath.Sub(a, b); !vecAlmostEqual(got, []float32{2, 3}, tol) {
		t.Fatalf("Sub = %v", got)
	}
	if got := vecmath.AddScaled(a, b, 2); !vecAlmostEqual(got, []float32{5, 9}, tol) {
		t.Fatalf("AddScaled = %v", got)
	}
}
