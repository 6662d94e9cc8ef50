// Package vecmath provides the small set of float32 vector operations the
// voxline engines need: normalisation, cosine similarity, spherical linear
// interpolation, and the weighted incremental mean used by version merges.
//
// All functions treat their inputs as read-only and return fresh slices.
// Accumulation happens in float64 to limit rounding drift on long vectors.
package vecmath

import "math"

// slerpAngleEpsilon is the angle (radians) below which Slerp falls back to
// linear interpolation. sin(θ) in the SLERP denominator would otherwise
// blow up numerically for nearly identical vectors.
const slerpAngleEpsilon = 1e-4

// Dot returns the inner product of a and b. Panics if lengths differ;
// callers validate dimensions before doing math.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		panic("vecmath: dimension mismatch")
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// Norm returns the Euclidean length of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. A zero vector is returned
// unchanged (as a copy) since it has no direction to preserve.
func Normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	n := Norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	inv := 1.0 / n
	for i, x := range v {
		out[i] = float32(float64(x) * inv)
	}
	return out
}

// Cosine returns the cosine similarity of a and b in [-1, 1]. Zero-norm
// inputs and non-finite results yield 0 rather than NaN, so a corrupt
// vector can never masquerade as a perfect match.
func Cosine(a, b []float32) float64 {
	na, nb := Norm(a), Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	sim := Dot(a, b) / (na * nb)
	if math.IsNaN(sim) || math.IsInf(sim, 0) {
		return 0
	}
	// Clamp rounding spill outside [-1, 1].
	return math.Max(-1, math.Min(1, sim))
}

// Slerp interpolates between two unit-norm vectors along the great-circle
// arc, preserving unit length. t is clamped to [0, 1]; t=0 returns a and
// t=1 returns b (up to floating tolerance). When the angle between the
// vectors is near zero it degrades to linear interpolation, which agrees
// with SLERP in that limit. Near-antipodal vectors take an arbitrary
// great-circle path so the result never collapses to the zero vector.
func Slerp(a, b []float32, t float64) []float32 {
	t = clamp01(t)

	dot := Dot(a, b)
	dot = math.Max(-1, math.Min(1, dot))
	theta := math.Acos(dot)

	if theta < slerpAngleEpsilon {
		return Normalize(Lerp(a, b, t))
	}

	if theta > math.Pi-slerpAngleEpsilon {
		// Antipodal endpoints: sin(θ)≈0 makes both weights cancel and
		// the blend collapses to the zero vector. The great-circle path
		// is ambiguous here, so rotate a through an arbitrary
		// perpendicular axis instead. Any choice of axis yields a valid
		// unit-length path from a to -a.
		p := orthogonal(a)
		if p == nil {
			if t < 0.5 {
				return Normalize(a)
			}
			return Normalize(b)
		}
		c, s := math.Cos(t*theta), math.Sin(t*theta)
		out := make([]float32, len(a))
		for i := range a {
			out[i] = float32(c*float64(a[i]) + s*float64(p[i]))
		}
		return Normalize(out)
	}

	sinTheta := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sinTheta
	wb := math.Sin(t*theta) / sinTheta

	out := make([]float32, len(a))
	for i := range a {
		out[i] = float32(wa*float64(a[i]) + wb*float64(b[i]))
	}
	return Normalize(out)
}

// orthogonal returns a unit vector perpendicular to a, or nil when none
// exists (zero or one-dimensional input). It projects the basis vector of
// a's smallest component out of a, which is the numerically stable choice.
func orthogonal(a []float32) []float32 {
	if len(a) < 2 {
		return nil
	}
	nn := Dot(a, a)
	if nn == 0 {
		return nil
	}
	min := 0
	for i := 1; i < len(a); i++ {
		if math.Abs(float64(a[i])) < math.Abs(float64(a[min])) {
			min = i
		}
	}
	scale := float64(a[min]) / nn
	out := make([]float32, len(a))
	for i := range a {
		out[i] = float32(-scale * float64(a[i]))
	}
	out[min] += 1
	if Norm(out) == 0 {
		return nil
	}
	return Normalize(out)
}

// Lerp returns the elementwise linear blend (1-t)·a + t·b. The result is
// not normalised; callers that need a unit vector wrap it in [Normalize].
func Lerp(a, b []float32, t float64) []float32 {
	t = clamp01(t)
	out := make([]float32, len(a))
	for i := range a {
		out[i] = float32((1-t)*float64(a[i]) + t*float64(b[i]))
	}
	return out
}

// IncrementalMean folds sample into a running mean that already aggregates
// count elements, returning the new mean (not normalised). The update is
// associative and replay-safe: mean' = (mean·count + sample) / (count+1).
func IncrementalMean(mean, sample []float32, count int) []float32 {
	if count < 1 {
		count = 1
	}
	out := make([]float32, len(mean))
	n := float64(count)
	for i := range mean {
		out[i] = float32((float64(mean[i])*n + float64(sample[i])) / (n + 1))
	}
	return out
}

// Sub returns a − b elementwise.
func Sub(a, b []float32) []float32 {
	out := make([]float32, len(a))
	for i := range a {
		out[i] = a[i] - b[i]
	}
	return out
}

// AddScaled returns a + s·b elementwise.
func AddScaled(a, b []float32, s float64) []float32 {
	out := make([]float32, len(a))
	for i := range a {
		out[i] = float32(float64(a[i]) + s*float64(b[i]))
	}
	return out
}

func clamp01(t float64) float64 {
	return math.Max(0, math.Min(1, t))
}
