// Package playback answers "what did (or will) this voice sound like at
// age X" by querying a user's timeline and producing a conditioning
// vector with explicit provenance.
//
// A request resolves in exactly one step to RECORDED (a version's own
// embedding), INTERPOLATED (spherical interpolation between the two
// bracketing versions), or PREDICTED (damped directional extrapolation
// outside the known age range). Every result carries its label; callers
// must never present an interpolated or predicted result as recorded.
package playback

import (
	"context"
	"fmt"
	"math"

	"github.com/corvid-labs/voxline/internal/timeline"
	"github.com/corvid-labs/voxline/pkg/vecmath"
	"github.com/corvid-labs/voxline/pkg/voice"
)

// Default playback policy parameters. All are exposed as options; the
// damping curve and gap penalty in particular are tunable policy, not
// derived constants.
const (
	// DefaultExactEpsilon is the age distance (years) within which a
	// version counts as an exact match.
	DefaultExactEpsilon = 0.25

	// DefaultGapPenaltySlope is the per-year confidence penalty applied to
	// interpolations as the gap between anchors widens.
	DefaultGapPenaltySlope = 0.02

	// DefaultGapPenaltyCap bounds the total interpolation gap penalty.
	DefaultGapPenaltyCap = 0.5

	// DefaultPredictionCeiling caps the confidence of any extrapolated
	// result. Predictions are never reported as trustworthy as recorded
	// or interpolated results.
	DefaultPredictionCeiling = 0.5

	// DefaultDampingTau is the e-folding distance (years) of the
	// extrapolation damping. The further outside known data a target age
	// lies, the closer the damped delta decays toward zero.
	DefaultDampingTau = 10.0

	// DefaultPredictorFloor is the learned-predictor confidence below
	// which the engine falls back to the rule-based delta.
	DefaultPredictorFloor = 0.3
)

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithExactEpsilon sets the exact-match age tolerance in years.
func WithExactEpsilon(years float64) Option {
	return func(e *Engine) { e.epsilon = years }
}

// WithGapPenalty sets the interpolation confidence penalty slope
// (per year of anchor gap) and its cap.
func WithGapPenalty(slope, cap float64) Option {
	return func(e *Engine) {
		e.gapSlope = slope
		e.gapCap = cap
	}
}

// WithPredictionCeiling sets the confidence ceiling for extrapolations.
func WithPredictionCeiling(ceiling float64) Option {
	return func(e *Engine) { e.ceiling = ceiling }
}

// WithDampingTau sets the e-folding distance of extrapolation damping.
func WithDampingTau(years float64) Option {
	return func(e *Engine) { e.tau = years }
}

// WithDeltaPredictor installs a learned age-delta model consulted for
// extrapolations. floor is the predictor confidence below which the
// rule-based delta is used instead.
func WithDeltaPredictor(p DeltaPredictor, floor float64) Option {
	return func(e *Engine) {
		e.predictor = p
		e.predictorFloor = floor
	}
}

// Engine resolves playback requests against a timeline store. It is
// read-only and safe for concurrent use alongside decision mutations:
// the store hands it consistent snapshots.
type Engine struct {
	store timeline.Store

	epsilon        float64
	gapSlope       float64
	gapCap         float64
	ceiling        float64
	tau            float64
	predictor      DeltaPredictor
	predictorFloor float64
}

// New returns an [Engine] over store with the default policy, adjusted by
// opts.
func New(store timeline.Store, opts ...Option) *Engine {
	e := &Engine{
		store:          store,
		epsilon:        DefaultExactEpsilon,
		gapSlope:       DefaultGapPenaltySlope,
		gapCap:         DefaultGapPenaltyCap,
		ceiling:        DefaultPredictionCeiling,
		tau:            DefaultDampingTau,
		predictorFloor: DefaultPredictorFloor,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Playback produces the embedding for userID's voice at targetAge. An
// empty timeline yields [voice.ErrNoData]; a negative target age is
// [voice.ErrInvalidInput].
func (e *Engine) Playback(ctx context.Context, userID string, targetAge float64) (voice.PlaybackResult, error) {
	if targetAge < 0 || math.IsNaN(targetAge) || math.IsInf(targetAge, 0) {
		return voice.PlaybackResult{}, fmt.Errorf("playback: target age %v: %w", targetAge, voice.ErrInvalidInput)
	}

	versions, err := e.store.VersionsByAge(ctx, userID)
	if err != nil {
		return voice.PlaybackResult{}, fmt.Errorf("playback: load timeline for %s: %w", userID, err)
	}
	if len(versions) == 0 {
		return voice.PlaybackResult{}, fmt.Errorf("playback: user %s has no versions: %w", userID, voice.ErrNoData)
	}

	lo, hi := bracket(versions, targetAge)

	// Exact match: the closest anchor within epsilon wins.
	if nearest := closest(lo, hi, targetAge); nearest != nil && math.Abs(nearest.AgeAtCreation-targetAge) <= e.epsilon {
		return voice.PlaybackResult{
			Embedding:      nearest.Embedding,
			Label:          voice.LabelRecorded,
			SourceVersions: []string{nearest.ID},
			Confidence:     nearest.Confidence,
		}, nil
	}

	if lo != nil && hi != nil {
		return e.interpolate(lo, hi, targetAge), nil
	}
	return e.extrapolate(ctx, versions, targetAge), nil
}

// bracket returns the version at-or-before targetAge and the one
// at-or-after it. Either may be nil when targetAge falls outside the
// timeline's range.
func bracket(versions []voice.Version, targetAge float64) (lo, hi *voice.Version) {
	for i := range versions {
		v := &versions[i]
		if v.AgeAtCreation <= targetAge {
			lo = v
		}
		if v.AgeAtCreation >= targetAge && hi == nil {
			hi = v
		}
	}
	return lo, hi
}

// closest picks whichever of lo/hi sits nearer targetAge.
func closest(lo, hi *voice.Version, targetAge float64) *voice.Version {
	switch {
	case lo == nil:
		return hi
	case hi == nil:
		return lo
	case targetAge-lo.AgeAtCreation <= hi.AgeAtCreation-targetAge:
		return lo
	default:
		return hi
	}
}

// interpolate blends the bracketing embeddings along the great-circle arc.
func (e *Engine) interpolate(lo, hi *voice.Version, targetAge float64) voice.PlaybackResult {
	gap := hi.AgeAtCreation - lo.AgeAtCreation
	t := 0.0
	if gap > 0 {
		t = (targetAge - lo.AgeAtCreation) / gap
	}

	penalty := math.Min(e.gapCap, e.gapSlope*gap)
	conf := math.Min(lo.Confidence, hi.Confidence) * (1 - penalty)

	return voice.PlaybackResult{
		Embedding:      voice.Embedding(vecmath.Slerp(lo.Embedding, hi.Embedding, t)),
		Label:          voice.LabelInterpolated,
		SourceVersions: []string{lo.ID, hi.ID},
		Confidence:     conf,
	}
}

// extrapolate projects the boundary embedding along the timeline's
// directional delta, damped toward zero as the target age moves further
// outside known data.
func (e *Engine) extrapolate(ctx context.Context, versions []voice.Version, targetAge float64) voice.PlaybackResult {
	oldest := &versions[0]
	newest := &versions[len(versions)-1]

	boundary := newest
	if targetAge < oldest.AgeAtCreation {
		boundary = oldest
	}

	distance := targetAge - boundary.AgeAtCreation // signed; negative below range
	damping := math.Exp(-math.Abs(distance) / e.tau)

	sources := []string{boundary.ID}
	var result voice.Embedding

	if delta, ok := e.learnedDelta(ctx, boundary.Embedding, distance); ok {
		result = voice.Embedding(vecmath.Normalize(
			vecmath.AddScaled(boundary.Embedding, delta, damping)))
	} else {
		// Rule-based default: the difference vector between the two most
		// extreme versions, scaled by how far past the boundary the target
		// lies relative to the observed span.
		referenceGap := newest.AgeAtCreation - oldest.AgeAtCreation
		if referenceGap <= 0 {
			referenceGap = 1
		}
		direction := vecmath.Sub(newest.Embedding, oldest.Embedding)
		scale := distance / referenceGap

		result = voice.Embedding(vecmath.Normalize(
			vecmath.AddScaled(boundary.Embedding, direction, damping*scale)))

		if oldest.ID != newest.ID {
			sources = append(sources, otherExtreme(boundary, oldest, newest).ID)
		}
	}

	conf := math.Min(e.ceiling, boundary.Confidence*damping)

	return voice.PlaybackResult{
		Embedding:      result,
		Label:          voice.LabelPredicted,
		SourceVersions: sources,
		Confidence:     conf,
	}
}

// learnedDelta consults the configured predictor, if any. It reports ok
// only when the predictor produced a usable delta with confidence at or
// above the floor.
func (e *Engine) learnedDelta(ctx context.Context, boundary voice.Embedding, ageGap float64) (voice.Embedding, bool) {
	if e.predictor == nil {
		return nil, false
	}
	delta, conf, err := e.predictor.PredictDelta(ctx, boundary, ageGap)
	if err != nil || conf < e.predictorFloor || len(delta) != len(boundary) {
		return nil, false
	}
	return delta, true
}

func otherExtreme(boundary, oldest, newest *voice.Version) *voice.Version {
	if boundary == newest {
		return oldest
	}
	return newest
}
