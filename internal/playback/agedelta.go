package playback

import (
	"context"

	"github.com/corvid-labs/voxline/pkg/voice"
)

// DeltaPredictor estimates how a voice embedding drifts over an age gap.
// It is the capability-polymorphism point for the optional learned ageing
// model: the playback engine consults the configured predictor for
// extrapolations and falls back to its rule-based directional delta when
// the predictor is absent, errors, or reports confidence below the
// configured floor.
type DeltaPredictor interface {
	// PredictDelta returns the expected embedding delta for ageing the
	// boundary voice by ageGap years (negative for rejuvenation), along
	// with the predictor's confidence in [0, 1].
	PredictDelta(ctx context.Context, boundary voice.Embedding, ageGap float64) (voice.Embedding, float64, error)
}

// PredictorFunc adapts a function to the [DeltaPredictor] interface.
type PredictorFunc func(ctx context.Context, boundary voice.Embedding, ageGap float64) (voice.Embedding, float64, error)

// PredictDelta implements [DeltaPredictor].
func (f PredictorFunc) PredictDelta(ctx context.Context, boundary voice.Embedding, ageGap float64) (voice.Embedding, float64, error) {
	return f(ctx, boundary, ageGap)
}
