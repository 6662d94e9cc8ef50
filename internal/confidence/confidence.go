// Package confidence combines similarity, device agreement, and audio
// quality into a single decision confidence in [0, 1].
//
// Similarity is the authoritative identity signal and carries the dominant
// weight. Device fingerprint agreement and audio quality are corroborating
// signals only: the device boost is withheld entirely when similarity sits
// below a floor, so a familiar microphone can never override a clear
// identity mismatch.
package confidence

import (
	"math"

	"github.com/corvid-labs/voxline/pkg/voice"
)

// Default blend parameters. These are policy values validated empirically,
// not derived constants; operators retune them through [Option]s without
// altering the shape of the blend.
const (
	DefaultSimilarityWeight = 0.7
	DefaultDeviceWeight     = 0.2
	DefaultQualityWeight    = 0.1

	// DefaultDeviceFloor is the minimum similarity at which device
	// agreement is allowed to contribute.
	DefaultDeviceFloor = 0.5

	// DefaultSNRFloor and DefaultSNRCeil bound the SNR range mapped onto
	// [0, 1] for the quality term.
	DefaultSNRFloor = 10.0
	DefaultSNRCeil  = 30.0
)

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithWeights sets the similarity, device, and quality blend weights.
func WithWeights(similarity, device, quality float64) Option {
	return func(e *Engine) {
		e.wSimilarity = similarity
		e.wDevice = device
		e.wQuality = quality
	}
}

// WithDeviceFloor sets the similarity below which the device term is zero.
func WithDeviceFloor(floor float64) Option {
	return func(e *Engine) {
		e.deviceFloor = floor
	}
}

// WithSNRRange sets the SNR interval normalised onto [0, 1] for the
// quality term. Values at or below floor score 0; at or above ceil, 1.
func WithSNRRange(floor, ceil float64) Option {
	return func(e *Engine) {
		e.snrFloor = floor
		e.snrCeil = ceil
	}
}

// Engine blends the three decision signals. It is stateless and safe for
// concurrent use.
type Engine struct {
	wSimilarity float64
	wDevice     float64
	wQuality    float64
	deviceFloor float64
	snrFloor    float64
	snrCeil     float64
}

// New returns an [Engine] with the default blend, adjusted by opts.
func New(opts ...Option) *Engine {
	e := &Engine{
		wSimilarity: DefaultSimilarityWeight,
		wDevice:     DefaultDeviceWeight,
		wQuality:    DefaultQualityWeight,
		deviceFloor: DefaultDeviceFloor,
		snrFloor:    DefaultSNRFloor,
		snrCeil:     DefaultSNRCeil,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score returns the blended confidence for one candidate decision,
// clamped to [0, 1]. bestSimilarity is the cosine similarity of the best
// index match; deviceMatch reports fingerprint agreement with that match.
func (e *Engine) Score(bestSimilarity float64, deviceMatch bool, q voice.QualityReport) float64 {
	sim := math.Max(0, math.Min(1, bestSimilarity))

	score := e.wSimilarity * sim
	if deviceMatch && sim >= e.deviceFloor {
		score += e.wDevice
	}
	score += e.wQuality * e.qualityTerm(q.SNRdB)

	return math.Max(0, math.Min(1, score))
}

// qualityTerm maps SNR onto [0, 1] across the configured range.
func (e *Engine) qualityTerm(snrDB float64) float64 {
	if e.snrCeil <= e.snrFloor {
		return 1
	}
	t := (snrDB - e.snrFloor) / (e.snrCeil - e.snrFloor)
	return math.Max(0, math.Min(1, t))
}
