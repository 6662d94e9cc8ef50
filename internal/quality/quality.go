// Package quality implements the audio quality gate that guards the
// version decision engine. It rejects samples that are too short or too
// noisy before any embedding work is spent on them.
//
// Thresholds are configuration, not constants: construct a [Gate] with
// functional options to retune them.
package quality

import "github.com/corvid-labs/voxline/pkg/voice"

const (
	// DefaultMinDuration is the minimum usable sample length in seconds.
	DefaultMinDuration = 2.0

	// DefaultMinSNR is the minimum usable signal-to-noise ratio in dB.
	DefaultMinSNR = 10.0
)

// Option is a functional option for configuring a [Gate].
type Option func(*Gate)

// WithMinDuration sets the minimum accepted duration in seconds.
func WithMinDuration(seconds float64) Option {
	return func(g *Gate) {
		g.minDuration = seconds
	}
}

// WithMinSNR sets the minimum accepted signal-to-noise ratio in dB.
func WithMinSNR(db float64) Option {
	return func(g *Gate) {
		g.minSNR = db
	}
}

// Gate evaluates raw audio descriptors against configured thresholds.
// It is stateless and safe for concurrent use.
type Gate struct {
	minDuration float64
	minSNR      float64
}

// New returns a [Gate] with the default thresholds, adjusted by opts.
func New(opts ...Option) *Gate {
	g := &Gate{
		minDuration: DefaultMinDuration,
		minSNR:      DefaultMinSNR,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Evaluate produces a [voice.QualityReport] for one input sample. It has
// no side effects: a failed report carries Passed=false and the caller is
// responsible for short-circuiting further processing.
func (g *Gate) Evaluate(durationSeconds, snrDB float64) voice.QualityReport {
	return voice.QualityReport{
		DurationSeconds: durationSeconds,
		SNRdB:           snrDB,
		Passed:          durationSeconds >= g.minDuration && snrDB >= g.minSNR,
	}
}

// MinSNR reports the configured SNR floor. The confidence engine uses it
// as the lower bound when normalising SNR into its quality term.
func (g *Gate) MinSNR() float64 {
	return g.minSNR
}
