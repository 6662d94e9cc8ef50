package resilience

import (
	"context"

	"github.com/corvid-labs/voxline/pkg/provider/synth"
	"github.com/corvid-labs/voxline/pkg/voice"
)

// SynthFallback implements [synth.Provider] with automatic failover across
// multiple synthesis backends. Each backend has its own circuit breaker.
//
// The typical arrangement is an embedding-conditioned primary (XTTS) with a
// catalogue-voice fallback: the fallback cannot match the versioned voice but
// keeps playback available during primary outages.
type SynthFallback struct {
	group *FallbackGroup[synth.Provider]
}

// Compile-time interface assertion.
var _ synth.Provider = (*SynthFallback)(nil)

// NewSynthFallback creates a [SynthFallback] with primary as the preferred backend.
func NewSynthFallback(primary synth.Provider, primaryName string, cfg FallbackConfig) *SynthFallback {
	return &SynthFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional synthesis provider as a fallback.
func (f *SynthFallback) AddFallback(name string, provider synth.Provider) {
	f.group.AddFallback(name, provider)
}

// Synthesize renders text using the first healthy provider.
func (f *SynthFallback) Synthesize(ctx context.Context, emb voice.Embedding, text string) ([]byte, error) {
	return ExecuteWithResult(f.group, func(p synth.Provider) ([]byte, error) {
		return p.Synthesize(ctx, emb, text)
	})
}

// Name identifies the composite in logs and metrics.
func (f *SynthFallback) Name() string { return "fallback-group" }
