// Package synth defines the Provider interface for embedding-conditioned
// speech synthesis backends.
//
// A synth provider consumes a voice conditioning vector plus text and
// produces encoded audio. The embedding is the same identity vector the
// decision and playback engines operate on; providers that cannot condition
// on an arbitrary embedding (e.g., catalogue-voice APIs) document that
// limitation and are used as development fallbacks only.
//
// Implementations must be safe for concurrent use.
package synth

import (
	"context"

	"github.com/corvid-labs/voxline/pkg/voice"
)

// Provider is the abstraction over any speech synthesis backend.
type Provider interface {
	// Synthesize renders text in the voice described by emb and returns
	// the encoded audio bytes. Returns an error if synthesis fails or ctx
	// is cancelled; no partial audio is returned on error.
	Synthesize(ctx context.Context, emb voice.Embedding, text string) ([]byte, error)

	// Name returns a short identifier for the backend (e.g., "xtts",
	// "openai"). Used for logging and metrics attributes.
	Name() string
}
