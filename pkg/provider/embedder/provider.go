// Package embedder defines the Provider interface for speaker-embedding
// backends.
//
// An embedder wraps a service that maps raw audio bytes to a fixed-length
// float32 identity vector (e.g., an ECAPA-TDNN speaker-verification model
// served over HTTP). The vector is an opaque semantic representation of
// the voice; voxline only assumes it lives in a space where cosine
// similarity measures identity.
//
// Implementations must be safe for concurrent use.
package embedder

import (
	"context"

	"github.com/corvid-labs/voxline/pkg/voice"
)

// Provider is the abstraction over any speaker-embedding backend.
//
// All vectors returned by a single Provider instance must share the same
// dimensionality (returned by Dimensions). Callers must not mix vectors
// from different Provider instances in the same similarity computation
// unless they have verified that both use the same model and space.
type Provider interface {
	// Embed computes the identity embedding for one audio sample. The
	// returned vector has length Dimensions() and is already normalised
	// to unit length. Returns an error if the audio is malformed or
	// unintelligible, or if ctx is cancelled.
	Embed(ctx context.Context, audio []byte) (voice.Embedding, error)

	// Dimensions returns the fixed length of every embedding produced by
	// this provider. Constant for the lifetime of the instance.
	Dimensions() int

	// ModelID returns the provider-specific model identifier
	// (e.g., "ecapa-tdnn-voxceleb"). Useful for logging and for ensuring
	// consistent model usage across a timeline.
	ModelID() string
}
