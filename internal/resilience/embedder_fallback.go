package resilience

import (
	"context"

	"github.com/corvid-labs/voxline/pkg/provider/embedder"
	"github.com/corvid-labs/voxline/pkg/voice"
)

// EmbedderFallback implements [embedder.Provider] with automatic failover
// across multiple embedding backends. Each backend has its own circuit breaker.
//
// All registered backends must produce embeddings of the same dimensionality
// and, ideally, the same model family; mixing models degrades similarity
// comparisons against stored versions.
type EmbedderFallback struct {
	group *FallbackGroup[embedder.Provider]
}

// Compile-time interface assertion.
var _ embedder.Provider = (*EmbedderFallback)(nil)

// NewEmbedderFallback creates an [EmbedderFallback] with primary as the
// preferred backend.
func NewEmbedderFallback(primary embedder.Provider, primaryName string, cfg FallbackConfig) *EmbedderFallback {
	return &EmbedderFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional embedding provider as a fallback.
func (f *EmbedderFallback) AddFallback(name string, provider embedder.Provider) {
	f.group.AddFallback(name, provider)
}

// Embed extracts a voice embedding using the first healthy provider.
func (f *EmbedderFallback) Embed(ctx context.Context, audio []byte) (voice.Embedding, error) {
	return ExecuteWithResult(f.group, func(p embedder.Provider) (voice.Embedding, error) {
		return p.Embed(ctx, audio)
	})
}

// Dimensions reports the embedding dimensionality of the primary backend.
func (f *EmbedderFallback) Dimensions() int {
	return f.group.entries[0].value.Dimensions()
}

// ModelID reports the model identifier of the primary backend.
func (f *EmbedderFallback) ModelID() string {
	return f.group.entries[0].value.ModelID()
}
