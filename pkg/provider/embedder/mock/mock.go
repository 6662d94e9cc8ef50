// Package mock provides a test double for the embedder.Provider interface.
//
// Use Provider to feed deterministic embeddings to consumers and to verify
// the audio bytes passed to the backend.
package mock

import (
	"context"
	"sync"

	"github.com/corvid-labs/voxline/pkg/provider/embedder"
	"github.com/corvid-labs/voxline/pkg/voice"
)

// Compile-time interface assertion.
var _ embedder.Provider = (*Provider)(nil)

// EmbedCall records a single invocation of Embed.
type EmbedCall struct {
	// Ctx is the context passed to Embed.
	Ctx context.Context
	// Audio is a copy of the audio bytes passed to Embed.
	Audio []byte
}

// Provider is a mock implementation of embedder.Provider.
type Provider struct {
	mu sync.Mutex

	// EmbedResult is returned by Embed when EmbedErr is nil. If EmbedQueue
	// is non-empty it takes precedence and results are popped in order.
	EmbedResult voice.Embedding

	// EmbedQueue, when non-empty, supplies one result per Embed call.
	EmbedQueue []voice.Embedding

	// EmbedErr, if non-nil, is returned as the error from Embed.
	EmbedErr error

	// EmbedDelayCtx, when true, makes Embed block until ctx is done and
	// return ctx.Err(). Used to exercise timeout paths.
	EmbedDelayCtx bool

	// Dims is the value returned by Dimensions.
	Dims int

	// Model is the value returned by ModelID. Defaults to "mock".
	Model string

	// EmbedCalls records every call to Embed in order.
	EmbedCalls []EmbedCall
}

// Embed implements [embedder.Provider].
func (p *Provider) Embed(ctx context.Context, audio []byte) (voice.Embedding, error) {
	p.mu.Lock()
	cp := make([]byte, len(audio))
	copy(cp, audio)
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Ctx: ctx, Audio: cp})

	if p.EmbedDelayCtx {
		p.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer p.mu.Unlock()

	if p.EmbedErr != nil {
		return nil, p.EmbedErr
	}
	if len(p.EmbedQueue) > 0 {
		next := p.EmbedQueue[0]
		p.EmbedQueue = p.EmbedQueue[1:]
		return next, nil
	}
	return p.EmbedResult, nil
}

// Dimensions implements [embedder.Provider].
func (p *Provider) Dimensions() int {
	return p.Dims
}

// ModelID implements [embedder.Provider].
func (p *Provider) ModelID() string {
	if p.Model == "" {
		return "mock"
	}
	return p.Model
}
