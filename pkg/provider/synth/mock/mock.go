// Package mock provides a configurable in-memory synth.Provider for tests.
package mock

import (
	"context"
	"sync"

	"github.com/corvid-labs/voxline/pkg/provider/synth"
	"github.com/corvid-labs/voxline/pkg/voice"
)

// Compile-time interface assertion.
var _ synth.Provider = (*Provider)(nil)

// SynthCall records a single Synthesize invocation.
type SynthCall struct {
	Embedding voice.Embedding
	Text      string
}

// Provider is a mock synth.Provider. Configure the exported fields before
// use; all methods are safe for concurrent use.
type Provider struct {
	mu sync.Mutex

	// SynthResult is the audio returned by Synthesize when SynthErr is nil.
	// When nil, Synthesize returns the text bytes so tests can assert on
	// shaped output without decoding audio.
	SynthResult []byte

	// SynthErr, when non-nil, is returned by every Synthesize call.
	SynthErr error

	// SynthDelayCtx, when true, blocks Synthesize until ctx is done and
	// returns ctx.Err(). Used for timeout tests.
	SynthDelayCtx bool

	// SynthCalls records every Synthesize invocation in order.
	SynthCalls []SynthCall

	// ProviderName overrides the value returned by Name. Defaults to "mock".
	ProviderName string
}

// Synthesize implements [synth.Provider].
func (p *Provider) Synthesize(ctx context.Context, emb voice.Embedding, text string) ([]byte, error) {
	p.mu.Lock()
	embCopy := make(voice.Embedding, len(emb))
	copy(embCopy, emb)
	p.SynthCalls = append(p.SynthCalls, SynthCall{Embedding: embCopy, Text: text})
	err := p.SynthErr
	result := p.SynthResult
	delay := p.SynthDelayCtx
	p.mu.Unlock()

	if delay {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	if result == nil {
		return []byte(text), nil
	}
	return result, nil
}

// Name implements [synth.Provider].
func (p *Provider) Name() string {
	if p.ProviderName != "" {
		return p.ProviderName
	}
	return "mock"
}

// Calls returns a snapshot of recorded Synthesize invocations.
func (p *Provider) Calls() []SynthCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]SynthCall, len(p.SynthCalls))
	copy(out, p.SynthCalls)
	return out
}
