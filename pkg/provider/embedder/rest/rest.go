// Package rest provides an embedder.Provider backed by a speaker-embedding
// inference server exposed over HTTP (e.g., a SpeechBrain ECAPA-TDNN model
// behind a small REST wrapper).
//
// Synthesis of the request is deliberately simple: the raw audio bytes are
// POSTed to /embed and the server replies with a JSON body carrying the
// vector. The provider normalises the vector to unit length before
// returning it, so callers can rely on the unit-norm invariant regardless
// of server behaviour.
//
// Typical usage:
//
//	p, err := rest.New("http://localhost:8090", 192,
//	    rest.WithTimeout(15*time.Second),
//	)
//	emb, err := p.Embed(ctx, audioBytes)
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/corvid-labs/voxline/pkg/provider/embedder"
	"github.com/corvid-labs/voxline/pkg/vecmath"
	"github.com/corvid-labs/voxline/pkg/voice"
)

// Compile-time interface assertion.
var _ embedder.Provider = (*Provider)(nil)

const (
	defaultTimeout = 30 * time.Second
	embedEndpoint  = "/embed"
	defaultModelID = "ecapa-tdnn"
)

// Option is a functional option for configuring a REST embedder Provider.
type Option func(*Provider)

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithModelID overrides the model identifier reported by ModelID.
func WithModelID(id string) Option {
	return func(p *Provider) {
		p.modelID = id
	}
}

// Provider implements embedder.Provider against an HTTP embedding server.
// It is safe for concurrent use.
type Provider struct {
	serverURL  string
	dims       int
	modelID    string
	httpClient *http.Client
}

// New creates a Provider targeting the embedding server at serverURL
// (e.g., "http://localhost:8090"). dims is the dimensionality the server's
// model produces; responses with any other length are rejected.
func New(serverURL string, dims int, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("embedder: serverURL must not be empty")
	}
	if dims <= 0 {
		return nil, fmt.Errorf("embedder: dimensions must be positive, got %d", dims)
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		dims:      dims,
		modelID:   defaultModelID,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// embedResponse is the JSON body returned by POST /embed.
type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Error     string    `json:"error,omitempty"`
}

// Embed implements [embedder.Provider]. Failures from the server are
// wrapped in [voice.ErrEmbeddingFailure] so callers can classify them
// without inspecting HTTP details.
func (p *Provider) Embed(ctx context.Context, audio []byte) (voice.Embedding, error) {
	if len(audio) == 0 {
		return nil, fmt.Errorf("embedder: empty audio: %w", voice.ErrEmbeddingFailure)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+embedEndpoint, bytes.NewReader(audio))
	if err != nil {
		return nil, fmt.Errorf("embedder: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedder: call %s: %w", embedEndpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("embedder: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedder: server returned %s: %s: %w",
			resp.Status, strings.TrimSpace(string(body)), voice.ErrEmbeddingFailure)
	}

	var parsed embedResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("embedder: decode response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("embedder: %s: %w", parsed.Error, voice.ErrEmbeddingFailure)
	}
	if len(parsed.Embedding) != p.dims {
		return nil, fmt.Errorf("embedder: server returned %d dimensions, expected %d: %w",
			len(parsed.Embedding), p.dims, voice.ErrEmbeddingFailure)
	}

	return voice.Embedding(vecmath.Normalize(parsed.Embedding)), nil
}

// Dimensions implements [embedder.Provider].
func (p *Provider) Dimensions() int {
	return p.dims
}

// ModelID implements [embedder.Provider].
func (p *Provider) ModelID() string {
	return p.modelID
}
