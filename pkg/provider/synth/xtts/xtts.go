// Package xtts provides a synth provider backed by an XTTS-style synthesis
// server that accepts speaker embeddings directly. It implements the
// synth.Provider interface.
//
// Synthesis is performed via POST /tts_from_embedding/ with a JSON body
// carrying the text, the speaker embedding vector and a language code. The
// server responds with WAV-encoded audio.
//
// Typical usage:
//
//	p, err := xtts.New("http://localhost:8002",
//	    xtts.WithLanguage("en"),
//	    xtts.WithTimeout(15*time.Second),
//	)
//	audio, err := p.Synthesize(ctx, emb, "hello")
package xtts

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

	"github.com/corvid-labs/voxline/pkg/provider/synth"
	"github.com/corvid-labs/voxline/pkg/voice"
)

// Compile-time interface assertion.
var _ synth.Provider = (*Provider)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	synthEndpoint   = "/tts_from_embedding/"
)

// Option is a functional option for configuring an XTTS Provider.
type Option func(*Provider)

// WithLanguage sets the BCP-47 language code sent to the synthesis server
// (e.g., "en", "de"). Defaults to "en" if not set.
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithTimeout sets the per-request HTTP timeout for calls to the synthesis
// server. Defaults to 30 s if not set.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithHTTPClient replaces the underlying HTTP client. Useful for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements synth.Provider backed by an XTTS-style server. It is
// safe for concurrent use; multiple Synthesize calls may run in parallel.
type Provider struct {
	serverURL  string
	language   string
	httpClient *http.Client
}

// New creates a new Provider that targets the synthesis server at serverURL
// (e.g., "http://localhost:8002"). serverURL must be non-empty.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("xtts: serverURL must not be empty")
	}
	p := &Provider{
		serverURL: strings.TrimRight(serverURL, "/"),
		language:  defaultLanguage,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// synthRequest is the JSON body sent to POST /tts_from_embedding/.
type synthRequest struct {
	Text             string    `json:"text"`
	SpeakerEmbedding []float32 `json:"speaker_embedding"`
	Language         string    `json:"language"`
}

// synthError is the JSON body returned by the server on a non-200 response.
type synthError struct {
	Error string `json:"error"`
}

// Synthesize implements [synth.Provider]. It issues a single HTTP synthesis
// request and returns the WAV-encoded response body. All failures wrap
// [voice.ErrSynthesisFailure].
func (p *Provider) Synthesize(ctx context.Context, emb voice.Embedding, text string) ([]byte, error) {
	if len(emb) == 0 {
		return nil, fmt.Errorf("xtts: empty speaker embedding: %w", voice.ErrInvalidInput)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("xtts: empty text: %w", voice.ErrInvalidInput)
	}

	body := synthRequest{
		Text:             text,
		SpeakerEmbedding: emb,
		Language:         p.language,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("xtts: marshal synth request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+synthEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("xtts: create synth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("xtts: POST %s: %w: %w", synthEndpoint, voice.ErrSynthesisFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var serr synthError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&serr); decodeErr == nil && serr.Error != "" {
			return nil, fmt.Errorf("xtts: POST %s returned status %d: %s: %w", synthEndpoint, resp.StatusCode, serr.Error, voice.ErrSynthesisFailure)
		}
		return nil, fmt.Errorf("xtts: POST %s returned status %d: %w", synthEndpoint, resp.StatusCode, voice.ErrSynthesisFailure)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("xtts: read audio response: %w: %w", voice.ErrSynthesisFailure, err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("xtts: empty audio response: %w", voice.ErrSynthesisFailure)
	}
	return audio, nil
}

// Name implements [synth.Provider].
func (p *Provider) Name() string { return "xtts" }
