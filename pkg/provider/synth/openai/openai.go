// Package openai provides a synth provider backed by the OpenAI speech API.
//
// The OpenAI API synthesises from a fixed voice catalogue and cannot condition
// on an arbitrary speaker embedding, so the embedding argument is ignored.
// This provider exists as a development and demo fallback when no
// embedding-conditioned synthesis server is available.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/corvid-labs/voxline/pkg/provider/synth"
	"github.com/corvid-labs/voxline/pkg/voice"
)

// DefaultModel is the default OpenAI speech model.
const DefaultModel = oai.SpeechModelTTS1

// DefaultVoice is the catalogue voice used when none is configured.
const DefaultVoice = oai.AudioSpeechNewParamsVoiceAlloy

// Ensure Provider implements the synth.Provider interface.
var _ synth.Provider = (*Provider)(nil)

// Provider implements synth.Provider using the OpenAI speech API.
type Provider struct {
	client oai.Client
	model  oai.SpeechModel
	voice  oai.AudioSpeechNewParamsVoice
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	voice   string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithVoice selects a catalogue voice (e.g., "alloy", "nova").
func WithVoice(v string) Option {
	return func(c *config) {
		c.voice = v
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI speech Provider. If model is empty,
// DefaultModel (tts-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai synth: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	v := DefaultVoice
	if cfg.voice != "" {
		v = oai.AudioSpeechNewParamsVoice(cfg.voice)
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: oai.SpeechModel(model), voice: v}, nil
}

// Synthesize implements [synth.Provider]. The embedding argument is accepted
// for interface compatibility but not used; the configured catalogue voice
// speaks all output.
func (p *Provider) Synthesize(ctx context.Context, _ voice.Embedding, text string) ([]byte, error) {
	if text == "" {
		return nil, fmt.Errorf("openai synth: empty text: %w", voice.ErrInvalidInput)
	}

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          p.model,
		Input:          text,
		Voice:          p.voice,
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatWAV,
	})
	if err != nil {
		return nil, fmt.Errorf("openai synth: speech request: %w: %w", voice.ErrSynthesisFailure, err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai synth: read audio response: %w: %w", voice.ErrSynthesisFailure, err)
	}
	return audio, nil
}

// Name implements [synth.Provider].
func (p *Provider) Name() string { return "openai" }
