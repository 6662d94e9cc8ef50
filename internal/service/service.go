// Package service composes the decision and playback engines with the
// embedding and synthesis providers into the operations the HTTP API
// exposes: submit a recording, request playback at an age, read the
// timeline.
//
// The service owns the cross-cutting concerns the engines stay free of:
// provider call timeouts, per-user playback rate limiting, synthesised
// audio caching, and metrics.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/corvid-labs/voxline/internal/decision"
	"github.com/corvid-labs/voxline/internal/observe"
	"github.com/corvid-labs/voxline/internal/playback"
	"github.com/corvid-labs/voxline/internal/quality"
	"github.com/corvid-labs/voxline/internal/timeline"
	"github.com/corvid-labs/voxline/internal/vecindex"
	"github.com/corvid-labs/voxline/pkg/audio"
	"github.com/corvid-labs/voxline/pkg/provider/embedder"
	"github.com/corvid-labs/voxline/pkg/provider/synth"
	"github.com/corvid-labs/voxline/pkg/voice"
)

const (
	defaultProviderTimeout = 10 * time.Second

	// cacheMaxCost bounds the synthesised-audio cache at 256 MiB; cost is
	// the byte length of each entry.
	cacheMaxCost = 256 << 20

	// warmLoadConcurrency bounds parallel per-user loads during startup.
	warmLoadConcurrency = 8
)

// Option configures a [Service].
type Option func(*Service)

// WithProviderTimeout bounds each outbound embedder and synthesis call.
func WithProviderTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.providerTimeout = d
		}
	}
}

// WithRateLimit enables per-user playback rate limiting. rps is the
// sustained request rate; burst is the burst allowance (minimum 1).
func WithRateLimit(rps float64, burst int) Option {
	return func(s *Service) {
		s.rps = rps
		if burst < 1 {
			burst = 1
		}
		s.burst = burst
	}
}

// WithMetrics replaces the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// PlaybackResponse is the result of a playback request: the resolved
// voice plus, when text was provided, the synthesised audio.
type PlaybackResponse struct {
	Result voice.PlaybackResult

	// Text is the age-shaped text that was synthesised. Empty when no
	// text was requested.
	Text string

	// Audio is the synthesised speech. Nil when no text was requested.
	Audio []byte

	// Cached reports whether Audio was served from the cache.
	Cached bool
}

// Service is the application facade over the voice versioning pipeline.
// It is safe for concurrent use.
type Service struct {
	store     timeline.Store
	index     vecindex.Index
	decisions *decision.Engine
	playback  *playback.Engine
	gate      *quality.Gate
	embedder  embedder.Provider
	synth     synth.Provider
	metrics   *observe.Metrics

	providerTimeout time.Duration

	cache *ristretto.Cache[string, []byte]

	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	generations map[string]uint64
	rps         float64
	burst       int
}

// New assembles a [Service] around the given stores, engines and providers.
func New(
	store timeline.Store,
	index vecindex.Index,
	dec *decision.Engine,
	pb *playback.Engine,
	gate *quality.Gate,
	emb embedder.Provider,
	syn synth.Provider,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		store:           store,
		index:           index,
		decisions:       dec,
		playback:        pb,
		gate:            gate,
		embedder:        emb,
		synth:           syn,
		providerTimeout: defaultProviderTimeout,
		limiters:        make(map[string]*rate.Limiter),
		generations:     make(map[string]uint64),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e6,
		MaxCost:     cacheMaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("service: create audio cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

// Close releases the audio cache.
func (s *Service) Close() {
	s.cache.Close()
}

// RegisterUser creates or replaces a user profile. The date of birth
// anchors every age computation for the user's versions.
func (s *Service) RegisterUser(ctx context.Context, userID string, dateOfBirth time.Time) error {
	if userID == "" || dateOfBirth.IsZero() {
		return fmt.Errorf("service: user id and date of birth are required: %w", voice.ErrInvalidInput)
	}
	return s.store.PutProfile(ctx, voice.Profile{UserID: userID, DateOfBirth: dateOfBirth})
}

// SubmitAudio runs one recording through the full ingest pipeline:
// container analysis, quality gate, embedding extraction, and the version
// decision. recordedAt anchors the sample on the age axis; a zero value
// means "now".
//
// A quality failure is reported as a REJECT decision, not an error.
func (s *Service) SubmitAudio(ctx context.Context, userID string, wav []byte, device voice.DeviceFingerprint, recordedAt time.Time) (voice.Decision, error) {
	ctx, span := observe.StartSpan(ctx, "service.SubmitAudio")
	defer span.End()
	start := time.Now()

	analysis, err := audio.Analyze(wav)
	if err != nil {
		return voice.Decision{}, fmt.Errorf("service: %w: %w", voice.ErrInvalidInput, err)
	}
	q := s.gate.Evaluate(analysis.DurationSeconds, analysis.SNRdB)

	var emb voice.Embedding
	if q.Passed {
		emb, err = s.embed(ctx, wav)
		if err != nil {
			return voice.Decision{}, err
		}
	}

	d, err := s.decisions.Decide(ctx, userID, emb, q, device, recordedAt)
	if err != nil {
		return voice.Decision{}, err
	}

	s.metrics.DecisionDuration.Record(ctx, time.Since(start).Seconds())
	s.metrics.RecordDecision(ctx, string(d.Action))

	if d.Action != voice.ActionReject {
		// The user's stored voice changed: synthesised audio keyed on the
		// previous state must not be served again.
		s.bumpGeneration(userID)
	}

	observe.Logger(ctx).Info("voice sample processed",
		"user", userID,
		"action", string(d.Action),
		"version", d.VersionID,
		"similarity", d.Similarity,
		"confidence", d.Confidence,
	)
	return d, nil
}

// RequestPlayback resolves the user's voice at targetAge and, when text is
// non-empty, synthesises the age-shaped text with that voice. Audio is
// cached per (user, voice generation, age, text).
func (s *Service) RequestPlayback(ctx context.Context, userID string, targetAge float64, text string) (PlaybackResponse, error) {
	ctx, span := observe.StartSpan(ctx, "service.RequestPlayback")
	defer span.End()

	if !s.allow(userID) {
		s.metrics.RateLimited.Add(ctx, 1)
		return PlaybackResponse{}, fmt.Errorf("service: playback for user %s: %w", userID, voice.ErrRateLimited)
	}

	start := time.Now()
	result, err := s.playback.Playback(ctx, userID, targetAge)
	if err != nil {
		return PlaybackResponse{}, err
	}
	s.metrics.PlaybackDuration.Record(ctx, time.Since(start).Seconds())
	s.metrics.RecordPlayback(ctx, string(result.Label))

	resp := PlaybackResponse{Result: result}
	if text == "" {
		return resp, nil
	}

	resp.Text = playback.ShapeText(text, targetAge)

	key := s.cacheKey(userID, targetAge, resp.Text)
	if cached, ok := s.cache.Get(key); ok {
		s.metrics.RecordCacheEvent(ctx, "hit")
		resp.Audio = cached
		resp.Cached = true
		return resp, nil
	}
	s.metrics.RecordCacheEvent(ctx, "miss")

	audioBytes, err := s.synthesize(ctx, result.Embedding, resp.Text)
	if err != nil {
		return PlaybackResponse{}, err
	}
	resp.Audio = audioBytes
	s.cache.Set(key, audioBytes, int64(len(audioBytes)))
	return resp, nil
}

// GetTimeline returns the user's versions sorted ascending by age. The
// user must exist; an empty timeline is a valid result.
func (s *Service) GetTimeline(ctx context.Context, userID string) ([]voice.Version, error) {
	if _, err := s.store.Profile(ctx, userID); err != nil {
		return nil, fmt.Errorf("service: %w: %w", voice.ErrInvalidInput, err)
	}
	return s.store.VersionsByAge(ctx, userID)
}

// WarmLoad populates the vector index from the store. Call once at
// startup, after migration and before serving traffic.
func (s *Service) WarmLoad(ctx context.Context) error {
	users, err := s.store.UserIDs(ctx)
	if err != nil {
		return fmt.Errorf("service: warm load: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(warmLoadConcurrency)

	for _, userID := range users {
		g.Go(func() error {
			versions, err := s.store.VersionsByAge(ctx, userID)
			if err != nil {
				return fmt.Errorf("service: warm load user %s: %w", userID, err)
			}
			for _, v := range versions {
				if err := s.index.Insert(ctx, userID, v.ID, v.Embedding); err != nil {
					return fmt.Errorf("service: warm load version %s: %w", v.ID, err)
				}
			}
			if len(versions) > 0 {
				s.metrics.ActiveUsers.Add(ctx, 1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("vector index warm load complete", "users", len(users))
	return nil
}

// embed extracts a voice embedding with the provider timeout applied.
func (s *Service) embed(ctx context.Context, wav []byte) (voice.Embedding, error) {
	ctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	start := time.Now()
	emb, err := s.embedder.Embed(ctx, wav)
	s.metrics.EmbedDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, s.embedder.ModelID(), "embedder")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("service: embedding: %w: %w", voice.ErrDependencyTimeout, err)
		}
		return nil, fmt.Errorf("service: embedding: %w", err)
	}
	return emb, nil
}

// synthesize renders text with the provider timeout applied.
func (s *Service) synthesize(ctx context.Context, emb voice.Embedding, text string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()

	start := time.Now()
	out, err := s.synth.Synthesize(ctx, emb, text)
	s.metrics.SynthDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordProviderError(ctx, s.synth.Name(), "synth")
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("service: synthesis: %w: %w", voice.ErrDependencyTimeout, err)
		}
		return nil, fmt.Errorf("service: synthesis: %w", err)
	}
	return out, nil
}

// SetRateLimit replaces the per-user playback limit at runtime. Existing
// per-user buckets are discarded and recreated lazily with the new
// parameters. rps <= 0 disables rate limiting.
func (s *Service) SetRateLimit(rps float64, burst int) {
	if burst < 1 {
		burst = 1
	}
	s.mu.Lock()
	s.rps = rps
	s.burst = burst
	s.limiters = make(map[string]*rate.Limiter)
	s.mu.Unlock()
}

// allow consults the per-user playback limiter. Rate limiting is disabled
// when no rate was configured.
func (s *Service) allow(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rps <= 0 {
		return true
	}
	l, ok := s.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.rps), s.burst)
		s.limiters[userID] = l
	}
	return l.Allow()
}

// bumpGeneration invalidates the user's cached audio by rotating the
// generation component of their cache keys.
func (s *Service) bumpGeneration(userID string) {
	s.mu.Lock()
	s.generations[userID]++
	s.mu.Unlock()
}

// cacheKey builds the audio cache key. The generation component makes
// stale entries unreachable after any version mutation, so no explicit
// eviction pass is needed.
func (s *Service) cacheKey(userID string, targetAge float64, text string) string {
	s.mu.Lock()
	gen := s.generations[userID]
	s.mu.Unlock()

	var b strings.Builder
	b.WriteString(userID)
	b.WriteByte(0)
	b.WriteString(strconv.FormatUint(gen, 10))
	b.WriteByte(0)
	b.WriteString(strconv.FormatFloat(targetAge, 'f', 3, 64))
	b.WriteByte(0)
	b.WriteString(text)
	return b.String()
}
