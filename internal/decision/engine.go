// Package decision implements the version decision engine: given a
// quality-gated sample embedding, it decides whether to fold the sample
// into an existing voice version, create a new one, or reject the input.
//
// Decisions are explainable by construction — every [voice.Decision]
// carries the action, the blended confidence, the best similarity, and a
// human-readable reason. Mutations for the same user are serialised so two
// concurrent near-duplicate submissions can never race into two versions,
// and every failure path leaves the timeline and index observably
// unchanged.
package decision

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/corvid-labs/voxline/internal/confidence"
	"github.com/corvid-labs/voxline/internal/timeline"
	"github.com/corvid-labs/voxline/internal/vecindex"
	"github.com/corvid-labs/voxline/pkg/vecmath"
	"github.com/corvid-labs/voxline/pkg/voice"
)

// Default decision thresholds. Both are tolerance-margin policies, exposed
// as options rather than constants.
const (
	// DefaultMergeThreshold is the similarity at or above which a sample
	// is folded into the matched version.
	DefaultMergeThreshold = 0.92

	// DefaultNewVersionThreshold is the similarity below which a sample
	// clearly represents a changed voice. Between the two thresholds the
	// decision is ambiguous and conservatively creates a new version.
	DefaultNewVersionThreshold = 0.75
)

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithThresholds sets the merge and new-version similarity thresholds.
func WithThresholds(merge, newVersion float64) Option {
	return func(e *Engine) {
		e.mergeThreshold = merge
		e.newVersionThreshold = newVersion
	}
}

// WithTopK sets how many index matches are considered per decision.
func WithTopK(k int) Option {
	return func(e *Engine) {
		e.topK = k
	}
}

// WithBirthTolerance sets how far before the date of birth a recording
// timestamp may fall before being rejected as invalid.
func WithBirthTolerance(d time.Duration) Option {
	return func(e *Engine) {
		e.birthTolerance = d
	}
}

// WithClock overrides the time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator overrides version ID generation. Used in tests.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		e.newID = gen
	}
}

// OnMutate registers a callback invoked after every successful timeline
// mutation (merge or create) with the affected user ID. The service layer
// uses it to invalidate cached synthesis results.
func OnMutate(fn func(userID string)) Option {
	return func(e *Engine) {
		e.onMutate = fn
	}
}

// Engine decides the fate of each accepted sample. Safe for concurrent
// use; mutations are serialised per user.
type Engine struct {
	store  timeline.Store
	index  vecindex.Index
	scorer *confidence.Engine
	dims   int

	mergeThreshold      float64
	newVersionThreshold float64
	topK                int
	birthTolerance      time.Duration

	now      func() time.Time
	newID    func() string
	onMutate func(userID string)

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns an [Engine] over the given store and index. dims is the
// embedding dimensionality every sample must match.
func New(store timeline.Store, index vecindex.Index, scorer *confidence.Engine, dims int, opts ...Option) *Engine {
	e := &Engine{
		store:               store,
		index:               index,
		scorer:              scorer,
		dims:                dims,
		mergeThreshold:      DefaultMergeThreshold,
		newVersionThreshold: DefaultNewVersionThreshold,
		topK:                vecindex.DefaultTopK,
		now:                 time.Now,
		newID:               func() string { return uuid.NewString() },
		locks:               make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// userLock returns the mutex serialising mutations for userID.
func (e *Engine) userLock(userID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[userID] = l
	}
	return l
}

// Decide runs the full decision procedure for one sample. recordedAt is
// the capture timestamp used to anchor a new version on the age axis; a
// zero value means "now".
//
// A quality failure yields a REJECT decision, not an error. Malformed
// input (dimension mismatch, unknown user, recording before birth) is a
// [voice.ErrInvalidInput] error.
func (e *Engine) Decide(ctx context.Context, userID string, emb voice.Embedding, q voice.QualityReport, device voice.DeviceFingerprint, recordedAt time.Time) (voice.Decision, error) {
	if !q.Passed {
		return voice.Decision{
			Action: voice.ActionReject,
			Reason: fmt.Sprintf("audio quality below threshold (%.1fs, %.1f dB)", q.DurationSeconds, q.SNRdB),
		}, nil
	}
	if len(emb) != e.dims {
		return voice.Decision{}, fmt.Errorf("decision: embedding dimension %d, engine expects %d: %w",
			len(emb), e.dims, voice.ErrInvalidInput)
	}

	profile, err := e.store.Profile(ctx, userID)
	if err != nil {
		return voice.Decision{}, fmt.Errorf("decision: %w: %w", voice.ErrInvalidInput, err)
	}

	if recordedAt.IsZero() {
		recordedAt = e.now()
	}
	age, err := timeline.AgeAt(profile, recordedAt, e.birthTolerance)
	if err != nil {
		return voice.Decision{}, fmt.Errorf("decision: %w", err)
	}

	// Similarity comparisons only make sense on unit vectors.
	sample := voice.Embedding(vecmath.Normalize(emb))

	lock := e.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	matches, err := e.index.Search(ctx, userID, sample, e.topK)
	if err != nil {
		return voice.Decision{}, fmt.Errorf("decision: index search: %w", err)
	}

	if len(matches) == 0 {
		// Baseline bootstrap: the first accepted recording defines the voice.
		return e.createVersion(ctx, userID, sample, device, age, recordedAt, 1.0, 0,
			voice.ActionCreate, "first recording for user, baseline version created")
	}

	best, bestVersion, err := e.pickBest(ctx, userID, matches)
	if err != nil {
		return voice.Decision{}, err
	}

	deviceMatch := device != "" && bestVersion.Device == device
	conf := e.scorer.Score(best.Similarity, deviceMatch, q)

	switch {
	case best.Similarity >= e.mergeThreshold:
		return e.merge(ctx, bestVersion, sample, conf, best.Similarity)

	case best.Similarity >= e.newVersionThreshold:
		reason := fmt.Sprintf("similarity %.3f is between thresholds %.2f and %.2f; creating a new version rather than merging on marginal evidence",
			best.Similarity, e.newVersionThreshold, e.mergeThreshold)
		return e.createVersion(ctx, userID, sample, device, age, recordedAt, conf, best.Similarity,
			voice.ActionAmbiguous, reason)

	default:
		reason := fmt.Sprintf("similarity %.3f below new-version threshold %.2f; voice has diverged",
			best.Similarity, e.newVersionThreshold)
		return e.createVersion(ctx, userID, sample, device, age, recordedAt, conf, best.Similarity,
			voice.ActionCreate, reason)
	}
}

// pickBest resolves the winning match. Ties on similarity prefer the
// version with the larger sample count (more corroborated identity), then
// the most recently created.
func (e *Engine) pickBest(ctx context.Context, userID string, matches []vecindex.Match) (vecindex.Match, voice.Version, error) {
	const simTie = 1e-9

	best := matches[0]
	bestVersion, err := e.store.Version(ctx, userID, best.VersionID)
	if err != nil {
		return vecindex.Match{}, voice.Version{}, fmt.Errorf("decision: load match %s: %w", best.VersionID, err)
	}

	for _, m := range matches[1:] {
		if math.Abs(m.Similarity-best.Similarity) > simTie {
			continue
		}
		v, err := e.store.Version(ctx, userID, m.VersionID)
		if err != nil {
			return vecindex.Match{}, voice.Version{}, fmt.Errorf("decision: load match %s: %w", m.VersionID, err)
		}
		if v.SampleCount > bestVersion.SampleCount ||
			(v.SampleCount == bestVersion.SampleCount && v.CreatedAt.After(bestVersion.CreatedAt)) {
			best, bestVersion = m, v
		}
	}
	return best, bestVersion, nil
}

// merge folds sample into target as a sample-count-weighted incremental
// mean. The index is updated first and reverted if the store update fails,
// so an error implies zero observable state change.
func (e *Engine) merge(ctx context.Context, target voice.Version, sample voice.Embedding, conf, similarity float64) (voice.Decision, error) {
	updated := target
	updated.Embedding = voice.Embedding(vecmath.Normalize(
		vecmath.IncrementalMean(target.Embedding, sample, target.SampleCount)))
	updated.SampleCount = target.SampleCount + 1
	updated.Confidence = math.Max(target.Confidence, conf)

	if err := e.index.Insert(ctx, target.UserID, target.ID, updated.Embedding); err != nil {
		return voice.Decision{}, fmt.Errorf("decision: reindex merged version: %w", err)
	}
	if err := e.store.UpdateVersion(ctx, updated); err != nil {
		// Roll the index back to the pre-merge embedding.
		_ = e.index.Insert(ctx, target.UserID, target.ID, target.Embedding)
		return voice.Decision{}, fmt.Errorf("decision: persist merged version: %w", err)
	}

	e.notifyMutate(target.UserID)
	return voice.Decision{
		Action:     voice.ActionMerge,
		VersionID:  target.ID,
		Confidence: updated.Confidence,
		Similarity: similarity,
		Reason: fmt.Sprintf("similarity %.3f at or above merge threshold %.2f; folded into version %s (now %d samples)",
			similarity, e.mergeThreshold, target.ID, updated.SampleCount),
	}, nil
}

// createVersion inserts a fresh version into the index and timeline. The
// index insert is compensated if the store insert fails.
func (e *Engine) createVersion(ctx context.Context, userID string, emb voice.Embedding, device voice.DeviceFingerprint, age float64, recordedAt time.Time, conf, similarity float64, action voice.Action, reason string) (voice.Decision, error) {
	v := voice.Version{
		ID:            e.newID(),
		UserID:        userID,
		Embedding:     emb,
		CreatedAt:     recordedAt,
		AgeAtCreation: age,
		Device:        device,
		Confidence:    conf,
		SampleCount:   1,
	}

	if err := e.index.Insert(ctx, userID, v.ID, v.Embedding); err != nil {
		return voice.Decision{}, fmt.Errorf("decision: index new version: %w", err)
	}
	if err := e.store.InsertVersion(ctx, v); err != nil {
		_ = e.index.Remove(ctx, userID, v.ID)
		return voice.Decision{}, fmt.Errorf("decision: persist new version: %w", err)
	}

	e.notifyMutate(userID)
	return voice.Decision{
		Action:     action,
		VersionID:  v.ID,
		Confidence: conf,
		Similarity: similarity,
		Reason:     reason,
	}, nil
}

func (e *Engine) notifyMutate(userID string) {
	if e.onMutate != nil {
		e.onMutate(userID)
	}
}
