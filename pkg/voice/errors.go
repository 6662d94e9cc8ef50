package voice

import "errors"

// Error kinds reported to callers. Each maps to one terminal failure mode
// of a submit or playback request; they are matched with [errors.Is] and
// are always wrapped with a human-readable reason by the reporting package.
var (
	// ErrLowQuality means the quality gate rejected the input. Terminal;
	// never retried automatically.
	ErrLowQuality = errors.New("audio quality below threshold")

	// ErrInvalidInput means the request was malformed (embedding dimension
	// mismatch, unknown user, recording before date of birth). Fatal to the
	// call but not to the process.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoData means the user has no versions to play back from.
	ErrNoData = errors.New("no voice data for user")

	// ErrDependencyTimeout means an external provider call exceeded its
	// bounded timeout. The caller may retry once with backoff; the core
	// performs no automatic retry.
	ErrDependencyTimeout = errors.New("dependency call timed out")

	// ErrEmbeddingFailure means the embedding provider could not produce a
	// vector from the audio.
	ErrEmbeddingFailure = errors.New("embedding extraction failed")

	// ErrSynthesisFailure means the synthesis provider could not produce
	// audio from the conditioning vector.
	ErrSynthesisFailure = errors.New("speech synthesis failed")

	// ErrRateLimited means the per-user synthesis throttle rejected the
	// request. Fails fast; never queued silently.
	ErrRateLimited = errors.New("rate limit exceeded")
)
