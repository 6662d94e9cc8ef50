// Package voice defines the shared types used across all voxline packages.
//
// These types form the lingua franca between the quality gate, embedding
// index, decision engine, timeline, and playback engine. They are
// intentionally minimal — each package defines its own domain types, but
// cross-cutting data structures live here to avoid circular imports.
package voice

import "time"

// Embedding is a fixed-length identity representation of a voice sample.
// Embeddings are normalised to unit length before any similarity
// comparison and are immutable once computed.
type Embedding []float32

// QualityReport is the outcome of the quality gate for one input sample.
// It is produced once per input and never mutated.
type QualityReport struct {
	// DurationSeconds is the length of the audio sample.
	DurationSeconds float64

	// SNRdB is the estimated signal-to-noise ratio of the recording.
	SNRdB float64

	// Passed reports whether the sample cleared the configured thresholds.
	Passed bool
}

// DeviceFingerprint is a compact hashed descriptor of the capture device
// and channel. It is a secondary, non-authoritative identity signal: a
// high-similarity match from a new device must still be trusted.
type DeviceFingerprint string

// Version is a persisted, representative voice embedding anchored to an
// age. It is built from one or more merged recordings and owned exclusively
// by one user's timeline. After creation only SampleCount, Confidence, and
// the aggregated Embedding change, and only when new audio is folded into
// the version by a merge decision.
type Version struct {
	// ID uniquely identifies this version within the timeline.
	ID string

	// UserID is the owning user.
	UserID string

	// Embedding is the aggregated unit-norm identity vector.
	Embedding Embedding

	// CreatedAt is when the version was first created.
	CreatedAt time.Time

	// AgeAtCreation is the user's age in years at CreatedAt, derived from
	// the recording timestamp and the user's date of birth.
	AgeAtCreation float64

	// Device is the fingerprint of the device that produced the first
	// sample of this version.
	Device DeviceFingerprint

	// Confidence is the identity confidence attached to this version,
	// raised (never lowered) by subsequent merges.
	Confidence float64

	// SampleCount is the number of recordings folded into Embedding.
	// It weights the incremental-mean merge so the operation is replay-safe.
	SampleCount int
}

// Profile identifies a user and supplies the age axis for their timeline.
type Profile struct {
	UserID      string
	DateOfBirth time.Time
}

// Action is the outcome category of a version decision.
type Action string

const (
	// ActionReject means the input was refused (quality gate failure).
	ActionReject Action = "REJECT"

	// ActionMerge means the sample was folded into an existing version.
	ActionMerge Action = "MERGE_INTO_EXISTING"

	// ActionAmbiguous means similarity fell between the merge and
	// new-version thresholds. A new version is still created (never
	// silently merge on marginal evidence) but the decision is flagged so
	// callers can surface a warning.
	ActionAmbiguous Action = "AMBIGUOUS"

	// ActionCreate means a fresh version was inserted into the timeline.
	ActionCreate Action = "CREATE_NEW_VERSION"
)

// Decision is the explainable result of submitting one audio sample.
// Explainability is a first-class output: every decision carries the
// confidence and a human-readable reason.
type Decision struct {
	Action     Action
	VersionID  string
	Confidence float64
	Similarity float64
	Reason     string
}

// Label classifies the provenance of a playback result. Callers must never
// present an interpolated or predicted result as recorded.
type Label string

const (
	// LabelRecorded means the embedding comes verbatim from one version.
	LabelRecorded Label = "RECORDED"

	// LabelInterpolated means the embedding was interpolated between two
	// bracketing versions.
	LabelInterpolated Label = "INTERPOLATED"

	// LabelPredicted means the embedding was extrapolated outside the
	// timeline's known age range.
	LabelPredicted Label = "PREDICTED"
)

// PlaybackResult is the ephemeral outcome of a playback request. It is
// never persisted: predictions and interpolations are not versions.
type PlaybackResult struct {
	// Embedding is the unit-norm conditioning vector to hand to synthesis.
	Embedding Embedding

	// Label states how Embedding was obtained.
	Label Label

	// SourceVersions lists the version IDs the result derives from
	// (one for RECORDED, two for INTERPOLATED, one or two for PREDICTED).
	SourceVersions []string

	// Confidence is the trust in the result. Predicted results are always
	// capped below the configured prediction ceiling.
	Confidence float64
}
