// Package timeline maintains each user's age-ordered sequence of voice
// versions and the age arithmetic that anchors recordings to it.
//
// A timeline is strictly ordered by age at creation, with creation order
// breaking ties. Reads return copied snapshots so playback never observes
// a torn view of an in-progress insert. Predicted or interpolated playback
// results are never persisted here — only recorded versions exist in a
// timeline.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/corvid-labs/voxline/pkg/voice"
)

// hoursPerYear converts durations to fractional years using the mean
// Gregorian year of 365.2425 days.
const hoursPerYear = 365.2425 * 24

var (
	// ErrProfileNotFound is returned when no profile exists for a user.
	ErrProfileNotFound = errors.New("user profile not found")

	// ErrVersionNotFound is returned when a version ID is unknown.
	ErrVersionNotFound = errors.New("voice version not found")

	// ErrDuplicateID is returned when inserting a version whose ID is
	// already present in the timeline.
	ErrDuplicateID = errors.New("duplicate version id")
)

// Store is the abstraction over timeline persistence. Implementations
// must be safe for concurrent use and must return deep copies from read
// methods: callers may hold results across concurrent mutations.
type Store interface {
	// PutProfile creates or replaces a user profile.
	PutProfile(ctx context.Context, p voice.Profile) error

	// Profile returns the profile for userID or [ErrProfileNotFound].
	Profile(ctx context.Context, userID string) (voice.Profile, error)

	// InsertVersion adds a new version to its user's timeline. The
	// timeline stays sorted by age regardless of insertion order.
	// Returns [ErrDuplicateID] if the version ID already exists.
	InsertVersion(ctx context.Context, v voice.Version) error

	// UpdateVersion replaces the stored version with the same ID. Only the
	// merge path uses this: embedding, confidence, and sample count are
	// the only fields that legitimately change.
	UpdateVersion(ctx context.Context, v voice.Version) error

	// Version returns userID's version with the given ID or
	// [ErrVersionNotFound].
	Version(ctx context.Context, userID, versionID string) (voice.Version, error)

	// VersionsByAge returns a snapshot of userID's versions sorted by
	// AgeAtCreation ascending, ties broken by CreatedAt. An existing user
	// with no versions yields an empty slice, not an error.
	VersionsByAge(ctx context.Context, userID string) ([]voice.Version, error)

	// UserIDs returns the IDs of all users with a profile, in no
	// particular order. Used to warm-load the vector index at startup.
	UserIDs(ctx context.Context) ([]string, error)
}

// AgeAt converts a recording timestamp into the user's fractional age in
// years. Timestamps earlier than the date of birth by more than tolerance
// are rejected with [voice.ErrInvalidInput]; within tolerance they clamp
// to age zero.
func AgeAt(p voice.Profile, ts time.Time, tolerance time.Duration) (float64, error) {
	if p.DateOfBirth.IsZero() {
		return 0, fmt.Errorf("timeline: user %s has no date of birth: %w", p.UserID, voice.ErrInvalidInput)
	}
	if ts.Before(p.DateOfBirth.Add(-tolerance)) {
		return 0, fmt.Errorf("timeline: recording at %s predates birth %s of user %s: %w",
			ts.Format(time.RFC3339), p.DateOfBirth.Format(time.RFC3339), p.UserID, voice.ErrInvalidInput)
	}
	age := ts.Sub(p.DateOfBirth).Hours() / hoursPerYear
	if age < 0 {
		age = 0
	}
	return age, nil
}

// cloneVersion deep-copies v so stored state can never be mutated through
// a returned snapshot.
func cloneVersion(v voice.Version) voice.Version {
	out := v
	out.Embedding = make(voice.Embedding, len(v.Embedding))
	copy(out.Embedding, v.Embedding)
	return out
}

// lessByAge is the timeline ordering: age ascending, creation order
// breaking ties.
func lessByAge(a, b voice.Version) bool {
	if a.AgeAtCreation != b.AgeAtCreation {
		return a.AgeAtCreation < b.AgeAtCreation
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
