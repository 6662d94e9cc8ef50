package timeline

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/corvid-labs/voxline/pkg/voice"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// It is suitable for single-node use and testing.
type MemStore struct {
	mu       sync.RWMutex
	profiles map[string]voice.Profile
	versions map[string][]voice.Version // per user, kept sorted by age
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		profiles: make(map[string]voice.Profile),
		versions: make(map[string][]voice.Version),
	}
}

// PutProfile implements [Store.PutProfile].
func (s *MemStore) PutProfile(ctx context.Context, p voice.Profile) error {
	if p.UserID == "" {
		return fmt.Errorf("timeline: profile has empty user id: %w", voice.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.UserID] = p
	return nil
}

// Profile implements [Store.Profile].
func (s *MemStore) Profile(ctx context.Context, userID string) (voice.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return voice.Profile{}, fmt.Errorf("timeline: user %s: %w", userID, ErrProfileNotFound)
	}
	return p, nil
}

// InsertVersion implements [Store.InsertVersion]. The insert position is
// found by age so the slice stays sorted regardless of insertion order.
func (s *MemStore) InsertVersion(ctx context.Context, v voice.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[v.UserID]; !ok {
		return fmt.Errorf("timeline: insert version for user %s: %w", v.UserID, ErrProfileNotFound)
	}

	list := s.versions[v.UserID]
	for _, existing := range list {
		if existing.ID == v.ID {
			return fmt.Errorf("timeline: version %s for user %s: %w", v.ID, v.UserID, ErrDuplicateID)
		}
	}

	stored := cloneVersion(v)
	pos := sort.Search(len(list), func(i int) bool {
		return lessByAge(stored, list[i])
	})
	list = append(list, voice.Version{})
	copy(list[pos+1:], list[pos:])
	list[pos] = stored
	s.versions[v.UserID] = list
	return nil
}

// UpdateVersion implements [Store.UpdateVersion].
func (s *MemStore) UpdateVersion(ctx context.Context, v voice.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.versions[v.UserID]
	for i, existing := range list {
		if existing.ID == v.ID {
			list[i] = cloneVersion(v)
			return nil
		}
	}
	return fmt.Errorf("timeline: update version %s for user %s: %w", v.ID, v.UserID, ErrVersionNotFound)
}

// Version implements [Store.Version].
func (s *MemStore) Version(ctx context.Context, userID, versionID string) (voice.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.versions[userID] {
		if v.ID == versionID {
			return cloneVersion(v), nil
		}
	}
	return voice.Version{}, fmt.Errorf("timeline: version %s for user %s: %w", versionID, userID, ErrVersionNotFound)
}

// UserIDs implements [Store.UserIDs].
func (s *MemStore) UserIDs(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.profiles))
	for id := range s.profiles {
		ids = append(ids, id)
	}
	return ids, nil
}

// VersionsByAge implements [Store.VersionsByAge].
func (s *MemStore) VersionsByAge(ctx context.Context, userID string) ([]voice.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.versions[userID]
	out := make([]voice.Version, len(list))
	for i, v := range list {
		out[i] = cloneVersion(v)
	}
	return out, nil
}
