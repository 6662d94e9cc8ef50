// Package vecindex provides the per-user nearest-neighbour index over
// historical voice-version embeddings.
//
// Each user owns an independent logical partition; queries never cross
// users, which keeps locking and failure scoped to one user. Similarity is
// cosine similarity on unit-norm vectors (equivalent to inner product).
// Two implementations exist: [MemIndex], an exact brute-force scan that is
// effectively free at the few-thousand-version scale a single user can
// reach, and [PostgresIndex], backed by a pgvector HNSW index for larger
// deployments.
package vecindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/corvid-labs/voxline/pkg/vecmath"
	"github.com/corvid-labs/voxline/pkg/voice"
)

// DefaultTopK is the default number of matches returned by Search.
const DefaultTopK = 5

// Match is one nearest-neighbour result.
type Match struct {
	// VersionID identifies the matched voice version.
	VersionID string

	// Similarity is the cosine similarity to the query, in [-1, 1].
	Similarity float64
}

// Index is the abstraction over any per-user nearest-neighbour store.
//
// Implementations must be safe for concurrent use. Insert upserts: adding
// a vector under an existing version ID replaces it, which is how merge
// decisions refresh the aggregated embedding.
type Index interface {
	// Insert adds or replaces the vector for (userID, versionID).
	Insert(ctx context.Context, userID, versionID string, emb voice.Embedding) error

	// Remove deletes the vector for (userID, versionID). Removing an
	// unknown ID is not an error.
	Remove(ctx context.Context, userID, versionID string) error

	// Search returns up to k matches for query among userID's vectors,
	// best-first. An unknown user yields an empty result, not an error.
	Search(ctx context.Context, userID string, query voice.Embedding, k int) ([]Match, error)
}

// Compile-time assertion that MemIndex satisfies the Index interface.
var _ Index = (*MemIndex)(nil)

// MemIndex is a thread-safe, in-memory exact [Index]. For the corpus sizes
// a single user accumulates, a linear scan is exact and fast enough that
// approximate search buys nothing.
type MemIndex struct {
	dims int

	mu    sync.RWMutex
	users map[string]map[string][]float32
}

// NewMemIndex returns an initialised [MemIndex] that accepts vectors of
// the given dimensionality.
func NewMemIndex(dims int) *MemIndex {
	return &MemIndex{
		dims:  dims,
		users: make(map[string]map[string][]float32),
	}
}

// Insert implements [Index.Insert].
func (m *MemIndex) Insert(ctx context.Context, userID, versionID string, emb voice.Embedding) error {
	if len(emb) != m.dims {
		return fmt.Errorf("vecindex: insert %s/%s: dimension %d does not match index dimension %d: %w",
			userID, versionID, len(emb), m.dims, voice.ErrInvalidInput)
	}

	vec := make([]float32, len(emb))
	copy(vec, emb)

	m.mu.Lock()
	defer m.mu.Unlock()

	part, ok := m.users[userID]
	if !ok {
		part = make(map[string][]float32)
		m.users[userID] = part
	}
	part[versionID] = vec
	return nil
}

// Remove implements [Index.Remove].
func (m *MemIndex) Remove(ctx context.Context, userID, versionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if part, ok := m.users[userID]; ok {
		delete(part, versionID)
		if len(part) == 0 {
			delete(m.users, userID)
		}
	}
	return nil
}

// Search implements [Index.Search].
func (m *MemIndex) Search(ctx context.Context, userID string, query voice.Embedding, k int) ([]Match, error) {
	if len(query) != m.dims {
		return nil, fmt.Errorf("vecindex: search %s: dimension %d does not match index dimension %d: %w",
			userID, len(query), m.dims, voice.ErrInvalidInput)
	}
	if k <= 0 {
		k = DefaultTopK
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	part := m.users[userID]
	matches := make([]Match, 0, len(part))
	for id, vec := range part {
		matches = append(matches, Match{
			VersionID:  id,
			Similarity: vecmath.Cosine(query, vec),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].VersionID < matches[j].VersionID
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Size reports the number of vectors stored for userID.
func (m *MemIndex) Size(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users[userID])
}
