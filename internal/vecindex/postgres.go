package vecindex

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/corvid-labs/voxline/pkg/voice"
)

// Schema is the SQL DDL for the voice_embeddings table. The vector column
// dimension is interpolated at migration time; the HNSW index uses cosine
// distance to match [Index]'s similarity metric. Execute via
// [PostgresIndex.Migrate] or apply manually during deployment.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS voice_embeddings (
    version_id TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    embedding  vector(%d) NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_voice_embeddings_user ON voice_embeddings(user_id);
CREATE INDEX IF NOT EXISTS idx_voice_embeddings_hnsw
    ON voice_embeddings USING hnsw (embedding vector_cosine_ops);
`

// DB is the database interface used by [PostgresIndex]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Compile-time interface check.
var _ Index = (*PostgresIndex)(nil)

// PostgresIndex is an [Index] backed by a PostgreSQL voice_embeddings
// table with a pgvector HNSW index for approximate nearest-neighbour
// search. HNSW recall at the small per-user K used here is effectively
// exact in practice.
//
// All methods are safe for concurrent use.
type PostgresIndex struct {
	db   DB
	dims int
}

// NewPostgresIndex creates a [PostgresIndex] over the given connection or
// pool. The caller is responsible for calling [PostgresIndex.Migrate] to
// ensure the schema exists before issuing queries.
func NewPostgresIndex(db DB, dims int) *PostgresIndex {
	return &PostgresIndex{db: db, dims: dims}
}

// Migrate executes the [Schema] DDL, creating the voice_embeddings table
// and indexes if they do not already exist.
func (p *PostgresIndex) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, fmt.Sprintf(Schema, p.dims)); err != nil {
		return fmt.Errorf("vecindex: migrate: %w", err)
	}
	return nil
}

// Insert implements [Index.Insert]. It upserts: a vector stored under an
// existing version ID is completely replaced.
func (p *PostgresIndex) Insert(ctx context.Context, userID, versionID string, emb voice.Embedding) error {
	if len(emb) != p.dims {
		return fmt.Errorf("vecindex: insert %s/%s: dimension %d does not match index dimension %d: %w",
			userID, versionID, len(emb), p.dims, voice.ErrInvalidInput)
	}

	const q = `
		INSERT INTO voice_embeddings (version_id, user_id, embedding)
		VALUES ($1, $2, $3)
		ON CONFLICT (version_id) DO UPDATE SET
		    user_id   = EXCLUDED.user_id,
		    embedding = EXCLUDED.embedding`

	if _, err := p.db.Exec(ctx, q, versionID, userID, pgvector.NewVector(emb)); err != nil {
		return fmt.Errorf("vecindex: insert %s/%s: %w", userID, versionID, err)
	}
	return nil
}

// Remove implements [Index.Remove].
func (p *PostgresIndex) Remove(ctx context.Context, userID, versionID string) error {
	const q = `DELETE FROM voice_embeddings WHERE version_id = $1 AND user_id = $2`
	if _, err := p.db.Exec(ctx, q, versionID, userID); err != nil {
		return fmt.Errorf("vecindex: remove %s/%s: %w", userID, versionID, err)
	}
	return nil
}

// Search implements [Index.Search]. Results are ordered by ascending
// cosine distance (most similar first); the distance is converted to
// cosine similarity before being returned.
func (p *PostgresIndex) Search(ctx context.Context, userID string, query voice.Embedding, k int) ([]Match, error) {
	if len(query) != p.dims {
		return nil, fmt.Errorf("vecindex: search %s: dimension %d does not match index dimension %d: %w",
			userID, len(query), p.dims, voice.ErrInvalidInput)
	}
	if k <= 0 {
		k = DefaultTopK
	}

	const q = `
		SELECT version_id, embedding <=> $1 AS distance
		FROM   voice_embeddings
		WHERE  user_id = $2
		ORDER  BY distance
		LIMIT  $3`

	rows, err := p.db.Query(ctx, q, pgvector.NewVector(query), userID, k)
	if err != nil {
		return nil, fmt.Errorf("vecindex: search %s: %w", userID, err)
	}

	matches, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Match, error) {
		var (
			m    Match
			dist float64
		)
		if err := row.Scan(&m.VersionID, &dist); err != nil {
			return Match{}, err
		}
		m.Similarity = 1 - dist
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("vecindex: scan rows: %w", err)
	}
	if matches == nil {
		matches = []Match{}
	}
	return matches, nil
}
