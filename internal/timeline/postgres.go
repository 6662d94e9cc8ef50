package timeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/corvid-labs/voxline/pkg/voice"
)

// Schema is the SQL DDL for the timeline tables. The vector column
// dimension is interpolated at migration time. Execute via
// [PostgresStore.Migrate] or apply manually during deployment.
const Schema = `
CREATE EXTENSION IF NOT EXISTS vector;
CREATE TABLE IF NOT EXISTS user_profiles (
    user_id       TEXT PRIMARY KEY,
    date_of_birth TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS voice_versions (
    version_id      TEXT PRIMARY KEY,
    user_id         TEXT NOT NULL REFERENCES user_profiles(user_id),
    embedding       vector(%d) NOT NULL,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    age_at_creation DOUBLE PRECISION NOT NULL,
    device          TEXT NOT NULL DEFAULT '',
    confidence      DOUBLE PRECISION NOT NULL,
    sample_count    INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_voice_versions_user_age
    ON voice_versions(user_id, age_at_creation, created_at);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// PostgresStore is a [Store] backed by a PostgreSQL database, with
// embeddings held in a pgvector column. Sorting by age is delegated to
// the database, which keeps reads consistent without an in-process index.
type PostgresStore struct {
	db   DB
	dims int
}

// NewPostgresStore creates a [PostgresStore] over the given connection or
// pool. The caller is responsible for calling [PostgresStore.Migrate] to
// ensure the schema exists before issuing queries.
func NewPostgresStore(db DB, dims int) *PostgresStore {
	return &PostgresStore{db: db, dims: dims}
}

// Migrate executes the [Schema] DDL, creating the timeline tables if they
// do not already exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf(Schema, s.dims)); err != nil {
		return fmt.Errorf("timeline: migrate: %w", err)
	}
	return nil
}

// PutProfile implements [Store.PutProfile].
func (s *PostgresStore) PutProfile(ctx context.Context, p voice.Profile) error {
	if p.UserID == "" {
		return fmt.Errorf("timeline: profile has empty user id: %w", voice.ErrInvalidInput)
	}

	const q = `
		INSERT INTO user_profiles (user_id, date_of_birth)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE SET date_of_birth = EXCLUDED.date_of_birth`

	if _, err := s.db.Exec(ctx, q, p.UserID, p.DateOfBirth); err != nil {
		return fmt.Errorf("timeline: put profile %s: %w", p.UserID, err)
	}
	return nil
}

// Profile implements [Store.Profile].
func (s *PostgresStore) Profile(ctx context.Context, userID string) (voice.Profile, error) {
	const q = `SELECT user_id, date_of_birth FROM user_profiles WHERE user_id = $1`

	var p voice.Profile
	err := s.db.QueryRow(ctx, q, userID).Scan(&p.UserID, &p.DateOfBirth)
	if errors.Is(err, pgx.ErrNoRows) {
		return voice.Profile{}, fmt.Errorf("timeline: user %s: %w", userID, ErrProfileNotFound)
	}
	if err != nil {
		return voice.Profile{}, fmt.Errorf("timeline: get profile %s: %w", userID, err)
	}
	return p, nil
}

// InsertVersion implements [Store.InsertVersion].
func (s *PostgresStore) InsertVersion(ctx context.Context, v voice.Version) error {
	const q = `
		INSERT INTO voice_versions
		    (version_id, user_id, embedding, created_at, age_at_creation, device, confidence, sample_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.Exec(ctx, q,
		v.ID,
		v.UserID,
		pgvector.NewVector(v.Embedding),
		v.CreatedAt,
		v.AgeAtCreation,
		string(v.Device),
		v.Confidence,
		v.SampleCount,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505": // unique_violation
				return fmt.Errorf("timeline: version %s for user %s: %w", v.ID, v.UserID, ErrDuplicateID)
			case "23503": // foreign_key_violation
				return fmt.Errorf("timeline: insert version for user %s: %w", v.UserID, ErrProfileNotFound)
			}
		}
		return fmt.Errorf("timeline: insert version %s: %w", v.ID, err)
	}
	return nil
}

// UpdateVersion implements [Store.UpdateVersion].
func (s *PostgresStore) UpdateVersion(ctx context.Context, v voice.Version) error {
	const q = `
		UPDATE voice_versions
		SET    embedding = $3, confidence = $4, sample_count = $5
		WHERE  version_id = $1 AND user_id = $2`

	tag, err := s.db.Exec(ctx, q,
		v.ID, v.UserID, pgvector.NewVector(v.Embedding), v.Confidence, v.SampleCount)
	if err != nil {
		return fmt.Errorf("timeline: update version %s: %w", v.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("timeline: update version %s for user %s: %w", v.ID, v.UserID, ErrVersionNotFound)
	}
	return nil
}

const versionColumns = `version_id, user_id, embedding, created_at, age_at_creation, device, confidence, sample_count`

// Version implements [Store.Version].
func (s *PostgresStore) Version(ctx context.Context, userID, versionID string) (voice.Version, error) {
	q := `SELECT ` + versionColumns + ` FROM voice_versions WHERE version_id = $1 AND user_id = $2`

	v, err := scanVersion(s.db.QueryRow(ctx, q, versionID, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return voice.Version{}, fmt.Errorf("timeline: version %s for user %s: %w", versionID, userID, ErrVersionNotFound)
	}
	if err != nil {
		return voice.Version{}, fmt.Errorf("timeline: get version %s: %w", versionID, err)
	}
	return v, nil
}

// VersionsByAge implements [Store.VersionsByAge].
func (s *PostgresStore) VersionsByAge(ctx context.Context, userID string) ([]voice.Version, error) {
	q := `SELECT ` + versionColumns + `
		FROM   voice_versions
		WHERE  user_id = $1
		ORDER  BY age_at_creation, created_at`

	rows, err := s.db.Query(ctx, q, userID)
	if err != nil {
		return nil, fmt.Errorf("timeline: list versions for %s: %w", userID, err)
	}

	versions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (voice.Version, error) {
		return scanVersion(row)
	})
	if err != nil {
		return nil, fmt.Errorf("timeline: scan versions: %w", err)
	}
	if versions == nil {
		versions = []voice.Version{}
	}
	return versions, nil
}

// UserIDs implements [Store.UserIDs].
func (s *PostgresStore) UserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT user_id FROM user_profiles`)
	if err != nil {
		return nil, fmt.Errorf("timeline: list users: %w", err)
	}

	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("timeline: scan users: %w", err)
	}
	return ids, nil
}

// scanVersion reads one voice_versions row in [versionColumns] order.
func scanVersion(row pgx.Row) (voice.Version, error) {
	var (
		v      voice.Version
		vec    pgvector.Vector
		device string
	)
	if err := row.Scan(
		&v.ID,
		&v.UserID,
		&vec,
		&v.CreatedAt,
		&v.AgeAtCreation,
		&device,
		&v.Confidence,
		&v.SampleCount,
	); err != nil {
		return voice.Version{}, err
	}
	v.Embedding = voice.Embedding(vec.Slice())
	v.Device = voice.DeviceFingerprint(device)
	return v, nil
}
