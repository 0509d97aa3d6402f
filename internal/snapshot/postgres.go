package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema creates the snapshot table used by PostgresStore.
const Schema = `
	CREATE TABLE IF NOT EXISTS utm_snapshots (
		id           TEXT PRIMARY KEY,
		center_id    TEXT NOT NULL,
		captured_at  TIMESTAMPTZ NOT NULL,
		content_type TEXT NOT NULL,
		payload      BYTEA NOT NULL
	);
	CREATE INDEX IF NOT EXISTS utm_snapshots_center_idx
		ON utm_snapshots (center_id, captured_at DESC);
`

// PostgresStore persists snapshots in PostgreSQL.
type PostgresStore struct {
	pool  *pgxpool.Pool
	codec Codec
}

// NewPostgresStore creates a store backed by pool. The pool is owned by the
// caller and is not closed by Close.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, codec: BinaryCodec{}}
}

// EnsureSchema creates the snapshot table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("create snapshot schema: %w", err)
	}
	return nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, doc *Document) (Info, error) {
	data, err := encode(s.codec, doc)
	if err != nil {
		return Info{}, err
	}

	query := `
		INSERT INTO utm_snapshots (id, center_id, captured_at, content_type, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			center_id = EXCLUDED.center_id,
			captured_at = EXCLUDED.captured_at,
			content_type = EXCLUDED.content_type,
			payload = EXCLUDED.payload
	`
	captured := fromMillis(doc.CapturedAtMs)
	if _, err := s.pool.Exec(ctx, query, doc.ID, doc.CenterID, captured, s.codec.ContentType(), data); err != nil {
		return Info{}, fmt.Errorf("save snapshot %s: %w", doc.ID, err)
	}
	return infoFor(doc, len(data)), nil
}

// Load implements Store.
func (s *PostgresStore) Load(ctx context.Context, id string) (*Document, error) {
	query := `
		SELECT content_type, payload
		FROM utm_snapshots
		WHERE id = $1
	`
	return s.loadOne(ctx, query, id)
}

// Latest implements Store.
func (s *PostgresStore) Latest(ctx context.Context, centerID string) (*Document, error) {
	query := `
		SELECT content_type, payload
		FROM utm_snapshots
		WHERE center_id = $1
		ORDER BY captured_at DESC, id
		LIMIT 1
	`
	return s.loadOne(ctx, query, centerID)
}

func (s *PostgresStore) loadOne(ctx context.Context, query string, arg string) (*Document, error) {
	var (
		contentType string
		payload     []byte
	)
	err := s.pool.QueryRow(ctx, query, arg).Scan(&contentType, &payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return decode(CodecFor(contentType), payload)
}

// List implements Store. Newest first.
func (s *PostgresStore) List(ctx context.Context, centerID string) ([]Info, error) {
	query := `
		SELECT id, center_id, captured_at, octet_length(payload)
		FROM utm_snapshots
		WHERE $1 = '' OR center_id = $1
		ORDER BY captured_at DESC, id
	`

	rows, err := s.pool.Query(ctx, query, centerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var (
			info     Info
			captured time.Time
		)
		if err := rows.Scan(&info.ID, &info.CenterID, &captured, &info.Size); err != nil {
			return nil, err
		}
		info.CapturedAt = captured.UTC()
		out = append(out, info)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete implements Store.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM utm_snapshots WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Close implements Store.
func (s *PostgresStore) Close() error { return nil }

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*BoltStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
