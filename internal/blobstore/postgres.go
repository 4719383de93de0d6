package blobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps blob records in PostgreSQL. Intended for deployments
// where the canvas service runs next to an existing database; the table is
// namespaced so asset resets never touch other state.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS canvas_blobs (
	id         TEXT PRIMARY KEY,
	mime_type  TEXT NOT NULL,
	byte_size  BIGINT NOT NULL,
	content    BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

// NewPostgresStore connects to databaseURL and ensures the schema exists.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if databaseURL == "" {
		return nil, errors.New("blobstore: database url is required")
	}
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("blobstore: parse database url: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("blobstore: connect database: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("blobstore: ensure schema: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Put(ctx context.Context, data []byte, mimeType string) (Record, error) {
	rec := Record{
		ID:        uuid.NewString(),
		MIMEType:  mimeType,
		ByteSize:  int64(len(data)),
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
INSERT INTO canvas_blobs (id, mime_type, byte_size, content, created_at)
VALUES ($1, $2, $3, $4, $5);
`, rec.ID, rec.MIMEType, rec.ByteSize, data, rec.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("blobstore: insert blob: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Record, []byte, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, mime_type, byte_size, content, created_at
FROM canvas_blobs
WHERE id = $1;
`, id)
	var rec Record
	var data []byte
	if err := row.Scan(&rec.ID, &rec.MIMEType, &rec.ByteSize, &data, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, nil, nil
		}
		return Record{}, nil, fmt.Errorf("blobstore: select blob: %w", err)
	}
	return rec, data, nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM canvas_blobs WHERE id = $1;`, id); err != nil {
		return fmt.Errorf("blobstore: delete blob: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM canvas_blobs;`); err != nil {
		return fmt.Errorf("blobstore: clear blobs: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var _ Store = (*PostgresStore)(nil)
