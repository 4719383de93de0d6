package blobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps blob records in a single SQLite table. The table lives in
// its own database file so clearing assets never collides with other
// persisted application state.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS canvas_blobs (
	id         TEXT PRIMARY KEY,
	mime_type  TEXT NOT NULL,
	byte_size  INTEGER NOT NULL,
	content    BLOB NOT NULL,
	created_at TEXT NOT NULL
);
`

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("blobstore: sqlite path is required")
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("blobstore: open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("blobstore: ensure schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, data []byte, mimeType string) (Record, error) {
	rec := Record{
		ID:        uuid.NewString(),
		MIMEType:  mimeType,
		ByteSize:  int64(len(data)),
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO canvas_blobs (id, mime_type, byte_size, content, created_at)
VALUES (?, ?, ?, ?, ?);
`, rec.ID, rec.MIMEType, rec.ByteSize, data, rec.CreatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return Record{}, fmt.Errorf("blobstore: insert blob: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, []byte, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, mime_type, byte_size, content, created_at
FROM canvas_blobs
WHERE id = ?;
`, id)
	var rec Record
	var data []byte
	var createdAt string
	if err := row.Scan(&rec.ID, &rec.MIMEType, &rec.ByteSize, &data, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, nil, nil
		}
		return Record{}, nil, fmt.Errorf("blobstore: select blob: %w", err)
	}
	if ts, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rec.CreatedAt = ts
	}
	return rec, data, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM canvas_blobs WHERE id = ?;`, id); err != nil {
		return fmt.Errorf("blobstore: delete blob: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM canvas_blobs;`); err != nil {
		return fmt.Errorf("blobstore: clear blobs: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ Store = (*SQLiteStore)(nil)
