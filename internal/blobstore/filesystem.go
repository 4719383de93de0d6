package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
)

// FileStore persists blobs on the local filesystem. Payloads are
// zstd-compressed in a sharded directory tree; metadata lives in a sidecar
// JSON file next to each payload so lookups can report size and MIME type
// without decompressing.
//
// Writes go through a temp file and a rename so a record is either fully
// present or absent.
type FileStore struct {
	root    string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

const (
	fsBlobDir = "blobs"
	fsTempDir = ".tmp"

	fsDataName = "data.zst"
	fsMetaName = "meta.json"
)

type fileMeta struct {
	ID        string    `json:"id"`
	MIMEType  string    `json:"mimeType"`
	ByteSize  int64     `json:"byteSize"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewFileStore initializes a FileStore rooted at basePath.
func NewFileStore(basePath string) (*FileStore, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("blobstore: base path is required")
	}
	for _, dir := range []string{fsBlobDir, fsTempDir} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0o755); err != nil {
			return nil, fmt.Errorf("blobstore: ensure %s: %w", dir, err)
		}
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("blobstore: init zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("blobstore: init zstd decoder: %w", err)
	}

	return &FileStore{root: basePath, encoder: encoder, decoder: decoder}, nil
}

func (s *FileStore) Put(ctx context.Context, data []byte, mimeType string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:        uuid.NewString(),
		MIMEType:  mimeType,
		ByteSize:  int64(len(data)),
		CreatedAt: time.Now().UTC(),
	}

	dir, err := s.recordDir(rec.ID)
	if err != nil {
		return Record{}, err
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, fsTempDir), "put-*")
	if err != nil {
		return Record{}, fmt.Errorf("blobstore: temp file: %w", err)
	}
	tmpPath := tmp.Name()
	compressed := s.encoder.EncodeAll(data, nil)
	if _, err := tmp.Write(compressed); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return Record{}, fmt.Errorf("blobstore: write payload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return Record{}, fmt.Errorf("blobstore: close payload: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		_ = os.Remove(tmpPath)
		return Record{}, fmt.Errorf("blobstore: ensure record dir: %w", err)
	}

	meta, err := json.Marshal(fileMeta{
		ID:        rec.ID,
		MIMEType:  rec.MIMEType,
		ByteSize:  rec.ByteSize,
		CreatedAt: rec.CreatedAt,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		return Record{}, fmt.Errorf("blobstore: encode meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, fsMetaName), meta, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return Record{}, fmt.Errorf("blobstore: write meta: %w", err)
	}

	if err := os.Rename(tmpPath, filepath.Join(dir, fsDataName)); err != nil {
		_ = os.Remove(tmpPath)
		_ = os.RemoveAll(dir)
		return Record{}, fmt.Errorf("blobstore: commit payload: %w", err)
	}

	return rec, nil
}

func (s *FileStore) Get(ctx context.Context, id string) (Record, []byte, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, nil, err
	}
	dir, err := s.recordDir(id)
	if err != nil {
		return Record{}, nil, nil
	}

	metaRaw, err := os.ReadFile(filepath.Join(dir, fsMetaName))
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, nil, nil
	}
	if err != nil {
		return Record{}, nil, fmt.Errorf("blobstore: read meta: %w", err)
	}
	var meta fileMeta
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return Record{}, nil, fmt.Errorf("blobstore: decode meta: %w", err)
	}

	compressed, err := os.ReadFile(filepath.Join(dir, fsDataName))
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, nil, nil
	}
	if err != nil {
		return Record{}, nil, fmt.Errorf("blobstore: read payload: %w", err)
	}
	data, err := s.decoder.DecodeAll(compressed, nil)
	if err != nil {
		return Record{}, nil, fmt.Errorf("blobstore: decompress payload: %w", err)
	}

	rec := Record{
		ID:        meta.ID,
		MIMEType:  meta.MIMEType,
		ByteSize:  meta.ByteSize,
		CreatedAt: meta.CreatedAt,
	}
	return rec, data, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir, err := s.recordDir(id)
	if err != nil {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("blobstore: delete record: %w", err)
	}
	return nil
}

func (s *FileStore) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	blobRoot := filepath.Join(s.root, fsBlobDir)
	if err := os.RemoveAll(blobRoot); err != nil {
		return fmt.Errorf("blobstore: clear records: %w", err)
	}
	if err := os.MkdirAll(blobRoot, 0o755); err != nil {
		return fmt.Errorf("blobstore: recreate blob dir: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error {
	s.encoder.Close()
	s.decoder.Close()
	return nil
}

// recordDir shards records by the first two characters of the id to keep
// directory fan-out bounded, and rejects ids that could escape the root.
func (s *FileStore) recordDir(id string) (string, error) {
	id = strings.TrimSpace(id)
	if len(id) < 2 {
		return "", errors.New("blobstore: invalid id")
	}
	if strings.ContainsAny(id, "/\\.") {
		return "", errors.New("blobstore: invalid id")
	}
	return filepath.Join(s.root, fsBlobDir, id[0:2], id), nil
}

var _ Store = (*FileStore)(nil)
