package blobstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps records in process memory. It backs tests and the
// ephemeral deployment mode; nothing survives a restart.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]memoryRecord

	// Gets counts durable reads. Cache tests use it to assert that warm
	// lookups never touch the store.
	Gets int
}

type memoryRecord struct {
	rec  Record
	data []byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]memoryRecord)}
}

func (s *MemoryStore) Put(ctx context.Context, data []byte, mimeType string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	rec := Record{
		ID:        uuid.NewString(),
		MIMEType:  mimeType,
		ByteSize:  int64(len(data)),
		CreatedAt: time.Now().UTC(),
	}
	owned := append([]byte(nil), data...)

	s.mu.Lock()
	s.records[rec.ID] = memoryRecord{rec: rec, data: owned}
	s.mu.Unlock()
	return rec, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Record, []byte, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Gets++
	entry, ok := s.records[id]
	if !ok {
		return Record{}, nil, nil
	}
	return entry.rec, append([]byte(nil), entry.data...), nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) DeleteAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.records = make(map[string]memoryRecord)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Len reports the number of stored records.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

var _ Store = (*MemoryStore)(nil)
