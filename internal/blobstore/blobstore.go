// Package blobstore provides durable storage for binary media payloads keyed
// by opaque, store-generated identifiers.
//
// Records are immutable once written: backends never rewrite a payload in
// place, and identifiers are random (never derived from content), so two
// stores of the same bytes yield two independent records. Absence is not an
// error; lookups report it through a zero Record and nil data.
package blobstore

import (
	"context"
	"time"
)

// Record describes one stored payload. The payload itself is returned
// separately so metadata queries never force a full read.
type Record struct {
	ID        string
	MIMEType  string
	ByteSize  int64
	CreatedAt time.Time
}

// Store is the durable storage boundary. All implementations are safe for
// concurrent use and keep their records in a namespace dedicated to canvas
// media, separate from any other persisted application state.
type Store interface {
	// Put persists data under a freshly generated id and returns the record.
	Put(ctx context.Context, data []byte, mimeType string) (Record, error)

	// Get returns the record and payload for id. A missing id yields a zero
	// Record, nil data, and a nil error.
	Get(ctx context.Context, id string) (Record, []byte, error)

	// Delete removes the record for id. Deleting a missing id is a no-op.
	Delete(ctx context.Context, id string) error

	// DeleteAll removes every record in the store.
	DeleteAll(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
