// Package assets is the service the rest of the application stores and
// retrieves media through. It composes the durable blob store with a bounded
// cache of revocable display handles: callers hold blob ids, the UI renders
// handle URLs, and the generation pipeline reads raw bytes back out.
package assets

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"canvasd/internal/blobstore"
	"canvasd/internal/handles"
)

// DefaultMaxHandles bounds the number of live display handles.
const DefaultMaxHandles = 50

// preloadParallelism caps concurrent durable reads during bulk resolve.
const preloadParallelism = 8

// StoreResult reports a completed store operation. Durable is false when the
// blob write failed and the asset exists only as the warm in-memory handle;
// callers should then keep the encoded content inline rather than rely on the
// id surviving a restart.
type StoreResult struct {
	ID      string
	Handle  string
	Durable bool
}

// Store is the asset service. Safe for concurrent use.
type Store struct {
	blobs    blobstore.Store
	provider handles.Provider
	cache    *handleCache
	logger   zerolog.Logger

	// degraded records ids whose durable write failed, so AssetBytes can
	// still serve them from the bytes held by the warm handle path.
	mu       sync.Mutex
	degraded map[string]degradedAsset
}

type degradedAsset struct {
	mimeType string
	data     []byte
}

// New constructs a Store with the given handle capacity (<= 0 means
// DefaultMaxHandles).
func New(blobs blobstore.Store, provider handles.Provider, maxHandles int, logger zerolog.Logger) *Store {
	return &Store{
		blobs:    blobs,
		provider: provider,
		cache:    newHandleCache(maxHandles, provider),
		logger:   logger.With().Str("component", "assets").Logger(),
		degraded: make(map[string]degradedAsset),
	}
}

// StoreAsset decodes a data URI, persists it, and warms the handle cache with
// the bytes already in hand, so the immediately following AssetHandle call is
// a guaranteed hit with no durable read.
//
// A durable-store failure is not fatal: the asset stays usable through its
// handle and AssetBytes for the lifetime of this process, and the result is
// flagged non-durable so the caller can fall back to keeping content inline.
func (s *Store) StoreAsset(ctx context.Context, dataURI string) (StoreResult, error) {
	mimeType, data, err := DecodeDataURI(dataURI)
	if err != nil {
		return StoreResult{}, err
	}

	rec, err := s.blobs.Put(ctx, data, mimeType)
	durable := err == nil
	if err != nil {
		s.logger.Error().Err(err).Msg("durable store unavailable, keeping asset in memory")
		rec = blobstore.Record{ID: uuid.NewString(), MIMEType: mimeType, ByteSize: int64(len(data))}
		s.mu.Lock()
		s.degraded[rec.ID] = degradedAsset{mimeType: mimeType, data: data}
		s.mu.Unlock()
	}

	h := s.provider.Create(rec, data)
	s.cache.put(rec.ID, h)

	return StoreResult{ID: rec.ID, Handle: h.URL, Durable: durable}, nil
}

// AssetHandle resolves a blob to a renderable handle URL. Cache hits return
// immediately and promote recency; misses read through the durable store,
// create a handle, and insert it (evicting the LRU entry at capacity). A
// missing blob returns ok=false, never an error.
//
// Note this mutates the cache on the miss path even though it reads: an entry
// may be evicted and its handle revoked as a side effect.
func (s *Store) AssetHandle(ctx context.Context, id string) (string, bool) {
	if h, ok := s.cache.get(id); ok {
		return h.URL, true
	}

	rec, data, err := s.blobs.Get(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("asset_id", id).Msg("blob read failed")
		return "", false
	}
	if rec.ID == "" {
		if rec, data, ok := s.degradedGet(id); ok {
			h := s.provider.Create(rec, data)
			s.cache.put(id, h)
			return h.URL, true
		}
		return "", false
	}

	h := s.provider.Create(rec, data)
	s.cache.put(id, h)
	return h.URL, true
}

// AssetBytes resolves a blob back to its self-describing encoded form for
// re-submission to the generation API. It always reads through to the durable
// store: full payload encoding is not cached, only handles are. A missing
// blob returns ok=false.
func (s *Store) AssetBytes(ctx context.Context, id string) (string, bool) {
	rec, data, err := s.blobs.Get(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("asset_id", id).Msg("blob read failed")
		return "", false
	}
	if rec.ID == "" {
		if rec, data, ok := s.degradedGet(id); ok {
			return EncodeDataURI(rec.MIMEType, data), true
		}
		return "", false
	}
	return EncodeDataURI(rec.MIMEType, data), true
}

// DeleteAsset removes the blob and revokes any live handle for it. Deleting
// an unknown id is a no-op.
func (s *Store) DeleteAsset(ctx context.Context, id string) {
	s.cache.drop(id)
	s.mu.Lock()
	delete(s.degraded, id)
	s.mu.Unlock()
	if err := s.blobs.Delete(ctx, id); err != nil {
		s.logger.Error().Err(err).Str("asset_id", id).Msg("blob delete failed")
	}
}

// DeleteAssets removes a batch of blobs.
func (s *Store) DeleteAssets(ctx context.Context, ids []string) {
	for _, id := range ids {
		s.DeleteAsset(ctx, id)
	}
}

// ClearAll revokes every live handle, empties the cache, and clears all blob
// records. Used for full-canvas reset.
func (s *Store) ClearAll(ctx context.Context) {
	s.cache.clear()
	s.mu.Lock()
	s.degraded = make(map[string]degradedAsset)
	s.mu.Unlock()
	if err := s.blobs.DeleteAll(ctx); err != nil {
		s.logger.Error().Err(err).Msg("blob clear failed")
	}
}

// PreloadHandles resolves a batch of ids concurrently, best effort. Ids that
// fail to resolve are absent from the result; there is no partial-failure
// error.
func (s *Store) PreloadHandles(ctx context.Context, ids []string) map[string]string {
	var mu sync.Mutex
	out := make(map[string]string, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(preloadParallelism)
	for _, id := range ids {
		g.Go(func() error {
			if url, ok := s.AssetHandle(ctx, id); ok {
				mu.Lock()
				out[id] = url
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// CachedHandles reports the number of live cached handles.
func (s *Store) CachedHandles() int { return s.cache.len() }

func (s *Store) degradedGet(id string) (blobstore.Record, []byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.degraded[id]
	if !ok {
		return blobstore.Record{}, nil, false
	}
	return blobstore.Record{ID: id, MIMEType: entry.mimeType, ByteSize: int64(len(entry.data))}, entry.data, true
}
