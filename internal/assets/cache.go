package assets

import (
	"container/list"
	"sync"

	"canvasd/internal/handles"
)

// handleCache is the bounded LRU table of live display handles, at most one
// per blob id. Recency is an explicit doubly-linked list: front is most
// recent, back is the eviction candidate. A hit promotes the entry to the
// front, so repeatedly rendered assets survive eviction pressure.
//
// Capacity check, eviction, and insert happen inside one critical section so
// two concurrent misses can never overshoot the bound.
type handleCache struct {
	mu       sync.Mutex
	capacity int
	provider handles.Provider
	order    *list.List
	entries  map[string]*list.Element
}

type cacheEntry struct {
	blobID string
	handle handles.Handle
}

func newHandleCache(capacity int, provider handles.Provider) *handleCache {
	if capacity <= 0 {
		capacity = DefaultMaxHandles
	}
	return &handleCache{
		capacity: capacity,
		provider: provider,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// get returns the live handle for blobID, promoting it, or ok=false on miss.
func (c *handleCache) get(blobID string) (handles.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[blobID]
	if !ok {
		return handles.Handle{}, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).handle, true
}

// put inserts a handle for blobID, evicting and revoking the least recently
// used entry first when at capacity. If blobID is already cached the existing
// handle is revoked and replaced, preserving the one-live-handle-per-blob
// invariant.
func (c *handleCache) put(blobID string, h handles.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[blobID]; ok {
		entry := elem.Value.(*cacheEntry)
		c.provider.Revoke(entry.handle)
		entry.handle = h
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			entry := oldest.Value.(*cacheEntry)
			c.provider.Revoke(entry.handle)
			delete(c.entries, entry.blobID)
			c.order.Remove(oldest)
		}
	}

	c.entries[blobID] = c.order.PushFront(&cacheEntry{blobID: blobID, handle: h})
}

// drop revokes and removes the entry for blobID, if cached.
func (c *handleCache) drop(blobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[blobID]
	if !ok {
		return
	}
	c.provider.Revoke(elem.Value.(*cacheEntry).handle)
	delete(c.entries, blobID)
	c.order.Remove(elem)
}

// clear revokes every live handle and empties the table.
func (c *handleCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		c.provider.Revoke(elem.Value.(*cacheEntry).handle)
	}
	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

func (c *handleCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
