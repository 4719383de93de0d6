// Package handles models the revocable display references the canvas UI
// renders blobs through. A handle is transient: it stands in for a blob only
// while it is live, and must be revoked before discard so the backing
// resource is freed.
package handles

import (
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"canvasd/internal/blobstore"
)

// Handle is a live display reference. URL is what the UI renders; Token is
// the registry key behind it.
type Handle struct {
	Token string
	URL   string
}

// Provider is the capability the handle cache works against. Implementations
// create a handle for a blob's bytes and free it again on revoke.
type Provider interface {
	Create(rec blobstore.Record, data []byte) Handle
	Revoke(h Handle)
}

// Registry is the production provider: handles are HTTP-addressable entries
// under basePath, served straight from memory. Revoking removes the entry, so
// a revoked URL immediately stops resolving.
type Registry struct {
	basePath string

	mu      sync.RWMutex
	entries map[string]registryEntry
}

type registryEntry struct {
	mimeType string
	data     []byte
}

// NewRegistry creates a registry whose handle URLs live under basePath
// (for example "/handles").
func NewRegistry(basePath string) *Registry {
	basePath = strings.TrimRight(basePath, "/")
	if basePath == "" {
		basePath = "/handles"
	}
	return &Registry{
		basePath: basePath,
		entries:  make(map[string]registryEntry),
	}
}

func (r *Registry) Create(rec blobstore.Record, data []byte) Handle {
	token := uuid.NewString()
	r.mu.Lock()
	r.entries[token] = registryEntry{mimeType: rec.MIMEType, data: data}
	r.mu.Unlock()
	return Handle{Token: token, URL: r.basePath + "/" + token}
}

func (r *Registry) Revoke(h Handle) {
	r.mu.Lock()
	delete(r.entries, h.Token)
	r.mu.Unlock()
}

// Live reports the number of unrevoked handles.
func (r *Registry) Live() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ServeHTTP serves a live handle's bytes. The token is the final path
// segment; unknown or revoked tokens 404.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	token := req.URL.Path
	if idx := strings.LastIndex(token, "/"); idx >= 0 {
		token = token[idx+1:]
	}

	r.mu.RLock()
	entry, ok := r.entries[token]
	r.mu.RUnlock()
	if !ok {
		http.NotFound(w, req)
		return
	}

	w.Header().Set("Content-Type", entry.mimeType)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(entry.data)
}

var _ Provider = (*Registry)(nil)
