// Package canvas holds the document the generation flow drives: an ordered
// list of layers. Generation inserts placeholder layers, updates them in
// place as results arrive, and removes them on cancel.
package canvas

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// LayerKind mirrors the media type a layer displays.
type LayerKind string

const (
	LayerKindImage LayerKind = "image"
	LayerKindVideo LayerKind = "video"
	LayerKindAudio LayerKind = "audio"
)

// LayerStatus is the user-visible lifecycle of a layer.
type LayerStatus string

const (
	LayerStatusPending LayerStatus = "pending"
	LayerStatusReady   LayerStatus = "ready"
	LayerStatusError   LayerStatus = "error"
)

// Layer is one canvas record.
type Layer struct {
	ID        string      `json:"id"`
	Kind      LayerKind   `json:"kind"`
	Status    LayerStatus `json:"status"`
	Title     string      `json:"title,omitempty"`
	Prompt    string      `json:"prompt,omitempty"`
	AssetID   string      `json:"asset_id,omitempty"`
	HandleURL string      `json:"handle_url,omitempty"`
	Progress  int         `json:"progress"`
	Error     string      `json:"error,omitempty"`
	X         float64     `json:"x"`
	Y         float64     `json:"y"`
	Width     float64     `json:"width"`
	Height    float64     `json:"height"`
	CreatedAt time.Time   `json:"created_at"`
}

// Patch describes a partial layer update. Nil fields are left untouched.
type Patch struct {
	Status    *LayerStatus
	AssetID   *string
	HandleURL *string
	Progress  *int
	Error     *string
}

// Document is the ordered layer list. Safe for concurrent use; updates and
// removals of unknown ids are tolerated and reported through the bool return.
type Document struct {
	mu     sync.Mutex
	order  []string
	layers map[string]*Layer
}

func NewDocument() *Document {
	return &Document{layers: make(map[string]*Layer)}
}

// InsertPlaceholder appends a pending layer and returns its id. A missing id
// is generated; status and created-at are forced to the placeholder state.
func (d *Document) InsertPlaceholder(layer Layer) string {
	if layer.ID == "" {
		layer.ID = uuid.NewString()
	}
	layer.Status = LayerStatusPending
	layer.Progress = 0
	layer.CreatedAt = time.Now().UTC()

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.layers[layer.ID]; !exists {
		d.order = append(d.order, layer.ID)
	}
	stored := layer
	d.layers[layer.ID] = &stored
	return layer.ID
}

// Update applies patch to the layer with id, reporting whether it existed.
func (d *Document) Update(id string, patch Patch) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	layer, ok := d.layers[id]
	if !ok {
		return false
	}
	if patch.Status != nil {
		layer.Status = *patch.Status
	}
	if patch.AssetID != nil {
		layer.AssetID = *patch.AssetID
	}
	if patch.HandleURL != nil {
		layer.HandleURL = *patch.HandleURL
	}
	if patch.Progress != nil {
		layer.Progress = *patch.Progress
	}
	if patch.Error != nil {
		layer.Error = *patch.Error
	}
	return true
}

// Remove deletes the layer with id, reporting whether it existed.
func (d *Document) Remove(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.layers[id]; !ok {
		return false
	}
	delete(d.layers, id)
	for i, lid := range d.order {
		if lid == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return true
}

// Layer returns a copy of the layer with id.
func (d *Document) Layer(id string) (Layer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	layer, ok := d.layers[id]
	if !ok {
		return Layer{}, false
	}
	return *layer, true
}

// Snapshot returns the layers in document order.
func (d *Document) Snapshot() []Layer {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Layer, 0, len(d.order))
	for _, id := range d.order {
		if layer, ok := d.layers[id]; ok {
			out = append(out, *layer)
		}
	}
	return out
}

// Len reports the number of layers.
func (d *Document) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.layers)
}

// Helper constructors for Patch fields.

func StatusPatch(s LayerStatus) *LayerStatus { return &s }
func StringPatch(s string) *string           { return &s }
func IntPatch(i int) *int                    { return &i }
