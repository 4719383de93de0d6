package canvas

import "testing"

func TestInsertUpdateRemove(t *testing.T) {
	doc := NewDocument()

	id := doc.InsertPlaceholder(Layer{Kind: LayerKindImage, Prompt: "a lighthouse", X: 10, Y: 20})
	if id == "" {
		t.Fatal("InsertPlaceholder returned empty id")
	}
	layer, ok := doc.Layer(id)
	if !ok {
		t.Fatal("layer not found after insert")
	}
	if layer.Status != LayerStatusPending || layer.Progress != 0 {
		t.Fatalf("placeholder state wrong: %+v", layer)
	}

	if !doc.Update(id, Patch{
		Status:    StatusPatch(LayerStatusReady),
		AssetID:   StringPatch("asset-1"),
		HandleURL: StringPatch("/handles/t1"),
		Progress:  IntPatch(100),
	}) {
		t.Fatal("Update reported missing layer")
	}
	layer, _ = doc.Layer(id)
	if layer.Status != LayerStatusReady || layer.AssetID != "asset-1" || layer.Progress != 100 {
		t.Fatalf("update not applied: %+v", layer)
	}
	// Untouched fields survive a partial patch.
	if layer.Prompt != "a lighthouse" || layer.X != 10 {
		t.Fatalf("partial patch clobbered fields: %+v", layer)
	}

	if !doc.Remove(id) {
		t.Fatal("Remove reported missing layer")
	}
	if doc.Remove(id) {
		t.Fatal("second Remove must report missing")
	}
	if doc.Len() != 0 {
		t.Fatalf("Len = %d after removal", doc.Len())
	}
}

func TestUnknownIDsTolerated(t *testing.T) {
	doc := NewDocument()
	if doc.Update("ghost", Patch{Progress: IntPatch(50)}) {
		t.Fatal("Update of unknown id must return false")
	}
	if doc.Remove("ghost") {
		t.Fatal("Remove of unknown id must return false")
	}
	if _, ok := doc.Layer("ghost"); ok {
		t.Fatal("Layer of unknown id must return false")
	}
}

func TestSnapshotPreservesOrder(t *testing.T) {
	doc := NewDocument()
	first := doc.InsertPlaceholder(Layer{Kind: LayerKindImage})
	second := doc.InsertPlaceholder(Layer{Kind: LayerKindVideo})
	third := doc.InsertPlaceholder(Layer{Kind: LayerKindAudio})

	doc.Remove(second)
	snap := doc.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("snapshot length = %d", len(snap))
	}
	if snap[0].ID != first || snap[1].ID != third {
		t.Fatalf("order not preserved: %s, %s", snap[0].ID, snap[1].ID)
	}
}
