package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"canvasd/internal/assets"
	"canvasd/internal/blobstore"
	"canvasd/internal/canvas"
	"canvasd/internal/generation"
	"canvasd/internal/handles"
	"canvasd/internal/providers/audio"
	"canvasd/internal/providers/genai"
	"canvasd/internal/providers/image"
	"canvasd/internal/providers/video"
	"canvasd/internal/taskman"
)

// newTestApp wires the full stack against an in-memory blob store and the
// synthetic generator, so handler tests exercise real persistence, handles,
// and task bookkeeping with no network.
func newTestApp(t *testing.T) (*App, *handles.Registry) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	doc := canvas.NewDocument()
	tasks := taskman.NewManager(doc, logger)
	registry := handles.NewRegistry("/handles")
	store := assets.New(blobstore.NewMemoryStore(), registry, 50, logger)

	client := genai.NewClient(genai.Options{}) // no key: synthetic assets
	gen := generation.NewService(
		doc,
		tasks,
		store,
		image.NewGeminiGenerator(client),
		audio.NewGeminiGenerator(client),
		video.NewGeminiGenerator(client),
		generation.Config{PollInterval: time.Millisecond, MaxPolls: 3},
		logger,
	)
	t.Cleanup(gen.Wait)

	return NewApp(store, gen, tasks, doc, logger), registry
}

func routeCtx(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestHealth(t *testing.T) {
	app, _ := newTestApp(t)

	rr := httptest.NewRecorder()
	app.Health(rr, httptest.NewRequest(http.MethodGet, "/v1/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestAssetUploadAndFetch(t *testing.T) {
	app, registry := newTestApp(t)

	body := `{"data_uri":"data:image/png;base64,aGVsbG8="}`
	rr := httptest.NewRecorder()
	app.AssetUpload(rr, httptest.NewRequest(http.MethodPost, "/v1/assets", strings.NewReader(body)))

	if rr.Code != http.StatusCreated {
		t.Fatalf("upload status = %d: %s", rr.Code, rr.Body.String())
	}
	var res assetResponse
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.ID == "" || res.HandleURL == "" || !res.Durable {
		t.Fatalf("unexpected upload response: %+v", res)
	}
	if registry.Live() != 1 {
		t.Fatalf("live handles = %d, want 1", registry.Live())
	}

	rr = httptest.NewRecorder()
	req := routeCtx(httptest.NewRequest(http.MethodGet, "/v1/assets/"+res.ID+"/bytes", nil), "id", res.ID)
	app.AssetBytes(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("bytes status = %d", rr.Code)
	}
	var bytesRes struct {
		DataURI string `json:"data_uri"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&bytesRes); err != nil {
		t.Fatalf("decode bytes response: %v", err)
	}
	if bytesRes.DataURI != "data:image/png;base64,aGVsbG8=" {
		t.Fatalf("data_uri round trip mismatch: %q", bytesRes.DataURI)
	}
}

func TestAssetRedirectFollowsHandle(t *testing.T) {
	app, _ := newTestApp(t)

	res, err := app.Assets.StoreAsset(context.Background(), "data:image/png;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("StoreAsset: %v", err)
	}

	rr := httptest.NewRecorder()
	req := routeCtx(httptest.NewRequest(http.MethodGet, "/v1/assets/"+res.ID, nil), "id", res.ID)
	app.AssetRedirect(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rr.Code)
	}
	if loc := rr.Header().Get("Location"); !strings.HasPrefix(loc, "/handles/") {
		t.Fatalf("Location = %q", loc)
	}
}

func TestAssetUploadRejectsMalformedURI(t *testing.T) {
	app, _ := newTestApp(t)

	body := `{"data_uri":"not-a-data-uri"}`
	rr := httptest.NewRecorder()
	app.AssetUpload(rr, httptest.NewRequest(http.MethodPost, "/v1/assets", strings.NewReader(body)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestAssetHandleUnknownID(t *testing.T) {
	app, _ := newTestApp(t)

	rr := httptest.NewRecorder()
	req := routeCtx(httptest.NewRequest(http.MethodGet, "/v1/assets/nope/handle", nil), "id", "nope")
	app.AssetHandle(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestAssetDeleteIsIdempotent(t *testing.T) {
	app, _ := newTestApp(t)

	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		req := routeCtx(httptest.NewRequest(http.MethodDelete, "/v1/assets/ghost", nil), "id", "ghost")
		app.AssetDelete(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Fatalf("delete %d status = %d, want 204", i, rr.Code)
		}
	}
}

func TestGenerationsCreateAndCancel(t *testing.T) {
	app, _ := newTestApp(t)

	body := `{"requests":[{"prompt":"a red fox","media_type":"image"},{"prompt":"rainfall","media_type":"audio"}]}`
	rr := httptest.NewRecorder()
	app.GenerationsCreate(rr, httptest.NewRequest(http.MethodPost, "/v1/generations", strings.NewReader(body)))

	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", rr.Code, rr.Body.String())
	}
	var res struct {
		Started []generation.Started `json:"started"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(res.Started) != 2 {
		t.Fatalf("started = %d, want 2", len(res.Started))
	}

	// Cancel is orphan-safe whether the pipeline already finished or not.
	rr = httptest.NewRecorder()
	req := routeCtx(httptest.NewRequest(http.MethodPost, "/v1/generations/"+res.Started[0].LayerID+"/cancel", nil), "layer_id", res.Started[0].LayerID)
	app.GenerationCancel(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("cancel status = %d, want 204", rr.Code)
	}

	app.Generation.Wait()
	if app.Tasks.Len() != 0 {
		t.Fatalf("tasks remaining = %d", app.Tasks.Len())
	}
}

func TestGenerationsCreateValidation(t *testing.T) {
	app, _ := newTestApp(t)

	tests := []struct {
		name string
		body string
	}{
		{name: "empty batch", body: `{"requests":[]}`},
		{name: "missing prompt", body: `{"requests":[{"media_type":"image"}]}`},
		{name: "unknown media type", body: `{"requests":[{"prompt":"x","media_type":"hologram"}]}`},
		{name: "malformed json", body: `{"requests":`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			app.GenerationsCreate(rr, httptest.NewRequest(http.MethodPost, "/v1/generations", strings.NewReader(tc.body)))
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rr.Code)
			}
		})
	}
}

func TestGenerationStatusUnknownLayer(t *testing.T) {
	app, _ := newTestApp(t)

	rr := httptest.NewRecorder()
	req := routeCtx(httptest.NewRequest(http.MethodGet, "/v1/generations/ghost", nil), "layer_id", "ghost")
	app.GenerationStatus(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestCanvasSnapshotAfterGeneration(t *testing.T) {
	app, _ := newTestApp(t)

	body := `{"requests":[{"prompt":"mountain sunrise","media_type":"image"}]}`
	rr := httptest.NewRecorder()
	app.GenerationsCreate(rr, httptest.NewRequest(http.MethodPost, "/v1/generations", strings.NewReader(body)))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("create status = %d", rr.Code)
	}
	app.Generation.Wait()

	rr = httptest.NewRecorder()
	app.CanvasSnapshot(rr, httptest.NewRequest(http.MethodGet, "/v1/canvas", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("snapshot status = %d", rr.Code)
	}
	var snap struct {
		Layers []canvas.Layer `json:"layers"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(snap.Layers) != 1 {
		t.Fatalf("layers = %d, want 1", len(snap.Layers))
	}
	layer := snap.Layers[0]
	if layer.Status != canvas.LayerStatusReady || layer.AssetID == "" || layer.HandleURL == "" {
		t.Fatalf("layer not completed: %+v", layer)
	}
}

func TestLayerDeleteRemovesLayer(t *testing.T) {
	app, _ := newTestApp(t)

	id := app.Doc.InsertPlaceholder(canvas.Layer{Kind: canvas.LayerKindImage, Prompt: "temp"})

	rr := httptest.NewRecorder()
	req := routeCtx(httptest.NewRequest(http.MethodDelete, "/v1/canvas/layers/"+id, nil), "id", id)
	app.LayerDelete(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rr.Code)
	}
	if app.Doc.Len() != 0 {
		t.Fatal("layer not removed")
	}
}

func TestAssetsPreloadSkipsUnknown(t *testing.T) {
	app, _ := newTestApp(t)

	res, err := app.Assets.StoreAsset(context.Background(), "data:image/png;base64,aGVsbG8=")
	if err != nil {
		t.Fatalf("StoreAsset: %v", err)
	}

	body := `{"ids":["` + res.ID + `","missing"]}`
	rr := httptest.NewRecorder()
	app.AssetsPreload(rr, httptest.NewRequest(http.MethodPost, "/v1/assets/preload", strings.NewReader(body)))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var preload struct {
		Handles map[string]string `json:"handles"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&preload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(preload.Handles) != 1 {
		t.Fatalf("handles = %d, want 1", len(preload.Handles))
	}
	if preload.Handles[res.ID] == "" {
		t.Fatal("known id missing from preload result")
	}
}
