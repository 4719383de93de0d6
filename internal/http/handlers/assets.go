package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type assetUploadRequest struct {
	DataURI string `json:"data_uri"`
}

type assetIDsRequest struct {
	IDs []string `json:"ids"`
}

type assetResponse struct {
	ID        string `json:"id"`
	HandleURL string `json:"handle_url"`
	Durable   bool   `json:"durable"`
}

// AssetUpload stores an encoded asset and returns its id together with a
// ready-to-use handle. A failed durable write still succeeds with
// durable=false; the asset stays reachable for this process lifetime.
func (a *App) AssetUpload(w http.ResponseWriter, r *http.Request) {
	var req assetUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if req.DataURI == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "data_uri required")
		return
	}

	res, err := a.Assets.StoreAsset(r.Context(), req.DataURI)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "malformed data_uri")
		return
	}
	a.json(w, http.StatusCreated, assetResponse{ID: res.ID, HandleURL: res.Handle, Durable: res.Durable})
}

// AssetRedirect sends the client to the asset's live handle URL, minting one
// on the way if needed.
func (a *App) AssetRedirect(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	url, ok := a.Assets.AssetHandle(r.Context(), id)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "asset not found")
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (a *App) AssetHandle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	url, ok := a.Assets.AssetHandle(r.Context(), id)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "asset not found")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"id": id, "handle_url": url})
}

// AssetBytes serves the stored payload as a data URI, always reading from the
// durable store rather than the handle cache.
func (a *App) AssetBytes(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	dataURI, ok := a.Assets.AssetBytes(r.Context(), id)
	if !ok {
		a.error(w, http.StatusNotFound, "not_found", "asset not found")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"id": id, "data_uri": dataURI})
}

func (a *App) AssetDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	a.Assets.DeleteAsset(r.Context(), id)
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) AssetsBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req assetIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	a.Assets.DeleteAssets(r.Context(), req.IDs)
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) AssetsClear(w http.ResponseWriter, r *http.Request) {
	a.Assets.ClearAll(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// AssetsPreload warms handles for the given ids, typically after loading a
// saved canvas. Unknown ids are skipped, not errors.
func (a *App) AssetsPreload(w http.ResponseWriter, r *http.Request) {
	var req assetIDsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	handles := a.Assets.PreloadHandles(r.Context(), req.IDs)
	a.json(w, http.StatusOK, map[string]any{"handles": handles})
}
