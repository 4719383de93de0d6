package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (a *App) CanvasSnapshot(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"layers": a.Doc.Snapshot()})
}

// LayerDelete removes a layer from the canvas. A live generation behind it is
// canceled first so no goroutine keeps working for a layer nobody can see.
func (a *App) LayerDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	if a.Tasks.Get(id) != nil {
		a.Generation.Cancel(id)
	} else {
		a.Doc.Remove(id)
	}
	w.WriteHeader(http.StatusNoContent)
}
