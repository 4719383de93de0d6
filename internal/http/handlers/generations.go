package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"canvasd/internal/generation"
	"canvasd/internal/taskman"
)

const maxBatchSize = 16

type generateItem struct {
	Prompt            string   `json:"prompt"`
	MediaType         string   `json:"media_type"`
	AspectRatio       string   `json:"aspect_ratio"`
	ReferenceAssetIDs []string `json:"reference_asset_ids"`
	X                 float64  `json:"x"`
	Y                 float64  `json:"y"`
	Width             float64  `json:"width"`
	Height            float64  `json:"height"`
}

type generateRequest struct {
	Requests []generateItem `json:"requests"`
}

type taskStatusResponse struct {
	TaskID    string `json:"task_id"`
	LayerID   string `json:"layer_id"`
	MediaType string `json:"media_type"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
}

// GenerationsCreate accepts a batch of generation requests. The response
// carries one layer/task pair per request; every pair exists before the first
// remote call is made, so clients can cancel any of them immediately.
func (a *App) GenerationsCreate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if len(req.Requests) == 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "requests required")
		return
	}
	if len(req.Requests) > maxBatchSize {
		a.error(w, http.StatusBadRequest, "bad_request", "too many requests in one batch")
		return
	}

	runs := make([]generation.Request, 0, len(req.Requests))
	for _, item := range req.Requests {
		if item.Prompt == "" {
			a.error(w, http.StatusBadRequest, "bad_request", "prompt required")
			return
		}
		media := taskman.MediaType(item.MediaType)
		switch media {
		case taskman.MediaImage, taskman.MediaVideo, taskman.MediaAudio:
		case "":
			media = taskman.MediaImage
		default:
			a.error(w, http.StatusBadRequest, "bad_request", "unsupported media_type")
			return
		}
		runs = append(runs, generation.Request{
			Prompt:            item.Prompt,
			MediaType:         media,
			AspectRatio:       item.AspectRatio,
			ReferenceAssetIDs: item.ReferenceAssetIDs,
			X:                 item.X,
			Y:                 item.Y,
			Width:             item.Width,
			Height:            item.Height,
		})
	}

	started := a.Generation.Generate(runs)
	a.json(w, http.StatusAccepted, map[string]any{"started": started})
}

// GenerationCancel is orphan-safe: canceling a finished or unknown generation
// is a success, not an error.
func (a *App) GenerationCancel(w http.ResponseWriter, r *http.Request) {
	layerID := chi.URLParam(r, "layer_id")
	if layerID == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "layer_id required")
		return
	}
	a.Generation.Cancel(layerID)
	w.WriteHeader(http.StatusNoContent)
}

func (a *App) GenerationStatus(w http.ResponseWriter, r *http.Request) {
	layerID := chi.URLParam(r, "layer_id")
	task := a.Tasks.Get(layerID)
	if task == nil {
		a.error(w, http.StatusNotFound, "not_found", "no live task for layer")
		return
	}
	a.json(w, http.StatusOK, taskStatusResponse{
		TaskID:    task.TaskID,
		LayerID:   task.LayerID,
		MediaType: string(task.MediaType),
		Status:    string(task.Status()),
		Progress:  task.Progress(),
	})
}
