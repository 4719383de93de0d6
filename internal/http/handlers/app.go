package handlers

import (
	"encoding/json"
	"net/http"

	"canvasd/internal/assets"
	"canvasd/internal/canvas"
	"canvasd/internal/generation"
	"canvasd/internal/infra"
	"canvasd/internal/taskman"
)

type App struct {
	Assets     *assets.Store
	Generation *generation.Service
	Tasks      *taskman.Manager
	Doc        *canvas.Document
	Logger     infra.Logger
}

func NewApp(assetStore *assets.Store, gen *generation.Service, tasks *taskman.Manager, doc *canvas.Document, logger infra.Logger) *App {
	return &App{
		Assets:     assetStore,
		Generation: gen,
		Tasks:      tasks,
		Doc:        doc,
		Logger:     logger,
	}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}
