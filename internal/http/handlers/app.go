package handlers

import (
	"encoding/json"
	"net/http"

	"parallax/internal/domain"
	"parallax/internal/infra"
	"parallax/internal/pipeline"
)

// App bundles the dependencies shared by all HTTP handlers.
type App struct {
	Ledger     domain.JobLedger
	Store      domain.BlobStore
	Dispatcher *pipeline.Dispatcher
	Logger     infra.Logger

	// MaxUploadBytes bounds multipart uploads; zero means the default.
	MaxUploadBytes int64
}

const defaultMaxUploadBytes = 32 << 20

func (a *App) maxUploadBytes() int64 {
	if a.MaxUploadBytes > 0 {
		return a.MaxUploadBytes
	}
	return defaultMaxUploadBytes
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
