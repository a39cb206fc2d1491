package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"parallax/internal/domain"
)

type assetResponse struct {
	ID          string               `json:"id"`
	JobID       string               `json:"job_id"`
	AssetType   string               `json:"asset_type"`
	Filename    string               `json:"filename"`
	ContentType string               `json:"content_type"`
	Size        int64                `json:"size"`
	Metadata    domain.AssetMetadata `json:"metadata"`
	CreatedAt   time.Time            `json:"created_at"`
}

func toAssetResponse(asset *domain.Asset) assetResponse {
	return assetResponse{
		ID:          asset.ID,
		JobID:       asset.JobID,
		AssetType:   string(asset.Type),
		Filename:    asset.Filename,
		ContentType: asset.ContentType,
		Size:        asset.Size,
		Metadata:    asset.Metadata,
		CreatedAt:   asset.CreatedAt,
	}
}

// GetAsset returns asset metadata by id.
func (a *App) GetAsset(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")
	asset, err := a.Ledger.GetAsset(r.Context(), assetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "asset not found")
			return
		}
		a.Logger.Error().Err(err).Str("asset_id", assetID).Msg("assets: load failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load asset")
		return
	}
	a.json(w, http.StatusOK, toAssetResponse(asset))
}

// DownloadAsset streams the stored asset bytes.
func (a *App) DownloadAsset(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "id")
	asset, err := a.Ledger.GetAsset(r.Context(), assetID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "asset not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load asset")
		return
	}

	reader, err := a.Store.GetProcessed(r.Context(), asset.JobID, asset.Type)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "asset file not found")
			return
		}
		a.Logger.Error().Err(err).Str("asset_id", assetID).Msg("assets: open file failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to open asset")
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", asset.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", asset.Filename))
	if _, err := io.Copy(w, reader); err != nil {
		a.Logger.Warn().Err(err).Str("asset_id", assetID).Msg("assets: stream interrupted")
	}
}

// ListJobAssets returns all assets recorded for a job.
func (a *App) ListJobAssets(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	assets, err := a.Ledger.ListAssetsByJob(r.Context(), jobID)
	if err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("assets: list failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list assets")
		return
	}
	items := make([]assetResponse, 0, len(assets))
	for i := range assets {
		items = append(items, toAssetResponse(&assets[i]))
	}
	a.json(w, http.StatusOK, map[string]any{"job_id": jobID, "assets": items})
}
