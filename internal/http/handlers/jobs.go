package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"parallax/internal/domain"
	"parallax/internal/pipeline"
)

type jobResponse struct {
	ID        string            `json:"id"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
	InputType *string           `json:"input_type"`
	Progress  int               `json:"progress"`
	Error     *string           `json:"error"`
	Outputs   map[string]string `json:"outputs"`
}

func toJobResponse(job *domain.Job) jobResponse {
	resp := jobResponse{
		ID:        job.ID,
		Status:    string(job.Status),
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
		Progress:  job.Progress,
	}
	if job.InputType != "" {
		inputType := string(job.InputType)
		resp.InputType = &inputType
	}
	if job.Error != "" {
		errMsg := job.Error
		resp.Error = &errMsg
	}
	if len(job.Outputs) > 0 {
		resp.Outputs = make(map[string]string, len(job.Outputs))
		for assetType, assetID := range job.Outputs {
			resp.Outputs[string(assetType)] = assetID
		}
	}
	return resp
}

// CreateJob accepts a multipart image upload, records the Pending job, stores
// the original and enqueues the processing pipeline. The response returns
// immediately; clients poll GetJob for progress.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes())
	if err := r.ParseMultipartForm(a.maxUploadBytes()); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid multipart payload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "file field is required")
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		a.error(w, http.StatusBadRequest, "bad_request", "file must be an image")
		return
	}

	var hint domain.InputType
	if raw := r.FormValue("input_type_hint"); raw != "" {
		parsed, err := domain.ParseInputType(raw)
		if err != nil || parsed == domain.InputTypeUnknown {
			a.error(w, http.StatusBadRequest, "bad_request", "input_type_hint must be 'object' or 'landscape'")
			return
		}
		hint = parsed
	}

	data, err := io.ReadAll(file)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "failed to read upload")
		return
	}

	filename := header.Filename
	if filename == "" {
		filename = "input.png"
	}

	job := &domain.Job{
		ID:               uuid.New().String(),
		Status:           domain.JobStatusPending,
		InputType:        hint,
		Progress:         0,
		OriginalFilename: filename,
	}
	if err := a.Ledger.CreateJob(r.Context(), job); err != nil {
		a.Logger.Error().Err(err).Msg("jobs: create record failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create job")
		return
	}
	if err := a.Store.PutUpload(r.Context(), job.ID, filename, data); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("jobs: store upload failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to store upload")
		return
	}
	if err := a.Dispatcher.Enqueue(r.Context(), pipeline.Task{JobID: job.ID, Filename: filename, Hint: hint}); err != nil {
		a.Logger.Error().Err(err).Str("job_id", job.ID).Msg("jobs: enqueue failed")
		a.error(w, http.StatusServiceUnavailable, "unavailable", "processing queue unavailable")
		return
	}

	stored, err := a.Ledger.GetJob(r.Context(), job.ID)
	if err != nil {
		// The job may already be running; fall back to the record we built.
		stored = job
	}
	a.json(w, http.StatusAccepted, toJobResponse(stored))
}

// GetJob returns the polled job state.
func (a *App) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	job, err := a.Ledger.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("jobs: load failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

// DeleteJob removes a job, its asset records and its stored files. Deletion
// is a route concern; the pipeline itself never deletes.
func (a *App) DeleteJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if _, err := a.Ledger.GetJob(r.Context(), jobID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	if err := a.Store.DeleteAllForJob(r.Context(), jobID); err != nil {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("jobs: delete files failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete job files")
		return
	}
	if err := a.Ledger.DeleteJob(r.Context(), jobID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("jobs: delete record failed")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete job")
		return
	}
	a.json(w, http.StatusOK, map[string]string{"status": "deleted", "job_id": jobID})
}
