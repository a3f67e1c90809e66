package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"docuvid/internal/jobs"
	"docuvid/internal/models"
	"docuvid/internal/scheduler"
	"docuvid/internal/store"
)

// Max scenes per job. Longer documents should be summarized upstream.
const maxScenes = 40

const keepaliveInterval = 30 * time.Second

// JobScheduler is the slice of the scheduler the API needs.
type JobScheduler interface {
	Submit(job *models.Job) error
	Cancel(jobID uuid.UUID) bool
}

type Handler struct {
	store       store.JobStore
	scheduler   JobScheduler
	broadcaster *jobs.Broadcaster
	musicPath   string
}

func NewHandler(jobStore store.JobStore, sched JobScheduler, broadcaster *jobs.Broadcaster, musicPath string) *Handler {
	return &Handler{
		store:       jobStore,
		scheduler:   sched,
		broadcaster: broadcaster,
		musicPath:   musicPath,
	}
}

// CreateJob handles POST /v1/jobs
func (h *Handler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req models.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if strings.TrimSpace(req.Title) == "" {
		respondError(w, http.StatusBadRequest, "Title is required")
		return
	}
	inputs := sceneInputsFromText(req.Text)
	if len(inputs) == 0 {
		respondError(w, http.StatusBadRequest, "Text must contain at least one paragraph")
		return
	}
	if len(inputs) > maxScenes {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Text has %d paragraphs, maximum is %d", len(inputs), maxScenes))
		return
	}

	settings := models.DefaultSettings()
	if req.Settings != nil {
		settings = *req.Settings
	}
	if _, _, err := settings.Size(); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid resolution, expected WIDTHxHEIGHT")
		return
	}
	if settings.FPS <= 0 {
		respondError(w, http.StatusBadRequest, "FPS must be positive")
		return
	}
	if settings.OutputMode == "" {
		settings.OutputMode = models.OutputModeVideo
	}
	// Only video rendering exists today. Rejecting the other modes beats
	// accepting them and silently returning a video.
	if settings.OutputMode != models.OutputModeVideo {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Output mode %q is not supported, use %q", settings.OutputMode, models.OutputModeVideo))
		return
	}

	job := &models.Job{
		ID:        uuid.New(),
		Title:     req.Title,
		Status:    models.JobStatusPending,
		Settings:  settings,
		CreatedAt: time.Now().UTC(),
		Inputs:    inputs,
		MusicPath: h.musicPath,
	}

	if err := h.store.Create(r.Context(), job); err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	if err := h.scheduler.Submit(job); err != nil {
		if derr := h.store.Delete(r.Context(), job.ID); derr != nil {
			respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
			return
		}
		respondError(w, http.StatusServiceUnavailable, "Job queue is full, try again later")
		return
	}

	respondJSON(w, http.StatusCreated, models.CreateJobResponse{
		JobID:  job.ID,
		Status: job.Status,
	})
}

// ListJobs handles GET /v1/jobs
// Query params:
//   - status: filter by job status
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	statusFilter := r.URL.Query().Get("status")
	if statusFilter != "" && !isKnownStatus(statusFilter) {
		respondError(w, http.StatusBadRequest, "Invalid status filter")
		return
	}

	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	list, err := h.store.List(r.Context(), statusFilter, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	respondJSON(w, http.StatusOK, models.ListJobsResponse{
		Jobs:   list,
		Total:  len(list),
		Limit:  limit,
		Offset: offset,
	})
}

// GetJob handles GET /v1/jobs/{id}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, job)
}

// CancelJob handles POST /v1/jobs/{id}/cancel
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}
	if job.Status.IsTerminal() {
		respondError(w, http.StatusConflict, fmt.Sprintf("Job is already %s", job.Status))
		return
	}

	if !h.scheduler.Cancel(job.ID) {
		// The scheduler already finished it; report the stored state.
		if current, err := h.store.Get(r.Context(), job.ID); err == nil {
			job = current
		}
		respondJSON(w, http.StatusOK, job)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID.String(),
		"status": "cancelling",
	})
}

// DownloadJob handles GET /v1/jobs/{id}/download
func (h *Handler) DownloadJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}
	if job.Status != models.JobStatusCompleted || job.Output == nil {
		respondError(w, http.StatusNotFound, "Video not ready")
		return
	}

	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.ID.String()+".mp4"))
	http.ServeFile(w, r, job.Output.Path)
}

// StreamJobEvents handles GET /v1/jobs/{id}/events as Server-Sent Events.
// The subscriber gets the latest known state immediately, then every
// transition and progress update, with a keepalive comment while idle.
// The stream ends after a terminal event.
func (h *Handler) StreamJobEvents(w http.ResponseWriter, r *http.Request) {
	job, ok := h.lookupJob(w, r)
	if !ok {
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		respondError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	events, stop := h.broadcaster.Subscribe(job.ID)
	defer stop()

	// Jobs that finished before the broadcaster saw them still need a
	// snapshot from the store.
	if len(events) == 0 {
		writeSSE(w, models.ProgressEvent{
			JobID:    job.ID,
			Status:   job.Status,
			Step:     job.CurrentStep,
			Progress: job.Progress,
		})
		flusher.Flush()
		if job.Status.IsTerminal() {
			return
		}
	}

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case event, open := <-events:
			if !open {
				return
			}
			writeSSE(w, event)
			flusher.Flush()
			if event.Status.IsTerminal() {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, event models.ProgressEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func (h *Handler) lookupJob(w http.ResponseWriter, r *http.Request) (*models.Job, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return nil, false
	}

	job, err := h.store.Get(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Job not found")
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get job")
		return nil, false
	}
	return job, true
}

// sceneInputsFromText splits document text into one scene per paragraph.
func sceneInputsFromText(text string) []models.SceneInput {
	var inputs []models.SceneInput
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		inputs = append(inputs, models.SceneInput{
			Index: len(inputs),
			Text:  para,
		})
	}
	return inputs
}

func isKnownStatus(s string) bool {
	switch models.JobStatus(s) {
	case models.JobStatusPending, models.JobStatusClassifying, models.JobStatusScripting,
		models.JobStatusVoiceover, models.JobStatusBackgrounds, models.JobStatusComposing,
		models.JobStatusExporting, models.JobStatusCompleted, models.JobStatusFailed,
		models.JobStatusCancelled:
		return true
	}
	return false
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var _ JobScheduler = (*scheduler.Scheduler)(nil)
