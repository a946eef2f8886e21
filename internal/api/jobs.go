package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/score-engine/internal/jobs"
	"github.com/snarg/score-engine/internal/store"
)

// JobsHandler exposes the transcription job lifecycle over HTTP. It is a thin
// adapter: all state changes go through the orchestrator.
type JobsHandler struct {
	orch           *jobs.Orchestrator
	maxUploadBytes int64
	log            zerolog.Logger
}

// NewJobsHandler creates a jobs handler.
func NewJobsHandler(orch *jobs.Orchestrator, maxUploadBytes int64, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		orch:           orch,
		maxUploadBytes: maxUploadBytes,
		log:            log.With().Str("handler", "jobs").Logger(),
	}
}

// Routes registers the job endpoints.
func (h *JobsHandler) Routes(r chi.Router) {
	r.Post("/jobs", h.Upload)
	r.Get("/jobs", h.List)
	r.Route("/jobs/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.Post("/transcribe", h.Transcribe)
		r.Get("/artifacts/{kind}", h.Artifact)
	})
}

// jobResponse is the external shape of a job snapshot.
type jobResponse struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"`
	Filename      string    `json:"filename"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Error         string    `json:"error,omitempty"`
	NotesDetected int       `json:"notes_detected,omitempty"`
	MIDIURL       string    `json:"midi_url,omitempty"`
	MusicXMLURL   string    `json:"musicxml_url,omitempty"`
}

func toJobResponse(j jobs.Job) jobResponse {
	resp := jobResponse{
		ID:            j.ID,
		Status:        string(j.Status),
		Filename:      j.Filename,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		Error:         j.Error,
		NotesDetected: j.NotesDetected,
	}
	if j.Status == jobs.StatusCompleted {
		resp.MIDIURL = fmt.Sprintf("/api/v1/jobs/%s/artifacts/midi", j.ID)
		resp.MusicXMLURL = fmt.Sprintf("/api/v1/jobs/%s/artifacts/musicxml", j.ID)
	}
	return resp
}

// Upload handles POST /api/v1/jobs. Accepts a multipart form with a "file"
// field and creates a job in the uploaded state.
func (h *JobsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteErrorWithCode(w, http.StatusRequestEntityTooLarge, ErrFileTooLarge,
				fmt.Sprintf("upload exceeds %d MB limit", h.maxUploadBytes/(1024*1024)))
			return
		}
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "invalid multipart form: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, `missing "file" form field`)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrInvalidBody, "failed to read audio file")
		return
	}

	job, err := h.orch.Submit(header.Filename, data)
	if err != nil {
		if errors.Is(err, store.ErrUnsupportedFormat) {
			WriteErrorWithCode(w, http.StatusBadRequest, ErrUnsupportedFormat, err.Error())
			return
		}
		h.log.Error().Err(err).Str("filename", header.Filename).Msg("upload failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrStorage, "failed to store upload")
		return
	}

	WriteJSON(w, http.StatusCreated, toJobResponse(job))
}

// Transcribe handles POST /api/v1/jobs/{id}/transcribe. The run is
// asynchronous: a 202 response carries the processing snapshot and clients
// poll job status for the outcome.
func (h *JobsHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := h.orch.Run(id)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "unknown job id")
		return
	case errors.Is(err, jobs.ErrAlreadyRunning):
		WriteErrorWithCode(w, http.StatusConflict, ErrAlreadyRunning, "a run is already in progress; poll job status")
		return
	case errors.Is(err, jobs.ErrInvalidState):
		detail := "job is not runnable from its current state"
		if j, serr := h.orch.Status(id); serr == nil && j.Status == jobs.StatusCompleted {
			detail = fmt.Sprintf("transcription already completed; results are immutable, download at /api/v1/jobs/%s/artifacts/midi", id)
		}
		WriteErrorWithCode(w, http.StatusConflict, ErrInvalidState, detail)
		return
	case errors.Is(err, jobs.ErrQueueFull):
		WriteErrorWithCode(w, http.StatusServiceUnavailable, ErrQueueFull, "transcription queue is full; retry later")
		return
	case err != nil:
		h.log.Error().Err(err).Str("job_id", id).Msg("run request failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrStorage, "failed to start run")
		return
	}

	WriteJSON(w, http.StatusAccepted, toJobResponse(job))
}

// Get handles GET /api/v1/jobs/{id}.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	job, err := h.orch.Status(chi.URLParam(r, "id"))
	if err != nil {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "unknown job id")
		return
	}
	WriteJSON(w, http.StatusOK, toJobResponse(job))
}

// List handles GET /api/v1/jobs.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	all := h.orch.List()
	out := make([]jobResponse, 0, len(all))
	for _, j := range all {
		out = append(out, toJobResponse(j))
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"jobs":  out,
		"total": len(out),
	})
}

// Artifact handles GET /api/v1/jobs/{id}/artifacts/{kind} and streams the
// generated file.
func (h *JobsHandler) Artifact(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	kind, ok := store.ParseKind(chi.URLParam(r, "kind"))
	if !ok {
		WriteErrorWithCode(w, http.StatusBadRequest, ErrBadRequest, `artifact kind must be "midi" or "musicxml"`)
		return
	}

	path, err := h.orch.FetchArtifact(id, kind)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "artifact not available")
			return
		}
		h.log.Error().Err(err).Str("job_id", id).Str("kind", string(kind)).Msg("artifact fetch failed")
		WriteErrorWithCode(w, http.StatusInternalServerError, ErrStorage, "artifact unavailable")
		return
	}

	w.Header().Set("Content-Type", kind.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+artifactExt(kind)))
	http.ServeFile(w, r, path)
}

// Delete handles DELETE /api/v1/jobs/{id}.
func (h *JobsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.orch.Delete(id); err != nil {
		WriteErrorWithCode(w, http.StatusNotFound, ErrNotFound, "unknown job id")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func artifactExt(kind store.Kind) string {
	if kind == store.KindMIDI {
		return ".mid"
	}
	return ".musicxml"
}
