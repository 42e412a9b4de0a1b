package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kozaktomas/hijabist/internal/analysis"
	"github.com/kozaktomas/hijabist/internal/apperrors"
	"github.com/kozaktomas/hijabist/internal/config"
	"github.com/kozaktomas/hijabist/internal/constants"
	"github.com/kozaktomas/hijabist/internal/flow"
	"github.com/kozaktomas/hijabist/internal/logger"
	"github.com/kozaktomas/hijabist/internal/media"
	"github.com/kozaktomas/hijabist/internal/presenter"
	"github.com/kozaktomas/hijabist/internal/web/middleware"
)

// AnalysisHandler drives a visitor's analysis flow.
type AnalysisHandler struct {
	config     *config.Config
	workspaces *WorkspaceManager
	jobManager *JobManager
}

// NewAnalysisHandler creates a new analysis handler
func NewAnalysisHandler(cfg *config.Config, wm *WorkspaceManager, jm *JobManager) *AnalysisHandler {
	return &AnalysisHandler{
		config:     cfg,
		workspaces: wm,
		jobManager: jm,
	}
}

// flowResponse is the flow snapshot plus the preview URL and running job.
type flowResponse struct {
	flow.Snapshot
	PreviewURL string   `json:"previewUrl,omitempty"`
	Error      string   `json:"error,omitempty"`
	ErrorKind  string   `json:"errorKind,omitempty"`
	Retryable  bool     `json:"retryable"`
	Job        *JobView `json:"job,omitempty"`
}

func (h *AnalysisHandler) workspace(r *http.Request) *Workspace {
	return h.workspaces.Get(r.Context(), middleware.GetSessionFromContext(r.Context()))
}

func (h *AnalysisHandler) flowResponse(ws *Workspace, s flow.Snapshot) flowResponse {
	resp := flowResponse{Snapshot: s, Retryable: s.Retryable()}
	if s.PreviewID != "" {
		resp.PreviewURL = PreviewPrefix + s.PreviewID
	}
	if s.Err != nil {
		resp.Error = apperrors.Message(s.Err)
		resp.ErrorKind = string(apperrors.KindOf(s.Err))
	}
	if job := ws.ActiveJob(); job != nil {
		view := job.Snapshot()
		resp.Job = &view
	}
	return resp
}

// respondFlow sends the snapshot; err, if any, sets the status code.
func (h *AnalysisHandler) respondFlow(w http.ResponseWriter, ws *Workspace, s flow.Snapshot, err error) {
	status := http.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, flow.ErrInvalidTransition):
		status = http.StatusConflict
	default:
		status = apperrors.StatusCode(err)
	}
	respondJSON(w, status, h.flowResponse(ws, s))
}

// Get returns the visitor's flow state.
func (h *AnalysisHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(r)
	h.respondFlow(w, ws, ws.Controller.Snapshot(), nil)
}

// Upload selects an uploaded image (multipart field "image").
func (h *AnalysisHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(r)

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxUploadSize+constants.MaxUploadFormOverhead)
	file, header, err := r.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			err = apperrors.FileTooLarge(maxErr.Limit)
			h.respondFlow(w, ws, ws.Controller.Snapshot(), err)
			return
		}
		respondError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, constants.MaxUploadSize+1))
	if err != nil {
		respondError(w, http.StatusBadRequest, "could not read image")
		return
	}

	s, err := ws.Controller.SelectUpload(media.Upload{
		Name: header.Filename,
		Type: header.Header.Get("Content-Type"),
		Data: data,
	})
	if err != nil {
		logger.WithFields(map[string]any{
			"visitor":  ws.ID,
			"filename": sanitizeForLog(header.Filename),
		}).WithError(err).Debug("upload rejected")
	}
	h.respondFlow(w, ws, s, err)
}

// cameraRequest is the optional body of OpenCamera.
type cameraRequest struct {
	FacingMode string `json:"facingMode"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// OpenCamera requests the visitor's camera.
func (h *AnalysisHandler) OpenCamera(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(r)

	var req cameraRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, errInvalidRequestBody)
			return
		}
	}
	if req.FacingMode == "" {
		req.FacingMode = h.config.Camera.FacingMode
	}

	s, err := ws.Controller.OpenCamera(r.Context(), media.Constraints{
		FacingMode: req.FacingMode,
		Width:      req.Width,
		Height:     req.Height,
	})
	h.respondFlow(w, ws, s, err)
}

// Capture selects the current camera frame.
func (h *AnalysisHandler) Capture(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(r)
	s, err := ws.Controller.Capture(r.Context())
	h.respondFlow(w, ws, s, err)
}

// CloseCamera stops the camera.
func (h *AnalysisHandler) CloseCamera(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(r)
	h.respondFlow(w, ws, ws.Controller.CloseCamera(), nil)
}

// RemoveImage drops the selected image.
func (h *AnalysisHandler) RemoveImage(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(r)
	s, err := ws.Controller.RemoveImage()
	h.respondFlow(w, ws, s, err)
}

// Start launches the combined analysis as a job. The flow enters analyzing
// before the response is written, so a second start is a conflict.
func (h *AnalysisHandler) Start(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(r)

	// The job outlives the request.
	ctx, cancel := context.WithCancel(context.Background())
	run, err := ws.Controller.Begin(ctx)
	if err != nil {
		cancel()
		h.respondFlow(w, ws, ws.Controller.Snapshot(), err)
		return
	}

	job := h.jobManager.CreateJob(uuid.New().String(), ws.ID)
	ws.setJob(job)
	job.start(cancel)

	unsubscribe := ws.Controller.Subscribe(func(s flow.Snapshot) {
		if s.State == flow.StateAnalyzing {
			job.setProgress(s.Progress)
		}
	})
	go func() {
		defer unsubscribe()
		h.runAnalysisJob(ws, job, run)
	}()

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.ID,
		"status": string(JobStatusRunning),
	})
}

func (h *AnalysisHandler) runAnalysisJob(ws *Workspace, job *AnalysisJob, run func() (*analysis.Result, error)) {
	log := logger.WithFields(map[string]any{"visitor": ws.ID, "job_id": job.ID})
	result, err := run()
	if err != nil {
		snap := ws.Controller.Snapshot()
		if job.finish(JobStatusFailed, func(j *AnalysisJob) {
			j.Error = apperrors.Message(err)
			j.ErrorKind = string(apperrors.KindOf(err))
			j.Retryable = snap.Retryable()
		}) {
			log.WithError(err).Warn("analysis failed")
			job.SendEvent(JobEvent{Type: string(JobStatusFailed), Message: apperrors.Message(err), Data: job.Snapshot()})
		}
		return
	}

	vm, err := presenter.MapToViewModel(result, &h.config.Catalog)
	if err != nil {
		log.WithError(err).Error("could not present analysis result")
	}
	if job.finish(JobStatusCompleted, func(j *AnalysisJob) {
		j.Progress = constants.ProgressDone
		j.Result = vm
	}) {
		log.Info("analysis completed")
		job.SendEvent(JobEvent{Type: string(JobStatusCompleted), Data: job.Snapshot()})
	}
}

func (h *AnalysisHandler) lookupJob(r *http.Request) func(string) SSEJob {
	visitor := middleware.GetSessionFromContext(r.Context())
	return func(id string) SSEJob {
		job := h.jobManager.GetVisitorJob(id, visitor.ID)
		if job == nil {
			return nil
		}
		return job
	}
}

// JobStatus returns the status of an analysis job
func (h *AnalysisHandler) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	visitor := middleware.GetSessionFromContext(r.Context())

	job := h.jobManager.GetVisitorJob(jobID, visitor.ID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.Snapshot())
}

// JobEvents streams job events via SSE
func (h *AnalysisHandler) JobEvents(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r, h.lookupJob(r), func(job SSEJob) any {
		return job.(*AnalysisJob).Snapshot()
	})
}

// CancelJob cancels a running analysis job.
func (h *AnalysisHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	visitor := middleware.GetSessionFromContext(r.Context())

	job := h.jobManager.GetVisitorJob(jobID, visitor.ID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	job.Cancel()
	respondJSON(w, http.StatusOK, job.Snapshot())
}

// Retry returns a failed flow to its image.
func (h *AnalysisHandler) Retry(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(r)
	s, err := ws.Controller.Retry()
	h.respondFlow(w, ws, s, err)
}

// Reset cancels any running analysis and clears the flow.
func (h *AnalysisHandler) Reset(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(r)
	h.respondFlow(w, ws, ws.Reset(), nil)
}

// Preview serves the visitor's selected image.
func (h *AnalysisHandler) Preview(w http.ResponseWriter, r *http.Request) {
	ws := h.workspace(r)
	id := chi.URLParam(r, "id")

	if ws.Controller.Snapshot().PreviewID != id {
		respondError(w, http.StatusNotFound, "preview not found")
		return
	}
	img, ok := h.workspaces.Previews().Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "preview not found")
		return
	}

	w.Header().Set("Content-Type", img.MIMEType)
	w.Header().Set("Cache-Control", "private, no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(img.Data)
}
