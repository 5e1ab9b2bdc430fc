package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/ternarybob/enricher/internal/models"
	"github.com/ternarybob/enricher/internal/services/jobs"
)

// multipartMemory is the part of an upload kept in memory before spilling to temp files
const multipartMemory = 8 << 20

// JobService is the registry surface the HTTP layer needs
type JobService interface {
	Submit(ctx context.Context, req jobs.SubmitRequest) (string, error)
	Status(ctx context.Context, jobID string) (*models.JobView, error)
	Download(ctx context.Context, jobID string) (path string, filename string, err error)
	SignalStart(ctx context.Context, jobID string) error
	List(ctx context.Context) []*models.JobView
}

// UploadLimits bounds the upload endpoint
type UploadLimits struct {
	MaxSize   int64 // bytes, 0 = unlimited
	PerMinute int   // accepted uploads per minute, 0 = unlimited
	Burst     int
}

type JobHandler struct {
	jobs    JobService
	limiter *rate.Limiter
	maxSize int64
	logger  arbor.ILogger
}

func NewJobHandler(service JobService, limits UploadLimits, logger arbor.ILogger) *JobHandler {
	h := &JobHandler{
		jobs:    service,
		maxSize: limits.MaxSize,
		logger:  logger,
	}
	if limits.PerMinute > 0 {
		burst := limits.Burst
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(limits.PerMinute)), burst)
	}
	return h
}

// UploadHandler accepts a multipart upload and queues a job.
// Form fields: file, manual_login, cookies, selectors (JSON object).
func (h *JobHandler) UploadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if h.limiter != nil && !h.limiter.Allow() {
		h.logger.Warn().Str("remote", r.RemoteAddr).Msg("Upload rejected by rate limit")
		WriteError(w, http.StatusTooManyRequests, "Too many uploads, try again later")
		return
	}

	if h.maxSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxSize)
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		WriteError(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	details, err := parseDetails(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID, err := h.jobs.Submit(r.Context(), jobs.SubmitRequest{
		Filename: header.Filename,
		Body:     file,
		Details:  details,
	})
	if err != nil {
		if errors.Is(err, jobs.ErrInvalidInput) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("filename", header.Filename).Msg("Failed to submit job")
		WriteError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"jobId": jobID})
}

func parseDetails(r *http.Request) (models.JobDetails, error) {
	details := models.JobDetails{
		Cookies: r.FormValue("cookies"),
	}

	if raw := r.FormValue("manual_login"); raw != "" {
		manual, err := strconv.ParseBool(raw)
		if err != nil {
			return details, fmt.Errorf("invalid manual_login value %q", raw)
		}
		details.ManualLogin = manual
	}

	if raw := r.FormValue("selectors"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &details.Selectors); err != nil {
			return details, fmt.Errorf("invalid selectors JSON: %v", err)
		}
	}
	return details, nil
}

// StatusHandler returns GET /status/{jobId}
func (h *JobHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID := PathID(r, "/status/")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	view, err := h.jobs.Status(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// SignalStartHandler releases a worker waiting on manual login
func (h *JobHandler) SignalStartHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	jobID := PathID(r, "/signal-start/")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	if err := h.jobs.SignalStart(r.Context(), jobID); err != nil {
		h.writeJobError(w, jobID, err)
		return
	}
	WriteSuccess(w, "")
}

// DownloadHandler streams the enriched CSV of a finished or failed job
func (h *JobHandler) DownloadHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	jobID := PathID(r, "/download/")
	if jobID == "" {
		WriteError(w, http.StatusBadRequest, "Job ID is required")
		return
	}

	path, filename, err := h.jobs.Download(r.Context(), jobID)
	if err != nil {
		h.writeJobError(w, jobID, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to open output")
		WriteError(w, http.StatusNotFound, "Output not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to read output")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": filename})
	if disposition == "" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Disposition", disposition)
	http.ServeContent(w, r, filename, info.ModTime(), f)
}

// ListHandler returns every known job, newest first
func (h *JobHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	views := h.jobs.List(r.Context())
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  views,
		"total": len(views),
	})
}

// writeJobError maps registry errors to status codes
func (h *JobHandler) writeJobError(w http.ResponseWriter, jobID string, err error) {
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		WriteError(w, http.StatusNotFound, "Job not found")
	case errors.Is(err, jobs.ErrOutputMissing):
		WriteError(w, http.StatusNotFound, "Output not found")
	case errors.Is(err, jobs.ErrNotReady):
		WriteError(w, http.StatusBadRequest, "Job not finished")
	default:
		h.logger.Error().Err(err).Str("job_id", jobID).Msg("Job request failed")
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}
