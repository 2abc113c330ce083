package ingestion

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rpattn/ngoreports/internal/domain"
	"github.com/rpattn/ngoreports/internal/middleware"
	"github.com/rpattn/ngoreports/internal/repository"
	"github.com/rpattn/ngoreports/internal/respond"

	"github.com/gorilla/mux"
)

// multipartOverhead leaves room for the form boundaries around the file.
const multipartOverhead = 1 << 20

// Handler exposes uploads and job status over HTTP.
type Handler struct {
	service *Service
}

// NewHTTPHandler wraps the service with upload and job endpoints.
func NewHTTPHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the handler's routes.
func (h *Handler) Register(r *mux.Router) {
	r.HandleFunc("/reports/upload", h.upload).Methods(http.MethodPost)
	r.HandleFunc("/job-status/{job_id}", h.jobStatus).Methods(http.MethodGet)
	r.HandleFunc("/jobs", h.listJobs).Methods(http.MethodGet)
}

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	limit := h.service.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	if err := r.ParseMultipartForm(limit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respond.Error(w, http.StatusBadRequest, sizeLimitMessage(limit))
			return
		}
		respond.Error(w, http.StatusBadRequest, fmt.Sprintf("invalid form data: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	job, err := h.service.Submit(r.Context(), header.Filename, file)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnsupportedFormat):
			respond.Error(w, http.StatusBadRequest, "Only CSV or XLSX files allowed")
		case errors.Is(err, ErrUploadTooLarge):
			respond.Error(w, http.StatusBadRequest, sizeLimitMessage(limit))
		case errors.Is(err, ErrNoFile):
			respond.Error(w, http.StatusBadRequest, "No file uploaded")
		default:
			respond.Error(w, http.StatusInternalServerError, "Failed to accept upload")
		}
		return
	}

	respond.Success(w, "File uploaded successfully. Processing started.", map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

func (h *Handler) jobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(mux.Vars(r)["job_id"])

	var (
		job domain.Job
		err error
	)
	if loader := middleware.JobLoaderFromContext(r.Context()); loader != nil {
		job, err = loader.Load(r.Context(), jobID)
	} else {
		job, err = h.service.GetJob(r.Context(), jobID)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respond.Error(w, http.StatusNotFound, "Job not found")
			return
		}
		respond.Error(w, http.StatusInternalServerError, "Failed to load job")
		return
	}
	respond.Success(w, "", job)
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if ids := splitList(query.Get("ids")); len(ids) > 0 {
		loader := middleware.JobLoaderFromContext(r.Context())
		if loader == nil {
			respond.Error(w, http.StatusInternalServerError, "Job lookups unavailable")
			return
		}
		jobs, err := loader.LoadMany(r.Context(), ids)
		if err != nil {
			respond.Error(w, http.StatusInternalServerError, "Failed to load jobs")
			return
		}
		respond.Success(w, "", jobs)
		return
	}

	var statuses []domain.JobStatus
	for _, raw := range splitList(query.Get("status")) {
		status, ok := domain.ParseJobStatus(raw)
		if !ok {
			respond.Error(w, http.StatusBadRequest, fmt.Sprintf("Unknown job status %q", raw))
			return
		}
		statuses = append(statuses, status)
	}

	limit, err := intParam(query.Get("limit"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	offset, err := intParam(query.Get("offset"))
	if err != nil {
		respond.Error(w, http.StatusBadRequest, "offset must be an integer")
		return
	}

	jobs, err := h.service.ListJobs(r.Context(), statuses, limit, offset)
	if err != nil {
		respond.Error(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}
	if jobs == nil {
		jobs = []domain.Job{}
	}
	respond.Success(w, "", jobs)
}

func sizeLimitMessage(limit int64) string {
	return fmt.Sprintf("File size exceeds the limit of %dMB", limit>>20)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intParam(raw string) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, nil
	}
	return strconv.Atoi(strings.TrimSpace(raw))
}
