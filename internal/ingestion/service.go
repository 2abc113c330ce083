package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rpattn/ngoreports/internal/domain"
	"github.com/rpattn/ngoreports/internal/repository"
)

const (
	// DefaultMaxUploadBytes is the largest accepted upload (5 MiB).
	DefaultMaxUploadBytes int64 = 5 << 20

	// UploadFilePrefix starts the name of every staged upload.
	UploadFilePrefix = "upload-"
)

var (
	// ErrUploadTooLarge is returned when an upload exceeds the size limit.
	ErrUploadTooLarge = errors.New("uploaded file exceeds the size limit")
	// ErrNoFile is returned when a submission carries no file.
	ErrNoFile = errors.New("no file uploaded")
)

// JobDispatcher starts a pipeline run for a staged upload.
type JobDispatcher interface {
	Dispatch(upload Upload, jobID string) *Task
}

// Service accepts uploads, records a pending job for each and hands the
// stored file to the dispatcher.
type Service struct {
	jobs       repository.JobRepository
	dispatcher JobDispatcher
	logger     *slog.Logger

	uploadDir string
	maxBytes  int64
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithUploadDirectory sets where uploads are staged until processed.
func WithUploadDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.uploadDir = filepath.Clean(dir)
		}
	}
}

// WithMaxUploadBytes sets the largest accepted upload.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// WithServiceLogger sets the service's logger.
func WithServiceLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService returns a service that stages uploads and hands them to
// dispatcher.
func NewService(jobs repository.JobRepository, dispatcher JobDispatcher, opts ...Option) *Service {
	service := &Service{
		jobs:       jobs,
		dispatcher: dispatcher,
		logger:     slog.Default(),
		uploadDir:  filepath.Join(os.TempDir(), "ngo-uploads"),
		maxBytes:   DefaultMaxUploadBytes,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	service.logger = service.logger.With("component", "ingestion")
	return service
}

// UploadDirectory returns where staged uploads are written.
func (s *Service) UploadDirectory() string {
	return s.uploadDir
}

// MaxUploadBytes returns the upload size limit.
func (s *Service) MaxUploadBytes() int64 {
	return s.maxBytes
}

// Submit stores the upload, creates its pending job and starts processing
// in the background. It returns as soon as the job exists.
func (s *Service) Submit(ctx context.Context, fileName string, data io.Reader) (domain.Job, error) {
	if data == nil || strings.TrimSpace(fileName) == "" {
		return domain.Job{}, ErrNoFile
	}
	format, err := FormatFromFileName(fileName)
	if err != nil {
		return domain.Job{}, err
	}

	path, err := s.stage(data, format)
	if err != nil {
		return domain.Job{}, err
	}

	job, err := s.jobs.Create(ctx, domain.NewJob(filepath.Base(fileName), s.now()))
	if err != nil {
		s.discard(path)
		return domain.Job{}, fmt.Errorf("create job: %w", err)
	}

	s.dispatcher.Dispatch(Upload{Path: path, Format: format, Name: job.FileName}, job.JobID)
	s.logger.Info("upload accepted", "job_id", job.JobID, "file", job.FileName)
	return job, nil
}

// stage copies the upload into the upload directory, enforcing the size
// limit.
func (s *Service) stage(data io.Reader, format Format) (string, error) {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload directory: %w", err)
	}
	file, err := os.CreateTemp(s.uploadDir, UploadFilePrefix+"*."+string(format))
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	path := file.Name()

	written, copyErr := io.Copy(file, io.LimitReader(data, s.maxBytes+1))
	closeErr := file.Close()
	switch {
	case copyErr != nil:
		s.discard(path)
		return "", fmt.Errorf("store upload: %w", copyErr)
	case closeErr != nil:
		s.discard(path)
		return "", fmt.Errorf("store upload: %w", closeErr)
	case written > s.maxBytes:
		s.discard(path)
		return "", ErrUploadTooLarge
	}
	return path, nil
}

func (s *Service) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Error("failed to remove upload", "path", path, "error", err)
	}
}

// GetJob returns the job record.
func (s *Service) GetJob(ctx context.Context, jobID string) (domain.Job, error) {
	return s.jobs.GetByID(ctx, strings.TrimSpace(jobID))
}

// ListJobs returns recent jobs, newest first, optionally filtered by status.
func (s *Service) ListJobs(ctx context.Context, statuses []domain.JobStatus, limit, offset int) ([]domain.Job, error) {
	return s.jobs.List(ctx, statuses, limit, offset)
}
