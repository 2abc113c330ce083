package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/rpattn/ngoreports/internal/domain"
	"github.com/rpattn/ngoreports/internal/repository"
	"github.com/rpattn/ngoreports/pkg/validator"
)

const (
	// DefaultBatchSize is the number of reports written per upsert call.
	DefaultBatchSize = 100

	maxErrorMessageLength = 1000
)

// Pipeline turns one stored upload into reports and keeps the job record
// current while doing so.
type Pipeline struct {
	jobs      repository.JobRepository
	reports   repository.ReportRepository
	logger    *slog.Logger
	batchSize int
	remove    func(string) error
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithBatchSize sets how many reports are written per storage call.
func WithBatchSize(size int) PipelineOption {
	return func(p *Pipeline) {
		if size > 0 {
			p.batchSize = size
		}
	}
}

// WithLogger sets the pipeline's logger.
func WithLogger(logger *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPipeline creates a pipeline writing to the given stores.
func NewPipeline(jobs repository.JobRepository, reports repository.ReportRepository, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		jobs:      jobs,
		reports:   reports,
		logger:    slog.Default(),
		batchSize: DefaultBatchSize,
		remove:    os.Remove,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "ingestion")
	return p
}

// Run ingests the upload for a pending job. It reports nothing to the caller:
// the outcome is written to the job record, and the upload file is removed
// on every exit path. Run is not cancellable once started.
func (p *Pipeline) Run(ctx context.Context, upload Upload, jobID string) {
	ctx = context.WithoutCancel(ctx)
	log := p.logger.With("job_id", jobID)
	defer p.removeUpload(log, upload.Path)

	log.Info("starting ingestion", "file", upload.Name, "format", upload.Format)

	rows, err := p.readRows(upload)
	if err != nil {
		p.fail(ctx, log, jobID, err)
		return
	}

	if err := p.jobs.MarkProcessing(ctx, jobID, len(rows)); err != nil {
		p.fail(ctx, log, jobID, fmt.Errorf("mark job processing: %w", err))
		return
	}

	reports, numbers, err := validateRows(rows)
	if err != nil {
		log.Warn("row validation failed", "error", err)
		p.fail(ctx, log, jobID, err)
		return
	}

	if err := p.persist(ctx, log, jobID, reports, numbers); err != nil {
		p.fail(ctx, log, jobID, err)
		return
	}

	if err := p.jobs.MarkSucceeded(ctx, jobID); err != nil {
		log.Error("failed to mark job succeeded", "error", err)
		return
	}
	log.Info("ingestion completed", "total", len(reports))
}

// readRows streams the upload, checks the header, and buffers every data
// row. Buffering gives an exact total before validation starts at the cost
// of holding the rows in memory.
func (p *Pipeline) readRows(upload Upload) ([]Row, error) {
	reader, err := OpenRowReader(upload)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	if err := validator.ValidateHeaders(reader.Header()); err != nil {
		return nil, err
	}

	var rows []Row
	for {
		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
}

// validateRows sanitizes and validates rows in file order, stopping at the
// first invalid one. Nothing is persisted when it fails.
func validateRows(rows []Row) ([]domain.Report, []int, error) {
	reports := make([]domain.Report, 0, len(rows))
	numbers := make([]int, 0, len(rows))
	for _, row := range rows {
		candidate := SanitizeRow(row)
		result := validator.ValidateReport(candidate)
		if !result.IsValid {
			return nil, nil, &validator.RowError{Row: row.Number, Result: result}
		}
		reports = append(reports, domain.Report{
			NGOID:           candidate.NGOID,
			Month:           candidate.Month,
			PeopleHelped:    *candidate.PeopleHelped,
			EventsConducted: *candidate.EventsConducted,
			FundsUtilized:   *candidate.FundsUtilized,
		})
		numbers = append(numbers, row.Number)
	}
	return reports, numbers, nil
}

// persist writes reports in order, one batch at a time, advancing the job's
// processed count after each batch. Batches committed before a failure stay
// committed.
func (p *Pipeline) persist(ctx context.Context, log *slog.Logger, jobID string, reports []domain.Report, numbers []int) error {
	processed := 0
	for start := 0; start < len(reports); start += p.batchSize {
		end := min(start+p.batchSize, len(reports))
		result, err := p.reports.UpsertBatch(ctx, reports[start:end])
		if err != nil {
			return fmt.Errorf("save rows %d-%d: %w", numbers[start], numbers[end-1], err)
		}

		processed += result.Upserted
		if err := p.jobs.UpdateProgress(ctx, jobID, processed); err != nil {
			return fmt.Errorf("update job progress: %w", err)
		}
		log.Debug("batch saved", "processed", processed, "total", len(reports))

		if len(result.Failures) > 0 {
			return newBatchError(result.Failures, numbers[start:end])
		}
	}
	return nil
}

func (p *Pipeline) fail(ctx context.Context, log *slog.Logger, jobID string, cause error) {
	message := truncateError(cause)
	if err := p.jobs.MarkFailed(ctx, jobID, message); err != nil {
		log.Error("failed to mark job failed", "error", err, "cause", cause)
		return
	}
	log.Error("ingestion failed", "error", cause)
}

func (p *Pipeline) removeUpload(log *slog.Logger, path string) {
	if path == "" {
		return
	}
	if err := p.remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Error("upload cleanup failed", "path", path, "error", err)
		return
	}
	log.Debug("upload removed", "path", path)
}

// BatchError lists rows of a batch the report store rejected while saving
// their siblings.
type BatchError struct {
	Rows   []int
	Causes []error
}

func newBatchError(failures []repository.BatchItemError, numbers []int) *BatchError {
	berr := &BatchError{}
	for _, f := range failures {
		row := 0
		if f.Index >= 0 && f.Index < len(numbers) {
			row = numbers[f.Index]
		}
		berr.Rows = append(berr.Rows, row)
		berr.Causes = append(berr.Causes, f.Err)
	}
	return berr
}

func (e *BatchError) Error() string {
	parts := make([]string, len(e.Rows))
	for i, row := range e.Rows {
		parts[i] = fmt.Sprintf("Row %d could not be saved: %v", row, e.Causes[i])
	}
	return strings.Join(parts, "; ")
}

func truncateError(err error) string {
	message := err.Error()
	if len(message) > maxErrorMessageLength {
		return strings.ToValidUTF8(message[:maxErrorMessageLength-3], "") + "..."
	}
	return message
}
