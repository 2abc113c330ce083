package repository

import (
	"context"
	"errors"

	"github.com/rpattn/ngoreports/internal/domain"
)

var (
	// ErrNotFound is returned when a job or report does not exist.
	ErrNotFound = errors.New("not found")
	// ErrJobStatusConflict is returned when a job update targets a job that
	// is already in a terminal state.
	ErrJobStatusConflict = errors.New("job is already in a terminal state")
)

// JobRepository stores ingestion job records. Mutating calls never modify a
// job whose status is terminal; they return ErrJobStatusConflict instead.
type JobRepository interface {
	Create(ctx context.Context, job domain.Job) (domain.Job, error)
	GetByID(ctx context.Context, jobID string) (domain.Job, error)
	GetByIDs(ctx context.Context, jobIDs []string) ([]domain.Job, error)
	List(ctx context.Context, statuses []domain.JobStatus, limit int, offset int) ([]domain.Job, error)

	MarkProcessing(ctx context.Context, jobID string, total int) error
	// UpdateProgress raises the processed count; it never lowers it.
	UpdateProgress(ctx context.Context, jobID string, processed int) error
	MarkSucceeded(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, errorMessage string) error
}

// ReportRepository stores reports keyed by (ngo_id, month).
type ReportRepository interface {
	Upsert(ctx context.Context, report domain.Report) (domain.Report, error)
	// UpsertBatch applies the reports without ordering guarantees between
	// them. Reports sharing a key collapse to the last one. A report that
	// cannot be written is listed in Failures and does not stop the others.
	// A returned error means the batch as a whole could not be applied.
	UpsertBatch(ctx context.Context, reports []domain.Report) (BatchUpsertResult, error)
	GetByKey(ctx context.Context, ngoID string, month string) (domain.Report, error)
	ListByMonth(ctx context.Context, month string, limit int, offset int) ([]domain.Report, error)
	MonthlySummary(ctx context.Context, month string) (domain.MonthlySummary, error)
}

// BatchItemError describes one report a batch upsert could not write.
// Index points into the slice passed to UpsertBatch.
type BatchItemError struct {
	Index int
	Key   domain.ReportKey
	Err   error
}

// BatchUpsertResult returns the outcome of a batch upsert. Upserted counts
// input reports whose key was written.
type BatchUpsertResult struct {
	Upserted int
	Failures []BatchItemError
}

// NewBatchUpsertResult builds the result for a batch given the keys that
// failed. Each failed key is reported once, at its last input position.
func NewBatchUpsertResult(reports []domain.Report, failed map[domain.ReportKey]error) BatchUpsertResult {
	result := BatchUpsertResult{}
	last := make(map[domain.ReportKey]int, len(failed))
	for i, r := range reports {
		if _, ok := failed[r.Key()]; ok {
			last[r.Key()] = i
			continue
		}
		result.Upserted++
	}
	for i, r := range reports {
		if idx, ok := last[r.Key()]; ok && idx == i {
			result.Failures = append(result.Failures, BatchItemError{Index: i, Key: r.Key(), Err: failed[r.Key()]})
		}
	}
	return result
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// NormalizePage clamps list paging arguments.
func NormalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
