package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/ngoreports/internal/domain"
	"github.com/rpattn/ngoreports/internal/repository"
)

const jobColumns = `job_id, status, total, processed, error_message, file_name, created_at, updated_at`

type jobRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewJobRepository returns a job repository backed by db. The schema must
// already be migrated.
func NewJobRepository(db *sql.DB) repository.JobRepository {
	return &jobRepository{db: db, now: time.Now}
}

func (r *jobRepository) Create(ctx context.Context, job domain.Job) (domain.Job, error) {
	now := r.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()

	var errorMessage sql.NullString
	if job.ErrorMessage != nil {
		errorMessage = sql.NullString{String: *job.ErrorMessage, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ingestion_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.JobID,
		string(job.Status),
		job.Total,
		job.Processed,
		errorMessage,
		job.FileName,
		formatTime(job.CreatedAt),
		formatTime(job.UpdatedAt),
	)
	if err != nil {
		return domain.Job{}, fmt.Errorf("failed to create job: %w", err)
	}
	return r.GetByID(ctx, job.JobID)
}

func (r *jobRepository) GetByID(ctx context.Context, jobID string) (domain.Job, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM ingestion_jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Job{}, repository.ErrNotFound
		}
		return domain.Job{}, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (r *jobRepository) GetByIDs(ctx context.Context, jobIDs []string) ([]domain.Job, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(jobIDs))
	for i, id := range jobIDs {
		args[i] = id
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM ingestion_jobs WHERE job_id IN (`+placeholders(len(jobIDs))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get jobs: %w", err)
	}
	return collectJobs(rows)
}

func (r *jobRepository) List(ctx context.Context, statuses []domain.JobStatus, limit int, offset int) ([]domain.Job, error) {
	limit, offset = repository.NormalizePage(limit, offset)

	query := `SELECT ` + jobColumns + ` FROM ingestion_jobs`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY created_at DESC, job_id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return collectJobs(rows)
}

func (r *jobRepository) MarkProcessing(ctx context.Context, jobID string, total int) error {
	return r.transition(ctx, jobID, "mark job processing",
		`UPDATE ingestion_jobs SET status = 'processing', total = ?, updated_at = ?
		 WHERE job_id = ? AND status NOT IN ('success', 'failed')`,
		total, formatTime(r.now()), jobID,
	)
}

func (r *jobRepository) UpdateProgress(ctx context.Context, jobID string, processed int) error {
	return r.transition(ctx, jobID, "update job progress",
		`UPDATE ingestion_jobs SET processed = MAX(processed, ?), updated_at = ?
		 WHERE job_id = ? AND status NOT IN ('success', 'failed')`,
		processed, formatTime(r.now()), jobID,
	)
}

func (r *jobRepository) MarkSucceeded(ctx context.Context, jobID string) error {
	return r.transition(ctx, jobID, "mark job succeeded",
		`UPDATE ingestion_jobs SET status = 'success', error_message = NULL, updated_at = ?
		 WHERE job_id = ? AND status NOT IN ('success', 'failed')`,
		formatTime(r.now()), jobID,
	)
}

func (r *jobRepository) MarkFailed(ctx context.Context, jobID string, errorMessage string) error {
	return r.transition(ctx, jobID, "mark job failed",
		`UPDATE ingestion_jobs SET status = 'failed', error_message = ?, updated_at = ?
		 WHERE job_id = ? AND status NOT IN ('success', 'failed')`,
		errorMessage, formatTime(r.now()), jobID,
	)
}

func (r *jobRepository) transition(ctx context.Context, jobID string, action string, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if affected > 0 {
		return nil
	}

	var exists int
	err = r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM ingestion_jobs WHERE job_id = ?`, jobID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if exists == 0 {
		return repository.ErrNotFound
	}
	return repository.ErrJobStatusConflict
}

func collectJobs(rows *sql.Rows) ([]domain.Job, error) {
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate jobs: %w", err)
	}
	return jobs, nil
}

func scanJob(row scanner) (domain.Job, error) {
	var (
		job          domain.Job
		status       string
		errorMessage sql.NullString
		createdAt    string
		updatedAt    string
	)
	if err := row.Scan(
		&job.JobID,
		&status,
		&job.Total,
		&job.Processed,
		&errorMessage,
		&job.FileName,
		&createdAt,
		&updatedAt,
	); err != nil {
		return domain.Job{}, err
	}

	job.Status = domain.JobStatus(status)
	if errorMessage.Valid {
		msg := errorMessage.String
		job.ErrorMessage = &msg
	}
	var err error
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.Job{}, err
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}
