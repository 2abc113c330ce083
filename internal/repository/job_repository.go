package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rpattn/ngoreports/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `job_id, status, total, processed, error_message, file_name, created_at, updated_at`

type jobRepository struct {
	pool *pgxpool.Pool
}

// NewJobRepository wires a job repository backed by pgxpool.
func NewJobRepository(pool *pgxpool.Pool) JobRepository {
	return &jobRepository{pool: pool}
}

func (r *jobRepository) Create(ctx context.Context, job domain.Job) (domain.Job, error) {
	row := r.pool.QueryRow(
		ctx,
		`INSERT INTO ingestion_jobs (job_id, status, total, processed, error_message, file_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+jobColumns,
		job.JobID,
		string(job.Status),
		job.Total,
		job.Processed,
		job.ErrorMessage,
		job.FileName,
		job.CreatedAt,
		job.UpdatedAt,
	)
	created, err := scanJob(row)
	if err != nil {
		return domain.Job{}, fmt.Errorf("failed to create job: %w", err)
	}
	return created, nil
}

func (r *jobRepository) GetByID(ctx context.Context, jobID string) (domain.Job, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM ingestion_jobs WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Job{}, ErrNotFound
		}
		return domain.Job{}, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

func (r *jobRepository) GetByIDs(ctx context.Context, jobIDs []string) ([]domain.Job, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx, `SELECT `+jobColumns+` FROM ingestion_jobs WHERE job_id = ANY($1)`, jobIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get jobs: %w", err)
	}
	return collectJobs(rows)
}

func (r *jobRepository) List(ctx context.Context, statuses []domain.JobStatus, limit int, offset int) ([]domain.Job, error) {
	limit, offset = NormalizePage(limit, offset)

	var filter []string
	for _, s := range statuses {
		filter = append(filter, string(s))
	}

	rows, err := r.pool.Query(
		ctx,
		`SELECT `+jobColumns+`
		 FROM ingestion_jobs
		 WHERE ($1::text[] IS NULL OR status = ANY($1))
		 ORDER BY created_at DESC, job_id
		 LIMIT $2 OFFSET $3`,
		filter,
		limit,
		offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return collectJobs(rows)
}

func (r *jobRepository) MarkProcessing(ctx context.Context, jobID string, total int) error {
	return r.transition(ctx, jobID, "mark job processing",
		`UPDATE ingestion_jobs
		 SET status = 'processing', total = $2, updated_at = NOW()
		 WHERE job_id = $1 AND status NOT IN ('success', 'failed')`,
		total,
	)
}

func (r *jobRepository) UpdateProgress(ctx context.Context, jobID string, processed int) error {
	return r.transition(ctx, jobID, "update job progress",
		`UPDATE ingestion_jobs
		 SET processed = GREATEST(processed, $2), updated_at = NOW()
		 WHERE job_id = $1 AND status NOT IN ('success', 'failed')`,
		processed,
	)
}

func (r *jobRepository) MarkSucceeded(ctx context.Context, jobID string) error {
	return r.transition(ctx, jobID, "mark job succeeded",
		`UPDATE ingestion_jobs
		 SET status = 'success', error_message = NULL, updated_at = NOW()
		 WHERE job_id = $1 AND status NOT IN ('success', 'failed')`,
	)
}

func (r *jobRepository) MarkFailed(ctx context.Context, jobID string, errorMessage string) error {
	return r.transition(ctx, jobID, "mark job failed",
		`UPDATE ingestion_jobs
		 SET status = 'failed', error_message = $2, updated_at = NOW()
		 WHERE job_id = $1 AND status NOT IN ('success', 'failed')`,
		errorMessage,
	)
}

// transition runs a guarded update and maps "no row touched" onto
// ErrNotFound or ErrJobStatusConflict.
func (r *jobRepository) transition(ctx context.Context, jobID string, action string, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, append([]any{jobID}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ingestion_jobs WHERE job_id = $1)`, jobID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrJobStatusConflict
}

func collectJobs(rows pgx.Rows) ([]domain.Job, error) {
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

func scanJob(row pgx.Row) (domain.Job, error) {
	var (
		job          domain.Job
		status       string
		errorMessage pgtype.Text
		createdAt    pgtype.Timestamptz
		updatedAt    pgtype.Timestamptz
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
	if createdAt.Valid {
		job.CreatedAt = createdAt.Time.UTC()
	}
	if updatedAt.Valid {
		job.UpdatedAt = updatedAt.Time.UTC()
	}
	return job, nil
}
