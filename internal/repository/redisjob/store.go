// Package redisjob keeps ingestion job records in Redis. Jobs are stored as
// hashes that expire after a retention period; a sorted set indexes them by
// creation time for listing.
package redisjob

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rpattn/ngoreports/internal/domain"
	"github.com/rpattn/ngoreports/internal/repository"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a job record is kept after its last update.
	DefaultTTL = 7 * 24 * time.Hour

	defaultPrefix = "ngo:"
	maxTxRetries  = 10
)

// Store is a repository.JobRepository on Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

type Option func(*Store)

// WithTTL overrides the retention period of job records.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithPrefix namespaces every key written by the store.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// New returns a job store using client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client: client,
		prefix: defaultPrefix,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ repository.JobRepository = (*Store)(nil)

func (s *Store) jobKey(jobID string) string {
	return s.prefix + "job:" + jobID
}

func (s *Store) indexKey() string {
	return s.prefix + "jobs"
}

func (s *Store) Create(ctx context.Context, job domain.Job) (domain.Job, error) {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	if job.UpdatedAt.IsZero() {
		job.UpdatedAt = job.CreatedAt
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()

	key := s.jobKey(job.JobID)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, encodeJob(job))
		if job.ErrorMessage != nil {
			pipe.HSet(ctx, key, "error_message", *job.ErrorMessage)
		}
		pipe.Expire(ctx, key, s.ttl)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(job.CreatedAt.UnixMilli()), Member: job.JobID})
		return nil
	})
	if err != nil {
		return domain.Job{}, fmt.Errorf("failed to create job: %w", err)
	}
	return job, nil
}

func (s *Store) GetByID(ctx context.Context, jobID string) (domain.Job, error) {
	fields, err := s.client.HGetAll(ctx, s.jobKey(jobID)).Result()
	if err != nil {
		return domain.Job{}, fmt.Errorf("failed to get job: %w", err)
	}
	if len(fields) == 0 {
		return domain.Job{}, repository.ErrNotFound
	}
	return decodeJob(fields)
}

func (s *Store) GetByIDs(ctx context.Context, jobIDs []string) ([]domain.Job, error) {
	if len(jobIDs) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.MapStringStringCmd, len(jobIDs))
	_, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range jobIDs {
			cmds[i] = pipe.HGetAll(ctx, s.jobKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get jobs: %w", err)
	}

	var jobs []domain.Job
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		job, err := decodeJob(fields)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// List walks the creation index newest first. Index entries whose hash has
// expired are pruned on the way.
func (s *Store) List(ctx context.Context, statuses []domain.JobStatus, limit int, offset int) ([]domain.Job, error) {
	limit, offset = repository.NormalizePage(limit, offset)

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	all, err := s.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	if len(all) < len(ids) {
		live := make(map[string]struct{}, len(all))
		for _, job := range all {
			live[job.JobID] = struct{}{}
		}
		var stale []any
		for _, id := range ids {
			if _, ok := live[id]; !ok {
				stale = append(stale, id)
			}
		}
		if err := s.client.ZRem(ctx, s.indexKey(), stale...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune job index: %w", err)
		}
	}

	wanted := make(map[domain.JobStatus]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}

	var jobs []domain.Job
	skipped := 0
	for _, job := range all {
		if len(wanted) > 0 && !wanted[job.Status] {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		jobs = append(jobs, job)
		if len(jobs) == limit {
			break
		}
	}
	return jobs, nil
}

func (s *Store) MarkProcessing(ctx context.Context, jobID string, total int) error {
	return s.update(ctx, jobID, func(job *domain.Job) {
		job.Status = domain.JobStatusProcessing
		job.Total = total
	})
}

func (s *Store) UpdateProgress(ctx context.Context, jobID string, processed int) error {
	return s.update(ctx, jobID, func(job *domain.Job) {
		job.Processed = max(job.Processed, processed)
	})
}

func (s *Store) MarkSucceeded(ctx context.Context, jobID string) error {
	return s.update(ctx, jobID, func(job *domain.Job) {
		job.Status = domain.JobStatusSuccess
		job.ErrorMessage = nil
	})
}

func (s *Store) MarkFailed(ctx context.Context, jobID string, errorMessage string) error {
	return s.update(ctx, jobID, func(job *domain.Job) {
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = &errorMessage
	})
}

// update applies mutate under WATCH so a job that turned terminal between
// the read and the write is never modified.
func (s *Store) update(ctx context.Context, jobID string, mutate func(job *domain.Job)) error {
	key := s.jobKey(jobID)
	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return repository.ErrNotFound
		}
		job, err := decodeJob(fields)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return repository.ErrJobStatusConflict
		}

		mutate(&job)
		job.UpdatedAt = s.now().UTC()

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, encodeJob(job))
			if job.ErrorMessage != nil {
				pipe.HSet(ctx, key, "error_message", *job.ErrorMessage)
			} else {
				pipe.HDel(ctx, key, "error_message")
			}
			pipe.Expire(ctx, key, s.ttl)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) && !errors.Is(err, repository.ErrJobStatusConflict) {
			return fmt.Errorf("failed to update job %s: %w", jobID, err)
		}
		return err
	}
	return fmt.Errorf("failed to update job %s: too many concurrent writers", jobID)
}

func encodeJob(job domain.Job) map[string]any {
	return map[string]any{
		"job_id":     job.JobID,
		"status":     string(job.Status),
		"total":      job.Total,
		"processed":  job.Processed,
		"file_name":  job.FileName,
		"created_at": job.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": job.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func decodeJob(fields map[string]string) (domain.Job, error) {
	job := domain.Job{
		JobID:    fields["job_id"],
		Status:   domain.JobStatus(fields["status"]),
		FileName: fields["file_name"],
	}
	var err error
	if job.Total, err = strconv.Atoi(fields["total"]); err != nil {
		return domain.Job{}, fmt.Errorf("decode job %s total: %w", job.JobID, err)
	}
	if job.Processed, err = strconv.Atoi(fields["processed"]); err != nil {
		return domain.Job{}, fmt.Errorf("decode job %s processed: %w", job.JobID, err)
	}
	if msg, ok := fields["error_message"]; ok {
		job.ErrorMessage = &msg
	}
	if job.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return domain.Job{}, fmt.Errorf("decode job %s created_at: %w", job.JobID, err)
	}
	if job.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields["updated_at"]); err != nil {
		return domain.Job{}, fmt.Errorf("decode job %s updated_at: %w", job.JobID, err)
	}
	return job, nil
}
