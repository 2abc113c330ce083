package ingestion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rpattn/ngoreports/internal/domain"
	"github.com/rpattn/ngoreports/internal/repository"
)

// stubJobRepo is an in-memory JobRepository that records every progress
// value written, so tests can assert on the sequence a poller would see.
type stubJobRepo struct {
	mu        sync.Mutex
	jobs      map[string]domain.Job
	progress  map[string][]int
	createErr error
}

func newStubJobRepo() *stubJobRepo {
	return &stubJobRepo{jobs: map[string]domain.Job{}, progress: map[string][]int{}}
}

func (r *stubJobRepo) Create(_ context.Context, job domain.Job) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return domain.Job{}, r.createErr
	}
	r.jobs[job.JobID] = job
	return job, nil
}

func (r *stubJobRepo) GetByID(_ context.Context, jobID string) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return domain.Job{}, repository.ErrNotFound
	}
	return job, nil
}

func (r *stubJobRepo) GetByIDs(_ context.Context, jobIDs []string) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Job
	for _, id := range jobIDs {
		if job, ok := r.jobs[id]; ok {
			out = append(out, job)
		}
	}
	return out, nil
}

func (r *stubJobRepo) List(_ context.Context, statuses []domain.JobStatus, limit int, offset int) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	limit, offset = repository.NormalizePage(limit, offset)
	wanted := map[domain.JobStatus]bool{}
	for _, s := range statuses {
		wanted[s] = true
	}
	var out []domain.Job
	for _, job := range r.jobs {
		if len(wanted) == 0 || wanted[job.Status] {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *stubJobRepo) update(jobID string, mutate func(job *domain.Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return repository.ErrNotFound
	}
	if job.Status.IsTerminal() {
		return repository.ErrJobStatusConflict
	}
	mutate(&job)
	job.UpdatedAt = time.Now().UTC()
	r.jobs[jobID] = job
	return nil
}

func (r *stubJobRepo) MarkProcessing(_ context.Context, jobID string, total int) error {
	return r.update(jobID, func(job *domain.Job) {
		job.Status = domain.JobStatusProcessing
		job.Total = total
	})
}

func (r *stubJobRepo) UpdateProgress(_ context.Context, jobID string, processed int) error {
	return r.update(jobID, func(job *domain.Job) {
		job.Processed = max(job.Processed, processed)
		r.progress[jobID] = append(r.progress[jobID], job.Processed)
	})
}

func (r *stubJobRepo) MarkSucceeded(_ context.Context, jobID string) error {
	return r.update(jobID, func(job *domain.Job) {
		job.Status = domain.JobStatusSuccess
	})
}

func (r *stubJobRepo) MarkFailed(_ context.Context, jobID string, errorMessage string) error {
	return r.update(jobID, func(job *domain.Job) {
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = &errorMessage
	})
}

func (r *stubJobRepo) get(t *testing.T, jobID string) domain.Job {
	t.Helper()
	job, err := r.GetByID(context.Background(), jobID)
	if err != nil {
		t.Fatalf("job %s: %v", jobID, err)
	}
	return job
}

// stubReportRepo is an in-memory ReportRepository. failOnBatch makes the
// n-th UpsertBatch call (1-based) return an error; rejectNGO makes every
// report of that NGO a per-item failure.
type stubReportRepo struct {
	mu          sync.Mutex
	reports     map[domain.ReportKey]domain.Report
	batches     int
	failOnBatch int
	rejectNGO   string
}

func newStubReportRepo() *stubReportRepo {
	return &stubReportRepo{reports: map[domain.ReportKey]domain.Report{}}
}

func (r *stubReportRepo) Upsert(_ context.Context, report domain.Report) (domain.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[report.Key()] = report
	return report, nil
}

func (r *stubReportRepo) UpsertBatch(_ context.Context, reports []domain.Report) (repository.BatchUpsertResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches++
	if r.failOnBatch > 0 && r.batches == r.failOnBatch {
		return repository.BatchUpsertResult{}, errors.New("connection reset")
	}
	failed := map[domain.ReportKey]error{}
	for _, rep := range domain.DedupeReports(reports) {
		if rep.NGOID == r.rejectNGO {
			failed[rep.Key()] = errors.New("check constraint violated")
			continue
		}
		r.reports[rep.Key()] = rep
	}
	return repository.NewBatchUpsertResult(reports, failed), nil
}

func (r *stubReportRepo) GetByKey(_ context.Context, ngoID string, month string) (domain.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.reports[domain.ReportKey{NGOID: ngoID, Month: month}]
	if !ok {
		return domain.Report{}, repository.ErrNotFound
	}
	return rep, nil
}

func (r *stubReportRepo) ListByMonth(_ context.Context, month string, _ int, _ int) ([]domain.Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Report
	for _, rep := range r.reports {
		if rep.Month == month {
			out = append(out, rep)
		}
	}
	return out, nil
}

func (r *stubReportRepo) MonthlySummary(_ context.Context, month string) (domain.MonthlySummary, error) {
	return domain.MonthlySummary{Month: month}, nil
}

func (r *stubReportRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

// writeUpload writes content to a file named name in a fresh directory.
func writeUpload(t *testing.T, name string, content string) Upload {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write upload: %v", err)
	}
	format, err := FormatFromFileName(name)
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	return Upload{Path: path, Format: format, Name: name}
}

func assertRemoved(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected upload %s to be removed, stat err = %v", path, err)
	}
}
