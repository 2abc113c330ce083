package jobloader

import (
	"context"
	"errors"
	"time"

	"github.com/rpattn/ngoreports/internal/domain"
	"github.com/rpattn/ngoreports/internal/repository"

	"github.com/graph-gophers/dataloader"
)

// JobLoader batches job lookups issued while serving one request.
type JobLoader struct {
	Loader *dataloader.Loader
}

func NewJobLoader(repo repository.JobRepository) *JobLoader {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		ids := keys.Keys()

		jobs, err := repo.GetByIDs(ctx, ids)
		if err != nil {
			results := make([]*dataloader.Result, len(keys))
			for i := range results {
				results[i] = &dataloader.Result{Error: err}
			}
			return results
		}

		jobMap := make(map[string]domain.Job, len(jobs))
		for _, j := range jobs {
			jobMap[j.JobID] = j
		}

		// Results must line up with keys
		results := make([]*dataloader.Result, len(keys))
		for i, id := range ids {
			if j, ok := jobMap[id]; ok {
				results[i] = &dataloader.Result{Data: j}
			} else {
				results[i] = &dataloader.Result{Error: repository.ErrNotFound}
			}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn, dataloader.WithWait(5*time.Millisecond))

	return &JobLoader{Loader: loader}
}

// Load returns one job, or repository.ErrNotFound.
func (l *JobLoader) Load(ctx context.Context, jobID string) (domain.Job, error) {
	data, err := l.Loader.Load(ctx, dataloader.StringKey(jobID))()
	if err != nil {
		return domain.Job{}, err
	}
	return data.(domain.Job), nil
}

// LoadMany returns the jobs that exist, in the order requested. Unknown ids
// are skipped.
func (l *JobLoader) LoadMany(ctx context.Context, jobIDs []string) ([]domain.Job, error) {
	data, errs := l.Loader.LoadMany(ctx, dataloader.NewKeysFromStrings(jobIDs))()

	jobs := make([]domain.Job, 0, len(jobIDs))
	for i := range jobIDs {
		if i < len(errs) && errs[i] != nil {
			if errors.Is(errs[i], repository.ErrNotFound) {
				continue
			}
			return nil, errs[i]
		}
		if job, ok := data[i].(domain.Job); ok {
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}
