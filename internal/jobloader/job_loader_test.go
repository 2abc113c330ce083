package jobloader

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rpattn/ngoreports/internal/domain"
	"github.com/rpattn/ngoreports/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRepo struct {
	repository.JobRepository

	mu    sync.Mutex
	calls int
	jobs  map[string]domain.Job
	err   error
}

func (r *countingRepo) GetByIDs(_ context.Context, ids []string) ([]domain.Job, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	var out []domain.Job
	for _, id := range ids {
		if job, ok := r.jobs[id]; ok {
			out = append(out, job)
		}
	}
	return out, nil
}

func newRepo(ids ...string) *countingRepo {
	repo := &countingRepo{jobs: map[string]domain.Job{}}
	for _, id := range ids {
		repo.jobs[id] = domain.Job{JobID: id, Status: domain.JobStatusPending}
	}
	return repo
}

func TestLoadConcurrentLookups(t *testing.T) {
	repo := newRepo("a", "b")
	loader := NewJobLoader(repo)

	var wg sync.WaitGroup
	results := make([]domain.Job, 2)
	for i, id := range []string{"a", "b"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			job, err := loader.Load(context.Background(), id)
			assert.NoError(t, err)
			results[i] = job
		}(i, id)
	}
	wg.Wait()

	assert.Equal(t, "a", results[0].JobID)
	assert.Equal(t, "b", results[1].JobID)
}

func TestLoadMissingJob(t *testing.T) {
	loader := NewJobLoader(newRepo())
	_, err := loader.Load(context.Background(), "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLoadManySkipsUnknownAndKeepsOrder(t *testing.T) {
	repo := newRepo("a", "c")
	loader := NewJobLoader(repo)
	jobs, err := loader.LoadMany(context.Background(), []string{"c", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "c", jobs[0].JobID)
	assert.Equal(t, "a", jobs[1].JobID)
	assert.Equal(t, 1, repo.calls)
}

func TestLoadManyPropagatesStoreErrors(t *testing.T) {
	repo := newRepo()
	repo.err = errors.New("store down")
	_, err := NewJobLoader(repo).LoadMany(context.Background(), []string{"a"})
	assert.EqualError(t, err, "store down")
}
