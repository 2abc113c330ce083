package redisjob

import (
	"context"
	"testing"
	"time"

	"github.com/rpattn/ngoreports/internal/domain"
	"github.com/rpattn/ngoreports/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, opts...), mr
}

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	job, err := store.Create(ctx, domain.NewJob("reports.csv", time.Now()))
	require.NoError(t, err)

	got, err := store.GetByID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, got.Status)
	assert.Equal(t, "reports.csv", got.FileName)
	assert.Nil(t, got.ErrorMessage)

	require.NoError(t, store.MarkProcessing(ctx, job.JobID, 250))
	require.NoError(t, store.UpdateProgress(ctx, job.JobID, 200))
	require.NoError(t, store.UpdateProgress(ctx, job.JobID, 100))

	got, err = store.GetByID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, got.Status)
	assert.Equal(t, 250, got.Total)
	assert.Equal(t, 200, got.Processed)

	require.NoError(t, store.MarkFailed(ctx, job.JobID, "Row 6 validation failed: people_helped - must be an integer"))
	assert.ErrorIs(t, store.MarkSucceeded(ctx, job.JobID), repository.ErrJobStatusConflict)
	assert.ErrorIs(t, store.UpdateProgress(ctx, job.JobID, 250), repository.ErrJobStatusConflict)

	got, err = store.GetByID(ctx, job.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Contains(t, *got.ErrorMessage, "Row 6")

	_, err = store.GetByID(ctx, "JOB_missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, store.MarkProcessing(ctx, "JOB_missing", 1), repository.ErrNotFound)
}

func TestStoreListAndExpiry(t *testing.T) {
	ctx := context.Background()
	store, mr := newTestStore(t, WithTTL(time.Hour), WithPrefix("test:"))

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		job, err := store.Create(ctx, domain.NewJob("reports.csv", base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
		ids = append(ids, job.JobID)
	}
	require.NoError(t, store.MarkProcessing(ctx, ids[0], 5))

	all, err := store.List(ctx, nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].JobID)

	processing, err := store.List(ctx, []domain.JobStatus{domain.JobStatusProcessing}, 10, 0)
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, ids[0], processing[0].JobID)

	page, err := store.List(ctx, nil, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].JobID)

	assert.True(t, mr.Exists("test:job:"+ids[0]))
	mr.FastForward(2 * time.Hour)

	all, err = store.List(ctx, nil, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, all)

	members, err := mr.ZMembers("test:jobs")
	if err == nil {
		assert.Empty(t, members)
	}
}
