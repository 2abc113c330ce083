package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/rpattn/ngoreports/internal/db"
	"github.com/rpattn/ngoreports/internal/domain"
	"github.com/rpattn/ngoreports/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.OpenSQLite(filepath.Join(t.TempDir(), "ngo.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.RunSQLiteMigrations(conn))
	return conn
}

func TestJobRepository(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(openTestDB(t))

	created, err := jobs.Create(ctx, domain.NewJob("reports.csv", time.Now()))
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusPending, created.Status)
	assert.Equal(t, "reports.csv", created.FileName)
	assert.Nil(t, created.ErrorMessage)

	require.NoError(t, jobs.MarkProcessing(ctx, created.JobID, 250))
	require.NoError(t, jobs.UpdateProgress(ctx, created.JobID, 200))
	require.NoError(t, jobs.UpdateProgress(ctx, created.JobID, 100))

	got, err := jobs.GetByID(ctx, created.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusProcessing, got.Status)
	assert.Equal(t, 250, got.Total)
	assert.Equal(t, 200, got.Processed)

	require.NoError(t, jobs.MarkFailed(ctx, created.JobID, "Missing required columns: funds_utilized"))
	assert.ErrorIs(t, jobs.MarkSucceeded(ctx, created.JobID), repository.ErrJobStatusConflict)
	assert.ErrorIs(t, jobs.MarkProcessing(ctx, created.JobID, 1), repository.ErrJobStatusConflict)

	got, err = jobs.GetByID(ctx, created.JobID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, got.Status)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "Missing required columns: funds_utilized", *got.ErrorMessage)

	_, err = jobs.GetByID(ctx, "JOB_missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, jobs.UpdateProgress(ctx, "JOB_missing", 1), repository.ErrNotFound)
}

func TestJobRepositoryList(t *testing.T) {
	ctx := context.Background()
	jobs := NewJobRepository(openTestDB(t))

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		job, err := jobs.Create(ctx, domain.NewJob("reports.csv", base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
		ids = append(ids, job.JobID)
	}
	require.NoError(t, jobs.MarkProcessing(ctx, ids[1], 10))

	all, err := jobs.List(ctx, nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].JobID, "newest first")

	processing, err := jobs.List(ctx, []domain.JobStatus{domain.JobStatusProcessing}, 10, 0)
	require.NoError(t, err)
	require.Len(t, processing, 1)
	assert.Equal(t, ids[1], processing[0].JobID)

	page, err := jobs.List(ctx, nil, 1, 1)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, ids[1], page[0].JobID)

	byID, err := jobs.GetByIDs(ctx, []string{ids[0], "JOB_missing", ids[2]})
	require.NoError(t, err)
	assert.Len(t, byID, 2)
}

func TestReportRepository(t *testing.T) {
	ctx := context.Background()
	reports := NewReportRepository(openTestDB(t))

	saved, err := reports.Upsert(ctx, domain.Report{NGOID: "NGO001", Month: "2025-01", PeopleHelped: 5})
	require.NoError(t, err)
	assert.Equal(t, int64(5), saved.PeopleHelped)
	assert.False(t, saved.CreatedAt.IsZero())

	result, err := reports.UpsertBatch(ctx, []domain.Report{
		{NGOID: "NGO001", Month: "2025-01", PeopleHelped: 10, EventsConducted: 1, FundsUtilized: 100},
		{NGOID: "NGO002", Month: "2025-01", PeopleHelped: 20, EventsConducted: 2, FundsUtilized: 200},
		{NGOID: "NGO003", Month: "2025-01", PeopleHelped: -1},
		{NGOID: "NGO002", Month: "2025-01", PeopleHelped: 25, EventsConducted: 2, FundsUtilized: 250},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Upserted)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 2, result.Failures[0].Index)
	assert.Equal(t, "NGO003", result.Failures[0].Key.NGOID)

	got, err := reports.GetByKey(ctx, "NGO002", "2025-01")
	require.NoError(t, err)
	assert.Equal(t, int64(25), got.PeopleHelped)

	_, err = reports.GetByKey(ctx, "NGO003", "2025-01")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	list, err := reports.ListByMonth(ctx, "2025-01", 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "NGO001", list[0].NGOID)

	summary, err := reports.MonthlySummary(ctx, "2025-01")
	require.NoError(t, err)
	assert.Equal(t, domain.MonthlySummary{
		Month:                "2025-01",
		TotalNGOsReporting:   2,
		TotalPeopleHelped:    35,
		TotalEventsConducted: 3,
		TotalFundsUtilized:   350,
	}, summary)

	empty, err := reports.MonthlySummary(ctx, "2024-12")
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
}
