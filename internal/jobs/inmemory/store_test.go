package inmemory_test

import (
	"context"
	"testing"
	"time"

	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/jobs/inmemory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_SaveKeepsCopy(t *testing.T) {
	s := inmemory.NewStore(0)
	ctx := context.Background()

	err := s.SaveJob(ctx, &jobs.ProcessUploadJob{})
	assert.Error(t, err)

	job := &jobs.ProcessUploadJob{JobID: "job-1", UploadID: uuid.New(), Status: jobs.JobStatusPending}
	require.NoError(t, s.SaveJob(ctx, job))

	job.Status = jobs.JobStatusRunning
	stored, err := s.ListJobs(ctx, jobs.JobFilter{UploadID: job.UploadID})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, jobs.JobStatusPending, stored[0].Status)

	require.NoError(t, s.SaveJob(ctx, job))
	stored, err = s.ListJobs(ctx, jobs.JobFilter{})
	require.NoError(t, err)
	require.Len(t, stored, 1, "saving the same ID again replaces the job")
	assert.Equal(t, jobs.JobStatusRunning, stored[0].Status)
}

func TestStore_ListJobsFiltersAndPages(t *testing.T) {
	s := inmemory.NewStore(0)
	ctx := context.Background()
	target := uuid.New()
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveJob(ctx, &jobs.ProcessUploadJob{JobID: "a", UploadID: target, Status: jobs.JobStatusFailed, CreatedAt: base}))
	require.NoError(t, s.SaveJob(ctx, &jobs.ProcessUploadJob{JobID: "b", UploadID: target, Status: jobs.JobStatusCompleted, CreatedAt: base.Add(time.Minute)}))
	require.NoError(t, s.SaveJob(ctx, &jobs.ProcessUploadJob{JobID: "c", UploadID: uuid.New(), Status: jobs.JobStatusCompleted, CreatedAt: base.Add(2 * time.Minute)}))

	byUpload, err := s.ListJobs(ctx, jobs.JobFilter{UploadID: target})
	require.NoError(t, err)
	require.Len(t, byUpload, 2)
	assert.Equal(t, "a", byUpload[0].JobID)
	assert.Equal(t, "b", byUpload[1].JobID)

	completed, err := s.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusCompleted, Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "c", completed[0].JobID)

	empty, err := s.ListJobs(ctx, jobs.JobFilter{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_DropsOldestFinishedJobs(t *testing.T) {
	s := inmemory.NewStore(2)
	ctx := context.Background()
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	save := func(id string, status jobs.JobStatus, offset time.Duration) {
		require.NoError(t, s.SaveJob(ctx, &jobs.ProcessUploadJob{JobID: id, UploadID: uuid.New(), Status: status, CreatedAt: base.Add(offset)}))
	}
	save("running", jobs.JobStatusRunning, 0)
	save("done-1", jobs.JobStatusCompleted, time.Minute)
	save("failed-2", jobs.JobStatusFailed, 2*time.Minute)
	save("done-3", jobs.JobStatusCompleted, 3*time.Minute)

	all, err := s.ListJobs(ctx, jobs.JobFilter{})
	require.NoError(t, err)
	ids := make([]string, len(all))
	for i, j := range all {
		ids[i] = j.JobID
	}
	assert.Equal(t, []string{"running", "failed-2", "done-3"}, ids)
}
