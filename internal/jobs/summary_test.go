package jobs_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/jobs/inmemory"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedJobs(t *testing.T) (*inmemory.Store, uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	store := inmemory.NewStore(0)
	failedUpload := uuid.New()

	for i, status := range []jobs.JobStatus{
		jobs.JobStatusPending, jobs.JobStatusRunning,
		jobs.JobStatusCompleted, jobs.JobStatusCompleted,
	} {
		job := &jobs.ProcessUploadJob{JobID: string(rune('a' + i)), UploadID: uuid.New(), Status: status}
		require.NoError(t, store.SaveJob(ctx, job))
	}
	require.NoError(t, store.SaveJob(ctx, &jobs.ProcessUploadJob{
		JobID: "f", UploadID: failedUpload, Status: jobs.JobStatusFailed, Error: "storage unavailable",
	}))
	return store, failedUpload
}

func TestSummarize(t *testing.T) {
	store, failedUpload := seedJobs(t)

	s, err := jobs.Summarize(context.Background(), store)
	require.NoError(t, err)

	assert.Equal(t, 1, s.Pending)
	assert.Equal(t, 1, s.Running)
	assert.Equal(t, 2, s.Completed)
	require.Len(t, s.Failed, 1)
	assert.Equal(t, failedUpload, s.Failed[0].UploadID)
}

func TestLogSummary(t *testing.T) {
	store, failedUpload := seedJobs(t)
	var buf bytes.Buffer
	ctx := logger.WithContext(context.Background(), zerolog.New(&buf))

	jobs.LogSummary(ctx, store)

	out := buf.String()
	assert.Contains(t, out, `"message":"Job failed"`)
	assert.Contains(t, out, failedUpload.String())
	assert.Contains(t, out, `"error":"storage unavailable"`)
	assert.Contains(t, out, `"completed":2`)
	assert.Contains(t, out, `"failed":1`)
}
