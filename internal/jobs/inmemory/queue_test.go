package inmemory_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/jobs/inmemory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_ProcessesEachJobOnce(t *testing.T) {
	store := inmemory.NewStore(0)
	q := inmemory.NewQueue(10, 3, store)

	var mu sync.Mutex
	seen := make(map[uuid.UUID]int)
	var wg sync.WaitGroup
	wg.Add(5)

	ctx := context.Background()
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		defer wg.Done()
		j := job.(*jobs.ProcessUploadJob)
		mu.Lock()
		seen[j.UploadID]++
		mu.Unlock()
		return nil
	}))

	ids := make([]uuid.UUID, 5)
	for i := range ids {
		ids[i] = uuid.New()
		require.NoError(t, q.PublishProcessUpload(ctx, &jobs.ProcessUploadJob{UploadID: ids[i]}))
	}
	wg.Wait()
	require.NoError(t, q.Stop(ctx))

	for _, id := range ids {
		assert.Equal(t, 1, seen[id])
	}

	completed, err := store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusCompleted})
	require.NoError(t, err)
	assert.Len(t, completed, 5)
}

func TestQueue_DeduplicatesQueuedUpload(t *testing.T) {
	q := inmemory.NewQueue(10, 1, nil)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, q.PublishProcessUpload(ctx, &jobs.ProcessUploadJob{UploadID: id}))
	err := q.PublishProcessUpload(ctx, &jobs.ProcessUploadJob{UploadID: id})
	assert.ErrorIs(t, err, jobs.ErrAlreadyQueued)
	assert.Equal(t, 1, q.Pending())

	require.NoError(t, q.Stop(ctx))
}

func TestQueue_UploadCanBeRequeuedAfterCompletion(t *testing.T) {
	q := inmemory.NewQueue(10, 1, nil)
	ctx := context.Background()
	id := uuid.New()

	var runs atomic.Int32
	done := make(chan struct{}, 2)
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		runs.Add(1)
		done <- struct{}{}
		return nil
	}))

	require.NoError(t, q.PublishProcessUpload(ctx, &jobs.ProcessUploadJob{UploadID: id}))
	<-done
	require.Eventually(t, func() bool { return q.Pending() == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, q.PublishProcessUpload(ctx, &jobs.ProcessUploadJob{UploadID: id}))
	<-done
	require.NoError(t, q.Stop(ctx))
	assert.Equal(t, int32(2), runs.Load())
}

func TestQueue_FailedJobIsRecorded(t *testing.T) {
	store := inmemory.NewStore(0)
	q := inmemory.NewQueue(1, 1, store)
	ctx := context.Background()

	done := make(chan struct{})
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		defer close(done)
		return errors.New("parser exploded")
	}))

	job := &jobs.ProcessUploadJob{UploadID: uuid.New()}
	require.NoError(t, q.PublishProcessUpload(ctx, job))
	<-done

	require.Eventually(t, func() bool {
		failed, err := store.ListJobs(ctx, jobs.JobFilter{Status: jobs.JobStatusFailed})
		return err == nil && len(failed) == 1
	}, time.Second, 5*time.Millisecond)

	failed, err := store.ListJobs(ctx, jobs.JobFilter{UploadID: job.UploadID})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, job.JobID, failed[0].JobID)
	assert.Equal(t, "parser exploded", failed[0].Error)
	assert.NotNil(t, failed[0].CompletedAt)
	require.NoError(t, q.Stop(ctx))
}

func TestQueue_InFlightJobSurvivesCancellation(t *testing.T) {
	q := inmemory.NewQueue(1, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	release := make(chan struct{})
	var handlerErr atomic.Value
	require.NoError(t, q.Start(ctx, func(ctx context.Context, job jobs.Job) error {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			handlerErr.Store(err)
		}
		return nil
	}))

	require.NoError(t, q.PublishProcessUpload(context.Background(), &jobs.ProcessUploadJob{UploadID: uuid.New()}))
	<-started
	cancel()
	close(release)

	require.NoError(t, q.Stop(context.Background()))
	assert.Nil(t, handlerErr.Load())
}

func TestQueue_PublishAfterStop(t *testing.T) {
	q := inmemory.NewQueue(1, 1, nil)
	require.NoError(t, q.Stop(context.Background()))

	err := q.PublishProcessUpload(context.Background(), &jobs.ProcessUploadJob{UploadID: uuid.New()})
	assert.ErrorIs(t, err, jobs.ErrQueueClosed)
}
