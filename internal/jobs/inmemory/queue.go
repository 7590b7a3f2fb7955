package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/google/uuid"
)

// Queue is an in-memory implementation of job publisher and consumer.
// It uses Go channels for job distribution and is safe for concurrent use.
// Each job is handled by exactly one worker. An upload that is already
// queued or running is not queued a second time.
type Queue struct {
	jobChan   chan *jobs.ProcessUploadJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	workers   int
	closed    bool

	activeMu sync.Mutex
	active   map[uuid.UUID]struct{}
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before PublishProcessUpload
// blocks; workers is the number of jobs handled concurrently.
func NewQueue(bufferSize, workers int, store jobs.JobStore) *Queue {
	if workers <= 0 {
		workers = 1
	}
	return &Queue{
		jobChan:   make(chan *jobs.ProcessUploadJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   workers,
		active:    make(map[uuid.UUID]struct{}),
	}
}

// PublishProcessUpload implements the Publisher interface.
func (q *Queue) PublishProcessUpload(ctx context.Context, job *jobs.ProcessUploadJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return jobs.ErrQueueClosed
	}

	if !q.claim(job.UploadID) {
		return fmt.Errorf("%w: %s", jobs.ErrAlreadyQueued, job.UploadID)
	}

	// Generate job ID if not provided
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			q.release(job.UploadID)
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		q.release(job.UploadID)
		return ctx.Err()
	case <-q.closeChan:
		q.release(job.UploadID)
		return jobs.ErrQueueClosed
	}
}

func (q *Queue) claim(uploadID uuid.UUID) bool {
	q.activeMu.Lock()
	defer q.activeMu.Unlock()
	if _, ok := q.active[uploadID]; ok {
		return false
	}
	q.active[uploadID] = struct{}{}
	return true
}

func (q *Queue) release(uploadID uuid.UUID) {
	q.activeMu.Lock()
	delete(q.active, uploadID)
	q.activeMu.Unlock()
}

// Pending returns the number of uploads queued or running.
func (q *Queue) Pending() int {
	q.activeMu.Lock()
	defer q.activeMu.Unlock()
	return len(q.active)
}

// Start implements the Consumer interface.
// Workers stop taking new jobs once ctx is cancelled; a job already taken
// runs to completion regardless.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return jobs.ErrQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

// worker processes jobs from the queue.
func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(context.WithoutCancel(ctx), job, handler)
		}
	}
}

// processJob executes a single job and records its outcome.
func (q *Queue) processJob(ctx context.Context, job *jobs.ProcessUploadJob, handler jobs.JobHandler) {
	defer q.release(job.UploadID)

	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}

	log := logger.FromContext(ctx).With().Str("job_id", job.JobID).Logger()
	err := handler(logger.WithContext(ctx, log), job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err != nil {
		job.Status = jobs.JobStatusFailed
		job.Error = err.Error()
	} else {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
	}

	if q.store != nil {
		_ = q.store.SaveJob(ctx, job)
	}
}

// Stop implements the Consumer interface.
// It stops the queue and waits for all in-flight jobs to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

// Ensure Queue implements both Publisher and Consumer interfaces.
var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
