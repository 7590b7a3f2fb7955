package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeProcessUpload represents an upload ingestion job.
	JobTypeProcessUpload JobType = "process_upload"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
)

// ErrAlreadyQueued is returned when a job for the same upload is already
// waiting or running.
var ErrAlreadyQueued = errors.New("upload already queued")

// ErrQueueClosed is returned when publishing to a stopped queue.
var ErrQueueClosed = errors.New("queue is closed")

// ProcessUploadJob represents a job to ingest one upload.
type ProcessUploadJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// UploadID is the upload to process.
	UploadID uuid.UUID `json:"upload_id"`

	// Reprocess re-runs an upload that already ended in error.
	Reprocess bool `json:"reprocess,omitempty"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// CreatedAt is when the job was created.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the job started processing.
	StartedAt *time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the job completed (success or failure).
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`
}

// Job is a generic interface for all job types.
type Job interface {
	// GetID returns the unique job identifier.
	GetID() string

	// GetType returns the job type.
	GetType() JobType

	// GetStatus returns the current job status.
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ProcessUploadJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ProcessUploadJob) GetType() JobType {
	return JobTypeProcessUpload
}

// GetStatus implements the Job interface.
func (j *ProcessUploadJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher enqueues jobs. Publishing returns as soon as the job is queued.
type Publisher interface {
	// PublishProcessUpload publishes an upload ingestion job.
	PublishProcessUpload(ctx context.Context, job *ProcessUploadJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer defines the interface for consuming jobs from a queue.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler is a function that processes a job. Retrying is up to the
// handler; a returned error marks the job failed.
type JobHandler func(ctx context.Context, job Job) error

// JobStore records job state as the queue moves jobs along.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ProcessUploadJob) error

	// ListJobs retrieves jobs with optional filtering.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ProcessUploadJob, error)
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// UploadID filters jobs by upload ID.
	UploadID uuid.UUID

	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
