package jobs

import (
	"context"
	"fmt"

	"github.com/dvloznov/statement-ingest/internal/logger"
)

// Summary counts the jobs a store knows about by status.
type Summary struct {
	Pending   int
	Running   int
	Completed int
	Failed    []*ProcessUploadJob
}

// Summarize reads every job in store.
func Summarize(ctx context.Context, store JobStore) (Summary, error) {
	all, err := store.ListJobs(ctx, JobFilter{})
	if err != nil {
		return Summary{}, fmt.Errorf("listing jobs: %w", err)
	}

	var s Summary
	for _, job := range all {
		switch job.Status {
		case JobStatusPending:
			s.Pending++
		case JobStatusRunning:
			s.Running++
		case JobStatusCompleted:
			s.Completed++
		case JobStatusFailed:
			s.Failed = append(s.Failed, job)
		}
	}
	return s, nil
}

// LogSummary writes the store's job counts, and one line per failed job, to
// the context logger.
func LogSummary(ctx context.Context, store JobStore) {
	log := logger.FromContext(ctx)

	s, err := Summarize(ctx, store)
	if err != nil {
		log.Error().Err(err).Msg("Failed to summarize jobs")
		return
	}

	for _, job := range s.Failed {
		log.Warn().
			Str("job_id", job.JobID).
			Str("upload_id", job.UploadID.String()).
			Str("error", job.Error).
			Msg("Job failed")
	}
	log.Info().
		Int("pending", s.Pending).
		Int("running", s.Running).
		Int("completed", s.Completed).
		Int("failed", len(s.Failed)).
		Msg("Job summary")
}
