package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/google/uuid"
)

// DefaultHistory is how many finished jobs a Store keeps when none is given.
const DefaultHistory = 1000

// Store keeps job records for the lifetime of the worker process. Pending
// uploads are found again by the poller after a restart, so nothing here
// needs to survive one.
//
// Only the most recent finished jobs are kept; queued and running jobs are
// never dropped.
type Store struct {
	mu      sync.RWMutex
	jobs    map[string]*jobs.ProcessUploadJob
	order   []string // job IDs, first saved first
	history int
}

// NewStore creates a store that keeps up to history finished jobs.
func NewStore(history int) *Store {
	if history <= 0 {
		history = DefaultHistory
	}
	return &Store{
		jobs:    make(map[string]*jobs.ProcessUploadJob),
		history: history,
	}
}

// SaveJob stores a copy of job, replacing any earlier state with the same ID.
func (s *Store) SaveJob(ctx context.Context, job *jobs.ProcessUploadJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.JobID]; !ok {
		s.order = append(s.order, job.JobID)
	}
	saved := *job
	s.jobs[job.JobID] = &saved
	s.prune()
	return nil
}

// prune drops the oldest finished jobs above the history limit.
func (s *Store) prune() {
	done := 0
	for _, id := range s.order {
		if finished(s.jobs[id]) {
			done++
		}
	}
	if done <= s.history {
		return
	}

	drop := done - s.history
	kept := s.order[:0]
	for _, id := range s.order {
		if drop > 0 && finished(s.jobs[id]) {
			delete(s.jobs, id)
			drop--
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
}

func finished(job *jobs.ProcessUploadJob) bool {
	return job.Status == jobs.JobStatusCompleted || job.Status == jobs.JobStatusFailed
}

// ListJobs returns copies of the jobs matching filter, oldest first.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.ProcessUploadJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*jobs.ProcessUploadJob
	for _, id := range s.order {
		job := s.jobs[id]
		if filter.UploadID != uuid.Nil && job.UploadID != filter.UploadID {
			continue
		}
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		c := *job
		result = append(result, &c)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.ProcessUploadJob{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

var _ jobs.JobStore = (*Store)(nil)
