package ingest

import (
	"context"
	"time"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/retry"
	"github.com/google/uuid"
)

// RunnerConfig bounds how long and how often an upload is attempted.
type RunnerConfig struct {
	MaxAttempts    int
	BackoffBase    time.Duration
	AttemptTimeout time.Duration
}

// DefaultRunnerConfig allows three attempts of ten minutes each, waiting one
// minute more before every retry.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		MaxAttempts:    3,
		BackoffBase:    time.Minute,
		AttemptTimeout: 10 * time.Minute,
	}
}

// Runner retries an upload until it is done, fails permanently or runs out
// of attempts.
type Runner struct {
	orch *Orchestrator
	cfg  RunnerConfig
}

// NewRunner creates a Runner around orch.
func NewRunner(orch *Orchestrator, cfg RunnerConfig) *Runner {
	return &Runner{orch: orch, cfg: cfg}
}

// Run processes the upload. When reprocess is set an upload already in the
// error state is attempted again. The returned error is the last attempt's.
//
// If ctx is cancelled while a retryable failure is still being retried, the
// upload is put back to pending for the next poll instead of staying in error.
func (r *Runner) Run(ctx context.Context, uploadID uuid.UUID, reprocess bool) (Result, error) {
	base := logger.FromContext(ctx)
	log := base.With().Str("upload_id", uploadID.String()).Logger()

	policy := retry.Policy{
		MaxAttempts: r.cfg.MaxAttempts,
		Backoff:     retry.Linear(r.cfg.BackoffBase),
		Retryable:   IsRetryable,
		Logger:      &log,
	}

	var result Result
	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		ctx = logger.WithContext(ctx, log.With().Int("attempt", attempt).Logger())
		if r.cfg.AttemptTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, r.cfg.AttemptTimeout)
			defer cancel()
		}

		var err error
		result, err = r.orch.Process(ctx, uploadID, ProcessOptions{RetryFailed: reprocess || attempt > 1})
		return err
	})

	if err != nil && ctx.Err() != nil && IsRetryable(err) {
		if reqErr := r.orch.Requeue(ctx, uploadID); reqErr != nil {
			log.Error().Err(reqErr).Msg("Failed to requeue interrupted upload")
		} else {
			log.Warn().Err(err).Msg("Run interrupted, upload requeued")
			result.Status = domain.UploadStatusPending
		}
	}
	return result, err
}
