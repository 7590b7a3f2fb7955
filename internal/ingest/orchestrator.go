// Package ingest turns an uploaded statement into categorized transactions.
//
// An upload moves pending -> processing -> done | error. Each attempt marks
// the upload processing, runs the steps in order and either commits all
// transactions together with the done status or records the failure on the
// upload.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/retry"
	"github.com/google/uuid"
)

// failureSaveTimeout bounds recording an error status after the attempt
// context has expired.
const failureSaveTimeout = 30 * time.Second

// ProcessOptions adjusts a single attempt.
type ProcessOptions struct {
	// RetryFailed re-runs uploads already in the error state.
	RetryFailed bool
}

// Result describes the outcome of one attempt.
type Result struct {
	UploadID     uuid.UUID
	Status       domain.UploadStatus
	Transactions int
	// Skipped is set when the upload was missing or already terminal and
	// nothing was done.
	Skipped bool
}

// Orchestrator runs one processing attempt for an upload.
type Orchestrator struct {
	repo  Repository
	steps []Step
	now   func() time.Time
}

// NewOrchestrator wires the processing steps.
func NewOrchestrator(repo Repository, store ObjectStore, parsers ParserResolver, rules RuleLoader) *Orchestrator {
	o := &Orchestrator{
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}
	clock := func() time.Time { return o.now() }
	o.steps = []Step{
		&loadReferencesStep{repo: repo},
		&fetchFileStep{store: store},
		&resolveParserStep{parsers: parsers},
		&parseStep{rules: rules, now: clock},
		&commitStep{repo: repo, now: clock},
	}
	return o
}

// SetClock replaces the time source.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// Process runs one attempt. A missing upload, an upload already done and,
// unless opts.RetryFailed is set, an upload in error are left alone.
//
// Any failure after the upload is marked processing is recorded on the upload
// before Process returns it. Retryable failures satisfy IsRetryable.
func (o *Orchestrator) Process(ctx context.Context, uploadID uuid.UUID, opts ProcessOptions) (Result, error) {
	log := logger.FromContext(ctx)
	result := Result{UploadID: uploadID}

	upload, err := o.repo.GetUpload(ctx, uploadID)
	if errors.Is(err, domain.ErrNotFound) {
		log.Info().Str("upload_id", uploadID.String()).Msg("Upload not found, nothing to process")
		result.Skipped = true
		return result, nil
	}
	if err != nil {
		return result, retry.Transient(fmt.Errorf("loading upload %s: %w", uploadID, err))
	}

	result.Status = upload.Status
	switch {
	case upload.Status == domain.UploadStatusDone,
		upload.Status == domain.UploadStatusError && !opts.RetryFailed:
		log.Info().
			Str("upload_id", uploadID.String()).
			Str("status", string(upload.Status)).
			Msg("Upload already processed, skipping")
		result.Skipped = true
		return result, nil
	}

	upload.MarkProcessing()
	if err := o.repo.SaveUploadStatus(ctx, upload); err != nil {
		return result, retry.Transient(fmt.Errorf("marking upload processing: %w", err))
	}
	result.Status = upload.Status

	state := &JobState{Upload: upload}
	for _, step := range o.steps {
		if err := ctx.Err(); err != nil {
			err = retry.Transient(fmt.Errorf("attempt interrupted before %s: %w", step.Name(), err))
			return o.fail(ctx, result, upload, err)
		}
		if err := step.Execute(ctx, state); err != nil {
			return o.fail(ctx, result, upload, err)
		}
	}

	result.Status = state.Upload.Status
	result.Transactions = len(state.Transactions)
	log.Info().
		Str("upload_id", uploadID.String()).
		Int("transactions", result.Transactions).
		Msg("Upload processed")
	return result, nil
}

// fail records err on the upload. Staged transactions were never committed,
// so only the status changes. The upload is reloaded first so a concurrent
// edit to other fields is not overwritten.
func (o *Orchestrator) fail(ctx context.Context, result Result, upload *domain.Upload, err error) (Result, error) {
	log := logger.FromContext(ctx)

	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureSaveTimeout)
	defer cancel()

	current, loadErr := o.repo.GetUpload(saveCtx, upload.ID)
	if loadErr != nil {
		current = upload
	}
	current.MarkError(err.Error(), o.now())

	if saveErr := o.repo.SaveUploadStatus(saveCtx, current); saveErr != nil {
		log.Error().
			Err(saveErr).
			Str("upload_id", upload.ID.String()).
			Msg("Failed to record upload error")
	}

	log.Error().
		Err(err).
		Str("upload_id", upload.ID.String()).
		Bool("retryable", IsRetryable(err)).
		Msg("Upload processing failed")

	result.Status = current.Status
	return result, err
}

// Requeue moves an upload left in processing or error by an interrupted run
// back to pending. Other states are not touched.
func (o *Orchestrator) Requeue(ctx context.Context, uploadID uuid.UUID) error {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureSaveTimeout)
	defer cancel()

	upload, err := o.repo.GetUpload(saveCtx, uploadID)
	if err != nil {
		return fmt.Errorf("loading upload %s: %w", uploadID, err)
	}
	if upload.Status != domain.UploadStatusProcessing && upload.Status != domain.UploadStatusError {
		return nil
	}

	upload.MarkPending()
	if err := o.repo.SaveUploadStatus(saveCtx, upload); err != nil {
		return fmt.Errorf("requeueing upload %s: %w", uploadID, err)
	}
	return nil
}
