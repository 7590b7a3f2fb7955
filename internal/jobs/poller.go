package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
)

// PendingUploadLister lists uploads waiting for ingestion, oldest first.
type PendingUploadLister interface {
	ListPendingUploads(ctx context.Context, limit int) ([]domain.Upload, error)
}

// Poller periodically publishes jobs for pending uploads, so uploads created
// by other processes or left behind by a restart are picked up.
type Poller struct {
	uploads   PendingUploadLister
	publisher Publisher
	interval  time.Duration
	batch     int
}

// NewPoller creates a poller that checks every interval for up to batch uploads.
func NewPoller(uploads PendingUploadLister, publisher Publisher, interval time.Duration, batch int) *Poller {
	if batch <= 0 {
		batch = 100
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Poller{uploads: uploads, publisher: publisher, interval: interval, batch: batch}
}

// Run polls until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.Poll(ctx); err != nil && ctx.Err() == nil {
			log := logger.FromContext(ctx)
			log.Error().Err(err).Msg("Polling pending uploads failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll publishes one batch and returns how many new jobs were queued.
// Uploads already queued are skipped.
func (p *Poller) Poll(ctx context.Context) (int, error) {
	uploads, err := p.uploads.ListPendingUploads(ctx, p.batch)
	if err != nil {
		return 0, err
	}

	log := logger.FromContext(ctx)
	queued := 0
	for _, u := range uploads {
		err := p.publisher.PublishProcessUpload(ctx, &ProcessUploadJob{UploadID: u.ID})
		switch {
		case errors.Is(err, ErrAlreadyQueued):
			continue
		case err != nil:
			return queued, err
		}
		queued++
		log.Debug().Str("upload_id", u.ID.String()).Msg("Queued pending upload")
	}
	return queued, nil
}
