package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/statement-ingest/internal/retry"
	"github.com/google/uuid"
)

// ReferenceMissingError reports that something an upload points at no longer
// exists. Retrying does not help.
type ReferenceMissingError struct {
	Kind string
	ID   string
}

func (e *ReferenceMissingError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func missing(kind string, id uuid.UUID) error {
	return &ReferenceMissingError{Kind: kind, ID: id.String()}
}

// IsRetryable reports whether a failed attempt should be tried again:
// transient I/O failures and attempts that ran out of time.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return retry.IsTransient(err) || errors.Is(err, context.DeadlineExceeded)
}
