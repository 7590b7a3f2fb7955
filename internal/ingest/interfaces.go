package ingest

import (
	"context"

	"github.com/dvloznov/statement-ingest/internal/categorize"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/parser"
	"github.com/google/uuid"
)

// Repository is the persistence the orchestrator needs.
// Lookups return domain.ErrNotFound for missing records.
type Repository interface {
	GetUpload(ctx context.Context, id uuid.UUID) (*domain.Upload, error)
	// SaveUploadStatus persists the status, error message and processed
	// timestamp of the upload.
	SaveUploadStatus(ctx context.Context, upload *domain.Upload) error
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetBank(ctx context.Context, id uuid.UUID) (*domain.Bank, error)
	// CommitUpload replaces the transactions linked to the upload with txs and
	// saves the upload status, all in one unit of work.
	CommitUpload(ctx context.Context, upload *domain.Upload, txs []*domain.Transaction) error
}

// ObjectStore fetches uploaded files. Get returns objectstore.ErrNotFound
// for missing keys.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// ParserResolver maps a bank parser type to a parser.
type ParserResolver interface {
	Resolve(parserType string) (parser.Parser, error)
}

// RuleLoader loads a snapshot of the rules that apply to a user.
type RuleLoader interface {
	ForUser(ctx context.Context, userID uuid.UUID) (*categorize.RuleSet, error)
}
