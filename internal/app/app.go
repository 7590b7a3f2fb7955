// Package app assembles the ingestion components from a Config for the
// binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/statement-ingest/internal/categorize"
	"github.com/dvloznov/statement-ingest/internal/config"
	"github.com/dvloznov/statement-ingest/internal/domain"
	bqinfra "github.com/dvloznov/statement-ingest/internal/infra/bigquery"
	"github.com/dvloznov/statement-ingest/internal/infra/sqlstore"
	"github.com/dvloznov/statement-ingest/internal/ingest"
	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/objectstore"
	"github.com/dvloznov/statement-ingest/internal/parser"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

// Repository is what both persistence backends provide.
type Repository interface {
	ingest.Repository
	categorize.RuleSource
	categorize.TransactionStore
	jobs.PendingUploadLister

	CreateUpload(ctx context.Context, u *domain.Upload) error
	CreateAccount(ctx context.Context, a *domain.Account) error
	ListBanks(ctx context.Context) ([]domain.Bank, error)
	ListCategories(ctx context.Context, userID uuid.UUID) ([]domain.Category, error)
	CreateRule(ctx context.Context, rule *domain.CategorizationRule) error
	DeleteRule(ctx context.Context, userID, ruleID uuid.UUID) (bool, error)
	ListTransactionsByUpload(ctx context.Context, uploadID uuid.UUID) ([]domain.Transaction, error)
	Close() error
}

var (
	_ Repository = (*bqinfra.Repository)(nil)
	_ Repository = (*sqlstore.Store)(nil)
)

// App holds the wired components. Close releases every client it opened.
type App struct {
	Config  *config.Config
	Store   objectstore.Store
	Repo    Repository
	Parsers *parser.Registry
	Engine  *categorize.Engine
	Runner  *ingest.Runner
	closers []func() error
}

// New builds the object store, the repository, the parser registry, the
// categorization engine and the ingestion runner.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	store, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Store = store

	repo, err := a.openRepository(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Repo = repo

	parsers, err := NewRegistry(ctx, cfg.Gemini)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Parsers = parsers

	a.Engine = categorize.NewEngine(repo, repo)
	orch := ingest.NewOrchestrator(repo, store, parsers, a.Engine)
	a.Runner = ingest.NewRunner(orch, ingest.RunnerConfig{
		MaxAttempts:    cfg.Worker.MaxAttempts,
		BackoffBase:    cfg.Worker.BackoffBase,
		AttemptTimeout: cfg.Worker.AttemptTimeout,
	})
	return a, nil
}

func (a *App) openStore(ctx context.Context) (objectstore.Store, error) {
	cfg := a.Config.Storage
	switch cfg.Backend {
	case config.StorageGCS:
		gcs, err := objectstore.NewGCS(ctx, cfg.Bucket)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, gcs.Close)
		if cfg.ProjectID != "" {
			if err := gcs.EnsureBucket(ctx, cfg.ProjectID); err != nil {
				return nil, err
			}
		}
		return gcs, nil
	case config.StorageLocal:
		dir, err := objectstore.NewDir(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return dir, nil
	case config.StorageMemory:
		return objectstore.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

func (a *App) openRepository(ctx context.Context) (Repository, error) {
	cfg := a.Config.Database
	switch cfg.Backend {
	case config.DatabaseBigQuery:
		repo, err := bqinfra.NewRepository(ctx, cfg.ProjectID, cfg.Dataset)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, repo.Close)
		return repo, nil
	case config.DatabaseSQLite:
		store, err := sqlstore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown database backend %q", cfg.Backend)
}

// NewRegistry returns the heuristic parsers plus, when a model is configured,
// the Gemini parser for the configured parser types.
func NewRegistry(ctx context.Context, cfg config.GeminiConfig) (*parser.Registry, error) {
	reg := parser.DefaultRegistry()
	if cfg.Model == "" || len(cfg.ParserTypes) == 0 {
		return reg, nil
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	RegisterGemini(ctx, reg, client.Models, cfg.Model, cfg.ParserTypes)
	return reg, nil
}

// RegisterGemini registers the model-backed parser under each parser type
// that has no parser yet.
func RegisterGemini(ctx context.Context, reg *parser.Registry, models parser.ContentGenerator, model string, parserTypes []string) {
	log := logger.FromContext(ctx)
	for _, pt := range parserTypes {
		if _, err := reg.Resolve(pt); err == nil {
			log.Warn().Str("parser_type", pt).Msg("heuristic parser already registered, not replacing it with Gemini")
			continue
		}
		reg.Register(pt, parser.NewGeminiParser(models, model, bankName(pt)))
	}
}

func bankName(parserType string) string {
	for _, b := range domain.DefaultBanks {
		if b.ParserType == parserType {
			return b.Name
		}
	}
	return parserType
}

// Close releases clients in reverse order of creation.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Submit stores a statement file and records a pending upload for the
// account. The upload is picked up by the worker's poller or by an explicit
// process run.
func (a *App) Submit(ctx context.Context, userID, accountID uuid.UUID, filename string, data []byte) (*domain.Upload, error) {
	account, err := a.Repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("looking up account %s: %w", accountID, err)
	}
	if account.UserID != userID {
		return nil, fmt.Errorf("account %s: %w", accountID, domain.ErrNotFound)
	}

	key, err := a.Store.Put(ctx, data, userID.String()+"/"+filename)
	if err != nil {
		return nil, fmt.Errorf("storing %s: %w", filename, err)
	}

	upload := &domain.Upload{
		ID:         uuid.New(),
		UserID:     userID,
		AccountID:  accountID,
		Filename:   filename,
		FileKey:    key,
		Status:     domain.UploadStatusPending,
		UploadedAt: time.Now().UTC(),
	}
	if err := a.Repo.CreateUpload(ctx, upload); err != nil {
		if _, delErr := a.Store.Delete(ctx, key); delErr != nil {
			log := logger.FromContext(ctx)
			log.Warn().Err(delErr).Str("file_key", key).Msg("failed to remove orphaned file")
		}
		return nil, fmt.Errorf("creating upload: %w", err)
	}
	return upload, nil
}

// HandleJob runs ingestion for a queued upload. It is the worker's
// jobs.JobHandler.
func (a *App) HandleJob(ctx context.Context, job jobs.Job) error {
	uploadJob, ok := job.(*jobs.ProcessUploadJob)
	if !ok {
		return fmt.Errorf("unexpected job type: %T", job)
	}

	log := logger.FromContext(ctx)
	result, err := a.Runner.Run(ctx, uploadJob.UploadID, uploadJob.Reprocess)
	if err != nil {
		log.Error().Err(err).Str("upload_id", uploadJob.UploadID.String()).Msg("Upload processing failed")
		return err
	}

	log.Info().
		Str("upload_id", uploadJob.UploadID.String()).
		Str("status", string(result.Status)).
		Int("transactions", result.Transactions).
		Bool("skipped", result.Skipped).
		Msg("Upload processed")
	return nil
}
