package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/statement-ingest/internal/categorize"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/objectstore"
	"github.com/dvloznov/statement-ingest/internal/parser"
	"github.com/dvloznov/statement-ingest/internal/retry"
)

// Step is one stage of processing an upload.
type Step interface {
	Name() string
	Execute(ctx context.Context, state *JobState) error
}

// JobState is shared by the steps of a single attempt.
type JobState struct {
	Upload       *domain.Upload
	Account      *domain.Account
	Bank         *domain.Bank
	Content      []byte
	Parser       parser.Parser
	Rules        *categorize.RuleSet
	Parsed       []domain.ParsedTransaction
	Transactions []*domain.Transaction
}

// loadReferencesStep resolves the upload's account and the account's bank.
type loadReferencesStep struct {
	repo Repository
}

func (s *loadReferencesStep) Name() string { return "load_references" }

func (s *loadReferencesStep) Execute(ctx context.Context, state *JobState) error {
	account, err := s.repo.GetAccount(ctx, state.Upload.AccountID)
	if errors.Is(err, domain.ErrNotFound) {
		return missing("account", state.Upload.AccountID)
	}
	if err != nil {
		return retry.Transient(fmt.Errorf("loading account: %w", err))
	}

	bank, err := s.repo.GetBank(ctx, account.BankID)
	if errors.Is(err, domain.ErrNotFound) {
		return missing("bank", account.BankID)
	}
	if err != nil {
		return retry.Transient(fmt.Errorf("loading bank: %w", err))
	}

	state.Account = account
	state.Bank = bank
	return nil
}

// fetchFileStep downloads the statement from object storage.
type fetchFileStep struct {
	store ObjectStore
}

func (s *fetchFileStep) Name() string { return "fetch_file" }

func (s *fetchFileStep) Execute(ctx context.Context, state *JobState) error {
	content, err := s.store.Get(ctx, state.Upload.FileKey)
	if errors.Is(err, objectstore.ErrNotFound) {
		return &ReferenceMissingError{Kind: "file", ID: state.Upload.FileKey}
	}
	if err != nil {
		if IsRetryable(err) {
			return fmt.Errorf("fetching file: %w", err)
		}
		return retry.Transient(fmt.Errorf("fetching file: %w", err))
	}
	state.Content = content
	return nil
}

// resolveParserStep picks the parser registered for the bank.
type resolveParserStep struct {
	parsers ParserResolver
}

func (s *resolveParserStep) Name() string { return "resolve_parser" }

func (s *resolveParserStep) Execute(ctx context.Context, state *JobState) error {
	p, err := s.parsers.Resolve(state.Bank.ParserType)
	if err != nil {
		return err
	}
	state.Parser = p
	return nil
}

// parseStep runs the parser and categorizes every row against the owner's rules.
type parseStep struct {
	rules RuleLoader
	now   func() time.Time
}

func (s *parseStep) Name() string { return "parse" }

func (s *parseStep) Execute(ctx context.Context, state *JobState) error {
	parsed, err := state.Parser.Parse(ctx, state.Content, state.Upload.Filename)
	if err != nil {
		return err
	}

	set, err := s.rules.ForUser(ctx, state.Upload.UserID)
	if err != nil {
		return retry.Transient(fmt.Errorf("loading categorization rules: %w", err))
	}

	now := s.now()
	txs := make([]*domain.Transaction, 0, len(parsed))
	for _, p := range parsed {
		categoryID := set.Categorize(ctx, p.Description, p.Counterparty)
		txs = append(txs, domain.NewIngestedTransaction(state.Account.ID, state.Upload.ID, categoryID, p, now))
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Int("parsed", len(parsed)).
		Str("parser_type", state.Bank.ParserType).
		Msg("Statement parsed")

	state.Parsed = parsed
	state.Transactions = txs
	return nil
}

// commitStep stores the transactions together with the done status.
type commitStep struct {
	repo Repository
	now  func() time.Time
}

func (s *commitStep) Name() string { return "commit" }

func (s *commitStep) Execute(ctx context.Context, state *JobState) error {
	done := *state.Upload
	done.MarkDone(s.now())
	if err := s.repo.CommitUpload(ctx, &done, state.Transactions); err != nil {
		return retry.Transient(fmt.Errorf("committing transactions: %w", err))
	}
	*state.Upload = done
	return nil
}
