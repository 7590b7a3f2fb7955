package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/google/uuid"
)

type AccountRow struct {
	AccountID string    `bigquery:"account_id"` // REQUIRED
	UserID    string    `bigquery:"user_id"`    // REQUIRED
	BankID    string    `bigquery:"bank_id"`    // REQUIRED
	Name      string    `bigquery:"name"`       // REQUIRED
	Currency  string    `bigquery:"currency"`   // REQUIRED
	CreatedAt time.Time `bigquery:"created_at"` // REQUIRED
}

type BankRow struct {
	BankID     string `bigquery:"bank_id"`     // REQUIRED
	Name       string `bigquery:"name"`        // REQUIRED
	ParserType string `bigquery:"parser_type"` // REQUIRED
}

func (row *AccountRow) params() []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "account_id", Value: row.AccountID},
		{Name: "user_id", Value: row.UserID},
		{Name: "bank_id", Value: row.BankID},
		{Name: "name", Value: row.Name},
		{Name: "currency", Value: row.Currency},
		{Name: "created_at", Value: row.CreatedAt},
	}
}

func (row *AccountRow) toDomain() (*domain.Account, error) {
	id, err := uuid.Parse(row.AccountID)
	if err != nil {
		return nil, fmt.Errorf("account_id: %w", err)
	}
	userID, err := uuid.Parse(row.UserID)
	if err != nil {
		return nil, fmt.Errorf("user_id: %w", err)
	}
	bankID, err := uuid.Parse(row.BankID)
	if err != nil {
		return nil, fmt.Errorf("bank_id: %w", err)
	}
	return &domain.Account{ID: id, UserID: userID, BankID: bankID, Name: row.Name, Currency: row.Currency}, nil
}

func (row *BankRow) toDomain() (*domain.Bank, error) {
	id, err := uuid.Parse(row.BankID)
	if err != nil {
		return nil, fmt.Errorf("bank_id: %w", err)
	}
	return &domain.Bank{ID: id, Name: row.Name, ParserType: row.ParserType}, nil
}

// GetAccount returns the account or domain.ErrNotFound.
func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row, err := readOne[AccountRow](ctx, r, `
		SELECT account_id, user_id, bank_id, name, currency, created_at
		FROM `+r.table(accountsTable)+`
		WHERE account_id = @account_id
		LIMIT 1
	`, bigquery.QueryParameter{Name: "account_id", Value: id.String()})
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return row.toDomain()
}

// CreateAccount inserts a new account.
func (r *Repository) CreateAccount(ctx context.Context, a *domain.Account) error {
	row := &AccountRow{
		AccountID: a.ID.String(),
		UserID:    a.UserID.String(),
		BankID:    a.BankID.String(),
		Name:      a.Name,
		Currency:  a.Currency,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.insert(ctx, accountsTable, row.params()); err != nil {
		return fmt.Errorf("CreateAccount: %w", err)
	}
	return nil
}

// GetBank returns the bank or domain.ErrNotFound.
func (r *Repository) GetBank(ctx context.Context, id uuid.UUID) (*domain.Bank, error) {
	row, err := readOne[BankRow](ctx, r, `
		SELECT bank_id, name, parser_type
		FROM `+r.table(banksTable)+`
		WHERE bank_id = @bank_id
		LIMIT 1
	`, bigquery.QueryParameter{Name: "bank_id", Value: id.String()})
	if err != nil {
		return nil, fmt.Errorf("GetBank: %w", err)
	}
	return row.toDomain()
}

// ListBanks returns all banks ordered by name.
func (r *Repository) ListBanks(ctx context.Context) ([]domain.Bank, error) {
	rows, err := readAll[BankRow](ctx, r, `
		SELECT bank_id, name, parser_type
		FROM `+r.table(banksTable)+`
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("ListBanks: %w", err)
	}

	banks := make([]domain.Bank, 0, len(rows))
	for _, row := range rows {
		b, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("ListBanks: %w", err)
		}
		banks = append(banks, *b)
	}
	return banks, nil
}
