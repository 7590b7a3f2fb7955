package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-ingest/internal/categorize"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/google/uuid"
)

type TransactionRow struct {
	TransactionID string              `bigquery:"transaction_id"` // REQUIRED
	AccountID     string              `bigquery:"account_id"`     // REQUIRED
	UploadID      bigquery.NullString `bigquery:"upload_id"`      // NULLABLE
	CategoryID    bigquery.NullString `bigquery:"category_id"`    // NULLABLE

	Amount       *big.Rat            `bigquery:"amount"`       // REQUIRED NUMERIC
	Type         string              `bigquery:"type"`         // REQUIRED
	Date         civil.Date          `bigquery:"date"`         // REQUIRED
	Description  bigquery.NullString `bigquery:"description"`  // NULLABLE
	Counterparty bigquery.NullString `bigquery:"counterparty"` // NULLABLE

	IsEdited             bool                `bigquery:"is_edited"`             // REQUIRED
	OriginalAmount       *big.Rat            `bigquery:"original_amount"`       // NULLABLE NUMERIC
	OriginalDescription  bigquery.NullString `bigquery:"original_description"`  // NULLABLE
	OriginalCounterparty bigquery.NullString `bigquery:"original_counterparty"` // NULLABLE

	CreatedAt time.Time `bigquery:"created_at"` // REQUIRED
	UpdatedAt time.Time `bigquery:"updated_at"` // REQUIRED
}

const transactionColumns = `transaction_id, account_id, upload_id, category_id, amount, type, date,
	description, counterparty, is_edited, original_amount, original_description,
	original_counterparty, created_at, updated_at`

func (row *TransactionRow) toDomain() (*domain.Transaction, error) {
	id, err := uuid.Parse(row.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("transaction_id: %w", err)
	}
	accountID, err := uuid.Parse(row.AccountID)
	if err != nil {
		return nil, fmt.Errorf("account_id: %w", err)
	}
	uploadID, err := parseNullUUID(row.UploadID)
	if err != nil {
		return nil, fmt.Errorf("upload_id: %w", err)
	}
	categoryID, err := parseNullUUID(row.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("category_id: %w", err)
	}

	tx := &domain.Transaction{
		ID:                   id,
		AccountID:            accountID,
		UploadID:             uploadID,
		CategoryID:           categoryID,
		Amount:               decimalOf(row.Amount),
		Type:                 domain.TransactionType(row.Type),
		Date:                 row.Date.In(time.UTC),
		Description:          row.Description.StringVal,
		Counterparty:         row.Counterparty.StringVal,
		IsEdited:             row.IsEdited,
		OriginalDescription:  row.OriginalDescription.StringVal,
		OriginalCounterparty: row.OriginalCounterparty.StringVal,
		CreatedAt:            row.CreatedAt,
		UpdatedAt:            row.UpdatedAt,
	}
	if row.OriginalAmount != nil {
		original := decimalOf(row.OriginalAmount)
		tx.OriginalAmount = &original
	}
	return tx, nil
}

// stagedTransaction is one element of the array parameter used by
// CommitUpload. Empty strings become NULL in the insert.
type stagedTransaction struct {
	TransactionID        string     `bigquery:"transaction_id"`
	AccountID            string     `bigquery:"account_id"`
	CategoryID           string     `bigquery:"category_id"`
	Amount               *big.Rat   `bigquery:"amount"`
	Type                 string     `bigquery:"type"`
	Date                 civil.Date `bigquery:"date"`
	Description          string     `bigquery:"description"`
	Counterparty         string     `bigquery:"counterparty"`
	OriginalAmount       *big.Rat   `bigquery:"original_amount"`
	OriginalDescription  string     `bigquery:"original_description"`
	OriginalCounterparty string     `bigquery:"original_counterparty"`
	CreatedAt            time.Time  `bigquery:"created_at"`
}

func stage(tx *domain.Transaction) stagedTransaction {
	s := stagedTransaction{
		TransactionID:        tx.ID.String(),
		AccountID:            tx.AccountID.String(),
		Amount:               ratOf(tx.Amount),
		Type:                 string(tx.Type),
		Date:                 civil.DateOf(tx.Date),
		Description:          tx.Description,
		Counterparty:         tx.Counterparty,
		OriginalAmount:       ratOf(tx.Amount),
		OriginalDescription:  tx.OriginalDescription,
		OriginalCounterparty: tx.OriginalCounterparty,
		CreatedAt:            tx.CreatedAt,
	}
	if tx.CategoryID != nil {
		s.CategoryID = tx.CategoryID.String()
	}
	if tx.OriginalAmount != nil {
		s.OriginalAmount = ratOf(*tx.OriginalAmount)
	}
	return s
}

// errUploadMissing is the ASSERT message raised when the status UPDATE in
// the commit script matches no upload.
const errUploadMissing = "upload not found"

// commitScript deletes and re-inserts the upload's transactions and saves its
// status inside one BigQuery transaction. The ASSERT aborts the script, and
// with it the insert, when the upload row does not exist.
func (r *Repository) commitScript() string {
	return `
		BEGIN TRANSACTION;

		DELETE FROM ` + r.table(transactionsTable) + `
		WHERE upload_id = @upload_id;

		INSERT INTO ` + r.table(transactionsTable) + ` (` + transactionColumns + `)
		SELECT
			s.transaction_id,
			s.account_id,
			@upload_id,
			NULLIF(s.category_id, ''),
			s.amount,
			s.type,
			s.date,
			NULLIF(s.description, ''),
			NULLIF(s.counterparty, ''),
			FALSE,
			s.original_amount,
			NULLIF(s.original_description, ''),
			NULLIF(s.original_counterparty, ''),
			s.created_at,
			s.created_at
		FROM UNNEST(@rows) AS s;

		UPDATE ` + r.table(uploadsTable) + `
		SET status = @status,
		    error_message = @error_message,
		    processed_at = @processed_at
		WHERE upload_id = @upload_id;

		ASSERT @@row_count = 1 AS '` + errUploadMissing + `';

		COMMIT TRANSACTION;
	`
}

func commitParams(u *domain.Upload, txs []*domain.Transaction) []bigquery.QueryParameter {
	staged := make([]stagedTransaction, 0, len(txs))
	for _, tx := range txs {
		staged = append(staged, stage(tx))
	}
	return append(uploadRowOf(u).statusParams(), bigquery.QueryParameter{Name: "rows", Value: staged})
}

// CommitUpload replaces the upload's transactions and saves its status in a
// single multi-statement transaction. Readers see either all of the new
// transactions or none. domain.ErrNotFound is returned, and nothing is
// written, when the upload does not exist.
func (r *Repository) CommitUpload(ctx context.Context, u *domain.Upload, txs []*domain.Transaction) error {
	err := r.exec(ctx, r.commitScript(), commitParams(u, txs)...)
	if err != nil {
		if strings.Contains(err.Error(), errUploadMissing) {
			return fmt.Errorf("CommitUpload: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("CommitUpload: %w", err)
	}
	return nil
}

// ListTransactionsByUpload returns the transactions created by an upload.
func (r *Repository) ListTransactionsByUpload(ctx context.Context, uploadID uuid.UUID) ([]domain.Transaction, error) {
	rows, err := readAll[TransactionRow](ctx, r, `
		SELECT `+transactionColumns+`
		FROM `+r.table(transactionsTable)+`
		WHERE upload_id = @upload_id
		ORDER BY date, created_at
	`, bigquery.QueryParameter{Name: "upload_id", Value: uploadID.String()})
	if err != nil {
		return nil, fmt.Errorf("ListTransactionsByUpload: %w", err)
	}
	return transactionsOf(rows)
}

// ListAutoCategorized returns the user's transactions that were not edited
// manually, limited to ids when ids is non-empty.
func (r *Repository) ListAutoCategorized(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]domain.Transaction, error) {
	rows, err := readAll[TransactionRow](ctx, r, `
		SELECT `+prefixed("t", transactionColumns)+`
		FROM `+r.table(transactionsTable)+` t
		JOIN `+r.table(accountsTable)+` a ON a.account_id = t.account_id
		WHERE a.user_id = @user_id
		  AND NOT t.is_edited
		  AND (ARRAY_LENGTH(@ids) = 0 OR t.transaction_id IN UNNEST(@ids))
		ORDER BY t.date, t.created_at
	`,
		bigquery.QueryParameter{Name: "user_id", Value: userID.String()},
		bigquery.QueryParameter{Name: "ids", Value: uuidStrings(ids)},
	)
	if err != nil {
		return nil, fmt.Errorf("ListAutoCategorized: %w", err)
	}
	return transactionsOf(rows)
}

type categoryChangeParam struct {
	TransactionID string `bigquery:"transaction_id"`
	CategoryID    string `bigquery:"category_id"`
}

// ApplyCategoryChanges updates all categories in a single DML statement.
func (r *Repository) ApplyCategoryChanges(ctx context.Context, changes []categorize.CategoryChange) error {
	if len(changes) == 0 {
		return nil
	}
	params := make([]categoryChangeParam, 0, len(changes))
	for _, c := range changes {
		params = append(params, categoryChangeParam{
			TransactionID: c.TransactionID.String(),
			CategoryID:    c.CategoryID.String(),
		})
	}

	err := r.exec(ctx, `
		UPDATE `+r.table(transactionsTable)+` t
		SET category_id = c.category_id,
		    updated_at = CURRENT_TIMESTAMP()
		FROM UNNEST(@changes) AS c
		WHERE t.transaction_id = c.transaction_id
	`, bigquery.QueryParameter{Name: "changes", Value: params})
	if err != nil {
		return fmt.Errorf("ApplyCategoryChanges: %w", err)
	}
	return nil
}

func transactionsOf(rows []TransactionRow) ([]domain.Transaction, error) {
	txs := make([]domain.Transaction, 0, len(rows))
	for _, row := range rows {
		tx, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, nil
}

var _ categorize.TransactionStore = (*Repository)(nil)
