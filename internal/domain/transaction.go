package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType classifies the direction of money movement.
type TransactionType string

const (
	TransactionTypeIncome   TransactionType = "income"
	TransactionTypeExpense  TransactionType = "expense"
	TransactionTypeTransfer TransactionType = "transfer"
)

// MaxCounterpartyLength is the longest counterparty stored on a transaction, in characters.
const MaxCounterpartyLength = 255

// TypeForSignedAmount derives the transaction type from a signed amount:
// positive is income, negative is expense, zero is a transfer.
func TypeForSignedAmount(amount decimal.Decimal) TransactionType {
	switch amount.Sign() {
	case 1:
		return TransactionTypeIncome
	case -1:
		return TransactionTypeExpense
	default:
		return TransactionTypeTransfer
	}
}

// ParsedTransaction is one row extracted from a statement, before it is
// categorized and persisted. Amount is never negative; the sign lives in Type.
type ParsedTransaction struct {
	Amount       decimal.Decimal `json:"amount"`
	Type         TransactionType `json:"type"`
	Date         time.Time       `json:"date"`
	Description  string          `json:"description,omitempty"`
	Counterparty string          `json:"counterparty,omitempty"`
}

// Transaction is a persisted transaction row.
//
// The Original* fields keep the values produced by ingestion. Ingestion sets
// them equal to the parsed values; manual edits must leave them untouched.
type Transaction struct {
	ID           uuid.UUID
	AccountID    uuid.UUID
	UploadID     *uuid.UUID
	CategoryID   *uuid.UUID
	Amount       decimal.Decimal
	Type         TransactionType
	Date         time.Time
	Description  string
	Counterparty string

	IsEdited             bool
	OriginalAmount       *decimal.Decimal
	OriginalDescription  string
	OriginalCounterparty string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewIngestedTransaction builds a transaction for an upload from a parsed row.
func NewIngestedTransaction(accountID, uploadID uuid.UUID, categoryID *uuid.UUID, p ParsedTransaction, now time.Time) *Transaction {
	amount := p.Amount
	upload := uploadID
	return &Transaction{
		ID:                   uuid.New(),
		AccountID:            accountID,
		UploadID:             &upload,
		CategoryID:           categoryID,
		Amount:               p.Amount,
		Type:                 p.Type,
		Date:                 p.Date,
		Description:          p.Description,
		Counterparty:         p.Counterparty,
		IsEdited:             false,
		OriginalAmount:       &amount,
		OriginalDescription:  p.Description,
		OriginalCounterparty: p.Counterparty,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
}
