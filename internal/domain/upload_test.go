package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestTypeForSignedAmount(t *testing.T) {
	assert.Equal(t, TransactionTypeIncome, TypeForSignedAmount(decimal.NewFromInt(5)))
	assert.Equal(t, TransactionTypeExpense, TypeForSignedAmount(decimal.NewFromInt(-5)))
	assert.Equal(t, TransactionTypeTransfer, TypeForSignedAmount(decimal.Zero))
}

func TestUpload_MarkError(t *testing.T) {
	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)

	t.Run("truncates long messages on a rune boundary", func(t *testing.T) {
		u := &Upload{Status: UploadStatusProcessing}
		u.MarkError(strings.Repeat("ж", 1500), now)

		assert.Equal(t, UploadStatusError, u.Status)
		assert.LessOrEqual(t, len(u.ErrorMessage), MaxErrorMessageLength)
		assert.Equal(t, 1000, len([]rune(u.ErrorMessage)))
		assert.Equal(t, now, *u.ProcessedAt)
	})

	t.Run("never stores an empty message", func(t *testing.T) {
		u := &Upload{}
		u.MarkError("", now)
		assert.NotEmpty(t, u.ErrorMessage)
	})
}

func TestUpload_MarkProcessingClearsPreviousError(t *testing.T) {
	now := time.Now()
	u := &Upload{}
	u.MarkError("boom", now)
	u.MarkProcessing()

	assert.Equal(t, UploadStatusProcessing, u.Status)
	assert.Empty(t, u.ErrorMessage)
	assert.Nil(t, u.ProcessedAt)
	assert.False(t, u.Status.Terminal())
}

func TestUpload_MarkPending(t *testing.T) {
	u := Upload{Status: UploadStatusProcessing}
	u.MarkError("storage unavailable", time.Now())

	u.MarkPending()

	assert.Equal(t, UploadStatusPending, u.Status)
	assert.Empty(t, u.ErrorMessage)
	assert.Nil(t, u.ProcessedAt)
}

func TestNewIngestedTransaction_MirrorsParsedValues(t *testing.T) {
	p := ParsedTransaction{
		Amount:       decimal.RequireFromString("500.25"),
		Type:         TransactionTypeExpense,
		Date:         time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Description:  "Оплата в Globus",
		Counterparty: "Globus",
	}
	tx := NewIngestedTransaction(uuid.New(), uuid.New(), nil, p, time.Now())

	assert.False(t, tx.IsEdited)
	assert.True(t, tx.OriginalAmount.Equal(p.Amount))
	assert.Equal(t, p.Description, tx.OriginalDescription)
	assert.Equal(t, p.Counterparty, tx.OriginalCounterparty)
	assert.NotNil(t, tx.UploadID)
}
