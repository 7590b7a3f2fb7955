package bigquery

import (
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRepository() *Repository {
	return NewRepositoryWithClient(nil, "proj", "ds")
}

func paramNames(params []bigquery.QueryParameter) []string {
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return names
}

func TestNewRepositoryWithClient_DefaultDataset(t *testing.T) {
	r := NewRepositoryWithClient(nil, "proj", "")
	assert.Equal(t, "`proj."+DefaultDatasetID+".uploads`", r.table(uploadsTable))
}

func TestDecimalOf_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"integer", "1200", "1200"},
		{"negative", "-500.25", "-500.25"},
		{"full scale", "-1234567.891234567", "-1234567.891234567"},
		{"large", "98765432109876543210.5", "98765432109876543210.5"},
		{"zero", "0", "0"},
		{"rounded past scale", "1.0000000005", "1.000000001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := decimalOf(ratOf(decimal.RequireFromString(tt.in)))
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
			assert.Equal(t, decimal.RequireFromString(tt.want).Sign(), got.Sign())
		})
	}

	assert.True(t, decimalOf(nil).IsZero())
}

func TestUploadRow_RoundTrip(t *testing.T) {
	uploaded := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	processed := uploaded.Add(time.Minute)

	tests := []struct {
		name   string
		upload domain.Upload
	}{
		{
			name: "pending",
			upload: domain.Upload{
				ID: uuid.New(), UserID: uuid.New(), AccountID: uuid.New(),
				Filename: "march.pdf", FileKey: "statements/march.pdf",
				Status: domain.UploadStatusPending, UploadedAt: uploaded,
			},
		},
		{
			name: "failed",
			upload: domain.Upload{
				ID: uuid.New(), UserID: uuid.New(), AccountID: uuid.New(),
				Filename: "march.pdf", FileKey: "statements/march.pdf",
				Status: domain.UploadStatusError, ErrorMessage: "no transactions found",
				UploadedAt: uploaded, ProcessedAt: &processed,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := uploadRowOf(&tt.upload)
			assert.Equal(t, tt.upload.ErrorMessage != "", row.ErrorMessage.Valid)
			assert.Equal(t, tt.upload.ProcessedAt != nil, row.ProcessedAt.Valid)

			got, err := row.toDomain()
			require.NoError(t, err)
			assert.Equal(t, tt.upload, *got)
		})
	}
}

func TestUploadRow_ToDomainRejectsBadID(t *testing.T) {
	row := UploadRow{UploadID: "nope", UserID: uuid.NewString(), AccountID: uuid.NewString()}
	_, err := row.toDomain()
	assert.ErrorContains(t, err, "upload_id")
}

func TestInsertStatement(t *testing.T) {
	r := testRepository()
	row := uploadRowOf(&domain.Upload{ID: uuid.New(), Status: domain.UploadStatusPending})

	got := insertStatement(r.table(uploadsTable), row.params())

	assert.Equal(t,
		"INSERT INTO `proj.ds.uploads` (upload_id, user_id, account_id, filename, file_key, status, error_message, uploaded_at, processed_at) "+
			"VALUES (@upload_id, @user_id, @account_id, @filename, @file_key, @status, @error_message, @uploaded_at, @processed_at)",
		got)
	assert.Equal(t, uploadColumns, strings.Join(paramNames(row.params()), ", "))
}

func TestRowParams_MatchTableColumns(t *testing.T) {
	account := AccountRow{AccountID: uuid.NewString()}
	assert.Equal(t,
		[]string{"account_id", "user_id", "bank_id", "name", "currency", "created_at"},
		paramNames(account.params()))

	rule := RuleRow{RuleID: uuid.NewString()}
	params := rule.params()
	assert.Equal(t,
		[]string{"rule_id", "user_id", "category_id", "pattern", "match_type", "priority", "created_at"},
		paramNames(params))
	assert.Equal(t, bigquery.NullString{}, params[1].Value, "system rule owner is NULL")
}

func TestStage(t *testing.T) {
	category := uuid.New()
	amount := decimal.RequireFromString("500.75")
	created := time.Date(2024, 2, 3, 10, 0, 0, 0, time.UTC)
	tx := domain.NewIngestedTransaction(uuid.New(), uuid.New(), &category, domain.ParsedTransaction{
		Amount:       amount,
		Type:         domain.TransactionTypeExpense,
		Date:         time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		Description:  "Оплата",
		Counterparty: "ОсОО Глобус",
	}, created)

	s := stage(tx)

	assert.Equal(t, tx.ID.String(), s.TransactionID)
	assert.Equal(t, tx.AccountID.String(), s.AccountID)
	assert.Equal(t, category.String(), s.CategoryID)
	assert.True(t, decimalOf(s.Amount).Equal(amount))
	assert.True(t, decimalOf(s.OriginalAmount).Equal(amount))
	assert.Equal(t, "expense", s.Type)
	assert.Equal(t, civil.Date{Year: 2024, Month: time.February, Day: 1}, s.Date)
	assert.Equal(t, "Оплата", s.Description)
	assert.Equal(t, "ОсОО Глобус", s.OriginalCounterparty)
	assert.Equal(t, created, s.CreatedAt)
}

func TestStage_Uncategorized(t *testing.T) {
	tx := &domain.Transaction{
		ID:     uuid.New(),
		Amount: decimal.RequireFromString("-12.5"),
		Type:   domain.TransactionTypeExpense,
		Date:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	}

	s := stage(tx)

	assert.Empty(t, s.CategoryID, "empty category becomes NULL in the insert")
	assert.True(t, decimalOf(s.OriginalAmount).Equal(tx.Amount), "original amount defaults to amount")
}

func TestCommitParams(t *testing.T) {
	processed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	u := &domain.Upload{ID: uuid.New(), Status: domain.UploadStatusDone, ProcessedAt: &processed}
	txs := []*domain.Transaction{
		{ID: uuid.New(), Amount: decimal.NewFromInt(1), Type: domain.TransactionTypeIncome},
		{ID: uuid.New(), Amount: decimal.NewFromInt(2), Type: domain.TransactionTypeIncome},
	}

	params := commitParams(u, txs)

	require.Equal(t, []string{"upload_id", "status", "error_message", "processed_at", "rows"}, paramNames(params))
	assert.Equal(t, u.ID.String(), params[0].Value)
	assert.Equal(t, "done", params[1].Value)
	assert.Equal(t, bigquery.NullString{}, params[2].Value)
	assert.Equal(t, bigquery.NullTimestamp{Timestamp: processed, Valid: true}, params[3].Value)

	rows, ok := params[4].Value.([]stagedTransaction)
	require.True(t, ok)
	require.Len(t, rows, 2)
	assert.Equal(t, txs[1].ID.String(), rows[1].TransactionID)

	empty := commitParams(u, nil)
	assert.NotNil(t, empty[4].Value, "an empty commit still sends an empty array")
}

func TestCommitScript_AssertsUploadExists(t *testing.T) {
	script := testRepository().commitScript()

	update := strings.Index(script, "UPDATE `proj.ds.uploads`")
	assertion := strings.Index(script, "ASSERT @@row_count = 1 AS 'upload not found'")
	commit := strings.Index(script, "COMMIT TRANSACTION")

	require.NotEqual(t, -1, update)
	require.NotEqual(t, -1, assertion)
	assert.Less(t, update, assertion)
	assert.Less(t, assertion, commit)
	assert.Contains(t, script, "DELETE FROM `proj.ds.transactions`")
}

func TestPrefixed(t *testing.T) {
	assert.Equal(t, "t.a, t.b, t.c", prefixed("t", "a, b,\n\tc"))
	assert.Equal(t, "t.upload_id, t.user_id", prefixed("t", "upload_id, user_id"))
}

func TestUUIDStrings(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.Equal(t, []string{a.String(), b.String()}, uuidStrings([]uuid.UUID{a, b}))
	assert.Empty(t, uuidStrings(nil))
}

func TestParseNullUUID(t *testing.T) {
	id := uuid.New()

	got, err := parseNullUUID(nullUUID(&id))
	require.NoError(t, err)
	assert.Equal(t, id, *got)

	got, err = parseNullUUID(bigquery.NullString{})
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = parseNullUUID(bigquery.NullString{StringVal: "x", Valid: true})
	assert.Error(t, err)
}
