package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dvloznov/statement-ingest/internal/config"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/dvloznov/statement-ingest/internal/jobs/inmemory"
	"github.com/dvloznov/statement-ingest/internal/parser"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

type MockContentGenerator struct {
	GenerateContentFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *MockContentGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.GenerateContentFunc(ctx, model, contents, config)
}

func localConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Backend = config.StorageMemory
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "ingest.db")
	return cfg
}

func TestNew_Local(t *testing.T) {
	a, err := New(context.Background(), localConfig(t))
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{parser.TypeBakaiExcel, parser.TypeBakaiPDF, parser.TypeMbankPDF}, a.Parsers.Types())

	banks, err := a.Repo.ListBanks(context.Background())
	require.NoError(t, err)
	assert.Len(t, banks, len(domain.DefaultBanks))
}

func TestNew_UnknownBackend(t *testing.T) {
	cfg := localConfig(t)
	cfg.Database.Backend = "postgres"

	_, err := New(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown database backend")
}

func TestRegisterGemini(t *testing.T) {
	reg := parser.DefaultRegistry()
	models := &MockContentGenerator{}

	RegisterGemini(context.Background(), reg, models, "gemini-test", []string{parser.TypeObankPDF, parser.TypeMbankPDF})

	p, err := reg.Resolve(parser.TypeObankPDF)
	require.NoError(t, err)
	assert.IsType(t, &parser.GeminiParser{}, p)

	p, err = reg.Resolve(parser.TypeMbankPDF)
	require.NoError(t, err)
	_, isGemini := p.(*parser.GeminiParser)
	assert.False(t, isGemini)

	_, err = reg.Resolve(parser.TypeOptimaPDF)
	assert.Error(t, err)
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, localConfig(t))
	require.NoError(t, err)
	defer a.Close()

	userID := uuid.New()
	account := &domain.Account{ID: uuid.New(), UserID: userID, BankID: domain.DefaultBanks[1].ID, Name: "Bakai card", Currency: "KGS"}
	require.NoError(t, a.Repo.CreateAccount(ctx, account))

	upload, err := a.Submit(ctx, userID, account.ID, "march.csv", []byte("Дата,Описание,Сумма\n"))
	require.NoError(t, err)

	assert.Equal(t, domain.UploadStatusPending, upload.Status)
	assert.Contains(t, upload.FileKey, userID.String()+"/")

	stored, err := a.Repo.GetUpload(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, upload.FileKey, stored.FileKey)

	data, err := a.Store.Get(ctx, upload.FileKey)
	require.NoError(t, err)
	assert.Equal(t, "Дата,Описание,Сумма\n", string(data))

	pending, err := a.Repo.ListPendingUploads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, upload.ID, pending[0].ID)
}

func TestSubmit_ForeignAccount(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, localConfig(t))
	require.NoError(t, err)
	defer a.Close()

	account := &domain.Account{ID: uuid.New(), UserID: uuid.New(), BankID: domain.DefaultBanks[0].ID, Name: "MBank", Currency: "KGS"}
	require.NoError(t, a.Repo.CreateAccount(ctx, account))

	_, err = a.Submit(ctx, uuid.New(), account.ID, "statement.pdf", []byte("%PDF"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

const bakaiCSV = "Дата;Описание;Сумма\n" +
	"01.02.2024;Покупка в GLOBUS;-500\n" +
	"02.02.2024;Пополнение от Иван Петров;1 200,00\n"

func TestWorkerFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, localConfig(t))
	require.NoError(t, err)
	defer a.Close()

	userID := uuid.New()
	account := &domain.Account{ID: uuid.New(), UserID: userID, BankID: domain.DefaultBanks[1].ID, Name: "Bakai card", Currency: "KGS"}
	require.NoError(t, a.Repo.CreateAccount(ctx, account))

	upload, err := a.Submit(ctx, userID, account.ID, "february.csv", []byte(bakaiCSV))
	require.NoError(t, err)

	store := inmemory.NewStore(0)
	queue := inmemory.NewQueue(10, 2, store)
	require.NoError(t, queue.Start(ctx, a.HandleJob))
	defer queue.Close()

	queued, err := jobs.NewPoller(a.Repo, queue, time.Hour, 10).Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, queued)

	require.Eventually(t, func() bool {
		list, err := store.ListJobs(ctx, jobs.JobFilter{UploadID: upload.ID})
		return err == nil && len(list) == 1 && list[0].Status == jobs.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	stored, err := a.Repo.GetUpload(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UploadStatusDone, stored.Status)

	txs, err := a.Repo.ListTransactionsByUpload(ctx, upload.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 2)

	pending, err := a.Repo.ListPendingUploads(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestHandleJob_UnexpectedType(t *testing.T) {
	a := &App{}
	err := a.HandleJob(context.Background(), nil)
	assert.ErrorContains(t, err, "unexpected job type")
}
