package ingest_test

import (
	"context"
	"sync"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/google/uuid"
)

// memoryRepo is an in-memory Repository that records status transitions.
type memoryRepo struct {
	mu       sync.Mutex
	uploads  map[uuid.UUID]domain.Upload
	accounts map[uuid.UUID]domain.Account
	banks    map[uuid.UUID]domain.Bank
	txs      map[uuid.UUID][]domain.Transaction
	statuses []domain.UploadStatus
	commits  int

	GetAccountFunc   func(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	CommitUploadFunc func(ctx context.Context, upload *domain.Upload, txs []*domain.Transaction) error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		uploads:  make(map[uuid.UUID]domain.Upload),
		accounts: make(map[uuid.UUID]domain.Account),
		banks:    make(map[uuid.UUID]domain.Bank),
		txs:      make(map[uuid.UUID][]domain.Transaction),
	}
}

func (r *memoryRepo) GetUpload(ctx context.Context, id uuid.UUID) (*domain.Upload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.uploads[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &u, nil
}

func (r *memoryRepo) SaveUploadStatus(ctx context.Context, upload *domain.Upload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads[upload.ID] = *upload
	r.statuses = append(r.statuses, upload.Status)
	return nil
}

func (r *memoryRepo) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	if r.GetAccountFunc != nil {
		return r.GetAccountFunc(ctx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (r *memoryRepo) GetBank(ctx context.Context, id uuid.UUID) (*domain.Bank, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.banks[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &b, nil
}

func (r *memoryRepo) CommitUpload(ctx context.Context, upload *domain.Upload, txs []*domain.Transaction) error {
	if r.CommitUploadFunc != nil {
		if err := r.CommitUploadFunc(ctx, upload, txs); err != nil {
			return err
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rows := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, *tx)
	}
	r.txs[upload.ID] = rows
	r.uploads[upload.ID] = *upload
	r.statuses = append(r.statuses, upload.Status)
	r.commits++
	return nil
}

func (r *memoryRepo) upload(id uuid.UUID) domain.Upload {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uploads[id]
}

func (r *memoryRepo) transactions(id uuid.UUID) []domain.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txs[id]
}

// MockObjectStore is a mock implementation of ObjectStore.
type MockObjectStore struct {
	mu      sync.Mutex
	calls   int
	GetFunc func(ctx context.Context, key string, call int) ([]byte, error)
}

func (m *MockObjectStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.mu.Unlock()
	if m.GetFunc != nil {
		return m.GetFunc(ctx, key, call)
	}
	return []byte("statement"), nil
}

// MockRuleSource is a mock implementation of categorize.RuleSource.
type MockRuleSource struct {
	ListRulesFunc func(ctx context.Context, userID uuid.UUID) ([]domain.CategorizationRule, error)
}

func (m *MockRuleSource) ListRules(ctx context.Context, userID uuid.UUID) ([]domain.CategorizationRule, error) {
	if m.ListRulesFunc != nil {
		return m.ListRulesFunc(ctx, userID)
	}
	return nil, nil
}
