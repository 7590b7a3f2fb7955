// Package sqlstore is a gorm-backed store for running everything on a single
// machine against a sqlite file.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/statement-ingest/internal/categorize"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/ingest"
	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

const insertBatchSize = 200

// ErrCategoryNotAllowed is returned when a rule targets another user's category.
var ErrCategoryNotAllowed = errors.New("category not found or owned by another user")

// Store implements the repositories on top of gorm.
type Store struct {
	db *gorm.DB
}

// Open connects to the sqlite database at path. Writers are serialized
// through a single connection.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate creates the schema and seeds the default banks and system
// categories. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&Bank{}, &Account{}, &Upload{}, &Category{}, &Rule{}, &Transaction{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	banks := make([]Bank, 0, len(domain.DefaultBanks))
	for _, b := range domain.DefaultBanks {
		banks = append(banks, Bank{ID: b.ID.String(), Name: b.Name, ParserType: b.ParserType})
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&banks).Error; err != nil {
		return fmt.Errorf("failed to seed banks: %w", err)
	}

	categories := make([]Category, 0, len(domain.DefaultCategories))
	for _, c := range domain.DefaultCategories {
		categories = append(categories, *categoryModel(c))
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&categories).Error; err != nil {
		return fmt.Errorf("failed to seed categories: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

// CreateUpload inserts a new upload.
func (s *Store) CreateUpload(ctx context.Context, u *domain.Upload) error {
	if err := s.db.WithContext(ctx).Create(uploadModel(u)).Error; err != nil {
		return fmt.Errorf("failed to save upload: %w", err)
	}
	return nil
}

// GetUpload returns the upload or domain.ErrNotFound.
func (s *Store) GetUpload(ctx context.Context, id uuid.UUID) (*domain.Upload, error) {
	var m Upload
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id.String()).Error; err != nil {
		return nil, notFound(err)
	}
	return m.toDomain()
}

func uploadStatusUpdates(u *domain.Upload) map[string]any {
	return map[string]any{
		"status":        string(u.Status),
		"error_message": optionalString(u.ErrorMessage),
		"processed_at":  u.ProcessedAt,
	}
}

func saveUploadStatus(tx *gorm.DB, u *domain.Upload) error {
	res := tx.Model(&Upload{}).Where("id = ?", u.ID.String()).Updates(uploadStatusUpdates(u))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SaveUploadStatus updates status, error message and processed timestamp.
func (s *Store) SaveUploadStatus(ctx context.Context, u *domain.Upload) error {
	if err := saveUploadStatus(s.db.WithContext(ctx), u); err != nil {
		return fmt.Errorf("failed to save upload status: %w", err)
	}
	return nil
}

// ListPendingUploads returns up to limit pending uploads, oldest first.
func (s *Store) ListPendingUploads(ctx context.Context, limit int) ([]domain.Upload, error) {
	q := s.db.WithContext(ctx).
		Where("status = ?", string(domain.UploadStatusPending)).
		Order("uploaded_at")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var models []Upload
	err := q.Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending uploads: %w", err)
	}

	uploads := make([]domain.Upload, 0, len(models))
	for i := range models {
		u, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, *u)
	}
	return uploads, nil
}

// CreateAccount inserts a new account.
func (s *Store) CreateAccount(ctx context.Context, a *domain.Account) error {
	m := &Account{
		ID:       a.ID.String(),
		UserID:   a.UserID.String(),
		BankID:   a.BankID.String(),
		Name:     a.Name,
		Currency: a.Currency,
	}
	if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
		return fmt.Errorf("failed to save account: %w", err)
	}
	return nil
}

// GetAccount returns the account or domain.ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var m Account
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id.String()).Error; err != nil {
		return nil, notFound(err)
	}
	return m.toDomain()
}

// GetBank returns the bank or domain.ErrNotFound.
func (s *Store) GetBank(ctx context.Context, id uuid.UUID) (*domain.Bank, error) {
	var m Bank
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id.String()).Error; err != nil {
		return nil, notFound(err)
	}
	return m.toDomain()
}

// ListBanks returns all banks ordered by name.
func (s *Store) ListBanks(ctx context.Context) ([]domain.Bank, error) {
	var models []Bank
	if err := s.db.WithContext(ctx).Order("name").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list banks: %w", err)
	}
	banks := make([]domain.Bank, 0, len(models))
	for i := range models {
		b, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		banks = append(banks, *b)
	}
	return banks, nil
}

// ListCategories returns the system categories and the user's own.
func (s *Store) ListCategories(ctx context.Context, userID uuid.UUID) ([]domain.Category, error) {
	var models []Category
	err := s.db.WithContext(ctx).
		Where("user_id IS NULL OR user_id = ?", userID.String()).
		Order("type").Order("name").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	categories := make([]domain.Category, 0, len(models))
	for i := range models {
		c, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		categories = append(categories, *c)
	}
	return categories, nil
}

// ListRules returns the system rules and the user's own, user rules first
// and then by descending priority.
func (s *Store) ListRules(ctx context.Context, userID uuid.UUID) ([]domain.CategorizationRule, error) {
	var models []Rule
	err := s.db.WithContext(ctx).
		Where("user_id IS NULL OR user_id = ?", userID.String()).
		Order("CASE WHEN user_id IS NULL THEN 1 ELSE 0 END").
		Order("priority DESC").
		Order("created_at").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	rules := make([]domain.CategorizationRule, 0, len(models))
	for i := range models {
		r, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, nil
}

// CreateRule stores a rule owned by rule.UserID. The target category must be
// a system category or one owned by the same user.
func (s *Store) CreateRule(ctx context.Context, rule *domain.CategorizationRule) error {
	if err := categorize.ValidateRule(*rule); err != nil {
		return err
	}

	db := s.db.WithContext(ctx)
	q := db.Model(&Category{}).Where("id = ?", rule.CategoryID.String())
	if rule.UserID == nil {
		q = q.Where("user_id IS NULL")
	} else {
		q = q.Where("user_id IS NULL OR user_id = ?", rule.UserID.String())
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return fmt.Errorf("failed to check category: %w", err)
	}
	if n == 0 {
		return ErrCategoryNotAllowed
	}

	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	m := &Rule{
		ID:         rule.ID.String(),
		UserID:     optionalID(rule.UserID),
		CategoryID: rule.CategoryID.String(),
		Pattern:    rule.Pattern,
		MatchType:  string(rule.MatchType),
		Priority:   rule.Priority,
	}
	if err := db.Create(m).Error; err != nil {
		return fmt.Errorf("failed to save rule: %w", err)
	}
	return nil
}

// DeleteRule removes one of the user's own rules and reports whether it
// existed. System rules are never deleted.
func (s *Store) DeleteRule(ctx context.Context, userID, ruleID uuid.UUID) (bool, error) {
	res := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", ruleID.String(), userID.String()).
		Delete(&Rule{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete rule: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// CommitUpload replaces the upload's transactions and saves its status in
// one database transaction.
func (s *Store) CommitUpload(ctx context.Context, u *domain.Upload, txs []*domain.Transaction) error {
	models := make([]*Transaction, 0, len(txs))
	for _, tx := range txs {
		models = append(models, transactionModel(tx))
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("upload_id = ?", u.ID.String()).Delete(&Transaction{}).Error; err != nil {
			return err
		}
		if len(models) > 0 {
			if err := tx.CreateInBatches(models, insertBatchSize).Error; err != nil {
				return err
			}
		}
		return saveUploadStatus(tx, u)
	})
	if err != nil {
		return fmt.Errorf("failed to commit upload: %w", err)
	}
	return nil
}

// ListTransactionsByUpload returns the transactions created by an upload.
func (s *Store) ListTransactionsByUpload(ctx context.Context, uploadID uuid.UUID) ([]domain.Transaction, error) {
	var models []Transaction
	err := s.db.WithContext(ctx).
		Where("upload_id = ?", uploadID.String()).
		Order("date").Order("created_at").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return transactionsOf(models)
}

// ListAutoCategorized returns the user's transactions that were not edited
// manually, limited to ids when ids is non-empty.
func (s *Store) ListAutoCategorized(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]domain.Transaction, error) {
	q := s.db.WithContext(ctx).
		Model(&Transaction{}).
		Select("transactions.*").
		Joins("JOIN accounts ON accounts.id = transactions.account_id").
		Where("accounts.user_id = ? AND transactions.is_edited = ?", userID.String(), false)
	if len(ids) > 0 {
		scope := make([]string, len(ids))
		for i, id := range ids {
			scope[i] = id.String()
		}
		q = q.Where("transactions.id IN ?", scope)
	}

	var models []Transaction
	if err := q.Order("transactions.date").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return transactionsOf(models)
}

// ApplyCategoryChanges updates all categories in one database transaction.
func (s *Store) ApplyCategoryChanges(ctx context.Context, changes []categorize.CategoryChange) error {
	if len(changes) == 0 {
		return nil
	}
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range changes {
			err := tx.Model(&Transaction{}).
				Where("id = ?", c.TransactionID.String()).
				Updates(map[string]any{"category_id": c.CategoryID.String(), "updated_at": now}).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to apply category changes: %w", err)
	}
	return nil
}

// SetEdited marks a transaction as manually edited so recategorization
// leaves it alone.
func (s *Store) SetEdited(ctx context.Context, id uuid.UUID, edited bool) error {
	res := s.db.WithContext(ctx).Model(&Transaction{}).Where("id = ?", id.String()).Update("is_edited", edited)
	if res.Error != nil {
		return fmt.Errorf("failed to update transaction: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func transactionsOf(models []Transaction) ([]domain.Transaction, error) {
	txs := make([]domain.Transaction, 0, len(models))
	for i := range models {
		tx, err := models[i].toDomain()
		if err != nil {
			return nil, err
		}
		txs = append(txs, *tx)
	}
	return txs, nil
}

var (
	_ ingest.Repository           = (*Store)(nil)
	_ categorize.RuleSource       = (*Store)(nil)
	_ categorize.TransactionStore = (*Store)(nil)
	_ jobs.PendingUploadLister    = (*Store)(nil)
)
