package sqlstore

import (
	"fmt"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/google/uuid"
)

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalID(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}

func parseOptionalID(s *string) (*uuid.UUID, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(*s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseIDs(fields map[string]string) (map[string]uuid.UUID, error) {
	out := make(map[string]uuid.UUID, len(fields))
	for name, s := range fields {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		out[name] = id
	}
	return out, nil
}

func uploadModel(u *domain.Upload) *Upload {
	return &Upload{
		ID:           u.ID.String(),
		UserID:       u.UserID.String(),
		AccountID:    u.AccountID.String(),
		Filename:     u.Filename,
		FileKey:      u.FileKey,
		Status:       string(u.Status),
		ErrorMessage: optionalString(u.ErrorMessage),
		UploadedAt:   u.UploadedAt,
		ProcessedAt:  u.ProcessedAt,
	}
}

func (m *Upload) toDomain() (*domain.Upload, error) {
	ids, err := parseIDs(map[string]string{"id": m.ID, "user_id": m.UserID, "account_id": m.AccountID})
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	u := &domain.Upload{
		ID:          ids["id"],
		UserID:      ids["user_id"],
		AccountID:   ids["account_id"],
		Filename:    m.Filename,
		FileKey:     m.FileKey,
		Status:      domain.UploadStatus(m.Status),
		UploadedAt:  m.UploadedAt,
		ProcessedAt: m.ProcessedAt,
	}
	if m.ErrorMessage != nil {
		u.ErrorMessage = *m.ErrorMessage
	}
	return u, nil
}

func (m *Account) toDomain() (*domain.Account, error) {
	ids, err := parseIDs(map[string]string{"id": m.ID, "user_id": m.UserID, "bank_id": m.BankID})
	if err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}
	return &domain.Account{ID: ids["id"], UserID: ids["user_id"], BankID: ids["bank_id"], Name: m.Name, Currency: m.Currency}, nil
}

func (m *Bank) toDomain() (*domain.Bank, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("bank: id: %w", err)
	}
	return &domain.Bank{ID: id, Name: m.Name, ParserType: m.ParserType}, nil
}

func categoryModel(c domain.Category) *Category {
	return &Category{
		ID:     c.ID.String(),
		UserID: optionalID(c.UserID),
		Name:   c.Name,
		Type:   string(c.Type),
		Icon:   c.Icon,
		Color:  c.Color,
	}
}

func (m *Category) toDomain() (*domain.Category, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return nil, fmt.Errorf("category: id: %w", err)
	}
	userID, err := parseOptionalID(m.UserID)
	if err != nil {
		return nil, fmt.Errorf("category: user_id: %w", err)
	}
	return &domain.Category{ID: id, UserID: userID, Name: m.Name, Type: domain.CategoryType(m.Type), Icon: m.Icon, Color: m.Color}, nil
}

func (m *Rule) toDomain() (*domain.CategorizationRule, error) {
	ids, err := parseIDs(map[string]string{"id": m.ID, "category_id": m.CategoryID})
	if err != nil {
		return nil, fmt.Errorf("rule: %w", err)
	}
	userID, err := parseOptionalID(m.UserID)
	if err != nil {
		return nil, fmt.Errorf("rule: user_id: %w", err)
	}
	return &domain.CategorizationRule{
		ID:         ids["id"],
		UserID:     userID,
		CategoryID: ids["category_id"],
		Pattern:    m.Pattern,
		MatchType:  domain.MatchType(m.MatchType),
		Priority:   m.Priority,
	}, nil
}

func transactionModel(tx *domain.Transaction) *Transaction {
	return &Transaction{
		ID:                   tx.ID.String(),
		AccountID:            tx.AccountID.String(),
		UploadID:             optionalID(tx.UploadID),
		CategoryID:           optionalID(tx.CategoryID),
		Amount:               tx.Amount,
		Type:                 string(tx.Type),
		Date:                 tx.Date,
		Description:          tx.Description,
		Counterparty:         tx.Counterparty,
		IsEdited:             tx.IsEdited,
		OriginalAmount:       tx.OriginalAmount,
		OriginalDescription:  tx.OriginalDescription,
		OriginalCounterparty: tx.OriginalCounterparty,
		CreatedAt:            tx.CreatedAt,
		UpdatedAt:            tx.UpdatedAt,
	}
}

func (m *Transaction) toDomain() (*domain.Transaction, error) {
	ids, err := parseIDs(map[string]string{"id": m.ID, "account_id": m.AccountID})
	if err != nil {
		return nil, fmt.Errorf("transaction: %w", err)
	}
	uploadID, err := parseOptionalID(m.UploadID)
	if err != nil {
		return nil, fmt.Errorf("transaction: upload_id: %w", err)
	}
	categoryID, err := parseOptionalID(m.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("transaction: category_id: %w", err)
	}
	return &domain.Transaction{
		ID:                   ids["id"],
		AccountID:            ids["account_id"],
		UploadID:             uploadID,
		CategoryID:           categoryID,
		Amount:               m.Amount,
		Type:                 domain.TransactionType(m.Type),
		Date:                 m.Date.UTC(),
		Description:          m.Description,
		Counterparty:         m.Counterparty,
		IsEdited:             m.IsEdited,
		OriginalAmount:       m.OriginalAmount,
		OriginalDescription:  m.OriginalDescription,
		OriginalCounterparty: m.OriginalCounterparty,
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}, nil
}
