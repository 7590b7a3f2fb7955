package sqlstore

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bank is a supported statement issuer.
type Bank struct {
	ID         string `gorm:"primaryKey;size:36"`
	Name       string `gorm:"size:100;not null"`
	ParserType string `gorm:"size:50;not null"`
}

// Account is a user's account at a bank.
type Account struct {
	ID        string `gorm:"primaryKey;size:36"`
	UserID    string `gorm:"size:36;not null;index"`
	BankID    string `gorm:"size:36;not null"`
	Name      string `gorm:"size:100;not null"`
	Currency  string `gorm:"size:3;not null"`
	CreatedAt time.Time
}

// Upload tracks one statement file.
type Upload struct {
	ID           string `gorm:"primaryKey;size:36"`
	UserID       string `gorm:"size:36;not null;index"`
	AccountID    string `gorm:"size:36;not null"`
	Filename     string `gorm:"size:255;not null"`
	FileKey      string `gorm:"size:500;not null"`
	Status       string `gorm:"size:20;not null;index"`
	ErrorMessage *string
	UploadedAt   time.Time `gorm:"not null"`
	ProcessedAt  *time.Time
}

// Category groups transactions. A NULL user id marks a system category.
type Category struct {
	ID     string  `gorm:"primaryKey;size:36"`
	UserID *string `gorm:"size:36;index"`
	Name   string  `gorm:"size:100;not null"`
	Type   string  `gorm:"size:10;not null"`
	Icon   string  `gorm:"size:50"`
	Color  string  `gorm:"size:20"`
}

// Rule is a categorization rule. A NULL user id marks a system rule.
type Rule struct {
	ID         string  `gorm:"primaryKey;size:36"`
	UserID     *string `gorm:"size:36;index"`
	CategoryID string  `gorm:"size:36;not null"`
	Pattern    string  `gorm:"size:255;not null"`
	MatchType  string  `gorm:"size:20;not null"`
	Priority   int     `gorm:"not null;default:0"`
	CreatedAt  time.Time
}

func (Rule) TableName() string { return "categorization_rules" }

// Transaction is a stored statement line. Amounts are kept as text so no
// precision is lost.
type Transaction struct {
	ID           string          `gorm:"primaryKey;size:36"`
	AccountID    string          `gorm:"size:36;not null;index"`
	UploadID     *string         `gorm:"size:36;index"`
	CategoryID   *string         `gorm:"size:36"`
	Amount       decimal.Decimal `gorm:"type:text;not null"`
	Type         string          `gorm:"size:10;not null"`
	Date         time.Time       `gorm:"not null"`
	Description  string
	Counterparty string `gorm:"size:255"`

	IsEdited             bool             `gorm:"not null;default:false"`
	OriginalAmount       *decimal.Decimal `gorm:"type:text"`
	OriginalDescription  string
	OriginalCounterparty string `gorm:"size:255"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
