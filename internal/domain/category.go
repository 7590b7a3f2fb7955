package domain

import (
	"github.com/google/uuid"
)

// CategoryType is the kind of money flow a category groups.
type CategoryType string

const (
	CategoryTypeIncome  CategoryType = "income"
	CategoryTypeExpense CategoryType = "expense"
)

// Category groups transactions. A nil UserID means a shared system category.
type Category struct {
	ID     uuid.UUID
	UserID *uuid.UUID
	Name   string
	Type   CategoryType
	Icon   string
	Color  string
}

// IsSystem reports whether the category is shared by all users.
func (c Category) IsSystem() bool { return c.UserID == nil }

// MatchType selects how a rule pattern is tested against text.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchContains MatchType = "contains"
	MatchRegex    MatchType = "regex"
)

// Valid reports whether m is a known match type.
func (m MatchType) Valid() bool {
	switch m {
	case MatchExact, MatchContains, MatchRegex:
		return true
	}
	return false
}

// CategorizationRule assigns CategoryID to transactions whose text matches
// Pattern. A nil UserID makes it a system-wide default rule. Higher Priority
// is evaluated first within the same ownership group.
type CategorizationRule struct {
	ID         uuid.UUID
	UserID     *uuid.UUID
	CategoryID uuid.UUID
	Pattern    string
	MatchType  MatchType
	Priority   int
}

// IsSystem reports whether the rule applies to every user.
func (r CategorizationRule) IsSystem() bool { return r.UserID == nil }

// DefaultCategories are the system categories seeded into a fresh database.
var DefaultCategories = []Category{
	{ID: uuid.MustParse("6f0c5a9e-2b1d-4c8e-8f7a-1d2e3c4b0001"), Name: "Salary", Type: CategoryTypeIncome, Icon: "briefcase", Color: "#4CAF50"},
	{ID: uuid.MustParse("6f0c5a9e-2b1d-4c8e-8f7a-1d2e3c4b0002"), Name: "Transfers In", Type: CategoryTypeIncome, Icon: "arrow-down", Color: "#8BC34A"},
	{ID: uuid.MustParse("6f0c5a9e-2b1d-4c8e-8f7a-1d2e3c4b0003"), Name: "Groceries", Type: CategoryTypeExpense, Icon: "cart", Color: "#FF9800"},
	{ID: uuid.MustParse("6f0c5a9e-2b1d-4c8e-8f7a-1d2e3c4b0004"), Name: "Cafes & Restaurants", Type: CategoryTypeExpense, Icon: "coffee", Color: "#795548"},
	{ID: uuid.MustParse("6f0c5a9e-2b1d-4c8e-8f7a-1d2e3c4b0005"), Name: "Transport", Type: CategoryTypeExpense, Icon: "car", Color: "#2196F3"},
	{ID: uuid.MustParse("6f0c5a9e-2b1d-4c8e-8f7a-1d2e3c4b0006"), Name: "Utilities", Type: CategoryTypeExpense, Icon: "bolt", Color: "#9C27B0"},
	{ID: uuid.MustParse("6f0c5a9e-2b1d-4c8e-8f7a-1d2e3c4b0007"), Name: "Mobile & Internet", Type: CategoryTypeExpense, Icon: "phone", Color: "#3F51B5"},
	{ID: uuid.MustParse("6f0c5a9e-2b1d-4c8e-8f7a-1d2e3c4b0008"), Name: "Cash Withdrawal", Type: CategoryTypeExpense, Icon: "cash", Color: "#607D8B"},
	{ID: uuid.MustParse("6f0c5a9e-2b1d-4c8e-8f7a-1d2e3c4b0009"), Name: "Transfers Out", Type: CategoryTypeExpense, Icon: "arrow-up", Color: "#F44336"},
}
