package bigquery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/statement-ingest/internal/categorize"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/google/uuid"
)

type CategoryRow struct {
	CategoryID string              `bigquery:"category_id"` // REQUIRED
	UserID     bigquery.NullString `bigquery:"user_id"`     // NULLABLE, NULL for system categories
	Name       string              `bigquery:"name"`        // REQUIRED
	Type       string              `bigquery:"type"`        // REQUIRED
	Icon       bigquery.NullString `bigquery:"icon"`        // NULLABLE
	Color      bigquery.NullString `bigquery:"color"`       // NULLABLE
}

type RuleRow struct {
	RuleID     string              `bigquery:"rule_id"`     // REQUIRED
	UserID     bigquery.NullString `bigquery:"user_id"`     // NULLABLE, NULL for system rules
	CategoryID string              `bigquery:"category_id"` // REQUIRED
	Pattern    string              `bigquery:"pattern"`     // REQUIRED
	MatchType  string              `bigquery:"match_type"`  // REQUIRED
	Priority   int64               `bigquery:"priority"`    // REQUIRED
	CreatedAt  time.Time           `bigquery:"created_at"`  // REQUIRED
}

// ErrCategoryNotAllowed is returned when a rule targets another user's category.
var ErrCategoryNotAllowed = errors.New("category not found or owned by another user")

func (row *CategoryRow) toDomain() (*domain.Category, error) {
	id, err := uuid.Parse(row.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("category_id: %w", err)
	}
	userID, err := parseNullUUID(row.UserID)
	if err != nil {
		return nil, fmt.Errorf("user_id: %w", err)
	}
	return &domain.Category{
		ID:     id,
		UserID: userID,
		Name:   row.Name,
		Type:   domain.CategoryType(row.Type),
		Icon:   row.Icon.StringVal,
		Color:  row.Color.StringVal,
	}, nil
}

func (row *RuleRow) params() []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "rule_id", Value: row.RuleID},
		{Name: "user_id", Value: row.UserID},
		{Name: "category_id", Value: row.CategoryID},
		{Name: "pattern", Value: row.Pattern},
		{Name: "match_type", Value: row.MatchType},
		{Name: "priority", Value: row.Priority},
		{Name: "created_at", Value: row.CreatedAt},
	}
}

func (row *RuleRow) toDomain() (*domain.CategorizationRule, error) {
	id, err := uuid.Parse(row.RuleID)
	if err != nil {
		return nil, fmt.Errorf("rule_id: %w", err)
	}
	userID, err := parseNullUUID(row.UserID)
	if err != nil {
		return nil, fmt.Errorf("user_id: %w", err)
	}
	categoryID, err := uuid.Parse(row.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("category_id: %w", err)
	}
	return &domain.CategorizationRule{
		ID:         id,
		UserID:     userID,
		CategoryID: categoryID,
		Pattern:    row.Pattern,
		MatchType:  domain.MatchType(row.MatchType),
		Priority:   int(row.Priority),
	}, nil
}

// ListCategories returns the system categories and the user's own.
func (r *Repository) ListCategories(ctx context.Context, userID uuid.UUID) ([]domain.Category, error) {
	rows, err := readAll[CategoryRow](ctx, r, `
		SELECT category_id, user_id, name, type, icon, color
		FROM `+r.table(categoriesTable)+`
		WHERE user_id IS NULL OR user_id = @user_id
		ORDER BY type, name
	`, bigquery.QueryParameter{Name: "user_id", Value: userID.String()})
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}

	categories := make([]domain.Category, 0, len(rows))
	for _, row := range rows {
		c, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("ListCategories: %w", err)
		}
		categories = append(categories, *c)
	}
	return categories, nil
}

// ListRules returns the system rules and the user's own, user rules first
// and then by descending priority.
func (r *Repository) ListRules(ctx context.Context, userID uuid.UUID) ([]domain.CategorizationRule, error) {
	rows, err := readAll[RuleRow](ctx, r, `
		SELECT rule_id, user_id, category_id, pattern, match_type, priority, created_at
		FROM `+r.table(rulesTable)+`
		WHERE user_id IS NULL OR user_id = @user_id
		ORDER BY IF(user_id IS NULL, 1, 0), priority DESC, created_at
	`, bigquery.QueryParameter{Name: "user_id", Value: userID.String()})
	if err != nil {
		return nil, fmt.Errorf("ListRules: %w", err)
	}

	rules := make([]domain.CategorizationRule, 0, len(rows))
	for _, row := range rows {
		rule, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("ListRules: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, nil
}

// CreateRule stores a rule owned by rule.UserID. The target category must be
// a system category or one owned by the same user.
func (r *Repository) CreateRule(ctx context.Context, rule *domain.CategorizationRule) error {
	if err := categorize.ValidateRule(*rule); err != nil {
		return fmt.Errorf("CreateRule: %w", err)
	}

	owner := bigquery.NullString{}
	if rule.UserID != nil {
		owner = bigquery.NullString{StringVal: rule.UserID.String(), Valid: true}
	}

	type countRow struct {
		N int64 `bigquery:"n"`
	}
	found, err := readOne[countRow](ctx, r, `
		SELECT COUNT(*) AS n
		FROM `+r.table(categoriesTable)+`
		WHERE category_id = @category_id
		  AND (user_id IS NULL OR user_id = @user_id)
	`,
		bigquery.QueryParameter{Name: "category_id", Value: rule.CategoryID.String()},
		bigquery.QueryParameter{Name: "user_id", Value: owner},
	)
	if err != nil {
		return fmt.Errorf("CreateRule: %w", err)
	}
	if found.N == 0 {
		return fmt.Errorf("CreateRule: %w", ErrCategoryNotAllowed)
	}

	if rule.ID == uuid.Nil {
		rule.ID = uuid.New()
	}
	row := &RuleRow{
		RuleID:     rule.ID.String(),
		UserID:     owner,
		CategoryID: rule.CategoryID.String(),
		Pattern:    rule.Pattern,
		MatchType:  string(rule.MatchType),
		Priority:   int64(rule.Priority),
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.insert(ctx, rulesTable, row.params()); err != nil {
		return fmt.Errorf("CreateRule: %w", err)
	}
	return nil
}

// DeleteRule removes one of the user's own rules. System rules and other
// users' rules are never deleted; false is returned for them.
func (r *Repository) DeleteRule(ctx context.Context, userID, ruleID uuid.UUID) (bool, error) {
	n, err := r.execAffected(ctx, `
		DELETE FROM `+r.table(rulesTable)+`
		WHERE rule_id = @rule_id AND user_id = @user_id
	`,
		bigquery.QueryParameter{Name: "rule_id", Value: ruleID.String()},
		bigquery.QueryParameter{Name: "user_id", Value: userID.String()},
	)
	if err != nil {
		return false, fmt.Errorf("DeleteRule: %w", err)
	}
	return n > 0, nil
}

var _ categorize.RuleSource = (*Repository)(nil)
