// Package categorize assigns categories to transactions from user and system
// pattern rules.
package categorize

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/google/uuid"
)

// RuleSource loads the rules visible to a user: their own and the system ones.
type RuleSource interface {
	ListRules(ctx context.Context, userID uuid.UUID) ([]domain.CategorizationRule, error)
}

// RuleEvaluationError describes a rule whose pattern cannot be compiled.
// Such rules never match.
type RuleEvaluationError struct {
	RuleID  uuid.UUID
	Pattern string
	Err     error
}

func (e *RuleEvaluationError) Error() string {
	return fmt.Sprintf("rule %s: invalid pattern %q: %v", e.RuleID, e.Pattern, e.Err)
}

func (e *RuleEvaluationError) Unwrap() error { return e.Err }

type compiled struct {
	re  *regexp.Regexp
	err error
}

// Engine evaluates categorization rules. Compiled regular expressions are
// cached for the lifetime of the engine.
type Engine struct {
	rules RuleSource
	txs   TransactionStore

	mu       sync.Mutex
	patterns map[string]compiled
}

// NewEngine creates an engine reading rules from rules. txs is only needed
// for Recategorize and may be nil otherwise.
func NewEngine(rules RuleSource, txs TransactionStore) *Engine {
	return &Engine{
		rules:    rules,
		txs:      txs,
		patterns: make(map[string]compiled),
	}
}

// SortRules orders rules for evaluation: user-owned rules before system
// rules, then by descending priority. Ties keep their input order.
func SortRules(rules []domain.CategorizationRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		ui, uj := !rules[i].IsSystem(), !rules[j].IsSystem()
		if ui != uj {
			return ui
		}
		return rules[i].Priority > rules[j].Priority
	})
}

// ApplicableRules returns the user's rules and the system rules in
// evaluation order.
func (e *Engine) ApplicableRules(ctx context.Context, userID uuid.UUID) ([]domain.CategorizationRule, error) {
	all, err := e.rules.ListRules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list rules for user %s: %w", userID, err)
	}

	rules := make([]domain.CategorizationRule, 0, len(all))
	for _, r := range all {
		if r.IsSystem() || *r.UserID == userID {
			rules = append(rules, r)
		}
	}
	SortRules(rules)
	return rules, nil
}

// Match reports whether text satisfies rule, ignoring case. Empty text never
// matches. An invalid regex pattern is logged once and never matches.
func (e *Engine) Match(ctx context.Context, rule domain.CategorizationRule, text string) bool {
	if text == "" {
		return false
	}

	switch rule.MatchType {
	case domain.MatchExact:
		return strings.EqualFold(text, rule.Pattern)
	case domain.MatchContains:
		return strings.Contains(strings.ToLower(text), strings.ToLower(rule.Pattern))
	case domain.MatchRegex:
		re, err := e.compile(ctx, rule)
		if err != nil {
			return false
		}
		return re.MatchString(text)
	default:
		return false
	}
}

func (e *Engine) compile(ctx context.Context, rule domain.CategorizationRule) (*regexp.Regexp, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if c, ok := e.patterns[rule.Pattern]; ok {
		return c.re, c.err
	}

	re, err := regexp.Compile("(?i)" + rule.Pattern)
	if err != nil {
		err = &RuleEvaluationError{RuleID: rule.ID, Pattern: rule.Pattern, Err: err}
		log := logger.FromContext(ctx)
		log.Warn().Err(err).Str("rule_id", rule.ID.String()).Msg("Ignoring categorization rule with invalid pattern")
	}
	e.patterns[rule.Pattern] = compiled{re: re, err: err}
	return re, err
}

// RuleSet is a snapshot of the rules applicable to one user.
type RuleSet struct {
	engine *Engine
	rules  []domain.CategorizationRule
}

// ForUser loads the user's applicable rules once, for categorizing many
// transactions.
func (e *Engine) ForUser(ctx context.Context, userID uuid.UUID) (*RuleSet, error) {
	rules, err := e.ApplicableRules(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &RuleSet{engine: e, rules: rules}, nil
}

// Rules returns the snapshot in evaluation order.
func (s *RuleSet) Rules() []domain.CategorizationRule { return s.rules }

// Categorize returns the category of the first rule matching the description
// or, failing that, the counterparty. The first matching rule wins even if a
// later rule is more specific.
func (s *RuleSet) Categorize(ctx context.Context, description, counterparty string) *uuid.UUID {
	for _, rule := range s.rules {
		if s.engine.Match(ctx, rule, description) || s.engine.Match(ctx, rule, counterparty) {
			id := rule.CategoryID
			return &id
		}
	}
	return nil
}

// Categorize loads the user's rules and categorizes one transaction.
func (e *Engine) Categorize(ctx context.Context, userID uuid.UUID, description, counterparty string) (*uuid.UUID, error) {
	set, err := e.ForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return set.Categorize(ctx, description, counterparty), nil
}

// ValidateRule checks a rule before it is stored.
func ValidateRule(rule domain.CategorizationRule) error {
	if strings.TrimSpace(rule.Pattern) == "" {
		return errors.New("rule pattern is required")
	}
	if !rule.MatchType.Valid() {
		return fmt.Errorf("unknown match type %q", rule.MatchType)
	}
	if rule.MatchType == domain.MatchRegex {
		if _, err := regexp.Compile("(?i)" + rule.Pattern); err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
	}
	return nil
}
