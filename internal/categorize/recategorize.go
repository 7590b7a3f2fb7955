package categorize

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/google/uuid"
)

// CategoryChange assigns a new category to one transaction.
type CategoryChange struct {
	TransactionID uuid.UUID
	CategoryID    uuid.UUID
}

// TransactionStore gives Recategorize access to a user's transactions.
type TransactionStore interface {
	// ListAutoCategorized returns the transactions in the user's accounts
	// that have not been edited manually, limited to ids when ids is non-empty.
	ListAutoCategorized(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]domain.Transaction, error)
	// ApplyCategoryChanges stores all changes in one unit of work.
	ApplyCategoryChanges(ctx context.Context, changes []CategoryChange) error
}

// Recategorize re-runs the rules over the user's non-edited transactions,
// optionally restricted to ids, and returns how many changed category.
// Transactions no rule matches keep their current category, so running it
// twice in a row updates nothing the second time.
func (e *Engine) Recategorize(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (int, error) {
	if e.txs == nil {
		return 0, errors.New("recategorize: no transaction store configured")
	}

	set, err := e.ForUser(ctx, userID)
	if err != nil {
		return 0, err
	}

	txs, err := e.txs.ListAutoCategorized(ctx, userID, ids)
	if err != nil {
		return 0, fmt.Errorf("recategorize: list transactions: %w", err)
	}

	var changes []CategoryChange
	for _, tx := range txs {
		if tx.IsEdited {
			continue
		}
		cat := set.Categorize(ctx, tx.Description, tx.Counterparty)
		if cat == nil {
			continue
		}
		if tx.CategoryID != nil && *tx.CategoryID == *cat {
			continue
		}
		changes = append(changes, CategoryChange{TransactionID: tx.ID, CategoryID: *cat})
	}

	if len(changes) == 0 {
		return 0, nil
	}
	if err := e.txs.ApplyCategoryChanges(ctx, changes); err != nil {
		return 0, fmt.Errorf("recategorize: apply changes: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("user_id", userID.String()).
		Int("examined", len(txs)).
		Int("updated", len(changes)).
		Msg("Recategorized transactions")

	return len(changes), nil
}
