package parser

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/logger"
	"github.com/dvloznov/statement-ingest/internal/normalize"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// headerScanRows is how many leading rows of a table may hold the header.
const headerScanRows = 5

// Table is a grid of cell text extracted from a statement.
type Table struct {
	Rows [][]string
	// SerialDates allows date cells holding spreadsheet date serials.
	SerialDates bool
}

// ColumnKeywords lists lower-case header fragments for each column role.
type ColumnKeywords struct {
	Date        []string
	Description []string
	Amount      []string
	Income      []string
	Expense     []string
}

// Layout describes how one bank lays out its statement tables.
type Layout struct {
	// HeaderKeywords identify the header row; any fragment in the row text is enough.
	HeaderKeywords []string
	Columns        ColumnKeywords
	Counterparty   CounterpartyExtractor
}

// SkipReason says why a row produced no transaction.
type SkipReason string

const (
	SkipBlank     SkipReason = "blank row"
	SkipShortRow  SkipReason = "short row"
	SkipBadDate   SkipReason = "unparseable date"
	SkipNoAmount  SkipReason = "no amount"
	SkipBadAmount SkipReason = "unparseable amount"
)

// RowSkipped describes a table row that was left out.
type RowSkipped struct {
	Row    int
	Reason SkipReason
	Err    error
}

func (e *RowSkipped) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("row %d skipped: %s: %v", e.Row, e.Reason, e.Err)
	}
	return fmt.Sprintf("row %d skipped: %s", e.Row, e.Reason)
}

func (e *RowSkipped) Unwrap() error { return e.Err }

// RowResult is the outcome for one data row: a transaction or a skip.
type RowResult struct {
	Transaction *domain.ParsedTransaction
	Skipped     *RowSkipped
}

type columns struct {
	date, description, amount, income, expense int
}

func (c columns) hasPair() bool { return c.income >= 0 && c.expense >= 0 }

// hasSignedAmount reports whether the amount column is distinct from the
// income/expense pair, so it can serve as a fallback.
func (c columns) hasSignedAmount() bool {
	if c.amount < 0 {
		return false
	}
	if c.hasPair() {
		return c.amount != c.income && c.amount != c.expense
	}
	return true
}

// findHeader returns the index of the header row, or -1.
func (l Layout) findHeader(rows [][]string) int {
	for i := 0; i < len(rows) && i < headerScanRows; i++ {
		text := strings.ToLower(strings.Join(rows[i], " "))
		for _, kw := range l.HeaderKeywords {
			if strings.Contains(text, kw) {
				return i
			}
		}
	}
	return -1
}

func findColumn(header []string, keywords []string) int {
	for i, cell := range header {
		for _, kw := range keywords {
			if strings.Contains(cell, kw) {
				return i
			}
		}
	}
	return -1
}

func (l Layout) resolveColumns(header []string) columns {
	lower := make([]string, len(header))
	for i, h := range header {
		lower[i] = strings.ToLower(strings.TrimSpace(h))
	}
	return columns{
		date:        findColumn(lower, l.Columns.Date),
		description: findColumn(lower, l.Columns.Description),
		amount:      findColumn(lower, l.Columns.Amount),
		income:      findColumn(lower, l.Columns.Income),
		expense:     findColumn(lower, l.Columns.Expense),
	}
}

// Evaluate runs the header/column heuristic over one table and returns a
// result for every row after the header. A table without a recognizable
// header or date column yields no results.
func (l Layout) Evaluate(t Table) []RowResult {
	if len(t.Rows) < 2 {
		return nil
	}
	headerIdx := l.findHeader(t.Rows)
	if headerIdx < 0 {
		return nil
	}
	cols := l.resolveColumns(t.Rows[headerIdx])
	if cols.date < 0 {
		return nil
	}

	results := make([]RowResult, 0, len(t.Rows)-headerIdx-1)
	for i := headerIdx + 1; i < len(t.Rows); i++ {
		tx, skip := l.evaluateRow(i, t.Rows[i], cols, t.SerialDates)
		results = append(results, RowResult{Transaction: tx, Skipped: skip})
	}
	return results
}

func (l Layout) evaluateRow(idx int, row []string, cols columns, serialDates bool) (*domain.ParsedTransaction, *RowSkipped) {
	skip := func(reason SkipReason, err error) (*domain.ParsedTransaction, *RowSkipped) {
		return nil, &RowSkipped{Row: idx, Reason: reason, Err: err}
	}

	if isBlank(row) {
		return skip(SkipBlank, nil)
	}
	if len(row) <= cols.date || len(row) <= cols.description {
		return skip(SkipShortRow, nil)
	}

	date, err := parseCellDate(row[cols.date], serialDates)
	if err != nil {
		return skip(SkipBadDate, err)
	}

	amount, txType, reason, err := readAmount(row, cols)
	if reason != "" {
		return skip(reason, err)
	}

	var description string
	if cols.description >= 0 {
		description = strings.TrimSpace(row[cols.description])
	}

	return &domain.ParsedTransaction{
		Amount:       amount,
		Type:         txType,
		Date:         date,
		Description:  description,
		Counterparty: l.Counterparty.Extract(description),
	}, nil
}

// readAmount applies the income/expense pair first (income wins when both
// are filled) and falls back to a signed amount column.
func readAmount(row []string, cols columns) (decimal.Decimal, domain.TransactionType, SkipReason, error) {
	if cols.hasPair() {
		income, ok, err := normalize.ParseOptionalAmount(cell(row, cols.income))
		if err != nil {
			return decimal.Zero, "", SkipBadAmount, err
		}
		if ok && !income.IsZero() {
			return income.Abs(), domain.TransactionTypeIncome, "", nil
		}

		expense, ok, err := normalize.ParseOptionalAmount(cell(row, cols.expense))
		if err != nil {
			return decimal.Zero, "", SkipBadAmount, err
		}
		if ok && !expense.IsZero() {
			return expense.Abs(), domain.TransactionTypeExpense, "", nil
		}
	}

	if !cols.hasSignedAmount() {
		return decimal.Zero, "", SkipNoAmount, nil
	}

	signed, ok, err := normalize.ParseOptionalAmount(cell(row, cols.amount))
	if err != nil {
		return decimal.Zero, "", SkipBadAmount, err
	}
	if !ok {
		return decimal.Zero, "", SkipNoAmount, nil
	}
	return signed.Abs(), domain.TypeForSignedAmount(signed), "", nil
}

// parseCellDate parses a date cell. Spreadsheet serials (days since 1899-12-30)
// are accepted when serial is true and the text is not a date string.
func parseCellDate(s string, serial bool) (time.Time, error) {
	t, err := normalize.ParseDate(s)
	if err == nil || !serial {
		return t, err
	}

	v, convErr := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if convErr != nil || v < 1 {
		return time.Time{}, err
	}
	dt, convErr := excelize.ExcelDateToTime(v, false)
	if convErr != nil {
		return time.Time{}, err
	}
	return time.Date(dt.Year(), dt.Month(), dt.Day(), 0, 0, 0, 0, time.UTC), nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Transactions evaluates every table and returns the parsed transactions in
// order. Skipped rows are logged at debug level.
func (l Layout) Transactions(ctx context.Context, tables []Table) []domain.ParsedTransaction {
	log := logger.FromContext(ctx)

	var out []domain.ParsedTransaction
	for ti, t := range tables {
		for _, r := range l.Evaluate(t) {
			if r.Transaction != nil {
				out = append(out, *r.Transaction)
				continue
			}
			if r.Skipped.Reason == SkipBlank {
				continue
			}
			log.Debug().
				Int("table", ti).
				Int("row", r.Skipped.Row).
				Str("reason", string(r.Skipped.Reason)).
				AnErr("cause", r.Skipped.Err).
				Msg("Skipping statement row")
		}
	}
	return out
}
