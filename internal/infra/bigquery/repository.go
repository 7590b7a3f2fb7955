// Package bigquery stores uploads, accounts, rules and transactions in
// BigQuery.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/dvloznov/statement-ingest/internal/ingest"
	"github.com/dvloznov/statement-ingest/internal/jobs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"
)

const (
	uploadsTable      = "uploads"
	accountsTable     = "accounts"
	banksTable        = "banks"
	categoriesTable   = "categories"
	rulesTable        = "categorization_rules"
	transactionsTable = "transactions"
	numericScale      = 9
)

// DefaultDatasetID is used when no dataset is configured.
const DefaultDatasetID = "statements"

// Repository is the BigQuery-backed store. It holds a shared client so a
// connection is not created per operation.
type Repository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewRepository creates a repository with its own client.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return NewRepositoryWithClient(client, projectID, datasetID), nil
}

// NewRepositoryWithClient creates a repository around an existing client.
func NewRepositoryWithClient(client *bigquery.Client, projectID, datasetID string) *Repository {
	if datasetID == "" {
		datasetID = DefaultDatasetID
	}
	return &Repository{client: client, projectID: projectID, datasetID: datasetID}
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Client exposes the underlying client for migrations.
func (r *Repository) Client() *bigquery.Client {
	return r.client
}

// table returns the fully qualified, quoted table name.
func (r *Repository) table(name string) string {
	return "`" + r.projectID + "." + r.datasetID + "." + name + "`"
}

// exec runs a DML or script query and waits for it.
func (r *Repository) exec(ctx context.Context, sql string, params ...bigquery.QueryParameter) error {
	_, err := r.execAffected(ctx, sql, params...)
	return err
}

// execAffected is exec that also reports how many rows a DML statement touched.
func (r *Repository) execAffected(ctx context.Context, sql string, params ...bigquery.QueryParameter) (int64, error) {
	q := r.client.Query(sql)
	q.Parameters = params

	job, err := q.Run(ctx)
	if err != nil {
		return 0, fmt.Errorf("run query: %w", err)
	}

	status, err := job.Wait(ctx)
	if err != nil {
		return 0, fmt.Errorf("wait for job: %w", err)
	}

	if err := status.Err(); err != nil {
		return 0, fmt.Errorf("job error: %w", err)
	}

	if status.Statistics != nil {
		if qs, ok := status.Statistics.Details.(*bigquery.QueryStatistics); ok {
			return qs.NumDMLAffectedRows, nil
		}
	}
	return 0, nil
}

// insert adds one row using DML INSERT instead of the streaming API. Streamed
// rows sit in the streaming buffer where UPDATE and DELETE cannot reach them.
func (r *Repository) insert(ctx context.Context, table string, params []bigquery.QueryParameter) error {
	return r.exec(ctx, insertStatement(r.table(table), params), params...)
}

// insertStatement builds an INSERT with one column per parameter, named after it.
func insertStatement(table string, params []bigquery.QueryParameter) string {
	columns := make([]string, len(params))
	values := make([]string, len(params))
	for i, p := range params {
		columns[i] = p.Name
		values[i] = "@" + p.Name
	}
	return "INSERT INTO " + table + " (" + strings.Join(columns, ", ") + ") VALUES (" + strings.Join(values, ", ") + ")"
}

// readAll runs a query and decodes every result row into a T.
func readAll[T any](ctx context.Context, r *Repository, sql string, params ...bigquery.QueryParameter) ([]T, error) {
	q := r.client.Query(sql)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading query: %w", err)
	}

	var rows []T
	for {
		var row T
		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("iterating: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// readOne returns the first row or domain.ErrNotFound.
func readOne[T any](ctx context.Context, r *Repository, sql string, params ...bigquery.QueryParameter) (*T, error) {
	rows, err := readAll[T](ctx, r, sql, params...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, domain.ErrNotFound
	}
	return &rows[0], nil
}

func ratOf(d decimal.Decimal) *big.Rat {
	return d.Rat()
}

func decimalOf(r *big.Rat) decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(r.FloatString(numericScale))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func nullUUID(id *uuid.UUID) bigquery.NullString {
	if id == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: id.String(), Valid: true}
}

func parseNullUUID(s bigquery.NullString) (*uuid.UUID, error) {
	if !s.Valid || s.StringVal == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s.StringVal)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// prefixed qualifies every column in a comma separated list with alias.
func prefixed(alias, columns string) string {
	fields := strings.FieldsFunc(columns, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	for i, f := range fields {
		fields[i] = alias + "." + f
	}
	return strings.Join(fields, ", ")
}

var (
	_ ingest.Repository        = (*Repository)(nil)
	_ jobs.PendingUploadLister = (*Repository)(nil)
)
