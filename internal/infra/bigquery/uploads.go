package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/statement-ingest/internal/domain"
	"github.com/google/uuid"
)

type UploadRow struct {
	UploadID     string                 `bigquery:"upload_id"`     // REQUIRED
	UserID       string                 `bigquery:"user_id"`       // REQUIRED
	AccountID    string                 `bigquery:"account_id"`    // REQUIRED
	Filename     string                 `bigquery:"filename"`      // REQUIRED
	FileKey      string                 `bigquery:"file_key"`      // REQUIRED
	Status       string                 `bigquery:"status"`        // REQUIRED
	ErrorMessage bigquery.NullString    `bigquery:"error_message"` // NULLABLE
	UploadedAt   time.Time              `bigquery:"uploaded_at"`   // REQUIRED
	ProcessedAt  bigquery.NullTimestamp `bigquery:"processed_at"`  // NULLABLE
}

const uploadColumns = `upload_id, user_id, account_id, filename, file_key, status, error_message, uploaded_at, processed_at`

func uploadRowOf(u *domain.Upload) *UploadRow {
	row := &UploadRow{
		UploadID:     u.ID.String(),
		UserID:       u.UserID.String(),
		AccountID:    u.AccountID.String(),
		Filename:     u.Filename,
		FileKey:      u.FileKey,
		Status:       string(u.Status),
		ErrorMessage: nullString(u.ErrorMessage),
		UploadedAt:   u.UploadedAt,
	}
	if u.ProcessedAt != nil {
		row.ProcessedAt = bigquery.NullTimestamp{Timestamp: *u.ProcessedAt, Valid: true}
	}
	return row
}

// params lists the row's fields in uploadColumns order.
func (row *UploadRow) params() []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "upload_id", Value: row.UploadID},
		{Name: "user_id", Value: row.UserID},
		{Name: "account_id", Value: row.AccountID},
		{Name: "filename", Value: row.Filename},
		{Name: "file_key", Value: row.FileKey},
		{Name: "status", Value: row.Status},
		{Name: "error_message", Value: row.ErrorMessage},
		{Name: "uploaded_at", Value: row.UploadedAt},
		{Name: "processed_at", Value: row.ProcessedAt},
	}
}

// statusParams are the parameters of the status UPDATE.
func (row *UploadRow) statusParams() []bigquery.QueryParameter {
	return []bigquery.QueryParameter{
		{Name: "upload_id", Value: row.UploadID},
		{Name: "status", Value: row.Status},
		{Name: "error_message", Value: row.ErrorMessage},
		{Name: "processed_at", Value: row.ProcessedAt},
	}
}

func (row *UploadRow) toDomain() (*domain.Upload, error) {
	id, err := uuid.Parse(row.UploadID)
	if err != nil {
		return nil, fmt.Errorf("upload_id: %w", err)
	}
	userID, err := uuid.Parse(row.UserID)
	if err != nil {
		return nil, fmt.Errorf("user_id: %w", err)
	}
	accountID, err := uuid.Parse(row.AccountID)
	if err != nil {
		return nil, fmt.Errorf("account_id: %w", err)
	}
	u := &domain.Upload{
		ID:           id,
		UserID:       userID,
		AccountID:    accountID,
		Filename:     row.Filename,
		FileKey:      row.FileKey,
		Status:       domain.UploadStatus(row.Status),
		ErrorMessage: row.ErrorMessage.StringVal,
		UploadedAt:   row.UploadedAt,
	}
	if row.ProcessedAt.Valid {
		t := row.ProcessedAt.Timestamp
		u.ProcessedAt = &t
	}
	return u, nil
}

// CreateUpload inserts a new upload.
func (r *Repository) CreateUpload(ctx context.Context, u *domain.Upload) error {
	if err := r.insert(ctx, uploadsTable, uploadRowOf(u).params()); err != nil {
		return fmt.Errorf("CreateUpload: %w", err)
	}
	return nil
}

// GetUpload returns the upload or domain.ErrNotFound.
func (r *Repository) GetUpload(ctx context.Context, id uuid.UUID) (*domain.Upload, error) {
	row, err := readOne[UploadRow](ctx, r, `
		SELECT `+uploadColumns+`
		FROM `+r.table(uploadsTable)+`
		WHERE upload_id = @upload_id
		LIMIT 1
	`, bigquery.QueryParameter{Name: "upload_id", Value: id.String()})
	if err != nil {
		return nil, fmt.Errorf("GetUpload: %w", err)
	}
	return row.toDomain()
}

// SaveUploadStatus updates status, error message and processed timestamp.
// domain.ErrNotFound is returned when no upload has u.ID.
func (r *Repository) SaveUploadStatus(ctx context.Context, u *domain.Upload) error {
	n, err := r.execAffected(ctx, `
		UPDATE `+r.table(uploadsTable)+`
		SET status = @status,
		    error_message = @error_message,
		    processed_at = @processed_at
		WHERE upload_id = @upload_id
	`, uploadRowOf(u).statusParams()...)
	if err != nil {
		return fmt.Errorf("SaveUploadStatus: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("SaveUploadStatus: %w", domain.ErrNotFound)
	}
	return nil
}

// ListPendingUploads returns up to limit pending uploads, oldest first.
func (r *Repository) ListPendingUploads(ctx context.Context, limit int) ([]domain.Upload, error) {
	rows, err := readAll[UploadRow](ctx, r, `
		SELECT `+uploadColumns+`
		FROM `+r.table(uploadsTable)+`
		WHERE status = @status
		ORDER BY uploaded_at
		LIMIT @limit
	`,
		bigquery.QueryParameter{Name: "status", Value: string(domain.UploadStatusPending)},
		bigquery.QueryParameter{Name: "limit", Value: limit},
	)
	if err != nil {
		return nil, fmt.Errorf("ListPendingUploads: %w", err)
	}

	uploads := make([]domain.Upload, 0, len(rows))
	for _, row := range rows {
		u, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("ListPendingUploads: %w", err)
		}
		uploads = append(uploads, *u)
	}
	return uploads, nil
}
