package domain

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// UploadStatus is the state of an ingestion job.
type UploadStatus string

const (
	UploadStatusPending    UploadStatus = "pending"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusDone       UploadStatus = "done"
	UploadStatusError      UploadStatus = "error"
)

// Terminal reports whether no further transition happens from this status
// without an explicit re-run.
func (s UploadStatus) Terminal() bool {
	return s == UploadStatusDone || s == UploadStatusError
}

// MaxErrorMessageLength bounds the error text stored on an upload.
const MaxErrorMessageLength = 2000

// Upload tracks one statement file through ingestion.
type Upload struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	AccountID    uuid.UUID
	Filename     string
	FileKey      string
	Status       UploadStatus
	ErrorMessage string
	UploadedAt   time.Time
	ProcessedAt  *time.Time
}

// MarkProcessing moves the upload into processing and clears any previous error.
func (u *Upload) MarkProcessing() {
	u.Status = UploadStatusProcessing
	u.ErrorMessage = ""
	u.ProcessedAt = nil
}

// MarkPending puts the upload back in the queue, clearing the outcome of an
// interrupted attempt.
func (u *Upload) MarkPending() {
	u.Status = UploadStatusPending
	u.ErrorMessage = ""
	u.ProcessedAt = nil
}

// MarkDone records successful completion.
func (u *Upload) MarkDone(at time.Time) {
	u.Status = UploadStatusDone
	u.ErrorMessage = ""
	u.ProcessedAt = &at
}

// MarkError records a failed attempt. Empty messages are replaced so that a
// failed upload always carries some text.
func (u *Upload) MarkError(msg string, at time.Time) {
	if msg == "" {
		msg = "processing failed"
	}
	if len(msg) > MaxErrorMessageLength {
		msg = truncateUTF8(msg, MaxErrorMessageLength)
	}
	u.Status = UploadStatusError
	u.ErrorMessage = msg
	u.ProcessedAt = &at
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
