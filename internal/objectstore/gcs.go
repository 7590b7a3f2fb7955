package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dvloznov/statement-ingest/internal/retry"
)

// GCS stores objects in a Google Cloud Storage bucket. Create it once at
// startup and share it; the client is safe for concurrent use.
type GCS struct {
	client *storage.Client
	bucket string
}

// NewGCS connects to Cloud Storage with Application Default Credentials.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &GCS{client: client, bucket: bucket}, nil
}

// EnsureBucket creates the bucket in projectID if it does not exist yet.
func (s *GCS) EnsureBucket(ctx context.Context, projectID string) error {
	bkt := s.client.Bucket(s.bucket)
	_, err := bkt.Attrs(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrBucketNotExist) {
		return fmt.Errorf("get bucket %q: %w", s.bucket, err)
	}
	if err := bkt.Create(ctx, projectID, nil); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

// Close releases the storage client.
func (s *GCS) Close() error {
	return s.client.Close()
}

func (s *GCS) Put(ctx context.Context, data []byte, hint string) (string, error) {
	key := NewKey(hint)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", retry.Transient(fmt.Errorf("write gs://%s/%s: %w", s.bucket, key, err))
	}
	if err := w.Close(); err != nil {
		return "", retry.Transient(fmt.Errorf("finalize gs://%s/%s: %w", s.bucket, key, err))
	}
	return key, nil
}

func (s *GCS) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gs://%s/%s: %w", s.bucket, key, ErrNotFound)
	}
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("open gs://%s/%s: %w", s.bucket, key, err))
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("read gs://%s/%s: %w", s.bucket, key, err))
	}
	return data, nil
}

func (s *GCS) Delete(ctx context.Context, key string) (bool, error) {
	err := s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, retry.Transient(fmt.Errorf("delete gs://%s/%s: %w", s.bucket, key, err))
	}
	return true, nil
}

var _ Store = (*GCS)(nil)
