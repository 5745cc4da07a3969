//go:build gcp

package archive

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/Mindburn-Labs/remedy/pkg/canon"
)

// GCSStore keeps evidence blobs in a GCS bucket under their content
// handle. Credentials come from Application Default Credentials.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// GCSConfig configures the GCS backend.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// NewGCSStore builds a GCS-backed evidence store.
func NewGCSStore(ctx context.Context, cfg GCSConfig) (*GCSStore, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) object(hex string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(s.prefix + hex + ".blob")
}

// Store uploads data under its content handle. Existing objects are left
// untouched.
func (s *GCSStore) Store(ctx context.Context, data []byte) (string, error) {
	handle := canon.HashBytes(data)
	hex, err := rawHex(handle)
	if err != nil {
		return "", err
	}

	obj := s.object(hex)
	if _, err := obj.Attrs(ctx); err == nil {
		return handle, nil
	}

	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("archive: gcs write: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("archive: gcs commit: %w", err)
	}
	return handle, nil
}

// Get downloads a blob by handle.
func (s *GCSStore) Get(ctx context.Context, handle string) ([]byte, error) {
	hex, err := rawHex(handle)
	if err != nil {
		return nil, err
	}

	reader, err := s.object(hex).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("archive: gcs get %s: %w", handle, err)
	}
	defer func() { _ = reader.Close() }()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("archive: gcs read %s: %w", handle, err)
	}
	return data, nil
}

// Exists checks for a blob by handle.
func (s *GCSStore) Exists(ctx context.Context, handle string) (bool, error) {
	hex, err := rawHex(handle)
	if err != nil {
		return false, err
	}
	if _, err := s.object(hex).Attrs(ctx); err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("archive: gcs attrs: %w", err)
	}
	return true, nil
}

// Delete removes a blob. Missing objects are not an error.
func (s *GCSStore) Delete(ctx context.Context, handle string) error {
	hex, err := rawHex(handle)
	if err != nil {
		return err
	}
	if err := s.object(hex).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("archive: gcs delete %s: %w", handle, err)
	}
	return nil
}
