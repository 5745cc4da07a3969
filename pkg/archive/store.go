// Package archive is a content-addressed evidence store. Certified patch
// bundles are written under their SHA-256 handle so re-archiving the same
// evidence is a no-op and any handle can be verified offline.
package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Mindburn-Labs/remedy/pkg/canon"
)

// Store is the content-addressed blob contract. Handles are
// "sha256:<hex>" strings computed from the content.
type Store interface {
	Store(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, handle string) ([]byte, error)
	Exists(ctx context.Context, handle string) (bool, error)
	Delete(ctx context.Context, handle string) error
}

// rawHex strips the handle prefix, rejecting malformed handles.
func rawHex(handle string) (string, error) {
	const prefix = "sha256:"
	if !strings.HasPrefix(handle, prefix) || len(handle) == len(prefix) {
		return "", fmt.Errorf("archive: invalid handle %q", handle)
	}
	return handle[len(prefix):], nil
}

// FileStore keeps blobs as files under a base directory.
type FileStore struct {
	baseDir string
	mu      sync.RWMutex
}

// NewFileStore creates the base directory and returns the store.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", baseDir, err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// Store writes data under its content handle. Existing blobs are left
// untouched; the write goes through a temp file rename so a crash never
// leaves a partial blob under a valid handle.
func (s *FileStore) Store(_ context.Context, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	handle := canon.HashBytes(data)
	hex, err := rawHex(handle)
	if err != nil {
		return "", err
	}
	path := filepath.Join(s.baseDir, hex+".blob")

	if _, err := os.Stat(path); err == nil {
		return handle, nil
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("archive: write blob: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("archive: commit blob: %w", err)
	}
	return handle, nil
}

// Get reads a blob by handle.
func (s *FileStore) Get(_ context.Context, handle string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hex, err := rawHex(handle)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, hex+".blob"))
	if err != nil {
		return nil, fmt.Errorf("archive: get %s: %w", handle, err)
	}
	return data, nil
}

// Exists reports whether a blob is stored under handle.
func (s *FileStore) Exists(_ context.Context, handle string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hex, err := rawHex(handle)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(filepath.Join(s.baseDir, hex+".blob")); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("archive: stat %s: %w", handle, err)
	}
	return true, nil
}

// Delete removes a blob. Deleting a missing blob is not an error.
func (s *FileStore) Delete(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	hex, err := rawHex(handle)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.baseDir, hex+".blob")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("archive: delete %s: %w", handle, err)
	}
	return nil
}
