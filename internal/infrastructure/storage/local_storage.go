package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Ensure LocalObjectStorage implements ObjectStorage
var _ ObjectStorage = (*LocalObjectStorage)(nil)

// LocalObjectStorage keeps objects as files below a root directory.
// Download URLs are file:// URLs and never expire.
type LocalObjectStorage struct {
	root string
}

// NewLocalObjectStorage creates the root directory if needed
func NewLocalObjectStorage(root string) (*LocalObjectStorage, error) {
	if root == "" {
		return nil, errors.New("local storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &LocalObjectStorage{root: abs}, nil
}

// Upload writes data to the file for storageKey
func (s *LocalObjectStorage) Upload(ctx context.Context, storageKey string, data []byte, contentType string) error {
	path, err := s.path(storageKey)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}
	// write then rename so readers never see a partial file
	tmp := path + ".part"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write object: %w", err)
	}
	return nil
}

// GenerateDownloadURL returns the file:// URL of the object
func (s *LocalObjectStorage) GenerateDownloadURL(
	ctx context.Context,
	storageKey string,
	expiresIn time.Duration,
) (string, time.Time, error) {
	path, err := s.path(storageKey)
	if err != nil {
		return "", time.Time{}, err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return u.String(), time.Time{}, nil
}

// DeleteObject removes the file. Deleting a missing object is not an error.
func (s *LocalObjectStorage) DeleteObject(ctx context.Context, storageKey string) error {
	path, err := s.path(storageKey)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// ObjectExists reports whether the file exists
func (s *LocalObjectStorage) ObjectExists(ctx context.Context, storageKey string) (bool, error) {
	path, err := s.path(storageKey)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check object existence: %w", err)
}

// path maps a storage key to a file below the root
func (s *LocalObjectStorage) path(storageKey string) (string, error) {
	if storageKey == "" {
		return "", errors.New("storage key is required")
	}
	path := filepath.Join(s.root, filepath.FromSlash(storageKey))
	if path != s.root && !strings.HasPrefix(path, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("storage key %q escapes the storage root", storageKey)
	}
	return path, nil
}
