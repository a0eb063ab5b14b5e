package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

var _ BlobStore = (*LocalStore)(nil)

// LocalStore keeps share payloads as files under a root directory.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) Put(ctx context.Context, reader io.Reader, size int64, contentType, suggestedName string) (string, error) {
	key := newObjectKey(suggestedName)

	f, err := os.Create(filepath.Join(s.root, key))
	if err != nil {
		return "", fmt.Errorf("create blob file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, io.LimitReader(reader, size)); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write blob file: %w", err)
	}
	return key, nil
}

func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat blob file: %w", err)
	}
	return true, nil
}

func (s *LocalStore) OpenRead(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open blob file: %w", err)
	}
	return f, nil
}

func (s *LocalStore) Delete(ctx context.Context, key string) error {
	err := os.Remove(s.path(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove blob file: %w", err)
	}
	return nil
}

// path confines the key to the root directory.
func (s *LocalStore) path(key string) string {
	return filepath.Join(s.root, filepath.Base(key))
}
