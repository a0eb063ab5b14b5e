// Package storage is the blob repository boundary: durable byte storage
// keyed by an opaque path. Keys are never reused, so overwrite semantics are
// irrelevant.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrBlobNotFound is returned when a storage key resolves to nothing.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is the external collaborator contract for file payloads.
type BlobStore interface {
	// Put streams size bytes into storage and returns the opaque key.
	Put(ctx context.Context, reader io.Reader, size int64, contentType, suggestedName string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	OpenRead(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}
